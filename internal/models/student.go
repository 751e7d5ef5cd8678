package models

import "time"

// Student represents an enrolled student, optionally assigned to a coach.
type Student struct {
	ID          string    `db:"id" json:"id"`
	Code        string    `db:"code" json:"code"`
	UserID      string    `db:"user_id" json:"user_id"`
	FullName    string    `db:"full_name" json:"full_name"`
	Email       string    `db:"email" json:"email"`
	CoachID     *string   `db:"coach_id" json:"coach_id,omitempty"`
	JoiningDate time.Time `db:"joining_date" json:"joining_date"`
	Active      bool      `db:"active" json:"active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// StudentFilter captures filtering options for listing students.
type StudentFilter struct {
	Search    string
	CoachID   string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
