package models

import "time"

// Coach represents an instructor paid by the hour for present sessions.
type Coach struct {
	ID                string    `db:"id" json:"id"`
	Code              string    `db:"code" json:"code"`
	UserID            string    `db:"user_id" json:"user_id"`
	FullName          string    `db:"full_name" json:"full_name"`
	Email             string    `db:"email" json:"email"`
	HourlyRate        float64   `db:"hourly_rate" json:"hourly_rate"`
	OutstandingSalary float64   `db:"outstanding_salary" json:"outstanding_salary"`
	JoiningDate       time.Time `db:"joining_date" json:"joining_date"`
	Active            bool      `db:"active" json:"active"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// CoachFilter captures filtering options for listing coaches.
type CoachFilter struct {
	Search    string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
