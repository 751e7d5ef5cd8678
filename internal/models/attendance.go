package models

import "time"

// AttendanceStatus represents the status for attendance records.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "present"
	AttendanceStatusAbsent  AttendanceStatus = "absent"
	AttendanceStatusLeave   AttendanceStatus = "leave"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusAbsent, AttendanceStatusLeave:
		return true
	default:
		return false
	}
}

// DefaultSessionMinutes is applied when a present session is marked
// without an explicit duration.
const DefaultSessionMinutes = 60

// AttendanceRecord is a per-student-per-day attendance fact. At most one
// record exists per (student, date); records are immutable once written.
type AttendanceRecord struct {
	ID              string           `db:"id" json:"id"`
	StudentID       string           `db:"student_id" json:"student_id"`
	CoachID         string           `db:"coach_id" json:"coach_id"`
	Date            time.Time        `db:"date" json:"date"`
	Status          AttendanceStatus `db:"status" json:"status"`
	SessionDuration int              `db:"session_duration" json:"session_duration"`
	Notes           *string          `db:"notes" json:"notes,omitempty"`
	CreatedAt       time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time        `db:"updated_at" json:"updated_at"`
}

// Hours converts the session duration to fractional hours.
func (r AttendanceRecord) Hours() float64 {
	return float64(r.SessionDuration) / 60
}

// AttendanceFilter scopes attendance listing queries.
type AttendanceFilter struct {
	StudentID string
	CoachID   string
	Status    *AttendanceStatus
	DateFrom  *time.Time
	DateTo    *time.Time
	Page      int
	PageSize  int
	SortOrder string
}
