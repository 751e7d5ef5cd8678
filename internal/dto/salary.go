package dto

import (
	"time"

	"github.com/coachdesk/academy-api/internal/models"
)

// SalaryReportSession is one attendance session inside a salary report.
type SalaryReportSession struct {
	Date            time.Time `json:"date"`
	SessionDuration int       `json:"session_duration"`
	Hours           float64   `json:"hours"`
	IsPaid          bool      `json:"is_paid"`
}

// SalaryReportResponse is the reporting contract for a coach salary query.
// Monetary and hour figures are rounded to two decimals here; the stored
// settlement amounts keep full precision.
type SalaryReportResponse struct {
	CoachID           string                `json:"coach_id"`
	CoachName         string                `json:"coach_name"`
	Month             int                   `json:"month"`
	Year              int                   `json:"year"`
	TotalSessions     int                   `json:"total_sessions"`
	TotalHours        float64               `json:"total_hours"`
	HourlyRate        float64               `json:"hourly_rate"`
	CalculatedSalary  float64               `json:"calculated_salary"`
	OutstandingSalary float64               `json:"outstanding_salary"`
	Sessions          []SalaryReportSession `json:"sessions"`
}

// PayAllResult aggregates a batch disbursement run. Failures are isolated
// per coach and never abort sibling payments.
type PayAllResult struct {
	Paid        int                       `json:"paid"`
	Skipped     int                       `json:"skipped"`
	Settlements []models.SalarySettlement `json:"settlements"`
	Errors      []PayAllError             `json:"errors,omitempty"`
}

// PayAllError reports a single coach failure inside a batch run.
type PayAllError struct {
	CoachID string `json:"coach_id"`
	Message string `json:"message"`
}

// PendingSalaryTotal reports the academy-wide outstanding balance.
type PendingSalaryTotal struct {
	Total float64 `json:"total"`
}
