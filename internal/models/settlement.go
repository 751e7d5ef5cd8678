package models

import "time"

// SettlementStatus distinguishes accrued salary from disbursed salary.
type SettlementStatus string

const (
	// SettlementStatusPending records salary recognised at month end but
	// not yet disbursed. Pending settlements carry no paid sessions.
	SettlementStatusPending SettlementStatus = "pending"
	// SettlementStatusPaid records a disbursement linked to the exact
	// attendance sessions it covers.
	SettlementStatusPaid SettlementStatus = "paid"
)

// Valid returns true when the status is a supported value.
func (s SettlementStatus) Valid() bool {
	return s == SettlementStatusPending || s == SettlementStatusPaid
}

// SalarySettlement is a payroll ledger entry for a coach. The union of
// PaidSessions across all paid settlements of a coach never contains an
// attendance id twice; the settlement_sessions table enforces this with a
// unique constraint on attendance_id.
type SalarySettlement struct {
	ID           string           `db:"id" json:"id"`
	CoachID      string           `db:"coach_id" json:"coach_id"`
	Month        int              `db:"month" json:"month"`
	Year         int              `db:"year" json:"year"`
	Amount       float64          `db:"amount" json:"amount"`
	Status       SettlementStatus `db:"status" json:"status"`
	PaymentDate  *time.Time       `db:"payment_date" json:"payment_date,omitempty"`
	PaidSessions []string         `db:"-" json:"paid_sessions,omitempty"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`
}

// SettlementFilter scopes settlement listing queries.
type SettlementFilter struct {
	CoachID   string
	Status    *SettlementStatus
	Month     int
	Year      int
	Page      int
	PageSize  int
	SortOrder string
}
