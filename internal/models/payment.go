package models

import "time"

// PaymentStatus tracks the lifecycle of a one-off payment intake.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
)

// Payment records a payment intent submitted through the public intake
// form, together with the uploaded game-record receipt.
type Payment struct {
	ID          string        `db:"id" json:"id"`
	Reference   string        `db:"reference" json:"reference"`
	Name        string        `db:"name" json:"name"`
	Email       string        `db:"email" json:"email"`
	Amount      float64       `db:"amount" json:"amount"`
	ReceiptPath string        `db:"receipt_path" json:"receipt_path"`
	GatewayID   *string       `db:"gateway_id" json:"gateway_id,omitempty"`
	Status      PaymentStatus `db:"status" json:"status"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at" json:"updated_at"`
}
