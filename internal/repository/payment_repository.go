package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/coachdesk/academy-api/internal/models"
)

const paymentColumns = "id, reference, name, email, amount, receipt_path, gateway_id, status, created_at, updated_at"

// PaymentRepository handles persistence for one-off payment records.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository constructs the repository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create inserts a new payment intent.
func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	now := time.Now().UTC()
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	payment.CreatedAt = now
	payment.UpdatedAt = now
	query := `INSERT INTO payments (id, reference, name, email, amount, receipt_path, gateway_id, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if _, err := r.db.ExecContext(ctx, query,
		payment.ID, payment.Reference, payment.Name, payment.Email, payment.Amount,
		payment.ReceiptPath, payment.GatewayID, payment.Status, payment.CreatedAt, payment.UpdatedAt); err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// FindByID returns a payment by primary key.
func (r *PaymentRepository) FindByID(ctx context.Context, id string) (*models.Payment, error) {
	query := fmt.Sprintf("SELECT %s FROM payments WHERE id = $1", paymentColumns)
	var payment models.Payment
	if err := r.db.GetContext(ctx, &payment, query, id); err != nil {
		return nil, err
	}
	return &payment, nil
}

// FindByReference returns a payment by its public reference.
func (r *PaymentRepository) FindByReference(ctx context.Context, reference string) (*models.Payment, error) {
	query := fmt.Sprintf("SELECT %s FROM payments WHERE reference = $1", paymentColumns)
	var payment models.Payment
	if err := r.db.GetContext(ctx, &payment, query, reference); err != nil {
		return nil, err
	}
	return &payment, nil
}

// Confirm marks a payment completed and records the gateway id.
func (r *PaymentRepository) Confirm(ctx context.Context, id, gatewayID string) error {
	query := `UPDATE payments SET status = $2, gateway_id = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.PaymentStatusCompleted, gatewayID, time.Now().UTC()); err != nil {
		return fmt.Errorf("confirm payment: %w", err)
	}
	return nil
}

// List returns payments newest first.
func (r *PaymentRepository) List(ctx context.Context, page, pageSize int) ([]models.Payment, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	offset := (page - 1) * pageSize

	query := fmt.Sprintf("SELECT %s FROM payments ORDER BY created_at DESC LIMIT %d OFFSET %d", paymentColumns, pageSize, offset)
	var payments []models.Payment
	if err := r.db.SelectContext(ctx, &payments, query); err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM payments"); err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}
	return payments, total, nil
}
