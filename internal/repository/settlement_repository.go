package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/coachdesk/academy-api/internal/models"
	appErrors "github.com/coachdesk/academy-api/pkg/errors"
)

const settlementColumns = "id, coach_id, month, year, amount, status, payment_date, created_at, updated_at"

// SettlementRepository handles persistence for salary settlements and the
// session links that record which attendance sessions a payment covered.
type SettlementRepository struct {
	db *sqlx.DB
}

// NewSettlementRepository constructs the repository.
func NewSettlementRepository(db *sqlx.DB) *SettlementRepository {
	return &SettlementRepository{db: db}
}

// CreatePaid commits a disbursement in one transaction: the settlement
// row, one settlement_sessions row per covered attendance id, and the
// reset of the coach's cached outstanding balance. settlement_sessions
// carries a unique constraint on attendance_id, so a racing disbursement
// that claims any of the same sessions fails the whole transaction with a
// conflict instead of paying a session twice.
func (r *SettlementRepository) CreatePaid(ctx context.Context, settlement *models.SalarySettlement, sessionIDs []string) (*models.SalarySettlement, error) {
	if len(sessionIDs) == 0 {
		return nil, fmt.Errorf("paid settlement requires at least one session")
	}
	now := time.Now().UTC()
	if settlement.ID == "" {
		settlement.ID = uuid.NewString()
	}
	settlement.Status = models.SettlementStatusPaid
	settlement.CreatedAt = now
	settlement.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin paid settlement: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback() //nolint:errcheck
		}
	}()

	insertSettlement := `INSERT INTO salary_settlements (id, coach_id, month, year, amount, status, payment_date, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := tx.ExecContext(ctx, insertSettlement,
		settlement.ID, settlement.CoachID, settlement.Month, settlement.Year,
		settlement.Amount, settlement.Status, settlement.PaymentDate,
		settlement.CreatedAt, settlement.UpdatedAt); err != nil {
		return nil, fmt.Errorf("insert settlement: %w", err)
	}

	insertSession := `INSERT INTO settlement_sessions (settlement_id, attendance_id) VALUES ($1, $2)`
	for _, sessionID := range sessionIDs {
		if _, err := tx.ExecContext(ctx, insertSession, settlement.ID, sessionID); err != nil {
			if isUniqueViolation(err) {
				return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status,
					"session already covered by another settlement")
			}
			return nil, fmt.Errorf("link settlement session: %w", err)
		}
	}

	resetOutstanding := `UPDATE coaches SET outstanding_salary = 0, updated_at = $2 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, resetOutstanding, settlement.CoachID, now); err != nil {
		return nil, fmt.Errorf("reset outstanding salary: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit paid settlement: %w", err)
	}
	committed = true
	settlement.PaidSessions = sessionIDs
	return settlement, nil
}

// Accrue records one month of earned salary in a single transaction: a
// pending settlement plus an atomic increment of the coach's cached
// outstanding balance.
func (r *SettlementRepository) Accrue(ctx context.Context, settlement *models.SalarySettlement) (*models.SalarySettlement, error) {
	now := time.Now().UTC()
	if settlement.ID == "" {
		settlement.ID = uuid.NewString()
	}
	settlement.Status = models.SettlementStatusPending
	settlement.CreatedAt = now
	settlement.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin accrual: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback() //nolint:errcheck
		}
	}()

	insertSettlement := `INSERT INTO salary_settlements (id, coach_id, month, year, amount, status, payment_date, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, NULL, $7, $8)`
	if _, err := tx.ExecContext(ctx, insertSettlement,
		settlement.ID, settlement.CoachID, settlement.Month, settlement.Year,
		settlement.Amount, settlement.Status, settlement.CreatedAt, settlement.UpdatedAt); err != nil {
		return nil, fmt.Errorf("insert pending settlement: %w", err)
	}

	addOutstanding := `UPDATE coaches SET outstanding_salary = outstanding_salary + $2, updated_at = $3 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, addOutstanding, settlement.CoachID, settlement.Amount, now); err != nil {
		return nil, fmt.Errorf("accrue outstanding salary: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit accrual: %w", err)
	}
	committed = true
	return settlement, nil
}

// PaidSessionIDs returns every attendance id referenced by a paid
// settlement for the coach, across all months.
func (r *SettlementRepository) PaidSessionIDs(ctx context.Context, coachID string) ([]string, error) {
	query := `SELECT ss.attendance_id
FROM settlement_sessions ss
JOIN salary_settlements s ON s.id = ss.settlement_id
WHERE s.coach_id = $1 AND s.status = 'paid'`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, coachID); err != nil {
		return nil, fmt.Errorf("list paid session ids: %w", err)
	}
	return ids, nil
}

// SessionIDs returns the attendance ids linked to one settlement.
func (r *SettlementRepository) SessionIDs(ctx context.Context, settlementID string) ([]string, error) {
	query := `SELECT attendance_id FROM settlement_sessions WHERE settlement_id = $1`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, settlementID); err != nil {
		return nil, fmt.Errorf("list settlement session ids: %w", err)
	}
	return ids, nil
}

// List returns settlements matching the provided filter.
func (r *SettlementRepository) List(ctx context.Context, filter models.SettlementFilter) ([]models.SalarySettlement, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.CoachID != "" {
		where = append(where, fmt.Sprintf("coach_id = $%d", len(args)+1))
		args = append(args, filter.CoachID)
	}
	if filter.Status != nil && filter.Status.Valid() {
		where = append(where, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.Month > 0 {
		where = append(where, fmt.Sprintf("month = $%d", len(args)+1))
		args = append(args, filter.Month)
	}
	if filter.Year > 0 {
		where = append(where, fmt.Sprintf("year = $%d", len(args)+1))
		args = append(args, filter.Year)
	}
	whereClause := strings.Join(where, " AND ")
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s FROM salary_settlements WHERE %s ORDER BY created_at %s LIMIT %d OFFSET %d",
		settlementColumns, whereClause, order, size, offset)
	var settlements []models.SalarySettlement
	if err := r.db.SelectContext(ctx, &settlements, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list settlements: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM salary_settlements WHERE %s", whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count settlements: %w", err)
	}
	return settlements, total, nil
}

// FindByID returns a settlement by primary key.
func (r *SettlementRepository) FindByID(ctx context.Context, id string) (*models.SalarySettlement, error) {
	query := fmt.Sprintf("SELECT %s FROM salary_settlements WHERE id = $1", settlementColumns)
	var settlement models.SalarySettlement
	if err := r.db.GetContext(ctx, &settlement, query, id); err != nil {
		return nil, err
	}
	return &settlement, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
