package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/coachdesk/academy-api/internal/models"
)

const coachColumns = "id, code, user_id, full_name, email, hourly_rate, outstanding_salary, joining_date, active, created_at, updated_at"

// CoachRepository handles persistence for coach records.
type CoachRepository struct {
	db *sqlx.DB
}

// NewCoachRepository constructs the repository.
func NewCoachRepository(db *sqlx.DB) *CoachRepository {
	return &CoachRepository{db: db}
}

// List returns coaches matching the provided filter.
func (r *CoachRepository) List(ctx context.Context, filter models.CoachFilter) ([]models.Coach, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.Search != "" {
		where = append(where, fmt.Sprintf("(full_name ILIKE $%d OR email ILIKE $%d OR code ILIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	if filter.Active != nil {
		where = append(where, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	whereClause := strings.Join(where, " AND ")

	allowedSort := map[string]string{
		"full_name":   "full_name",
		"hourly_rate": "hourly_rate",
		"created_at":  "created_at",
	}
	sortColumn, ok := allowedSort[filter.SortBy]
	if !ok {
		sortColumn = "created_at"
	}
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
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s FROM coaches WHERE %s ORDER BY %s %s LIMIT %d OFFSET %d",
		coachColumns, whereClause, sortColumn, order, size, offset)

	var coaches []models.Coach
	if err := r.db.SelectContext(ctx, &coaches, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list coaches: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM coaches WHERE %s", whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count coaches: %w", err)
	}
	return coaches, total, nil
}

// FindByID returns a coach by primary key.
func (r *CoachRepository) FindByID(ctx context.Context, id string) (*models.Coach, error) {
	query := fmt.Sprintf("SELECT %s FROM coaches WHERE id = $1", coachColumns)
	var coach models.Coach
	if err := r.db.GetContext(ctx, &coach, query, id); err != nil {
		return nil, err
	}
	return &coach, nil
}

// FindByUserID returns the coach profile linked to a user account.
func (r *CoachRepository) FindByUserID(ctx context.Context, userID string) (*models.Coach, error) {
	query := fmt.Sprintf("SELECT %s FROM coaches WHERE user_id = $1", coachColumns)
	var coach models.Coach
	if err := r.db.GetContext(ctx, &coach, query, userID); err != nil {
		return nil, err
	}
	return &coach, nil
}

// Create inserts a new coach profile.
func (r *CoachRepository) Create(ctx context.Context, coach *models.Coach) error {
	now := time.Now().UTC()
	if coach.ID == "" {
		coach.ID = uuid.NewString()
	}
	if coach.JoiningDate.IsZero() {
		coach.JoiningDate = now
	}
	coach.CreatedAt = now
	coach.UpdatedAt = now
	query := `INSERT INTO coaches (id, code, user_id, full_name, email, hourly_rate, outstanding_salary, joining_date, active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	if _, err := r.db.ExecContext(ctx, query,
		coach.ID, coach.Code, coach.UserID, coach.FullName, coach.Email,
		coach.HourlyRate, coach.OutstandingSalary, coach.JoiningDate, coach.Active,
		coach.CreatedAt, coach.UpdatedAt); err != nil {
		return fmt.Errorf("insert coach: %w", err)
	}
	return nil
}

// Update applies profile changes to an existing coach.
func (r *CoachRepository) Update(ctx context.Context, coach *models.Coach) error {
	coach.UpdatedAt = time.Now().UTC()
	query := `UPDATE coaches SET full_name = $2, email = $3, hourly_rate = $4, active = $5, updated_at = $6 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query,
		coach.ID, coach.FullName, coach.Email, coach.HourlyRate, coach.Active, coach.UpdatedAt); err != nil {
		return fmt.Errorf("update coach: %w", err)
	}
	return nil
}

// SetHourlyRate changes the rate used for future billing. Past
// settlements are never recomputed.
func (r *CoachRepository) SetHourlyRate(ctx context.Context, id string, rate float64) error {
	query := `UPDATE coaches SET hourly_rate = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, rate, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set hourly rate: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// AddOutstanding atomically increments a coach's cached outstanding
// balance. A single UPDATE keeps the read-modify-write in the database so
// a concurrent payment cannot lose the increment.
func (r *CoachRepository) AddOutstanding(ctx context.Context, id string, amount float64) error {
	query := `UPDATE coaches SET outstanding_salary = outstanding_salary + $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, amount, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("add outstanding salary: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListWithOutstanding returns coaches whose cached balance is positive.
func (r *CoachRepository) ListWithOutstanding(ctx context.Context) ([]models.Coach, error) {
	query := fmt.Sprintf("SELECT %s FROM coaches WHERE outstanding_salary > 0 ORDER BY full_name ASC", coachColumns)
	var coaches []models.Coach
	if err := r.db.SelectContext(ctx, &coaches, query); err != nil {
		return nil, fmt.Errorf("list coaches with outstanding salary: %w", err)
	}
	return coaches, nil
}

// ListActive returns every active coach, used by the monthly accrual run.
func (r *CoachRepository) ListActive(ctx context.Context) ([]models.Coach, error) {
	query := fmt.Sprintf("SELECT %s FROM coaches WHERE active = TRUE ORDER BY full_name ASC", coachColumns)
	var coaches []models.Coach
	if err := r.db.SelectContext(ctx, &coaches, query); err != nil {
		return nil, fmt.Errorf("list active coaches: %w", err)
	}
	return coaches, nil
}

// TotalOutstanding sums the cached balances across all coaches.
func (r *CoachRepository) TotalOutstanding(ctx context.Context) (float64, error) {
	query := `SELECT COALESCE(SUM(outstanding_salary), 0) FROM coaches WHERE outstanding_salary > 0`
	var total float64
	if err := r.db.GetContext(ctx, &total, query); err != nil {
		return 0, fmt.Errorf("total outstanding salary: %w", err)
	}
	return total, nil
}

// Count returns the total number of coaches.
func (r *CoachRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM coaches"); err != nil {
		return 0, fmt.Errorf("count coaches: %w", err)
	}
	return count, nil
}

// Deactivate marks a coach inactive without deleting payroll history.
func (r *CoachRepository) Deactivate(ctx context.Context, id string) error {
	query := `UPDATE coaches SET active = FALSE, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate coach: %w", err)
	}
	return nil
}

// NextCode generates the next human-readable coach code (COA0001...).
func (r *CoachRepository) NextCode(ctx context.Context) (string, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM coaches"); err != nil {
		return "", fmt.Errorf("next coach code: %w", err)
	}
	return fmt.Sprintf("COA%04d", count+1), nil
}
