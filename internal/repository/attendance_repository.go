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

// AttendanceRepository handles persistence for attendance records.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// Create inserts a new attendance record. It returns sql.ErrNoRows when a
// record already exists for the (student, date) pair; the unique index is
// the authority on duplicates, not a prior read.
func (r *AttendanceRepository) Create(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error) {
	now := time.Now().UTC()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	record.CreatedAt = now
	record.UpdatedAt = now
	query := `INSERT INTO attendance_records (id, student_id, coach_id, date, status, session_duration, notes, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (student_id, date) DO NOTHING
RETURNING id, student_id, coach_id, date, status, session_duration, notes, created_at, updated_at`
	var stored models.AttendanceRecord
	err := r.db.GetContext(ctx, &stored, query,
		record.ID, record.StudentID, record.CoachID, record.Date, record.Status,
		record.SessionDuration, record.Notes, record.CreatedAt, record.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("insert attendance record: %w", err)
	}
	return &stored, nil
}

// FindByStudentAndDate returns the record for a student on a calendar day.
func (r *AttendanceRepository) FindByStudentAndDate(ctx context.Context, studentID string, date time.Time) (*models.AttendanceRecord, error) {
	query := `SELECT id, student_id, coach_id, date, status, session_duration, notes, created_at, updated_at
FROM attendance_records WHERE student_id = $1 AND date = $2`
	var record models.AttendanceRecord
	if err := r.db.GetContext(ctx, &record, query, studentID, date); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find attendance by student and date: %w", err)
	}
	return &record, nil
}

// List returns attendance rows matching the provided filter, newest first
// by default.
func (r *AttendanceRepository) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.StudentID != "" {
		where = append(where, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.CoachID != "" {
		where = append(where, fmt.Sprintf("coach_id = $%d", len(args)+1))
		args = append(args, filter.CoachID)
	}
	if filter.Status != nil && filter.Status.Valid() {
		where = append(where, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.DateFrom != nil {
		where = append(where, fmt.Sprintf("date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where = append(where, fmt.Sprintf("date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
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

	query := fmt.Sprintf(`SELECT id, student_id, coach_id, date, status, session_duration, notes, created_at, updated_at
FROM attendance_records WHERE %s
ORDER BY date %s
LIMIT %d OFFSET %d`, whereClause, order, size, offset)

	var rows []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list attendance records: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM attendance_records WHERE %s", whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count attendance records: %w", err)
	}
	return rows, total, nil
}

// UnpaidPresentByCoach returns every present session for the coach that no
// paid settlement has claimed yet, optionally restricted to an inclusive
// date range. This query is the single billing rule: payment, reporting
// and the outstanding check all go through it.
func (r *AttendanceRepository) UnpaidPresentByCoach(ctx context.Context, coachID string, from, to *time.Time) ([]models.AttendanceRecord, error) {
	where := []string{"a.coach_id = $1", "a.status = 'present'"}
	args := []interface{}{coachID}
	if from != nil {
		where = append(where, fmt.Sprintf("a.date >= $%d", len(args)+1))
		args = append(args, *from)
	}
	if to != nil {
		where = append(where, fmt.Sprintf("a.date <= $%d", len(args)+1))
		args = append(args, *to)
	}
	query := fmt.Sprintf(`SELECT a.id, a.student_id, a.coach_id, a.date, a.status, a.session_duration, a.notes, a.created_at, a.updated_at
FROM attendance_records a
WHERE %s
AND NOT EXISTS (
    SELECT 1 FROM settlement_sessions ss
    JOIN salary_settlements s ON s.id = ss.settlement_id
    WHERE ss.attendance_id = a.id AND s.status = 'paid'
)
ORDER BY a.date ASC`, strings.Join(where, " AND "))

	var rows []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list unpaid present sessions: %w", err)
	}
	return rows, nil
}

// PresentMinutesInRange sums present session minutes for a coach within an
// inclusive date range, regardless of payment status. Used by accrual.
func (r *AttendanceRepository) PresentMinutesInRange(ctx context.Context, coachID string, from, to time.Time) (int, error) {
	query := `SELECT COALESCE(SUM(session_duration), 0)
FROM attendance_records
WHERE coach_id = $1 AND status = 'present' AND date >= $2 AND date <= $3`
	var minutes int
	if err := r.db.GetContext(ctx, &minutes, query, coachID, from, to); err != nil {
		return 0, fmt.Errorf("sum present minutes: %w", err)
	}
	return minutes, nil
}

// PresentWithPaidFlag lists present sessions in a range together with a
// flag telling whether a paid settlement already covers each session.
func (r *AttendanceRepository) PresentWithPaidFlag(ctx context.Context, coachID string, from, to time.Time) ([]AttendanceWithPaidFlag, error) {
	query := `SELECT a.id, a.student_id, a.coach_id, a.date, a.status, a.session_duration, a.notes, a.created_at, a.updated_at,
EXISTS (
    SELECT 1 FROM settlement_sessions ss
    JOIN salary_settlements s ON s.id = ss.settlement_id
    WHERE ss.attendance_id = a.id AND s.status = 'paid'
) AS is_paid
FROM attendance_records a
WHERE a.coach_id = $1 AND a.status = 'present' AND a.date >= $2 AND a.date <= $3
ORDER BY a.date ASC`
	var rows []AttendanceWithPaidFlag
	if err := r.db.SelectContext(ctx, &rows, query, coachID, from, to); err != nil {
		return nil, fmt.Errorf("list present sessions with paid flag: %w", err)
	}
	return rows, nil
}

// AttendanceWithPaidFlag extends a record with its settlement state.
type AttendanceWithPaidFlag struct {
	models.AttendanceRecord
	IsPaid bool `db:"is_paid"`
}
