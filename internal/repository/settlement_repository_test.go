package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/coachdesk/academy-api/internal/models"
	appErrors "github.com/coachdesk/academy-api/pkg/errors"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestSettlementRepositoryCreatePaid(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewSettlementRepository(db)
	now := time.Now().UTC()
	settlement := &models.SalarySettlement{
		CoachID:     "coach-1",
		Month:       3,
		Year:        2025,
		Amount:      4500,
		PaymentDate: &now,
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO salary_settlements")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO settlement_sessions")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO settlement_sessions")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE coaches SET outstanding_salary = 0")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	created, err := repo.CreatePaid(context.Background(), settlement, []string{"att-1", "att-2"})
	require.NoError(t, err)
	require.Equal(t, models.SettlementStatusPaid, created.Status)
	require.Equal(t, []string{"att-1", "att-2"}, created.PaidSessions)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSettlementRepositoryCreatePaidConflictsOnSettledSession(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewSettlementRepository(db)
	now := time.Now().UTC()
	settlement := &models.SalarySettlement{CoachID: "coach-1", Month: 3, Year: 2025, Amount: 1500, PaymentDate: &now}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO salary_settlements")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO settlement_sessions")).
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	_, err := repo.CreatePaid(context.Background(), settlement, []string{"att-1"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSettlementRepositoryCreatePaidRequiresSessions(t *testing.T) {
	db, _, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewSettlementRepository(db)
	_, err := repo.CreatePaid(context.Background(), &models.SalarySettlement{CoachID: "coach-1"}, nil)
	require.Error(t, err)
}

func TestSettlementRepositoryAccrue(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewSettlementRepository(db)
	settlement := &models.SalarySettlement{CoachID: "coach-1", Month: 4, Year: 2025, Amount: 3000}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO salary_settlements")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE coaches SET outstanding_salary = outstanding_salary +")).
		WithArgs("coach-1", 3000.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	accrued, err := repo.Accrue(context.Background(), settlement)
	require.NoError(t, err)
	require.Equal(t, models.SettlementStatusPending, accrued.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSettlementRepositoryList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewSettlementRepository(db)
	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "coach_id", "month", "year", "amount", "status", "payment_date", "created_at", "updated_at"}).
		AddRow("stl-1", "coach-1", 3, 2025, 4500.0, "paid", now, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, coach_id, month, year, amount, status, payment_date, created_at, updated_at FROM salary_settlements")).
		WithArgs("coach-1").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM salary_settlements")).
		WithArgs("coach-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	settlements, total, err := repo.List(context.Background(), models.SettlementFilter{CoachID: "coach-1"})
	require.NoError(t, err)
	require.Len(t, settlements, 1)
	require.Equal(t, 1, total)
	require.Equal(t, "stl-1", settlements[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSettlementRepositorySessionIDs(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewSettlementRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT attendance_id FROM settlement_sessions")).
		WithArgs("stl-1").
		WillReturnRows(sqlmock.NewRows([]string{"attendance_id"}).AddRow("att-1").AddRow("att-2"))

	ids, err := repo.SessionIDs(context.Background(), "stl-1")
	require.NoError(t, err)
	require.Equal(t, []string{"att-1", "att-2"}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}
