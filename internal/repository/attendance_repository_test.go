package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/coachdesk/academy-api/internal/models"
)

const attendanceCols = "id, student_id, coach_id, date, status, session_duration, notes, created_at, updated_at"

func attendanceRow(id string, date time.Time, minutes int) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{"id", "student_id", "coach_id", "date", "status", "session_duration", "notes", "created_at", "updated_at"}).
		AddRow(id, "stu-1", "coach-1", date, "present", minutes, nil, now, now)
}

func TestAttendanceRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)
	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO attendance_records")).
		WillReturnRows(attendanceRow("att-1", date, 60))

	record, err := repo.Create(context.Background(), &models.AttendanceRecord{
		StudentID:       "stu-1",
		CoachID:         "coach-1",
		Date:            date,
		Status:          models.AttendanceStatusPresent,
		SessionDuration: 60,
	})
	require.NoError(t, err)
	require.Equal(t, "att-1", record.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryCreateDuplicateDay(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)
	// ON CONFLICT DO NOTHING yields no row for a duplicate (student, date).
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO attendance_records")).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Create(context.Background(), &models.AttendanceRecord{
		StudentID: "stu-1",
		CoachID:   "coach-1",
		Date:      time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		Status:    models.AttendanceStatusPresent,
	})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryUnpaidPresentByCoach(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)
	date := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT a\\.id, .+ FROM attendance_records a\\s+WHERE .+NOT EXISTS").
		WithArgs("coach-1").
		WillReturnRows(attendanceRow("att-1", date, 60))

	rows, err := repo.UnpaidPresentByCoach(context.Background(), "coach-1", nil, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "att-1", rows[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryPresentMinutesInRange(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)
	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(SUM(session_duration), 0)")).
		WithArgs("coach-1", from, to).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(180))

	minutes, err := repo.PresentMinutesInRange(context.Background(), "coach-1", from, to)
	require.NoError(t, err)
	require.Equal(t, 180, minutes)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryPresentWithPaidFlag(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)
	from := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 7, 31, 0, 0, 0, 0, time.UTC)
	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "student_id", "coach_id", "date", "status", "session_duration", "notes", "created_at", "updated_at", "is_paid"}).
		AddRow("att-1", "stu-1", "coach-1", from, "present", 60, nil, now, now, true).
		AddRow("att-2", "stu-1", "coach-1", from.AddDate(0, 0, 7), "present", 60, nil, now, now, false)
	mock.ExpectQuery("SELECT a\\.id, .+ AS is_paid").
		WithArgs("coach-1", from, to).
		WillReturnRows(rows)

	result, err := repo.PresentWithPaidFlag(context.Background(), "coach-1", from, to)
	require.NoError(t, err)
	require.Len(t, result, 2)
	require.True(t, result[0].IsPaid)
	require.False(t, result[1].IsPaid)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)
	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + attendanceCols + "\nFROM attendance_records")).
		WithArgs("stu-1").
		WillReturnRows(attendanceRow("att-1", date, 60))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM attendance_records")).
		WithArgs("stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	records, total, err := repo.List(context.Background(), models.AttendanceFilter{StudentID: "stu-1"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, 1, total)
	require.NoError(t, mock.ExpectationsWereMet())
}
