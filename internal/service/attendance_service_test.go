package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/coachdesk/academy-api/internal/models"
	appErrors "github.com/coachdesk/academy-api/pkg/errors"
)

type fakeAttendanceRepo struct {
	records map[string]*models.AttendanceRecord
}

func attendanceKey(studentID string, date time.Time) string {
	return studentID + "|" + date.Format("2006-01-02")
}

func newFakeAttendanceRepo() *fakeAttendanceRepo {
	return &fakeAttendanceRepo{records: make(map[string]*models.AttendanceRecord)}
}

func (f *fakeAttendanceRepo) Create(_ context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error) {
	key := attendanceKey(record.StudentID, record.Date)
	if _, exists := f.records[key]; exists {
		return nil, sql.ErrNoRows
	}
	record.ID = "att-" + key
	f.records[key] = record
	return record, nil
}

func (f *fakeAttendanceRepo) FindByStudentAndDate(_ context.Context, studentID string, date time.Time) (*models.AttendanceRecord, error) {
	record, ok := f.records[attendanceKey(studentID, date)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return record, nil
}

func (f *fakeAttendanceRepo) List(_ context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error) {
	var out []models.AttendanceRecord
	for _, record := range f.records {
		if filter.StudentID != "" && record.StudentID != filter.StudentID {
			continue
		}
		out = append(out, *record)
	}
	return out, len(out), nil
}

type fakeStudentLookup struct {
	assignments map[string]string
}

func (f *fakeStudentLookup) FindByIDAndCoach(_ context.Context, id, coachID string) (*models.Student, error) {
	if f.assignments[id] != coachID {
		return nil, sql.ErrNoRows
	}
	return &models.Student{ID: id, CoachID: &coachID}, nil
}

func newAttendanceService(repo *fakeAttendanceRepo, students *fakeStudentLookup) *AttendanceService {
	cacheSvc := NewCacheService(nil, nil, time.Minute, zap.NewNop(), false)
	return NewAttendanceService(repo, students, cacheSvc, nil, zap.NewNop())
}

func TestMarkAttendanceDefaultsDuration(t *testing.T) {
	repo := newFakeAttendanceRepo()
	students := &fakeStudentLookup{assignments: map[string]string{"stu-1": "coach-1"}}
	svc := newAttendanceService(repo, students)

	record, err := svc.Mark(context.Background(), MarkAttendanceRequest{
		StudentID: "stu-1",
		CoachID:   "coach-1",
		Date:      "2025-03-10",
		Status:    "present",
	})
	require.NoError(t, err)
	assert.Equal(t, models.DefaultSessionMinutes, record.SessionDuration)
	assert.Equal(t, day(2025, time.March, 10), record.Date)
}

func TestMarkAttendanceExplicitDuration(t *testing.T) {
	repo := newFakeAttendanceRepo()
	students := &fakeStudentLookup{assignments: map[string]string{"stu-1": "coach-1"}}
	svc := newAttendanceService(repo, students)

	duration := 90
	record, err := svc.Mark(context.Background(), MarkAttendanceRequest{
		StudentID:       "stu-1",
		CoachID:         "coach-1",
		Date:            "2025-03-10",
		Status:          "present",
		SessionDuration: &duration,
	})
	require.NoError(t, err)
	assert.Equal(t, 90, record.SessionDuration)
}

func TestMarkAttendanceAbsentForcesZeroDuration(t *testing.T) {
	repo := newFakeAttendanceRepo()
	students := &fakeStudentLookup{assignments: map[string]string{"stu-1": "coach-1"}}
	svc := newAttendanceService(repo, students)

	duration := 60
	record, err := svc.Mark(context.Background(), MarkAttendanceRequest{
		StudentID:       "stu-1",
		CoachID:         "coach-1",
		Date:            "2025-03-10",
		Status:          "absent",
		SessionDuration: &duration,
	})
	require.NoError(t, err)
	assert.Zero(t, record.SessionDuration)
}

func TestMarkAttendanceRejectsDuplicateDay(t *testing.T) {
	repo := newFakeAttendanceRepo()
	students := &fakeStudentLookup{assignments: map[string]string{"stu-1": "coach-1"}}
	svc := newAttendanceService(repo, students)

	req := MarkAttendanceRequest{
		StudentID: "stu-1",
		CoachID:   "coach-1",
		Date:      "2025-03-10",
		Status:    "present",
	}
	first, err := svc.Mark(context.Background(), req)
	require.NoError(t, err)

	_, err = svc.Mark(context.Background(), req)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrDuplicateAttendance.Code, appErr.Code)
	// The conflict carries the existing record.
	existing, ok := appErr.Details.(*models.AttendanceRecord)
	require.True(t, ok)
	assert.Equal(t, first.ID, existing.ID)
}

func TestMarkAttendanceRejectsUnassignedStudent(t *testing.T) {
	repo := newFakeAttendanceRepo()
	students := &fakeStudentLookup{assignments: map[string]string{"stu-1": "coach-2"}}
	svc := newAttendanceService(repo, students)

	_, err := svc.Mark(context.Background(), MarkAttendanceRequest{
		StudentID: "stu-1",
		CoachID:   "coach-1",
		Date:      "2025-03-10",
		Status:    "present",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrNotYourStudent)
}

func TestMarkAttendanceRejectsFutureDate(t *testing.T) {
	repo := newFakeAttendanceRepo()
	students := &fakeStudentLookup{assignments: map[string]string{"stu-1": "coach-1"}}
	svc := newAttendanceService(repo, students)

	future := time.Now().UTC().AddDate(0, 0, 2).Format("2006-01-02")
	_, err := svc.Mark(context.Background(), MarkAttendanceRequest{
		StudentID: "stu-1",
		CoachID:   "coach-1",
		Date:      future,
		Status:    "present",
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestMarkAttendanceRejectsBadStatus(t *testing.T) {
	repo := newFakeAttendanceRepo()
	students := &fakeStudentLookup{assignments: map[string]string{"stu-1": "coach-1"}}
	svc := newAttendanceService(repo, students)

	_, err := svc.Mark(context.Background(), MarkAttendanceRequest{
		StudentID: "stu-1",
		CoachID:   "coach-1",
		Status:    "vacation",
	})
	require.Error(t, err)
}

func TestMarkAttendanceDefaultsToToday(t *testing.T) {
	repo := newFakeAttendanceRepo()
	students := &fakeStudentLookup{assignments: map[string]string{"stu-1": "coach-1"}}
	svc := newAttendanceService(repo, students)

	record, err := svc.Mark(context.Background(), MarkAttendanceRequest{
		StudentID: "stu-1",
		CoachID:   "coach-1",
		Status:    "present",
	})
	require.NoError(t, err)
	now := time.Now().UTC()
	assert.Equal(t, day(now.Year(), now.Month(), now.Day()), record.Date)
}

func TestListForStudentRequiresID(t *testing.T) {
	svc := newAttendanceService(newFakeAttendanceRepo(), &fakeStudentLookup{})
	_, _, err := svc.ListForStudent(context.Background(), ListAttendanceRequest{})
	require.Error(t, err)
}
