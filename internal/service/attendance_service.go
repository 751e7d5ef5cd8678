package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/coachdesk/academy-api/internal/models"
	appErrors "github.com/coachdesk/academy-api/pkg/errors"
)

type attendanceRepository interface {
	Create(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error)
	FindByStudentAndDate(ctx context.Context, studentID string, date time.Time) (*models.AttendanceRecord, error)
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error)
}

type attendanceStudentRepository interface {
	FindByIDAndCoach(ctx context.Context, id, coachID string) (*models.Student, error)
}

// AttendanceService coordinates attendance intake for coaches.
type AttendanceService struct {
	attendance attendanceRepository
	students   attendanceStudentRepository
	cache      *CacheService
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(attendance attendanceRepository, students attendanceStudentRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &AttendanceService{attendance: attendance, students: students, cache: cache, validator: validate, logger: logger}
	svc.validator.RegisterValidation("attendance_status", func(fl validator.FieldLevel) bool {
		return models.AttendanceStatus(fl.Field().String()).Valid()
	})
	return svc
}

// MarkAttendanceRequest describes the payload for marking attendance.
type MarkAttendanceRequest struct {
	StudentID       string  `json:"student_id" validate:"required"`
	CoachID         string  `json:"coach_id" validate:"required"`
	Date            string  `json:"date"`
	Status          string  `json:"status" validate:"required,attendance_status"`
	SessionDuration *int    `json:"session_duration" validate:"omitempty,gt=0"`
	Notes           *string `json:"notes"`
}

// ListAttendanceRequest describes filters for attendance listing.
type ListAttendanceRequest struct {
	StudentID string
	CoachID   string
	DateFrom  *time.Time
	DateTo    *time.Time
	Page      int
	PageSize  int
}

// Mark records one attendance fact for a student on a calendar day.
// The day defaults to today; the date is normalized to midnight UTC so
// retries within the same day hit the same (student, date) slot and
// come back as a conflict carrying the existing record.
func (s *AttendanceService) Mark(ctx context.Context, req MarkAttendanceRequest) (*models.AttendanceRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}

	day, err := resolveDay(req.Date)
	if err != nil {
		return nil, err
	}
	if day.After(truncateToDay(time.Now().UTC())) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "attendance date cannot be in the future")
	}

	if _, err := s.students.FindByIDAndCoach(ctx, req.StudentID, req.CoachID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotYourStudent
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify student assignment")
	}

	status := models.AttendanceStatus(req.Status)
	duration := 0
	if status == models.AttendanceStatusPresent {
		duration = models.DefaultSessionMinutes
		if req.SessionDuration != nil {
			duration = *req.SessionDuration
		}
	}

	record := &models.AttendanceRecord{
		StudentID:       req.StudentID,
		CoachID:         req.CoachID,
		Date:            day,
		Status:          status,
		SessionDuration: duration,
		Notes:           req.Notes,
	}

	created, err := s.attendance.Create(ctx, record)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			existing, lookupErr := s.attendance.FindByStudentAndDate(ctx, req.StudentID, day)
			if lookupErr != nil {
				return nil, appErrors.ErrDuplicateAttendance
			}
			return nil, appErrors.WithDetails(appErrors.ErrDuplicateAttendance, existing)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark attendance")
	}

	if err := s.cache.Invalidate(ctx, fmt.Sprintf("salary:report:%s:*", req.CoachID)); err != nil {
		s.logger.Warn("salary report cache invalidation failed",
			zap.String("coach_id", req.CoachID), zap.Error(err))
	}
	return created, nil
}

// ListForStudent returns a student's attendance history, newest first.
func (s *AttendanceService) ListForStudent(ctx context.Context, req ListAttendanceRequest) ([]models.AttendanceRecord, *models.Pagination, error) {
	if req.StudentID == "" {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "studentId is required")
	}
	filter := models.AttendanceFilter{
		StudentID: req.StudentID,
		DateFrom:  req.DateFrom,
		DateTo:    req.DateTo,
		Page:      req.Page,
		PageSize:  req.PageSize,
		SortOrder: "DESC",
	}
	records, total, err := s.attendance.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	page := req.Page
	if page < 1 {
		page = 1
	}
	size := req.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	return records, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

func resolveDay(raw string) (time.Time, error) {
	if raw == "" {
		return truncateToDay(time.Now().UTC()), nil
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, "date must use YYYY-MM-DD format")
	}
	return truncateToDay(parsed.UTC()), nil
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
