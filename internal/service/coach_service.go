package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/coachdesk/academy-api/internal/models"
	appErrors "github.com/coachdesk/academy-api/pkg/errors"
)

type coachRepository interface {
	List(ctx context.Context, filter models.CoachFilter) ([]models.Coach, int, error)
	ListActive(ctx context.Context) ([]models.Coach, error)
	FindByID(ctx context.Context, id string) (*models.Coach, error)
	FindByUserID(ctx context.Context, userID string) (*models.Coach, error)
	Create(ctx context.Context, coach *models.Coach) error
	Update(ctx context.Context, coach *models.Coach) error
	SetHourlyRate(ctx context.Context, id string, rate float64) error
	Count(ctx context.Context) (int, error)
	Deactivate(ctx context.Context, id string) error
	NextCode(ctx context.Context) (string, error)
}

// CoachService manages the coach registry.
type CoachService struct {
	coaches   coachRepository
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCoachService constructs the coach service.
func NewCoachService(coaches coachRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *CoachService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CoachService{coaches: coaches, cache: cache, validator: validate, logger: logger}
}

// CreateCoachRequest describes the payload for registering a coach profile.
type CreateCoachRequest struct {
	UserID     string  `json:"user_id"`
	FullName   string  `json:"full_name" validate:"required,min=2"`
	Email      string  `json:"email" validate:"required,email"`
	HourlyRate float64 `json:"hourly_rate" validate:"gte=0"`
}

// UpdateCoachRequest describes a partial coach profile update.
type UpdateCoachRequest struct {
	FullName *string `json:"full_name" validate:"omitempty,min=2"`
	Active   *bool   `json:"active"`
}

// List returns coaches matching the filter.
func (s *CoachService) List(ctx context.Context, filter models.CoachFilter) ([]models.Coach, *models.Pagination, error) {
	coaches, total, err := s.coaches.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list coaches")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	return coaches, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// ListActive returns every active coach without pagination. Batch
// operations over the whole roster use this instead of paging List.
func (s *CoachService) ListActive(ctx context.Context) ([]models.Coach, error) {
	coaches, err := s.coaches.ListActive(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list active coaches")
	}
	return coaches, nil
}

// Get returns one coach by id.
func (s *CoachService) Get(ctx context.Context, id string) (*models.Coach, error) {
	coach, err := s.coaches.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "coach not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load coach")
	}
	return coach, nil
}

// GetByUserID returns the coach profile linked to an auth user.
func (s *CoachService) GetByUserID(ctx context.Context, userID string) (*models.Coach, error) {
	coach, err := s.coaches.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "coach profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load coach")
	}
	return coach, nil
}

// Create registers a coach profile with a generated code.
func (s *CoachService) Create(ctx context.Context, req CreateCoachRequest) (*models.Coach, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid coach payload")
	}
	code, err := s.coaches.NextCode(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to allocate coach code")
	}
	coach := &models.Coach{
		Code:       code,
		UserID:     req.UserID,
		FullName:   strings.TrimSpace(req.FullName),
		Email:      strings.ToLower(strings.TrimSpace(req.Email)),
		HourlyRate: req.HourlyRate,
		Active:     true,
	}
	if err := s.coaches.Create(ctx, coach); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create coach")
	}
	return coach, nil
}

// Update applies a partial profile update.
func (s *CoachService) Update(ctx context.Context, id string, req UpdateCoachRequest) (*models.Coach, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid coach payload")
	}
	coach, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.FullName != nil {
		coach.FullName = strings.TrimSpace(*req.FullName)
	}
	if req.Active != nil {
		coach.Active = *req.Active
	}
	if err := s.coaches.Update(ctx, coach); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update coach")
	}
	return coach, nil
}

// SetHourlyRate updates a coach's rate. The new rate applies to future
// settlements only; paid settlements keep their recorded amounts.
func (s *CoachService) SetHourlyRate(ctx context.Context, id string, rate float64) (*models.Coach, error) {
	if rate < 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "hourly rate must be non-negative")
	}
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	if err := s.coaches.SetHourlyRate(ctx, id, rate); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update hourly rate")
	}
	s.invalidateReports(ctx, id)
	return s.Get(ctx, id)
}

// Count returns the number of registered coaches.
func (s *CoachService) Count(ctx context.Context) (int, error) {
	count, err := s.coaches.Count(ctx)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count coaches")
	}
	return count, nil
}

// Deactivate removes a coach from active rosters without deleting history.
func (s *CoachService) Deactivate(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.coaches.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate coach")
	}
	return nil
}

func (s *CoachService) invalidateReports(ctx context.Context, coachID string) {
	if err := s.cache.Invalidate(ctx, "salary:report:"+coachID+":*"); err != nil {
		s.logger.Warn("salary report cache invalidation failed",
			zap.String("coach_id", coachID), zap.Error(err))
	}
}
