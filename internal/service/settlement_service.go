package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/coachdesk/academy-api/internal/dto"
	"github.com/coachdesk/academy-api/internal/models"
	"github.com/coachdesk/academy-api/internal/repository"
	appErrors "github.com/coachdesk/academy-api/pkg/errors"
)

type settlementCoachRepository interface {
	FindByID(ctx context.Context, id string) (*models.Coach, error)
	ListWithOutstanding(ctx context.Context) ([]models.Coach, error)
	ListActive(ctx context.Context) ([]models.Coach, error)
	TotalOutstanding(ctx context.Context) (float64, error)
}

type settlementAttendanceRepository interface {
	UnpaidPresentByCoach(ctx context.Context, coachID string, from, to *time.Time) ([]models.AttendanceRecord, error)
	PresentMinutesInRange(ctx context.Context, coachID string, from, to time.Time) (int, error)
	PresentWithPaidFlag(ctx context.Context, coachID string, from, to time.Time) ([]repository.AttendanceWithPaidFlag, error)
}

type settlementRepository interface {
	CreatePaid(ctx context.Context, settlement *models.SalarySettlement, sessionIDs []string) (*models.SalarySettlement, error)
	Accrue(ctx context.Context, settlement *models.SalarySettlement) (*models.SalarySettlement, error)
	List(ctx context.Context, filter models.SettlementFilter) ([]models.SalarySettlement, int, error)
	SessionIDs(ctx context.Context, settlementID string) ([]string, error)
}

// coachLocks serializes settlement operations per coach. Payments for
// different coaches may run in parallel; two payments for the same coach
// never overlap the read-unpaid/write-settlement window.
type coachLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newCoachLocks() *coachLocks {
	return &coachLocks{locks: make(map[string]*sync.Mutex)}
}

func (c *coachLocks) lock(coachID string) *sync.Mutex {
	c.mu.Lock()
	m, ok := c.locks[coachID]
	if !ok {
		m = &sync.Mutex{}
		c.locks[coachID] = m
	}
	c.mu.Unlock()
	m.Lock()
	return m
}

// SettlementService turns attendance records into salary obligations and
// guarantees every present session is paid at most once.
type SettlementService struct {
	coaches     settlementCoachRepository
	attendance  settlementAttendanceRepository
	settlements settlementRepository
	cache       *CacheService
	metrics     *MetricsService
	logger      *zap.Logger
	locks       *coachLocks
}

// NewSettlementService constructs the settlement engine.
func NewSettlementService(
	coaches settlementCoachRepository,
	attendance settlementAttendanceRepository,
	settlements settlementRepository,
	cache *CacheService,
	metrics *MetricsService,
	logger *zap.Logger,
) *SettlementService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettlementService{
		coaches:     coaches,
		attendance:  attendance,
		settlements: settlements,
		cache:       cache,
		metrics:     metrics,
		logger:      logger,
		locks:       newCoachLocks(),
	}
}

// ComputeUnpaidSessions returns the present sessions for a coach that no
// paid settlement covers yet, optionally restricted to an inclusive date
// range. The paid-session exclusion is coach-global: a session paid under
// any month's settlement is never billable again.
func (s *SettlementService) ComputeUnpaidSessions(ctx context.Context, coachID string, from, to *time.Time) ([]models.AttendanceRecord, error) {
	if coachID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "coachId is required")
	}
	sessions, err := s.attendance.UnpaidPresentByCoach(ctx, coachID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load unpaid sessions")
	}
	return sessions, nil
}

// CalculateAmount converts unpaid sessions into money owed at the given
// hourly rate. The result keeps full float precision; rounding to two
// decimals happens only at the presentation layer.
func (s *SettlementService) CalculateAmount(sessions []models.AttendanceRecord, hourlyRate float64) float64 {
	totalMinutes := 0
	for _, session := range sessions {
		totalMinutes += session.SessionDuration
	}
	return float64(totalMinutes) / 60 * hourlyRate
}

// PaySettlement disburses a coach's outstanding salary against the exact
// unpaid sessions it covers. Returns nil without error when there is
// nothing to settle.
func (s *SettlementService) PaySettlement(ctx context.Context, coachID string) (*models.SalarySettlement, error) {
	if coachID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "coachId is required")
	}

	lock := s.locks.lock(coachID)
	defer lock.Unlock()

	coach, err := s.coaches.FindByID(ctx, coachID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "coach not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load coach")
	}

	// Advisory check against the cached balance; the unpaid-session set
	// below is the authority on what actually gets billed.
	if coach.OutstandingSalary <= 0 {
		return nil, appErrors.ErrNothingToPay
	}

	unpaid, err := s.ComputeUnpaidSessions(ctx, coachID, nil, nil)
	if err != nil {
		return nil, err
	}
	if len(unpaid) == 0 {
		return nil, nil
	}

	sessionIDs := make([]string, 0, len(unpaid))
	for _, session := range unpaid {
		sessionIDs = append(sessionIDs, session.ID)
	}

	now := time.Now().UTC()
	settlement := &models.SalarySettlement{
		CoachID:     coach.ID,
		Month:       int(now.Month()),
		Year:        now.Year(),
		Amount:      coach.OutstandingSalary,
		Status:      models.SettlementStatusPaid,
		PaymentDate: &now,
	}

	created, err := s.settlements.CreatePaid(ctx, settlement, sessionIDs)
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit settlement")
	}

	s.metrics.RecordSettlementPaid(created.Amount)
	s.invalidateReports(ctx, coachID)
	s.logger.Info("salary settlement paid",
		zap.String("coach_id", coachID),
		zap.Float64("amount", created.Amount),
		zap.Int("sessions", len(sessionIDs)),
	)
	return created, nil
}

// PayAllOutstanding disburses every coach with a positive cached balance.
// Settlement attempts run in parallel across coaches and serialize per
// coach; one coach's failure is reported in the aggregate result and
// never aborts the others.
func (s *SettlementService) PayAllOutstanding(ctx context.Context) (*dto.PayAllResult, error) {
	coaches, err := s.coaches.ListWithOutstanding(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list coaches")
	}

	result := &dto.PayAllResult{Settlements: make([]models.SalarySettlement, 0, len(coaches))}
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, coach := range coaches {
		coach := coach
		wg.Add(1)
		go func() {
			defer wg.Done()
			settlement, err := s.PaySettlement(ctx, coach.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil && errors.Is(err, appErrors.ErrNothingToPay):
				result.Skipped++
			case err != nil:
				s.logger.Warn("settlement failed during pay-all",
					zap.String("coach_id", coach.ID), zap.Error(err))
				result.Errors = append(result.Errors, dto.PayAllError{CoachID: coach.ID, Message: err.Error()})
			case settlement == nil:
				result.Skipped++
			default:
				result.Paid++
				result.Settlements = append(result.Settlements, *settlement)
			}
		}()
	}
	wg.Wait()
	return result, nil
}

// AccrueMonthly recognises the current month's earned salary for every
// active coach. Accrual counts all present minutes in the calendar month
// regardless of payment status: it records earnings, it does not
// disburse. Failures are isolated per coach.
func (s *SettlementService) AccrueMonthly(ctx context.Context) (int, error) {
	coaches, err := s.coaches.ListActive(ctx)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list coaches")
	}

	accrued := 0
	for _, coach := range coaches {
		wrote, err := s.accrueCoach(ctx, &coach, time.Now().UTC())
		if err != nil {
			s.logger.Error("monthly accrual failed for coach",
				zap.String("coach_id", coach.ID), zap.Error(err))
			continue
		}
		if wrote {
			accrued++
		}
	}
	return accrued, nil
}

// AccrueCoach runs one coach's monthly accrual, used by the payroll
// scheduler's per-coach jobs.
func (s *SettlementService) AccrueCoach(ctx context.Context, coachID string) error {
	coach, err := s.coaches.FindByID(ctx, coachID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "coach not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load coach")
	}
	_, err = s.accrueCoach(ctx, coach, time.Now().UTC())
	return err
}

// accrueCoach reports whether a settlement was actually written; a month
// with no present minutes accrues nothing.
func (s *SettlementService) accrueCoach(ctx context.Context, coach *models.Coach, now time.Time) (bool, error) {
	lock := s.locks.lock(coach.ID)
	defer lock.Unlock()

	start, end := monthBounds(now.Year(), now.Month())
	minutes, err := s.attendance.PresentMinutesInRange(ctx, coach.ID, start, end)
	if err != nil {
		return false, fmt.Errorf("sum monthly minutes: %w", err)
	}

	amount := float64(minutes) / 60 * coach.HourlyRate
	if amount <= 0 {
		return false, nil
	}

	settlement := &models.SalarySettlement{
		CoachID: coach.ID,
		Month:   int(now.Month()),
		Year:    now.Year(),
		Amount:  amount,
		Status:  models.SettlementStatusPending,
	}
	if _, err := s.settlements.Accrue(ctx, settlement); err != nil {
		return false, fmt.Errorf("commit accrual: %w", err)
	}

	s.metrics.RecordAccrual(amount)
	s.invalidateReports(ctx, coach.ID)
	s.logger.Info("monthly salary accrued",
		zap.String("coach_id", coach.ID),
		zap.Float64("amount", amount),
		zap.Int("minutes", minutes),
	)
	return true, nil
}

// TotalPendingSalary sums the cached outstanding balance across coaches.
func (s *SettlementService) TotalPendingSalary(ctx context.Context) (*dto.PendingSalaryTotal, error) {
	total, err := s.coaches.TotalOutstanding(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to total outstanding salary")
	}
	return &dto.PendingSalaryTotal{Total: total}, nil
}

// SalaryReport builds the per-coach salary summary for a calendar month.
// Listed sessions come from the month window; billable totals come from
// the unpaid subset, so the report and the payment path can never
// disagree on the billing rule.
func (s *SettlementService) SalaryReport(ctx context.Context, coachID string, month, year int) (*dto.SalaryReportResponse, error) {
	if coachID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "coachId is required")
	}
	if month < 1 || month > 12 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "month must be between 1 and 12")
	}
	if year < 2000 || year > 2100 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "year is out of range")
	}

	cacheKey := fmt.Sprintf("salary:report:%s:%04d-%02d", coachID, year, month)
	var cached dto.SalaryReportResponse
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return &cached, nil
	}

	coach, err := s.coaches.FindByID(ctx, coachID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "coach not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load coach")
	}

	start, end := monthBounds(year, time.Month(month))
	rows, err := s.attendance.PresentWithPaidFlag(ctx, coachID, start, end)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sessions")
	}

	unpaidMinutes := 0
	unpaidSessions := 0
	sessions := make([]dto.SalaryReportSession, 0, len(rows))
	for _, row := range rows {
		if !row.IsPaid {
			unpaidMinutes += row.SessionDuration
			unpaidSessions++
		}
		sessions = append(sessions, dto.SalaryReportSession{
			Date:            row.Date,
			SessionDuration: row.SessionDuration,
			Hours:           Round2(row.Hours()),
			IsPaid:          row.IsPaid,
		})
	}

	totalHours := float64(unpaidMinutes) / 60
	report := &dto.SalaryReportResponse{
		CoachID:           coach.ID,
		CoachName:         coach.FullName,
		Month:             month,
		Year:              year,
		TotalSessions:     unpaidSessions,
		TotalHours:        Round2(totalHours),
		HourlyRate:        coach.HourlyRate,
		CalculatedSalary:  Round2(totalHours * coach.HourlyRate),
		OutstandingSalary: coach.OutstandingSalary,
		Sessions:          sessions,
	}

	_ = s.cache.Set(ctx, cacheKey, report, 0)
	return report, nil
}

// ListSettlements returns a coach's settlement history, hydrating the
// covered session ids on paid entries.
func (s *SettlementService) ListSettlements(ctx context.Context, filter models.SettlementFilter) ([]models.SalarySettlement, *models.Pagination, error) {
	settlements, total, err := s.settlements.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list settlements")
	}
	for i := range settlements {
		if settlements[i].Status != models.SettlementStatusPaid {
			continue
		}
		ids, err := s.settlements.SessionIDs(ctx, settlements[i].ID)
		if err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load settlement sessions")
		}
		settlements[i].PaidSessions = ids
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	return settlements, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

func (s *SettlementService) invalidateReports(ctx context.Context, coachID string) {
	if err := s.cache.Invalidate(ctx, fmt.Sprintf("salary:report:%s:*", coachID)); err != nil {
		s.logger.Warn("salary report cache invalidation failed",
			zap.String("coach_id", coachID), zap.Error(err))
	}
}

// Round2 rounds to two decimal places for presentation.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func monthBounds(year int, month time.Month) (time.Time, time.Time) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, -1)
	return start, end
}
