package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/coachdesk/academy-api/internal/models"
	"github.com/coachdesk/academy-api/internal/repository"
	"github.com/coachdesk/academy-api/internal/service"
	"github.com/coachdesk/academy-api/pkg/config"
)

// fakeRoster backs both the coach registry and the settlement engine so
// accrual jobs can run end to end against an in-memory roster.
type fakeRoster struct {
	mu        sync.Mutex
	coaches   []models.Coach
	processed map[string]bool
}

func newFakeRoster(size int) *fakeRoster {
	f := &fakeRoster{processed: make(map[string]bool)}
	for i := 0; i < size; i++ {
		f.coaches = append(f.coaches, models.Coach{
			ID:         fmt.Sprintf("coach-%d", i+1),
			FullName:   fmt.Sprintf("Coach %d", i+1),
			HourlyRate: 1500,
			Active:     true,
		})
	}
	return f
}

func (f *fakeRoster) processedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.processed)
}

func (f *fakeRoster) List(_ context.Context, filter models.CoachFilter) ([]models.Coach, int, error) {
	page, size := filter.Page, filter.PageSize
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 50
	}
	start := (page - 1) * size
	if start >= len(f.coaches) {
		return nil, len(f.coaches), nil
	}
	end := start + size
	if end > len(f.coaches) {
		end = len(f.coaches)
	}
	return f.coaches[start:end], len(f.coaches), nil
}

func (f *fakeRoster) ListActive(_ context.Context) ([]models.Coach, error) {
	return f.coaches, nil
}

func (f *fakeRoster) FindByID(_ context.Context, id string) (*models.Coach, error) {
	for i := range f.coaches {
		if f.coaches[i].ID == id {
			copied := f.coaches[i]
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("coach %s not found", id)
}

func (f *fakeRoster) FindByUserID(_ context.Context, _ string) (*models.Coach, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fakeRoster) Create(_ context.Context, _ *models.Coach) error { return nil }

func (f *fakeRoster) Update(_ context.Context, _ *models.Coach) error { return nil }

func (f *fakeRoster) SetHourlyRate(_ context.Context, _ string, _ float64) error { return nil }

func (f *fakeRoster) Count(_ context.Context) (int, error) { return len(f.coaches), nil }

func (f *fakeRoster) Deactivate(_ context.Context, _ string) error { return nil }

func (f *fakeRoster) NextCode(_ context.Context) (string, error) { return "COA0001", nil }

func (f *fakeRoster) ListWithOutstanding(_ context.Context) ([]models.Coach, error) {
	return nil, nil
}

func (f *fakeRoster) TotalOutstanding(_ context.Context) (float64, error) { return 0, nil }

func (f *fakeRoster) UnpaidPresentByCoach(_ context.Context, _ string, _, _ *time.Time) ([]models.AttendanceRecord, error) {
	return nil, nil
}

func (f *fakeRoster) PresentMinutesInRange(_ context.Context, coachID string, _, _ time.Time) (int, error) {
	f.mu.Lock()
	f.processed[coachID] = true
	f.mu.Unlock()
	return 0, nil
}

func (f *fakeRoster) PresentWithPaidFlag(_ context.Context, _ string, _, _ time.Time) ([]repository.AttendanceWithPaidFlag, error) {
	return nil, nil
}

type fakeSettlementStore struct{}

func (fakeSettlementStore) CreatePaid(_ context.Context, settlement *models.SalarySettlement, _ []string) (*models.SalarySettlement, error) {
	return settlement, nil
}

func (fakeSettlementStore) Accrue(_ context.Context, settlement *models.SalarySettlement) (*models.SalarySettlement, error) {
	return settlement, nil
}

func (fakeSettlementStore) List(_ context.Context, _ models.SettlementFilter) ([]models.SalarySettlement, int, error) {
	return nil, 0, nil
}

func (fakeSettlementStore) SessionIDs(_ context.Context, _ string) ([]string, error) {
	return nil, nil
}

func newScheduler(accrualHour int) *PayrollScheduler {
	return NewPayrollScheduler(nil, nil, config.PayrollConfig{
		AccrualHour:       accrualHour,
		WorkerConcurrency: 1,
		WorkerRetries:     1,
	}, nil)
}

func TestTriggerAccrualCoversFullRoster(t *testing.T) {
	roster := newFakeRoster(250)
	coaches := service.NewCoachService(roster, nil, nil, zap.NewNop())
	settlements := service.NewSettlementService(roster, roster, fakeSettlementStore{}, nil, nil, zap.NewNop())
	s := NewPayrollScheduler(settlements, coaches, config.PayrollConfig{
		AccrualHour:       2,
		WorkerConcurrency: 4,
		WorkerRetries:     1,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	enqueued, err := s.TriggerAccrual(ctx)
	require.NoError(t, err)
	assert.Equal(t, 250, enqueued)

	assert.Eventually(t, func() bool {
		return roster.processedCount() == 250
	}, 5*time.Second, 10*time.Millisecond)
}

func TestNextRunMidMonthRollsToNextMonth(t *testing.T) {
	s := newScheduler(3)
	now := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)
	next := s.NextRun(now)
	assert.Equal(t, time.Date(2026, time.April, 1, 3, 0, 0, 0, time.UTC), next)
}

func TestNextRunBeforeAccrualHourOnFirst(t *testing.T) {
	s := newScheduler(3)
	now := time.Date(2026, time.March, 1, 1, 30, 0, 0, time.UTC)
	next := s.NextRun(now)
	assert.Equal(t, time.Date(2026, time.March, 1, 3, 0, 0, 0, time.UTC), next)
}

func TestNextRunExactlyAtAccrualTimeRolls(t *testing.T) {
	s := newScheduler(3)
	now := time.Date(2026, time.March, 1, 3, 0, 0, 0, time.UTC)
	next := s.NextRun(now)
	assert.Equal(t, time.Date(2026, time.April, 1, 3, 0, 0, 0, time.UTC), next)
}

func TestNextRunDecemberWrapsToJanuary(t *testing.T) {
	s := newScheduler(0)
	now := time.Date(2026, time.December, 20, 8, 0, 0, 0, time.UTC)
	next := s.NextRun(now)
	assert.Equal(t, time.Date(2027, time.January, 1, 0, 0, 0, 0, time.UTC), next)
}

func TestNextRunClampsInvalidHour(t *testing.T) {
	s := newScheduler(42)
	now := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)
	next := s.NextRun(now)
	assert.Equal(t, 0, next.Hour())
}
