package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coachdesk/academy-api/internal/service"
	"github.com/coachdesk/academy-api/pkg/config"
	"github.com/coachdesk/academy-api/pkg/jobs"
)

const jobTypeAccrual = "payroll.accrue"

// PayrollScheduler fires the monthly salary accrual on the first day of
// each month and fans the work out to per-coach jobs on a worker queue.
// Per-coach jobs retry independently; a slow or failing coach never
// blocks the rest of the roster.
type PayrollScheduler struct {
	settlements *service.SettlementService
	coaches     *service.CoachService
	queue       *jobs.Queue
	cfg         config.PayrollConfig
	logger      *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	started bool
	done    chan struct{}
}

// NewPayrollScheduler constructs the scheduler.
func NewPayrollScheduler(settlements *service.SettlementService, coaches *service.CoachService, cfg config.PayrollConfig, logger *zap.Logger) *PayrollScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &PayrollScheduler{
		settlements: settlements,
		coaches:     coaches,
		cfg:         cfg,
		logger:      logger,
	}
	s.queue = jobs.NewQueue("payroll", s.handleJob, jobs.QueueConfig{
		Workers:    cfg.WorkerConcurrency,
		MaxRetries: cfg.WorkerRetries,
		RetryDelay: 30 * time.Second,
		Logger:     logger,
	})
	return s
}

// Start launches the queue workers and the monthly trigger loop.
func (s *PayrollScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.queue.Start(runCtx)
	go s.loop(runCtx)
	s.started = true
	s.logger.Info("payroll scheduler started",
		zap.Int("accrual_hour", s.cfg.AccrualHour))
}

// Stop halts the trigger loop and drains the worker queue.
func (s *PayrollScheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.cancel()
	done := s.done
	s.mu.Unlock()
	<-done
	s.queue.Stop()
	s.logger.Info("payroll scheduler stopped")
}

// TriggerAccrual enqueues an accrual job for every active coach. Exposed
// for manual runs alongside the monthly trigger.
func (s *PayrollScheduler) TriggerAccrual(ctx context.Context) (int, error) {
	coaches, err := s.coaches.ListActive(ctx)
	if err != nil {
		return 0, err
	}
	enqueued := 0
	for _, coach := range coaches {
		job := jobs.Job{
			ID:      uuid.NewString(),
			Type:    jobTypeAccrual,
			Payload: coach.ID,
		}
		if err := s.queue.Enqueue(job); err != nil {
			s.logger.Warn("failed to enqueue accrual job",
				zap.String("coach_id", coach.ID), zap.Error(err))
			continue
		}
		enqueued++
	}
	s.logger.Info("monthly accrual triggered", zap.Int("jobs", enqueued))
	return enqueued, nil
}

// NextRun returns the next first-of-month accrual time after now.
func (s *PayrollScheduler) NextRun(now time.Time) time.Time {
	hour := s.cfg.AccrualHour
	if hour < 0 || hour > 23 {
		hour = 0
	}
	candidate := time.Date(now.Year(), now.Month(), 1, hour, 0, 0, 0, time.UTC)
	if !candidate.After(now) {
		candidate = candidate.AddDate(0, 1, 0)
	}
	return candidate
}

func (s *PayrollScheduler) loop(ctx context.Context) {
	defer close(s.done)
	for {
		next := s.NextRun(time.Now().UTC())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if _, err := s.TriggerAccrual(ctx); err != nil {
				s.logger.Error("monthly accrual trigger failed", zap.Error(err))
			}
		}
	}
}

func (s *PayrollScheduler) handleJob(ctx context.Context, job jobs.Job) error {
	coachID, ok := job.Payload.(string)
	if !ok {
		return fmt.Errorf("accrual job %s carries unexpected payload %T", job.ID, job.Payload)
	}
	return s.settlements.AccrueCoach(ctx, coachID)
}
