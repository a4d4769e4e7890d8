package maintenance

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/roomnotify/pkg/logger"
)

const (
	defaultReconcileSpec = "@every 30s"
	defaultDeliverySpec  = "@every 5s"
)

// Reconciler processes every pending room notification state.
type Reconciler interface {
	ProcessAll(ctx context.Context) error
}

// Drainer delivers queued notification updates.
type Drainer interface {
	Drain(ctx context.Context) (int, error)
}

// Scheduler runs the background jobs of the notification engine: reconciling
// stored room states and draining the external delivery queue.
type Scheduler struct {
	reconciler Reconciler
	drainer    Drainer
	cron       *cron.Cron
	log        *zap.Logger

	reconcileSchedule string
	deliverySchedule  string
}

// Option customises the Scheduler.
type Option func(*Scheduler)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.cron = c
		}
	}
}

// WithReconcileSchedule overrides the cron specification for room reconciliation.
func WithReconcileSchedule(spec string) Option {
	return func(s *Scheduler) {
		if spec != "" {
			s.reconcileSchedule = spec
		}
	}
}

// WithDeliverySchedule overrides the cron specification for queue draining.
func WithDeliverySchedule(spec string) Option {
	return func(s *Scheduler) {
		if spec != "" {
			s.deliverySchedule = spec
		}
	}
}

// NewScheduler constructs a Scheduler. A nil dependency disables its job.
func NewScheduler(reconciler Reconciler, drainer Drainer, opts ...Option) *Scheduler {
	s := &Scheduler{
		reconciler:        reconciler,
		drainer:           drainer,
		reconcileSchedule: defaultReconcileSpec,
		deliverySchedule:  defaultDeliverySpec,
		log:               logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.cron == nil {
		// Overlapping runs of the same job are skipped.
		s.cron = cron.New(cron.WithLogger(cron.DiscardLogger), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	}
	return s
}

// Start registers the enabled jobs and launches the scheduler.
func (s *Scheduler) Start() error {
	if s.reconciler == nil && s.drainer == nil {
		return nil
	}

	if s.reconciler != nil {
		if _, err := s.cron.AddFunc(s.reconcileSchedule, func() {
			if err := s.reconciler.ProcessAll(context.Background()); err != nil {
				s.log.Warn("room reconciliation failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if s.drainer != nil {
		if _, err := s.cron.AddFunc(s.deliverySchedule, func() {
			if _, err := s.drainer.Drain(context.Background()); err != nil {
				s.log.Warn("external delivery failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	s.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (s *Scheduler) Stop() context.Context {
	if s.cron == nil {
		return context.Background()
	}
	return s.cron.Stop()
}

// RunOnce reconciles every room and then drains the queue. Used in tests and
// during graceful shutdown.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if s.reconciler != nil {
		if err := s.reconciler.ProcessAll(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if s.drainer != nil {
		if _, err := s.drainer.Drain(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}
