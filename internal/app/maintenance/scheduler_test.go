package maintenance

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

type countingReconciler struct {
	calls atomic.Int32
	err   error
}

func (r *countingReconciler) ProcessAll(context.Context) error {
	r.calls.Add(1)
	return r.err
}

type countingDrainer struct {
	calls atomic.Int32
	err   error
}

func (d *countingDrainer) Drain(context.Context) (int, error) {
	d.calls.Add(1)
	return 0, d.err
}

func TestSchedulerRunOnce(t *testing.T) {
	reconciler := &countingReconciler{}
	drainer := &countingDrainer{}
	s := NewScheduler(reconciler, drainer)

	require.NoError(t, s.RunOnce(context.Background()))
	require.EqualValues(t, 1, reconciler.calls.Load())
	require.EqualValues(t, 1, drainer.calls.Load())
}

func TestSchedulerRunOnceCombinesErrors(t *testing.T) {
	reconciler := &countingReconciler{err: errors.New("room failed")}
	drainer := &countingDrainer{err: errors.New("sink offline")}
	s := NewScheduler(reconciler, drainer)

	err := s.RunOnce(context.Background())
	require.Error(t, err)
	require.Len(t, multierr.Errors(err), 2)
	require.EqualValues(t, 1, drainer.calls.Load())
}

func TestSchedulerStartRunsJobs(t *testing.T) {
	reconciler := &countingReconciler{}
	drainer := &countingDrainer{}
	c := cron.New(cron.WithSeconds())
	s := NewScheduler(reconciler, drainer,
		WithCron(c),
		WithReconcileSchedule("@every 1s"),
		WithDeliverySchedule("@every 1s"),
	)

	require.NoError(t, s.Start())
	t.Cleanup(func() { <-s.Stop().Done() })

	require.Eventually(t, func() bool {
		return reconciler.calls.Load() > 0 && drainer.calls.Load() > 0
	}, 5*time.Second, 50*time.Millisecond)
}

func TestSchedulerRejectsInvalidSpec(t *testing.T) {
	s := NewScheduler(&countingReconciler{}, nil, WithReconcileSchedule("not a schedule"))
	require.Error(t, s.Start())
}

func TestSchedulerWithoutJobsIsNoop(t *testing.T) {
	s := NewScheduler(nil, nil)
	require.NoError(t, s.Start())
	require.NoError(t, s.RunOnce(context.Background()))
}
