// Package delivery hands queued notification updates to external channels exactly once.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/roomnotify/internal/notification"
	"github.com/charlesng35/roomnotify/internal/store"
	"github.com/charlesng35/roomnotify/pkg/logger"
	"github.com/charlesng35/roomnotify/pkg/metrics"
)

const defaultBatchSize = 100

// Queue is the persisted external delivery queue.
type Queue interface {
	Pending(ctx context.Context, limit int) ([]store.QueuedUpdate, error)
	Ack(ctx context.Context, ids []string) error
}

// Sink receives updates for one external channel.
type Sink interface {
	Deliver(ctx context.Context, updates []notification.UpdateView) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, updates []notification.UpdateView) error

// Deliver implements Sink.
func (f SinkFunc) Deliver(ctx context.Context, updates []notification.UpdateView) error {
	return f(ctx, updates)
}

// Dispatcher drains the queue into its sinks. Delivered updates are removed
// from the queue and never handed out again. When only some sinks accept a
// batch, the batch stays queued and the next drain offers it to the remaining
// sinks only.
type Dispatcher struct {
	queue     Queue
	sinks     []Sink
	batchSize int
	log       *zap.Logger

	mu sync.Mutex
	// accepted maps a queued update ID to the indexes of sinks that already took it.
	accepted map[string]map[int]struct{}
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(queue Queue, sinks ...Sink) (*Dispatcher, error) {
	if queue == nil {
		return nil, errors.New("delivery: queue is required")
	}
	return &Dispatcher{
		queue:     queue,
		sinks:     sinks,
		batchSize: defaultBatchSize,
		log:       logger.WithModule("delivery"),
		accepted:  map[string]map[int]struct{}{},
	}, nil
}

// SetBatchSize changes how many queued updates are pulled per round. Non-positive values are ignored.
func (d *Dispatcher) SetBatchSize(n int) {
	if n > 0 {
		d.batchSize = n
	}
}

// Drain delivers every queued update and returns how many were delivered. A
// batch some sink rejects stays queued.
func (d *Dispatcher) Drain(ctx context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delivered := 0
	for {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}

		batch, err := d.queue.Pending(ctx, d.batchSize)
		if err != nil {
			return delivered, fmt.Errorf("delivery: load queue: %w", err)
		}
		if len(batch) == 0 {
			return delivered, nil
		}

		var errs error
		for i, sink := range d.sinks {
			errs = multierr.Append(errs, d.deliverTo(ctx, i, sink, batch))
		}
		if errs != nil {
			metrics.ExternalDelivered.WithLabelValues("failure").Add(float64(len(batch)))
			return delivered, fmt.Errorf("delivery: deliver batch: %w", errs)
		}

		ids := make([]string, 0, len(batch))
		for _, queued := range batch {
			ids = append(ids, queued.ID)
		}
		if err := d.queue.Ack(ctx, ids); err != nil {
			return delivered, fmt.Errorf("delivery: ack batch: %w", err)
		}
		for _, id := range ids {
			delete(d.accepted, id)
		}
		metrics.ExternalDelivered.WithLabelValues("success").Add(float64(len(batch)))
		delivered += len(batch)
		d.log.Debug("delivered updates", zap.Int("count", len(batch)))

		if len(batch) < d.batchSize {
			return delivered, nil
		}
	}
}

// deliverTo hands sink the part of batch it has not accepted yet.
func (d *Dispatcher) deliverTo(ctx context.Context, index int, sink Sink, batch []store.QueuedUpdate) error {
	updates := make([]notification.UpdateView, 0, len(batch))
	ids := make([]string, 0, len(batch))
	for _, queued := range batch {
		if _, done := d.accepted[queued.ID][index]; done {
			continue
		}
		updates = append(updates, queued.Update)
		ids = append(ids, queued.ID)
	}
	if len(updates) == 0 {
		return nil
	}
	if err := sink.Deliver(ctx, updates); err != nil {
		return err
	}
	for _, id := range ids {
		sinks, ok := d.accepted[id]
		if !ok {
			sinks = map[int]struct{}{}
			d.accepted[id] = sinks
		}
		sinks[index] = struct{}{}
	}
	return nil
}
