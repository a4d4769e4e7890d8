package notification

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/charlesng35/roomnotify/pkg/logger"
)

const defaultMaxConcurrentRooms = 4

// Engine drives the Processor for many rooms. Calls for the same room are
// serialized; different rooms run concurrently.
type Engine struct {
	processor     *Processor
	store         Store
	rules         RulesSource
	maxConcurrent int
	log           *zap.Logger

	locksMu sync.Mutex
	locks   map[string]*roomLock
}

// roomLock serializes one room. refs counts holders and waiters; the entry is
// dropped once it reaches zero.
type roomLock struct {
	mu   sync.Mutex
	refs int
}

// EngineOption customises an Engine.
type EngineOption func(*Engine)

// WithMaxConcurrentRooms bounds the number of rooms processed at once by ProcessAll.
func WithMaxConcurrentRooms(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxConcurrent = n
		}
	}
}

// NewEngine constructs an Engine.
func NewEngine(processor *Processor, store Store, rules RulesSource, opts ...EngineOption) *Engine {
	e := &Engine{
		processor:     processor,
		store:         store,
		rules:         rules,
		maxConcurrent: defaultMaxConcurrentRooms,
		log:           logger.WithModule("notification.engine"),
		locks:         map[string]*roomLock{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Process applies state while holding the lock of its room.
func (e *Engine) Process(ctx context.Context, state State) error {
	if state == nil {
		return nil
	}
	unlock := e.lockRoom(state.StateRoomID())
	defer unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return e.processor.Process(ctx, state, e.rules)
}

// ProcessRoom loads the current record of roomID and processes it. Rooms
// without a record are left alone.
func (e *Engine) ProcessRoom(ctx context.Context, roomID string) error {
	unlock := e.lockRoom(roomID)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	state, err := e.store.GetState(ctx, roomID)
	if err != nil {
		return fmt.Errorf("notification: load state of %s: %w", roomID, err)
	}
	if state == nil {
		return nil
	}
	return e.processor.Process(ctx, state, e.rules)
}

// ProcessAll processes every room that has a stored state record. Each record is
// re-read under its room lock, so a record replaced since the listing is the one
// processed. A failing room does not stop the others; all failures are returned
// combined.
func (e *Engine) ProcessAll(ctx context.Context) error {
	states, err := e.store.GetAllStates(ctx)
	if err != nil {
		return fmt.Errorf("notification: load states: %w", err)
	}

	var (
		mu     sync.Mutex
		errs   error
		queued = make(map[string]struct{}, len(states))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxConcurrent)

	for _, state := range states {
		if state == nil {
			continue
		}
		roomID := state.StateRoomID()
		if _, dup := queued[roomID]; dup {
			continue
		}
		queued[roomID] = struct{}{}

		g.Go(func() error {
			if err := e.ProcessRoom(gctx, roomID); err != nil {
				e.log.Warn("room processing failed", zap.String("room_id", roomID), zap.Error(err))
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("room %s: %w", roomID, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

// lockRoom blocks until the caller holds roomID and returns the release function.
func (e *Engine) lockRoom(roomID string) func() {
	e.locksMu.Lock()
	l, ok := e.locks[roomID]
	if !ok {
		l = &roomLock{}
		e.locks[roomID] = l
	}
	l.refs++
	e.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		e.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(e.locks, roomID)
		}
		e.locksMu.Unlock()
	}
}
