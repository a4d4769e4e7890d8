package notification

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/roomnotify/internal/events"
	"github.com/charlesng35/roomnotify/internal/pushrules"
	apperrors "github.com/charlesng35/roomnotify/pkg/errors"
	"github.com/charlesng35/roomnotify/pkg/logger"
	"github.com/charlesng35/roomnotify/pkg/metrics"
)

// Config controls optional processor behaviour.
type Config struct {
	// EnableExternalNotifications additionally queues every applied update for
	// one-shot external delivery.
	EnableExternalNotifications bool
}

// Processor advances the notification state of one room per call.
type Processor struct {
	rooms     RoomService
	store     Store
	converter *Converter
	cfg       Config
	log       *zap.Logger
}

// NewProcessor constructs a Processor.
func NewProcessor(rooms RoomService, store Store, converter *Converter, cfg Config) *Processor {
	return &Processor{
		rooms:     rooms,
		store:     store,
		converter: converter,
		cfg:       cfg,
		log:       logger.WithModule("notification"),
	}
}

// Process applies one state record. All writes happen in a single store
// transaction, so a failed call leaves notifications and the record unchanged.
func (p *Processor) Process(ctx context.Context, state State, rules RulesSource) (err error) {
	if state == nil {
		return nil
	}
	variant := state.Variant()
	start := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		metrics.StatesProcessed.WithLabelValues(variant, result).Inc()
		metrics.ProcessDuration.WithLabelValues(variant).Observe(time.Since(start).Seconds())
	}()

	switch s := state.(type) {
	case *StatePush:
		return nil
	case *StateRead:
		return p.processRead(ctx, s)
	case *StateSyncWithoutTimeline:
		return p.processWithoutTimeline(ctx, s, rules)
	case *StateSyncWithTimeline:
		return p.processWithTimeline(ctx, s, rules)
	default:
		return apperrors.ErrUnknownState.WithInternal(fmt.Errorf("variant %T", state))
	}
}

func (p *Processor) processRead(ctx context.Context, s *StateRead) error {
	existing, err := p.store.GetAll(ctx, s.RoomID)
	if err != nil {
		return fmt.Errorf("notification: load notifications of %s: %w", s.RoomID, err)
	}
	return p.store.Transaction(ctx, func(tx StoreTx) error {
		if err := p.clearRoom(ctx, tx, s.RoomID, existing); err != nil {
			return err
		}
		return tx.UpdateState(ctx, s.RoomID, dropIfUnchanged(s))
	})
}

func (p *Processor) processWithoutTimeline(ctx context.Context, s *StateSyncWithoutTimeline, rules RulesSource) error {
	existing, err := p.store.GetAll(ctx, s.RoomID)
	if err != nil {
		return fmt.Errorf("notification: load notifications of %s: %w", s.RoomID, err)
	}

	disabled := s.NotificationsDisabled || muted(rules, s.RoomID)
	var updates []Update
	if !disabled {
		stateEvents, err := p.rooms.GetAllState(ctx, s.RoomID)
		if err != nil {
			return fmt.Errorf("notification: load state of %s: %w", s.RoomID, err)
		}
		updates, err = p.converter.Convert(ctx, s.RoomID, sliceStream(stateEvents), rulesOf(rules), sortKeys(existing), true)
		if err != nil {
			return err
		}
	}

	return p.store.Transaction(ctx, func(tx StoreTx) error {
		if disabled {
			if err := p.clearRoom(ctx, tx, s.RoomID, existing); err != nil {
				return err
			}
		} else if err := p.apply(ctx, tx, updates); err != nil {
			return err
		}
		return tx.UpdateState(ctx, s.RoomID, dropIfUnchanged(s))
	})
}

func (p *Processor) processWithTimeline(ctx context.Context, s *StateSyncWithTimeline, rules RulesSource) error {
	log := p.log.With(zap.String("room_id", s.RoomID), zap.String("last_event_id", s.LastEventID))
	prev := s.LastProcessedEventID

	existing, err := p.store.GetAll(ctx, s.RoomID)
	if err != nil {
		return fmt.Errorf("notification: load notifications of %s: %w", s.RoomID, err)
	}

	if s.NotificationsDisabled || muted(rules, s.RoomID) {
		isRead, err := p.resolveIsRead(ctx, s, nil)
		if err != nil {
			return err
		}
		return p.store.Transaction(ctx, func(tx StoreTx) error {
			if err := p.clearRoom(ctx, tx, s.RoomID, existing); err != nil {
				return err
			}
			if s.IsRead == IsReadTrue {
				return tx.UpdateState(ctx, s.RoomID, dropIfUnchanged(s))
			}
			return tx.UpdateState(ctx, s.RoomID, advance(s, isRead))
		})
	}

	if prev != nil && *prev == s.LastEventID {
		log.Debug("room already caught up")
		return nil
	}

	limit := fetchCap(s, len(existing))
	obs := &readObservation{lastProcessed: prev, lastRelevant: s.LastRelevantEventID}
	stream := boundedStream(p.rooms.GetTimelineEvents(ctx, s.RoomID, s.LastEventID, Backward, limit), s, obs)
	removeStale := prev == nil || s.IsRead == IsReadCheck

	updates, err := p.converter.Convert(ctx, s.RoomID, stream, rulesOf(rules), sortKeys(existing), removeStale)
	if err != nil {
		return err
	}

	isRead, err := p.resolveIsRead(ctx, s, obs)
	if err != nil {
		return err
	}

	err = p.store.Transaction(ctx, func(tx StoreTx) error {
		if err := p.apply(ctx, tx, updates); err != nil {
			return err
		}
		return tx.UpdateState(ctx, s.RoomID, advance(s, isRead))
	})
	if err != nil {
		return err
	}
	log.Debug("room processed",
		zap.Int("updates", len(updates)),
		zap.Bool("remove_stale", removeStale),
		zap.String("is_read", string(isRead)),
	)
	return nil
}

// apply writes updates through tx and queues them for external delivery when enabled.
func (p *Processor) apply(ctx context.Context, tx StoreTx, updates []Update) error {
	for _, u := range updates {
		switch u := u.(type) {
		case *UpdateNew:
			if err := tx.Save(ctx, u.Content); err != nil {
				return fmt.Errorf("notification: save %s: %w", u.ID, err)
			}
			metrics.UpdatesApplied.WithLabelValues("new").Inc()
		case *UpdateChange:
			if err := tx.Save(ctx, u.Content); err != nil {
				return fmt.Errorf("notification: save %s: %w", u.ID, err)
			}
			metrics.UpdatesApplied.WithLabelValues("change").Inc()
		case *UpdateRemove:
			if err := tx.Delete(ctx, u.ID); err != nil {
				return fmt.Errorf("notification: delete %s: %w", u.ID, err)
			}
			metrics.UpdatesApplied.WithLabelValues("remove").Inc()
		default:
			return fmt.Errorf("notification: unknown update %T", u)
		}
	}
	if p.cfg.EnableExternalNotifications && len(updates) > 0 {
		if err := tx.EnqueueUpdates(ctx, updates); err != nil {
			return fmt.Errorf("notification: enqueue updates: %w", err)
		}
	}
	return nil
}

// clearRoom deletes every notification of roomID and, when external delivery is
// enabled, queues a removal for each of them.
func (p *Processor) clearRoom(ctx context.Context, tx StoreTx, roomID string, existing map[string]StoredNotification) error {
	if err := tx.DeleteAll(ctx, roomID); err != nil {
		return fmt.Errorf("notification: delete notifications of %s: %w", roomID, err)
	}
	if len(existing) > 0 {
		metrics.UpdatesApplied.WithLabelValues("remove").Add(float64(len(existing)))
	}
	if !p.cfg.EnableExternalNotifications || len(existing) == 0 {
		return nil
	}
	removals := make([]Update, 0, len(existing))
	for _, id := range sortedIDs(existing) {
		removals = append(removals, &UpdateRemove{ID: id, RoomID: roomID})
	}
	if err := tx.EnqueueUpdates(ctx, removals); err != nil {
		return fmt.Errorf("notification: enqueue removals: %w", err)
	}
	return nil
}

// advance returns the record transformation applied after a successful call.
// If another sync replaced the record meanwhile, only its processed marker moves.
func advance(s *StateSyncWithTimeline, isRead IsRead) func(State) State {
	return func(current State) State {
		cur, ok := current.(*StateSyncWithTimeline)
		if !ok {
			return current
		}
		next := cur.Clone()
		last := s.LastEventID
		next.LastProcessedEventID = &last
		if cur.LastEventID == s.LastEventID {
			next.IsRead = isRead
		}
		return next
	}
}

// dropIfUnchanged deletes the record only while it still matches snapshot. A
// record the sync layer replaced after snapshot was loaded is kept.
func dropIfUnchanged(snapshot State) func(State) State {
	return func(current State) State {
		if sameRecord(snapshot, current) {
			return nil
		}
		return current
	}
}

func sameRecord(a, b State) bool {
	switch a := a.(type) {
	case *StateRead:
		_, ok := b.(*StateRead)
		return ok
	case *StateSyncWithoutTimeline:
		b, ok := b.(*StateSyncWithoutTimeline)
		return ok && a.NotificationsDisabled == b.NotificationsDisabled
	case *StateSyncWithTimeline:
		b, ok := b.(*StateSyncWithTimeline)
		return ok &&
			a.LastEventID == b.LastEventID &&
			a.NotificationsDisabled == b.NotificationsDisabled &&
			a.IsRead == b.IsRead
	default:
		return false
	}
}

// fetchCap limits the number of fetched events to the expected number of
// notifications still missing. No cap applies while a "read" status is
// unconfirmed, because truncating could hide the event that flips it.
func fetchCap(s *StateSyncWithTimeline, stored int) *int {
	if s.IsRead == IsReadTrueButCheck || s.ExpectedMaxNotificationCount == nil {
		return nil
	}
	n := int(*s.ExpectedMaxNotificationCount) - stored
	if n < 0 {
		n = 0
	}
	return &n
}

// readObservation records which of the previously processed event and the last
// relevant event is met first while walking the timeline backward.
type readObservation struct {
	lastProcessed *string
	lastRelevant  *string
	seenProcessed bool
	seenRelevant  bool
	decided       bool
}

func (o *readObservation) observe(eventID string) {
	if o.decided {
		return
	}
	if o.lastProcessed != nil && eventID == *o.lastProcessed {
		o.seenProcessed, o.decided = true, true
		return
	}
	if o.lastRelevant != nil && eventID == *o.lastRelevant {
		o.seenRelevant, o.decided = true, true
	}
}

// boundedStream stops before the previously processed event or any event carrying
// one of the user's read receipts, observing every event it reads.
func boundedStream(src iter.Seq2[*events.Event, error], s *StateSyncWithTimeline, obs *readObservation) iter.Seq2[*events.Event, error] {
	return func(yield func(*events.Event, error) bool) {
		for ev, err := range src {
			if err != nil {
				yield(nil, err)
				return
			}
			if ev == nil {
				continue
			}
			obs.observe(ev.EventID)
			if s.LastProcessedEventID != nil && ev.EventID == *s.LastProcessedEventID {
				return
			}
			if s.HasReadReceipt(ev.EventID) {
				return
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
}

// resolveIsRead settles provisional read states. Confirmed values pass through.
func (p *Processor) resolveIsRead(ctx context.Context, s *StateSyncWithTimeline, obs *readObservation) (IsRead, error) {
	if !s.IsRead.NeedsCheck() {
		return s.IsRead, nil
	}
	prev, relevant := s.LastProcessedEventID, s.LastRelevantEventID
	switch {
	case relevant == nil:
		return IsReadTrue, nil
	case prev == nil:
		return IsReadFalse, nil
	case *prev == *relevant:
		return IsReadTrue, nil
	}

	if obs == nil || !obs.decided {
		obs = &readObservation{lastProcessed: prev, lastRelevant: relevant}
		for ev, err := range p.rooms.GetTimelineEvents(ctx, s.RoomID, s.LastEventID, Backward, nil) {
			if err != nil {
				return "", fmt.Errorf("notification: scan timeline of %s: %w", s.RoomID, err)
			}
			if ev == nil {
				continue
			}
			obs.observe(ev.EventID)
			if obs.decided {
				break
			}
		}
	}
	if obs.seenProcessed {
		return IsReadTrue, nil
	}
	return IsReadFalse, nil
}

// muted reports whether the rule source mutes roomID.
func muted(src RulesSource, roomID string) bool {
	m, ok := src.(MutedRooms)
	return ok && m.NotificationsDisabled(roomID)
}

func rulesOf(src RulesSource) []*pushrules.Rule {
	if src == nil {
		return nil
	}
	return src.Rules()
}

func sortKeys(existing map[string]StoredNotification) map[string]string {
	keys := make(map[string]string, len(existing))
	for id, n := range existing {
		keys[id] = n.Base().SortKey
	}
	return keys
}

func sliceStream(evs []*events.Event) iter.Seq2[*events.Event, error] {
	return func(yield func(*events.Event, error) bool) {
		for _, ev := range evs {
			if !yield(ev, nil) {
				return
			}
		}
	}
}

func sortedIDs(existing map[string]StoredNotification) []string {
	ids := make([]string, 0, len(existing))
	for id := range existing {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
