// Package outbox makes post-commit side effects durable. Entries are
// written in the same transaction as the state change and delivered by
// the Relay after commit, with bounded retries.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/oggyb/muzz-daily/internal/db"
	"github.com/oggyb/muzz-daily/internal/notify"
	"github.com/oggyb/muzz-daily/internal/realtime"
	"github.com/oggyb/muzz-daily/internal/repository"
)

const (
	MaxAttempts = 5
	BatchSize   = 100
	baseBackoff = time.Second
	maxBackoff  = 5 * time.Minute

	// claimLease bounds how long a claimed entry stays invisible to
	// other relays before it is due again.
	claimLease = time.Minute
)

// Notification builds an entry delivered through the notifier.
func Notification(userID uint64, notificationType string, payload map[string]any) db.OutboxEntry {
	return db.OutboxEntry{
		EventID: uuid.NewString(),
		Kind:    db.OutboxNotification,
		Type:    notificationType,
		UserID:  userID,
		Payload: mustJSON(payload),
	}
}

// Event builds an entry delivered through the realtime publisher.
func Event(eventType, room string, payload map[string]any) db.OutboxEntry {
	return db.OutboxEntry{
		EventID: uuid.NewString(),
		Kind:    db.OutboxEvent,
		Type:    eventType,
		Room:    room,
		Payload: mustJSON(payload),
	}
}

func mustJSON(payload map[string]any) datatypes.JSON {
	if payload == nil {
		return nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		// payloads are built from ids, strings and times
		panic(fmt.Sprintf("outbox payload: %v", err))
	}
	return datatypes.JSON(b)
}

// Enqueue writes entries through tx. Pass the transaction that performs
// the state change so both commit or neither does.
func Enqueue(ctx context.Context, tx *gorm.DB, now time.Time, entries ...db.OutboxEntry) error {
	for i := range entries {
		entries[i].Status = db.OutboxPending
		entries[i].NextAttemptAt = now
	}
	return repository.NewOutboxRepository(tx).Add(ctx, entries)
}

// Report summarises one relay pass.
type Report struct {
	Processed int
	Sent      int
	Retried   int
	Failed    int
}

// Relay delivers due entries. Passes within one process run one at a
// time; relays in different processes split the rows through Claim.
type Relay struct {
	mu        sync.Mutex
	repo      *repository.OutboxRepository
	publisher realtime.Publisher
	notifier  notify.Notifier
	logger    *slog.Logger
	now       func() time.Time
	kick      chan struct{}
}

func NewRelay(database *gorm.DB, publisher realtime.Publisher, notifier notify.Notifier, logger *slog.Logger) *Relay {
	return &Relay{
		repo:      repository.NewOutboxRepository(database),
		publisher: publisher,
		notifier:  notifier,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		kick:      make(chan struct{}, 1),
	}
}

// SetClock replaces the time source.
func (r *Relay) SetClock(now func() time.Time) { r.now = now }

// Kick asks Run for an immediate pass. Never blocks.
func (r *Relay) Kick() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

// Run processes entries whenever kicked until ctx ends. The periodic
// scheduler job covers retries and anything missed.
func (r *Relay) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.kick:
			if _, err := r.ProcessPending(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("outbox relay pass failed", "err", err)
			}
		}
	}
}

// ProcessPending delivers every due entry once. Kicked passes from Run
// and the periodic job share the relay, so a pass waits for the one in
// flight and then sees its results.
func (r *Relay) ProcessPending(ctx context.Context) (Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var rep Report
	now := r.now()
	entries, err := r.repo.ListDue(ctx, now, BatchSize)
	if err != nil {
		return rep, fmt.Errorf("list due outbox entries: %w", err)
	}

	for _, e := range entries {
		claimed, err := r.repo.Claim(ctx, e.ID, now, now.Add(claimLease))
		if err != nil {
			return rep, fmt.Errorf("claim outbox entry %d: %w", e.ID, err)
		}
		if !claimed {
			continue
		}
		rep.Processed++
		derr := r.deliver(ctx, e)
		if derr == nil {
			if err := r.repo.MarkSent(ctx, e.ID, r.now()); err != nil {
				return rep, fmt.Errorf("mark outbox entry %d sent: %w", e.ID, err)
			}
			rep.Sent++
			continue
		}

		attempts := e.Attempts + 1
		failed := attempts >= MaxAttempts
		next := r.now().Add(Backoff(attempts))
		if err := r.repo.MarkAttempt(ctx, e.ID, attempts, derr.Error(), next, failed); err != nil {
			return rep, fmt.Errorf("mark outbox entry %d attempt: %w", e.ID, err)
		}
		if failed {
			rep.Failed++
			r.logger.Error("outbox entry dropped after retries",
				"event_id", e.EventID, "type", e.Type, "attempts", attempts, "err", derr)
		} else {
			rep.Retried++
			r.logger.Warn("outbox delivery failed, will retry",
				"event_id", e.EventID, "type", e.Type, "attempts", attempts, "err", derr)
		}
	}
	return rep, nil
}

// PurgeSent removes delivered entries older than age.
func (r *Relay) PurgeSent(ctx context.Context, age time.Duration) (int64, error) {
	return r.repo.DeleteSentBefore(ctx, r.now().Add(-age))
}

func (r *Relay) deliver(ctx context.Context, e db.OutboxEntry) error {
	var payload map[string]any
	if len(e.Payload) > 0 {
		if err := json.Unmarshal(e.Payload, &payload); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
	}

	switch e.Kind {
	case db.OutboxEvent:
		return r.publisher.Publish(ctx, realtime.Event{
			ID:        e.EventID,
			Type:      e.Type,
			Room:      e.Room,
			Payload:   payload,
			Timestamp: e.CreatedAt.UTC(),
		})
	case db.OutboxNotification:
		return r.notifier.Notify(ctx, notify.Notification{
			ID:        e.EventID,
			UserID:    e.UserID,
			Type:      e.Type,
			Payload:   payload,
			CreatedAt: e.CreatedAt.UTC(),
		})
	default:
		return fmt.Errorf("unknown outbox kind %q", e.Kind)
	}
}

// Backoff is the wait before attempt n+1: 1s, 2s, 4s... capped at 5m.
func Backoff(attempts int) time.Duration {
	if attempts < 1 {
		return baseBackoff
	}
	d := baseBackoff << (attempts - 1)
	if d <= 0 || d > maxBackoff {
		return maxBackoff
	}
	return d
}
