// Package presence tracks who is online and who is typing where.
//
// State is process-local and safe to lose: last-seen falls back to the
// durable last_active_at column, typing indicators simply lapse.
package presence

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

const (
	DefaultOnlineWindow  = 30 * time.Second
	DefaultTypingTimeout = 5 * time.Second
)

// LastActiveStore is the durable side of last-seen.
type LastActiveStore interface {
	LastActiveAt(ctx context.Context, userID uint64) (time.Time, error)
	TouchLastActive(ctx context.Context, userID uint64, at time.Time) error
}

// Options configures a Tracker. Zero values take the defaults.
type Options struct {
	OnlineWindow  time.Duration
	TypingTimeout time.Duration
	Store         LastActiveStore
	Now           func() time.Time
	Logger        *slog.Logger
}

// Status is what clients see for a user.
type Status struct {
	UserID   uint64     `json:"userId"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

type typingKey struct {
	conversationID uint64
	userID         uint64
}

type typingTimer struct {
	timer *time.Timer
	gen   uint64
}

// Tracker owns presence and typing state for one process.
// Construct it once and Close it on shutdown.
type Tracker struct {
	window        time.Duration
	typingTimeout time.Duration
	store         LastActiveStore
	now           func() time.Time
	logger        *slog.Logger

	mu       sync.Mutex
	lastSeen map[uint64]time.Time
	typing   map[typingKey]*typingTimer
	gen      uint64
	closed   bool
}

func NewTracker(opts Options) *Tracker {
	t := &Tracker{
		window:        opts.OnlineWindow,
		typingTimeout: opts.TypingTimeout,
		store:         opts.Store,
		now:           opts.Now,
		logger:        opts.Logger,
		lastSeen:      make(map[uint64]time.Time),
		typing:        make(map[typingKey]*typingTimer),
	}
	if t.window <= 0 {
		t.window = DefaultOnlineWindow
	}
	if t.typingTimeout <= 0 {
		t.typingTimeout = DefaultTypingTimeout
	}
	if t.now == nil {
		t.now = func() time.Time { return time.Now().UTC() }
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	return t
}

// SetOnline stamps the user as active now. It reports whether the user
// had no entry before. Entries leave only through SetOffline and
// SweepStale, so online and offline reports come in pairs.
func (t *Tracker) SetOnline(ctx context.Context, userID uint64) bool {
	now := t.now()
	t.mu.Lock()
	_, ok := t.lastSeen[userID]
	t.lastSeen[userID] = now
	t.mu.Unlock()

	t.persist(ctx, userID, now)
	return !ok
}

// SetOffline forgets the in-memory entry and records the durable last seen.
// It reports whether the user had an entry.
func (t *Tracker) SetOffline(ctx context.Context, userID uint64) bool {
	now := t.now()
	t.mu.Lock()
	_, ok := t.lastSeen[userID]
	delete(t.lastSeen, userID)
	t.mu.Unlock()

	t.persist(ctx, userID, now)
	return ok
}

// UpdateActivity re-stamps the user without touching the store.
func (t *Tracker) UpdateActivity(userID uint64) {
	now := t.now()
	t.mu.Lock()
	t.lastSeen[userID] = now
	t.mu.Unlock()
}

// Tracked reports whether the user has an in-memory entry, online or
// lapsed but not yet swept.
func (t *Tracker) Tracked(userID uint64) bool {
	t.mu.Lock()
	_, ok := t.lastSeen[userID]
	t.mu.Unlock()
	return ok
}

func (t *Tracker) IsOnline(userID uint64) bool {
	t.mu.Lock()
	seen, ok := t.lastSeen[userID]
	t.mu.Unlock()
	return ok && t.now().Sub(seen) < t.window
}

// LastSeen prefers memory and falls back to the store. The bool is false
// when the user has never been seen.
func (t *Tracker) LastSeen(ctx context.Context, userID uint64) (time.Time, bool, error) {
	t.mu.Lock()
	seen, ok := t.lastSeen[userID]
	t.mu.Unlock()
	if ok {
		return seen, true, nil
	}
	if t.store == nil {
		return time.Time{}, false, nil
	}
	at, err := t.store.LastActiveAt(ctx, userID)
	if err != nil {
		return time.Time{}, false, err
	}
	return at, !at.IsZero(), nil
}

func (t *Tracker) Status(ctx context.Context, userID uint64) (Status, error) {
	st := Status{UserID: userID, Online: t.IsOnline(userID)}
	at, ok, err := t.LastSeen(ctx, userID)
	if err != nil {
		return st, err
	}
	if ok {
		st.LastSeen = &at
	}
	return st, nil
}

// SweepStale drops entries more than twice the online window old and
// returns the affected users in ascending order.
func (t *Tracker) SweepStale() []uint64 {
	cutoff := t.now().Add(-2 * t.window)
	var out []uint64
	t.mu.Lock()
	for id, seen := range t.lastSeen {
		if seen.Before(cutoff) {
			delete(t.lastSeen, id)
			out = append(out, id)
		}
	}
	t.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CleanupStale is SweepStale returning only the count.
func (t *Tracker) CleanupStale() int {
	return len(t.SweepStale())
}

// StartTyping arms (or re-arms) the typing timer for the pair. When it
// fires the entry is cleared and onTimeout runs exactly once. Restarting
// or stopping first means that callback never runs. It reports whether
// the user was not already typing there.
func (t *Tracker) StartTyping(userID, conversationID uint64, onTimeout func()) bool {
	key := typingKey{conversationID: conversationID, userID: userID}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}

	existing, wasTyping := t.typing[key]
	if wasTyping {
		existing.timer.Stop()
	}

	t.gen++
	gen := t.gen
	entry := &typingTimer{gen: gen}
	entry.timer = time.AfterFunc(t.typingTimeout, func() {
		t.mu.Lock()
		cur, ok := t.typing[key]
		if !ok || cur.gen != gen {
			t.mu.Unlock()
			return
		}
		delete(t.typing, key)
		t.mu.Unlock()

		if onTimeout != nil {
			onTimeout()
		}
	})
	t.typing[key] = entry
	return !wasTyping
}

// StopTyping clears the timer early. It reports whether one existed.
func (t *Tracker) StopTyping(userID, conversationID uint64) bool {
	key := typingKey{conversationID: conversationID, userID: userID}
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.typing[key]
	if !ok {
		return false
	}
	entry.timer.Stop()
	delete(t.typing, key)
	return true
}

func (t *Tracker) IsTyping(userID, conversationID uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.typing[typingKey{conversationID: conversationID, userID: userID}]
	return ok
}

// ClearUserTyping stops every timer the user owns and returns the
// conversations affected, ascending.
func (t *Tracker) ClearUserTyping(userID uint64) []uint64 {
	var out []uint64
	t.mu.Lock()
	for key, entry := range t.typing {
		if key.userID != userID {
			continue
		}
		entry.timer.Stop()
		delete(t.typing, key)
		out = append(out, key.conversationID)
	}
	t.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Close stops all timers. Later StartTyping calls are ignored.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, entry := range t.typing {
		entry.timer.Stop()
		delete(t.typing, key)
	}
	t.closed = true
}

func (t *Tracker) persist(ctx context.Context, userID uint64, at time.Time) {
	if t.store == nil {
		return
	}
	if err := t.store.TouchLastActive(ctx, userID, at); err != nil {
		t.logger.Warn("persist last active failed", "user_id", userID, "err", err)
	}
}
