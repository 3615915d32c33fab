// Package notify hands user notifications to the push/email workers.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/oggyb/muzz-daily/internal/cache"
)

// QueueKey is the Redis list the notification workers BRPOP from.
const QueueKey = "notifications:queue"

// Notification types.
const (
	TypeNewMatch     = "new_match"
	TypeChatAccepted = "chat_accepted"
	TypeChatExpiring = "chat_expiring"
	TypeNewMessage   = "new_message"
)

// Notification is one message for one user. ID is stable across retries
// so consumers can deduplicate.
type Notification struct {
	ID        string         `json:"id"`
	UserID    uint64         `json:"userId"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// QueueNotifier pushes JSON notifications onto QueueKey.
type QueueNotifier struct {
	cache *cache.RedisCache
	queue string
}

func NewQueueNotifier(c *cache.RedisCache) *QueueNotifier {
	return &QueueNotifier{cache: c, queue: QueueKey}
}

func (q *QueueNotifier) Notify(ctx context.Context, n Notification) error {
	if n.UserID == 0 {
		return fmt.Errorf("notification %q has no recipient", n.Type)
	}
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	return q.cache.Enqueue(ctx, q.queue, body)
}

// Recorder keeps notifications in memory.
type Recorder struct {
	mu   sync.Mutex
	sent []Notification
	// Fail, when set, is returned for matching notifications instead of recording them.
	Fail func(Notification) error
}

func (r *Recorder) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail != nil {
		if err := r.Fail(n); err != nil {
			return err
		}
	}
	r.sent = append(r.sent, n)
	return nil
}

func (r *Recorder) Sent() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.sent...)
}

// For returns what a user received, optionally filtered by type.
func (r *Recorder) For(userID uint64, notificationType string) []Notification {
	var out []Notification
	for _, n := range r.Sent() {
		if n.UserID == userID && (notificationType == "" || n.Type == notificationType) {
			out = append(out, n)
		}
	}
	return out
}
