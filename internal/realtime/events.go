// Package realtime fans events out to rooms over Redis Pub/Sub.
// Gateways subscribe to realtime:<room> and forward to their sockets.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oggyb/muzz-daily/internal/cache"
)

// ChannelPrefix prefixes every room's Pub/Sub channel.
const ChannelPrefix = "realtime:"

// Event types.
const (
	EventUserTyping          = "user_typing"
	EventUserStoppedTyping   = "user_stopped_typing"
	EventMessageRead         = "message_read"
	EventConversationRead    = "conversation_read"
	EventUserPresenceChanged = "user_presence_changed"
	EventChatExpiring        = "chat_expiring"
	EventChatExpired         = "chat_expired"
	EventNewMatch            = "new_match"
	EventNewMessage          = "new_message"
	EventMessageDeleted      = "message_deleted"
	EventChatAccepted        = "chat_accepted"
	EventChatExtended        = "chat_extended"
)

// Event is the payload broadcast to a room.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Room      string         `json:"room"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewEvent stamps an id and the current time.
func NewEvent(eventType, room string, payload map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Room:      room,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

func ConversationRoom(id uint64) string { return fmt.Sprintf("conversation:%d", id) }

func UserRoom(id uint64) string { return fmt.Sprintf("user:%d", id) }

// Publisher delivers events. Delivery is at most once; callers that need
// durability go through the outbox.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// RedisPublisher publishes JSON events on realtime:<room>.
type RedisPublisher struct {
	cache *cache.RedisCache
}

func NewRedisPublisher(c *cache.RedisCache) *RedisPublisher {
	return &RedisPublisher{cache: c}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	if ev.Room == "" {
		return fmt.Errorf("event %q has no room", ev.Type)
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return p.cache.Publish(ctx, ChannelPrefix+ev.Room, body)
}

// Recorder keeps published events in memory. Useful when no broker is
// configured and in tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType filters recorded events by type.
func (r *Recorder) OfType(eventType string) []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}
