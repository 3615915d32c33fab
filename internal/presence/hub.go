package presence

import (
	"context"
	"log/slog"

	"github.com/oggyb/muzz-daily/internal/realtime"
)

// Hub pairs a Tracker with a realtime publisher so state transitions are
// broadcast exactly once. Presence changes go to the user's room, typing
// changes to the conversation's room.
type Hub struct {
	tracker   *Tracker
	publisher realtime.Publisher
	logger    *slog.Logger
}

func NewHub(tracker *Tracker, publisher realtime.Publisher, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{tracker: tracker, publisher: publisher, logger: logger}
}

func (h *Hub) Tracker() *Tracker { return h.tracker }

// Connect marks the user online and broadcasts if they had no entry.
func (h *Hub) Connect(ctx context.Context, userID uint64) {
	if h.tracker.SetOnline(ctx, userID) {
		h.presenceChanged(ctx, userID, true)
	}
}

// Heartbeat refreshes a tracked user in memory only. A user whose entry
// was swept or never existed goes through Connect.
func (h *Hub) Heartbeat(ctx context.Context, userID uint64) {
	if h.tracker.Tracked(userID) {
		h.tracker.UpdateActivity(userID)
		return
	}
	h.Connect(ctx, userID)
}

// Disconnect marks the user offline and ends any typing indicators.
func (h *Hub) Disconnect(ctx context.Context, userID uint64) {
	for _, convID := range h.tracker.ClearUserTyping(userID) {
		h.stoppedTyping(ctx, userID, convID)
	}
	if h.tracker.SetOffline(ctx, userID) {
		h.presenceChanged(ctx, userID, false)
	}
}

// StartTyping broadcasts user_typing when the user starts, and
// user_stopped_typing when the timer lapses without a refresh.
func (h *Hub) StartTyping(ctx context.Context, userID, conversationID uint64) {
	h.Heartbeat(ctx, userID)
	// the timer outlives the request
	bg := context.WithoutCancel(ctx)
	started := h.tracker.StartTyping(userID, conversationID, func() {
		h.stoppedTyping(bg, userID, conversationID)
	})
	if started {
		h.publish(ctx, realtime.NewEvent(realtime.EventUserTyping, realtime.ConversationRoom(conversationID), map[string]any{
			"conversationId": conversationID,
			"userId":         userID,
		}))
	}
}

func (h *Hub) StopTyping(ctx context.Context, userID, conversationID uint64) {
	if h.tracker.StopTyping(userID, conversationID) {
		h.stoppedTyping(ctx, userID, conversationID)
	}
}

// Sweep drops stale entries and broadcasts each as offline.
func (h *Hub) Sweep(ctx context.Context) []uint64 {
	stale := h.tracker.SweepStale()
	for _, id := range stale {
		h.presenceChanged(ctx, id, false)
	}
	return stale
}

func (h *Hub) presenceChanged(ctx context.Context, userID uint64, online bool) {
	payload := map[string]any{"userId": userID, "online": online}
	if at, ok, err := h.tracker.LastSeen(ctx, userID); err == nil && ok {
		payload["lastSeen"] = at
	}
	h.publish(ctx, realtime.NewEvent(realtime.EventUserPresenceChanged, realtime.UserRoom(userID), payload))
}

func (h *Hub) stoppedTyping(ctx context.Context, userID, conversationID uint64) {
	h.publish(ctx, realtime.NewEvent(realtime.EventUserStoppedTyping, realtime.ConversationRoom(conversationID), map[string]any{
		"conversationId": conversationID,
		"userId":         userID,
	}))
}

func (h *Hub) publish(ctx context.Context, ev realtime.Event) {
	if h.publisher == nil {
		return
	}
	if err := h.publisher.Publish(ctx, ev); err != nil {
		h.logger.Warn("publish presence event failed", "type", ev.Type, "room", ev.Room, "err", err)
	}
}
