package realtime_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/muzz-daily/internal/cache"
	"github.com/oggyb/muzz-daily/internal/realtime"
)

func TestRooms(t *testing.T) {
	assert.Equal(t, "conversation:7", realtime.ConversationRoom(7))
	assert.Equal(t, "user:3", realtime.UserRoom(3))
}

func TestRedisPublisher_PublishesOnRoomChannel(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	sub := client.Subscribe(ctx, realtime.ChannelPrefix+"conversation:9")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	pub := realtime.NewRedisPublisher(&cache.RedisCache{Client: client})
	ev := realtime.NewEvent(realtime.EventUserTyping, realtime.ConversationRoom(9), map[string]any{"userId": float64(1)})
	require.NoError(t, pub.Publish(ctx, ev))

	select {
	case msg := <-sub.Channel():
		var got realtime.Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, ev.ID, got.ID)
		assert.Equal(t, realtime.EventUserTyping, got.Type)
		assert.Equal(t, float64(1), got.Payload["userId"])
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

func TestRedisPublisher_RejectsMissingRoom(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	err := realtime.NewRedisPublisher(&cache.RedisCache{Client: client}).
		Publish(context.Background(), realtime.Event{Type: realtime.EventNewMatch})
	assert.Error(t, err)
}

func TestRecorder(t *testing.T) {
	var r realtime.Recorder
	_ = r.Publish(context.Background(), realtime.NewEvent(realtime.EventNewMatch, "user:1", nil))
	_ = r.Publish(context.Background(), realtime.NewEvent(realtime.EventChatExpired, "user:1", nil))

	assert.Len(t, r.Events(), 2)
	assert.Len(t, r.OfType(realtime.EventChatExpired), 1)
}
