package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/muzz-daily/internal/cache"
	"github.com/oggyb/muzz-daily/internal/notify"
)

func TestQueueNotifier_PushesFIFO(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	ctx := context.Background()

	n := notify.NewQueueNotifier(&cache.RedisCache{Client: client})
	require.NoError(t, n.Notify(ctx, notify.Notification{ID: "a", UserID: 1, Type: notify.TypeNewMatch}))
	require.NoError(t, n.Notify(ctx, notify.Notification{ID: "b", UserID: 2, Type: notify.TypeChatExpiring}))

	first, err := client.RPop(ctx, notify.QueueKey).Result()
	require.NoError(t, err)

	var got notify.Notification
	require.NoError(t, json.Unmarshal([]byte(first), &got))
	assert.Equal(t, "a", got.ID)
	assert.Equal(t, uint64(1), got.UserID)
}

func TestQueueNotifier_RequiresRecipient(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	err := notify.NewQueueNotifier(&cache.RedisCache{Client: client}).
		Notify(context.Background(), notify.Notification{Type: notify.TypeNewMatch})
	assert.Error(t, err)
}

func TestRecorder_Fail(t *testing.T) {
	r := &notify.Recorder{Fail: func(n notify.Notification) error {
		if n.UserID == 2 {
			return errors.New("boom")
		}
		return nil
	}}
	ctx := context.Background()

	assert.NoError(t, r.Notify(ctx, notify.Notification{UserID: 1, Type: notify.TypeNewMatch}))
	assert.Error(t, r.Notify(ctx, notify.Notification{UserID: 2, Type: notify.TypeNewMatch}))
	assert.Len(t, r.For(1, ""), 1)
	assert.Empty(t, r.For(2, ""))
}
