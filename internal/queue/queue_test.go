package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "channel closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}
	}
}

func TestInMemoryRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(4)
	require.NoError(t, q.Publish(ctx, Message{Type: "notification", Body: json.RawMessage(`{"a":1}`)}))

	ch, err := q.Consume(ctx)
	require.NoError(t, err)
	msg := receive(t, ch)
	assert.Equal(t, "notification", msg.Type)
	assert.JSONEq(t, `{"a":1}`, string(msg.Body))

	cancel()
	for range ch {
	}
}

func TestInMemoryPublishHonoursContext(t *testing.T) {
	q := NewInMemory(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, q.Publish(ctx, Message{Type: "x"}), context.Canceled)
}

func TestInMemoryTryPublishFull(t *testing.T) {
	q := NewInMemory(2)
	require.NoError(t, q.TryPublish(Message{Type: "a"}))
	require.NoError(t, q.TryPublish(Message{Type: "b"}))
	assert.ErrorIs(t, q.TryPublish(Message{Type: "c"}), ErrFull)
	assert.Equal(t, 2, q.Len())
}

func TestRedisQueueRoundTrip(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewRedisQueue(client, "")
	require.NoError(t, q.Publish(ctx, Message{Type: "notification", Body: json.RawMessage(`{"subjectId":"s1"}`)}))
	assert.True(t, server.Exists("rollcall:notifications"))

	ch, err := q.Consume(ctx)
	require.NoError(t, err)
	msg := receive(t, ch)
	assert.Equal(t, "notification", msg.Type)
	assert.JSONEq(t, `{"subjectId":"s1"}`, string(msg.Body))
}
