package broadcast

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisSinkPublish(t *testing.T) {
	mr := miniredis.RunT(t)

	sub := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer sub.Close()
	pubsub := sub.Subscribe(context.Background(), "council.42")
	defer pubsub.Close()
	_, err := pubsub.Receive(context.Background())
	require.NoError(t, err)

	sink := NewRedisSink(mr.Addr(), "", 0, zerolog.Nop())
	defer sink.Close()

	sink.Publish(context.Background(), "council.42", Event{
		Type:      "consensus",
		CouncilID: 42,
		Timestamp: time.Now().UTC(),
		Data:      map[string]string{"symbol": "BTCUSDT", "decision": "BUY"},
	})

	select {
	case msg := <-pubsub.Channel():
		var got Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, "consensus", got.Type)
		assert.Equal(t, int64(42), got.CouncilID)
		assert.NotEmpty(t, got.ID, "event ids are assigned on publish")
	case <-time.After(2 * time.Second):
		t.Fatal("no broadcast received")
	}
}

func TestRedisSinkPublishFailureIsSwallowed(t *testing.T) {
	sink := NewRedisSink("127.0.0.1:1", "", 0, zerolog.Nop()) // nothing listening
	defer sink.Close()

	// Must not panic or block the caller.
	sink.Publish(context.Background(), "council.1", Event{Type: "consensus"})
}
