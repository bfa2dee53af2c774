// internal/cache/redis_test.go
package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/uno/internal/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testHistorian needs a reachable Redis; REDIS_ADDR overrides localhost.
func testHistorian(t *testing.T) *Historian {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	rdb, err := Connect(context.Background(), addr, 0)
	if err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	h := NewHistorian(rdb, "uno_test_"+uuid.NewString())
	t.Cleanup(func() {
		rdb.Del(context.Background(), h.Queue())
		h.Close()
	})
	return h
}

func TestNewHistorianDefaultsQueue(t *testing.T) {
	h := NewHistorian(nil, "")
	assert.Equal(t, DefaultQueueName, h.Queue())
}

func TestHistorianQueueIsFIFO(t *testing.T) {
	h := testHistorian(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	gameID := uuid.New()
	for i := 1; i <= 2; i++ {
		require.NoError(t, h.Record(ctx, game.ActionRecord{
			GameID:        gameID,
			Chat:          -5,
			ActionIndex:   i,
			ActorUserID:   7,
			ActionType:    "action_play",
			ActionPayload: map[string]interface{}{"card": "r_5"},
			Timestamp:     time.Now().UnixMilli(),
		}))
	}

	for i := 1; i <= 2; i++ {
		rec, err := h.Pop(ctx, time.Second)
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, gameID, rec.GameID)
		assert.Equal(t, i, rec.ActionIndex)
		assert.Equal(t, "r_5", rec.ActionPayload["card"])
	}
}

func TestHistorianPopTimesOutEmpty(t *testing.T) {
	h := testHistorian(t)
	rec, err := h.Pop(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Nil(t, rec)
}
