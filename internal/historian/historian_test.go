// internal/historian/historian_test.go
package historian

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/uno/internal/game"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chanSource struct {
	ch chan game.ActionRecord
}

func (s *chanSource) Pop(ctx context.Context, timeout time.Duration) (*game.ActionRecord, error) {
	select {
	case rec := <-s.ch:
		return &rec, nil
	case <-time.After(timeout):
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type memSink struct {
	mu        sync.Mutex
	batches   [][]game.ActionRecord
	abandoned []uuid.UUID
	fail      bool
}

func (s *memSink) InsertActions(_ context.Context, recs []game.ActionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("db down")
	}
	s.batches = append(s.batches, append([]game.ActionRecord(nil), recs...))
	return nil
}

func (s *memSink) MarkAbandoned(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abandoned = append(s.abandoned, id)
	return true, nil
}

func (s *memSink) stored() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func (s *memSink) batchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func (s *memSink) abandonedIDs() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uuid.UUID(nil), s.abandoned...)
}

func quietLogger() *logrus.Logger {
	logger, _ := test.NewNullLogger()
	return logger
}

func rec(id uuid.UUID, idx int, typ string) game.ActionRecord {
	return game.ActionRecord{GameID: id, ActionIndex: idx, ActorUserID: 1, ActionType: typ}
}

func TestFlushesWhenBatchFills(t *testing.T) {
	src := &chanSource{ch: make(chan game.ActionRecord, 10)}
	sink := &memSink{}
	s := New(src, sink, Options{Logger: quietLogger(), BatchSize: 3, FlushInterval: time.Hour, PopTimeout: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	id := uuid.New()
	for i := 1; i <= 3; i++ {
		src.ch <- rec(id, i, "action_play")
	}
	require.Eventually(t, func() bool { return sink.stored() == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, sink.batchCount())

	cancel()
	<-done
}

func TestFlushesOnIntervalAndShutdown(t *testing.T) {
	src := &chanSource{ch: make(chan game.ActionRecord, 10)}
	sink := &memSink{}
	s := New(src, sink, Options{Logger: quietLogger(), BatchSize: 100, FlushInterval: 20 * time.Millisecond, PopTimeout: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	id := uuid.New()
	src.ch <- rec(id, 1, "action_join")
	require.Eventually(t, func() bool { return sink.stored() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	// records added after the loops stop still reach the sink
	s.add(rec(id, 2, "action_start"))
	s.Flush(context.Background())
	assert.Equal(t, 2, sink.stored())
}

func TestFailedFlushKeepsBatch(t *testing.T) {
	sink := &memSink{fail: true}
	s := New(&chanSource{ch: make(chan game.ActionRecord)}, sink, Options{Logger: quietLogger()})
	id := uuid.New()
	s.add(rec(id, 1, "action_join"))
	s.Flush(context.Background())
	assert.Zero(t, sink.stored())

	s.add(rec(id, 2, "action_join"))
	sink.mu.Lock()
	sink.fail = false
	sink.mu.Unlock()
	s.Flush(context.Background())
	require.Equal(t, 1, sink.batchCount())
	assert.Equal(t, 1, sink.batches[0][0].ActionIndex)
	assert.Equal(t, 2, sink.batches[0][1].ActionIndex)
}

func TestSweepMarksIdleGamesAbandoned(t *testing.T) {
	sink := &memSink{}
	s := New(&chanSource{ch: make(chan game.ActionRecord)}, sink, Options{Logger: quietLogger(), Inactivity: time.Minute})
	now := time.Unix(1_000_000, 0)
	s.now = func() time.Time { return now }

	idle, busy := uuid.New(), uuid.New()
	s.lastActivity.Store(idle, now.Add(-2*time.Minute))
	s.lastActivity.Store(busy, now.Add(-10*time.Second))
	s.add(rec(idle, 7, "action_draw"))

	s.sweep(context.Background())
	assert.Equal(t, []uuid.UUID{idle}, sink.abandonedIDs())
	assert.Equal(t, 1, sink.stored(), "pending actions land before the status change")

	_, tracked := s.lastActivity.Load(idle)
	assert.False(t, tracked)
	_, tracked = s.lastActivity.Load(busy)
	assert.True(t, tracked)
}

func TestEndGameStopsTracking(t *testing.T) {
	src := &chanSource{ch: make(chan game.ActionRecord, 10)}
	sink := &memSink{}
	s := New(src, sink, Options{Logger: quietLogger(), BatchSize: 2, FlushInterval: time.Hour, PopTimeout: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	id := uuid.New()
	src.ch <- rec(id, 1, "action_join")
	src.ch <- rec(id, 2, "action_end_game")
	require.Eventually(t, func() bool { return sink.stored() == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	_, tracked := s.lastActivity.Load(id)
	assert.False(t, tracked)
}
