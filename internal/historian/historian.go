// internal/historian/historian.go drains the action queue into the database in batches and
// marks games abandoned once they stop producing actions.
package historian

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/uno/internal/game"
	"github.com/sirupsen/logrus"
)

// Source yields queued action records; nil, nil means nothing arrived within timeout.
type Source interface {
	Pop(ctx context.Context, timeout time.Duration) (*game.ActionRecord, error)
}

// Sink stores records.
type Sink interface {
	InsertActions(ctx context.Context, recs []game.ActionRecord) error
	MarkAbandoned(ctx context.Context, gameID uuid.UUID) (bool, error)
}

// Options tune the service. Zero values take the defaults noted per field.
type Options struct {
	Logger        *logrus.Logger
	BatchSize     int           // 20
	FlushInterval time.Duration // 500ms
	Inactivity    time.Duration // 10m until a game counts as abandoned
	SweepInterval time.Duration // 1m between inactivity checks
	PopTimeout    time.Duration // 3s, bounds how long shutdown waits on the queue
}

// Service encapsulates the queue + DB logic for capturing game actions.
type Service struct {
	src  Source
	sink Sink
	opts Options
	log  *logrus.Logger

	batchMu sync.Mutex
	batch   []game.ActionRecord

	lastActivity sync.Map // map[uuid.UUID]time.Time
	now          func() time.Time
}

func New(src Source, sink Sink, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 500 * time.Millisecond
	}
	if opts.Inactivity <= 0 {
		opts.Inactivity = 10 * time.Minute
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Minute
	}
	if opts.PopTimeout <= 0 {
		opts.PopTimeout = 3 * time.Second
	}
	return &Service{
		src:   src,
		sink:  sink,
		opts:  opts,
		log:   opts.Logger,
		batch: make([]game.ActionRecord, 0, opts.BatchSize),
		now:   time.Now,
	}
}

// Run consumes the queue until ctx is cancelled, then flushes what is left.
func (s *Service) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.flushLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		s.inactivityLoop(ctx)
	}()

	s.log.Info("uno-historian service started")
	s.readLoop(ctx)
	wg.Wait()

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Flush(flushCtx)
	s.log.Info("uno-historian shutting down")
}

func (s *Service) readLoop(ctx context.Context) {
	for ctx.Err() == nil {
		rec, err := s.src.Pop(ctx, s.opts.PopTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.WithError(err).Error("reading action queue")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if rec == nil {
			continue
		}

		if rec.ActionType == "action_end_game" {
			s.lastActivity.Delete(rec.GameID)
		} else {
			s.lastActivity.Store(rec.GameID, s.now())
		}
		if s.add(*rec) >= s.opts.BatchSize {
			s.Flush(ctx)
		}
	}
}

// add appends to the batch and returns its new size.
func (s *Service) add(rec game.ActionRecord) int {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	s.batch = append(s.batch, rec)
	return len(s.batch)
}

// Flush writes the current batch in a single transaction. A failed batch is put back in front
// of anything that arrived meanwhile.
func (s *Service) Flush(ctx context.Context) {
	s.batchMu.Lock()
	if len(s.batch) == 0 {
		s.batchMu.Unlock()
		return
	}
	pending := s.batch
	s.batch = make([]game.ActionRecord, 0, s.opts.BatchSize)
	s.batchMu.Unlock()

	if err := s.sink.InsertActions(ctx, pending); err != nil {
		s.log.WithError(err).WithField("count", len(pending)).Error("flushing actions")
		s.batchMu.Lock()
		s.batch = append(pending, s.batch...)
		s.batchMu.Unlock()
		return
	}
	s.log.Debugf("flushed %d actions to DB", len(pending))
}

func (s *Service) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Flush(ctx)
		}
	}
}

func (s *Service) inactivityLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep marks every game idle for longer than Inactivity as abandoned.
func (s *Service) sweep(ctx context.Context) {
	now := s.now()
	s.lastActivity.Range(func(key, val interface{}) bool {
		gameID, ok1 := key.(uuid.UUID)
		last, ok2 := val.(time.Time)
		if !ok1 || !ok2 || now.Sub(last) <= s.opts.Inactivity {
			return true
		}
		// pending actions of the game must land before its status changes
		s.Flush(ctx)
		changed, err := s.sink.MarkAbandoned(ctx, gameID)
		if err != nil {
			s.log.WithError(err).WithField("game", gameID).Warn("failed to mark game abandoned")
			return true
		}
		s.lastActivity.Delete(gameID)
		if changed {
			s.log.WithField("game", gameID).Info("marked game abandoned due to inactivity")
		}
		return true
	})
}
