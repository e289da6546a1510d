package ingest

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultBatchSize    = 32
	defaultPollInterval = 30 * time.Second
	shutdownGrace       = 10 * time.Second
)

type dispatcher interface {
	Dispatch(ctx context.Context, ev Event) error
}

type eventStore interface {
	ClaimPending(ctx context.Context, limit int) ([]Event, error)
	MarkConsumed(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, reason string) error
	RecoverStale(ctx context.Context) (int64, error)
}

// Subscriber drains the outbox and feeds events to a fixed pool of
// workers. Events are routed by entity key, so rows touching the same
// task or project are applied one at a time, in order, while unrelated
// rows proceed concurrently.
//
// A LISTEN on the configured channel wakes the drain loop as soon as the
// web application commits a row; a periodic poll catches anything a
// dropped notification would otherwise strand.
type Subscriber struct {
	logger   *slog.Logger
	pool     *pgxpool.Pool
	store    eventStore
	dispatch dispatcher
	channel  string
	workers  int

	batchSize    int
	pollInterval time.Duration

	listenConn *pgx.Conn
}

func NewSubscriber(log *slog.Logger, pool *pgxpool.Pool, store eventStore, dispatch dispatcher, channel string, workers int) *Subscriber {
	if log == nil {
		log = slog.Default()
	}
	if workers <= 0 {
		workers = 1
	}
	return &Subscriber{
		logger:       log.With(slog.String("component", "subscriber")),
		pool:         pool,
		store:        store,
		dispatch:     dispatch,
		channel:      channel,
		workers:      workers,
		batchSize:    defaultBatchSize,
		pollInterval: defaultPollInterval,
	}
}

// Run blocks until ctx is canceled, then waits up to a short grace period
// for in-flight events before returning.
func (s *Subscriber) Run(ctx context.Context) error {
	if s.store == nil || s.dispatch == nil {
		return errors.New("subscriber not configured")
	}
	if recovered, err := s.store.RecoverStale(ctx); err != nil {
		return err
	} else if recovered > 0 {
		s.logger.Warn("recovered events stranded by previous shutdown", slog.Int64("count", recovered))
	}

	lanes := make([]chan Event, s.workers)
	var wg sync.WaitGroup
	for i := range lanes {
		lanes[i] = make(chan Event, s.batchSize)
		wg.Add(1)
		go func(lane chan Event) {
			defer wg.Done()
			for ev := range lane {
				s.process(ctx, ev)
			}
		}(lanes[i])
	}

	for ctx.Err() == nil {
		if err := s.drain(ctx, lanes); err != nil && ctx.Err() == nil {
			s.logger.Error("drain failed", slog.String("error", err.Error()))
		}
		s.awaitWake(ctx)
	}

	for _, lane := range lanes {
		close(lane)
	}
	s.closeListenConn()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownGrace):
		s.logger.Warn("shutdown grace expired with events still in flight")
	}
	return nil
}

// drain claims batches until the outbox is empty, routing each event to
// its lane.
func (s *Subscriber) drain(ctx context.Context, lanes []chan Event) error {
	for {
		events, err := s.store.ClaimPending(ctx, s.batchSize)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}
		for _, ev := range events {
			select {
			case lanes[s.lane(ev)] <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (s *Subscriber) lane(ev Event) int {
	h := fnv.New32a()
	h.Write([]byte(ev.entityKey()))
	return int(h.Sum32() % uint32(s.workers))
}

func (s *Subscriber) process(ctx context.Context, ev Event) {
	log := s.logger.With(slog.String("event_id", ev.ID), slog.String("topic", ev.Topic))

	// Settling uses a detached context so rows claimed right before
	// shutdown still get marked during the grace period.
	markCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.dispatch.Dispatch(ctx, ev); err != nil {
		// Shutdown interrupts whatever the handler was doing. The row
		// stays in processing and RecoverStale requeues it on the next
		// start instead of stranding it as failed.
		if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			log.Info("event interrupted by shutdown, left for recovery")
			return
		}
		log.Error("event failed", slog.String("error", err.Error()))
		if markErr := s.store.MarkFailed(markCtx, ev.ID, err.Error()); markErr != nil {
			log.Error("could not mark event failed", slog.String("error", markErr.Error()))
		}
		return
	}
	if err := s.store.MarkConsumed(markCtx, ev.ID); err != nil {
		log.Error("could not mark event consumed", slog.String("error", err.Error()))
	}
}

// awaitWake blocks until a NOTIFY arrives on the subscribed channel, the
// poll interval elapses, or ctx is canceled. Either way the caller drains
// next, so a lost notification only delays work by one poll interval.
func (s *Subscriber) awaitWake(ctx context.Context) {
	if s.pool == nil {
		select {
		case <-time.After(s.pollInterval):
		case <-ctx.Done():
		}
		return
	}
	conn, err := s.ensureListenConn(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("listen connection unavailable, falling back to polling",
			slog.String("error", err.Error()))
		select {
		case <-time.After(s.pollInterval):
		case <-ctx.Done():
		}
		return
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.pollInterval)
	defer cancel()
	if _, err := conn.WaitForNotification(waitCtx); err != nil {
		// Interrupting the wait tears down the connection; a fresh one is
		// established on the next cycle.
		s.closeListenConn()
	}
}

// ensureListenConn holds one connection outside the pool dedicated to
// LISTEN, so queued notifications never leak to other pool users.
func (s *Subscriber) ensureListenConn(ctx context.Context) (*pgx.Conn, error) {
	if s.listenConn != nil && !s.listenConn.IsClosed() {
		return s.listenConn, nil
	}
	s.listenConn = nil

	acquired, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listen connection: %w", err)
	}
	conn := acquired.Hijack()
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{s.channel}.Sanitize()); err != nil {
		conn.Close(context.Background())
		return nil, fmt.Errorf("listen on %s: %w", s.channel, err)
	}
	s.listenConn = conn
	return conn, nil
}

func (s *Subscriber) closeListenConn() {
	if s.listenConn == nil {
		return
	}
	closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = s.listenConn.Close(closeCtx)
	s.listenConn = nil
}
