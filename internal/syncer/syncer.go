// Package syncer drains the offline operation queue against the backend:
// a periodic loop claims batches, sends them concurrently, resolves document
// conflicts and writes the agreed state back into the cache.
package syncer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/mnemoapp/mnemo/internal/cache"
	"github.com/mnemoapp/mnemo/internal/conflict"
	"github.com/mnemoapp/mnemo/internal/queue"
)

const (
	defaultInterval         = 30 * time.Second
	defaultOperationTimeout = 10 * time.Second
	defaultMaxConcurrent    = 3
)

// DrainResult counts what one drain did.
type DrainResult struct {
	Attempted int
	Succeeded int
	Failed    int
	Conflicts int
}

// Coordinator owns the sync lifecycle. At most one drain runs at a time;
// drains requested while one is in flight coalesce into a follow-up pass.
type Coordinator struct {
	queue   *queue.Queue
	engine  *conflict.Engine
	cache   *cache.Cache
	fetcher Fetcher

	interval      time.Duration
	opTimeout     time.Duration
	batchDelay    time.Duration
	maxConcurrent int64
	now           func() time.Time
	log           *slog.Logger

	mu       sync.Mutex
	running  bool
	busy     bool
	followUp bool
	online   bool
	stop     chan struct{}
	done     chan struct{}
}

type Option func(*Coordinator)

func WithInterval(d time.Duration) Option {
	return func(s *Coordinator) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithOperationTimeout(d time.Duration) Option {
	return func(s *Coordinator) {
		if d > 0 {
			s.opTimeout = d
		}
	}
}

func WithBatchDelay(d time.Duration) Option {
	return func(s *Coordinator) {
		if d >= 0 {
			s.batchDelay = d
		}
	}
}

func WithMaxConcurrent(n int) Option {
	return func(s *Coordinator) {
		if n > 0 {
			s.maxConcurrent = int64(n)
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Coordinator) {
		s.now = now
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Coordinator) {
		s.log = log
	}
}

func New(q *queue.Queue, engine *conflict.Engine, c *cache.Cache, fetcher Fetcher, opts ...Option) *Coordinator {
	s := &Coordinator{
		queue:         q,
		engine:        engine,
		cache:         c,
		fetcher:       fetcher,
		interval:      defaultInterval,
		opTimeout:     defaultOperationTimeout,
		batchDelay:    q.Config().BatchDelay,
		maxConcurrent: defaultMaxConcurrent,
		now:           time.Now,
		log:           slog.Default(),
		online:        true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the periodic sync loop. Calling Start while the loop is
// already running is a no-op.
func (s *Coordinator) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stop, s.done
	s.mu.Unlock()

	s.log.Info("sync loop started", "interval", s.interval)
	go s.loop(ctx, stop, done)
}

// Stop halts the periodic loop and waits for a drain it started to finish.
func (s *Coordinator) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stop, done := s.stop, s.done
	s.mu.Unlock()

	close(stop)
	<-done
	s.log.Info("sync loop stopped")
}

func (s *Coordinator) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if s.queue.Len() == 0 || !s.Online() {
				continue
			}
			s.drain(ctx)
		}
	}
}

// ForceSync drains the queue now. While a drain is already running it only
// flags a follow-up pass, so drains never overlap. Safe to call concurrently.
func (s *Coordinator) ForceSync(ctx context.Context) {
	s.drain(ctx)
}

// DrainOnce runs a single synchronous drain and reports what it did. When a
// drain is already in flight it flags a follow-up pass and returns the zero
// result.
func (s *Coordinator) DrainOnce(ctx context.Context) DrainResult {
	return s.drain(ctx)
}

// SetOnline records connectivity. The offline-to-online transition kicks off
// an immediate background sync.
func (s *Coordinator) SetOnline(online bool) {
	s.mu.Lock()
	was := s.online
	s.online = online
	s.mu.Unlock()

	switch {
	case online && !was:
		s.log.Info("connectivity restored, forcing sync")
		go s.ForceSync(context.Background())
	case !online && was:
		s.log.Info("connectivity lost, queueing locally")
	}
}

func (s *Coordinator) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.online
}

func (s *Coordinator) drain(ctx context.Context) DrainResult {
	s.mu.Lock()
	if s.busy {
		s.followUp = true
		s.mu.Unlock()
		return DrainResult{}
	}
	s.busy = true
	s.mu.Unlock()

	var total DrainResult
	for {
		pass := s.drainPass(ctx)
		total.Attempted += pass.Attempted
		total.Succeeded += pass.Succeeded
		total.Failed += pass.Failed
		total.Conflicts += pass.Conflicts

		s.mu.Lock()
		again := s.followUp && ctx.Err() == nil
		s.followUp = false
		if !again {
			s.busy = false
			s.mu.Unlock()
			break
		}
		s.mu.Unlock()
	}

	if total.Attempted > 0 {
		s.log.Info("sync drain finished",
			"attempted", total.Attempted,
			"succeeded", total.Succeeded,
			"failed", total.Failed,
			"conflicts", total.Conflicts)
	}
	return total
}

// drainPass claims and sends batches until the queue has nothing due.
// Operations within a batch run concurrently with allSettled semantics: one
// failure never aborts its siblings.
func (s *Coordinator) drainPass(ctx context.Context) DrainResult {
	var (
		mu     sync.Mutex
		result DrainResult
	)
	sem := semaphore.NewWeighted(s.maxConcurrent)
	for {
		batch := s.queue.ClaimBatch(s.now(), s.queue.EffectiveBatchSize())
		if len(batch) == 0 {
			break
		}
		s.log.Debug("sync batch claimed", "operations", len(batch))

		var wg sync.WaitGroup
		for _, op := range batch {
			if err := sem.Acquire(ctx, 1); err != nil {
				s.queue.Requeue(op.ID)
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer sem.Release(1)

				conflicted, ok := s.syncOne(ctx, op)

				mu.Lock()
				defer mu.Unlock()
				result.Attempted++
				if !ok {
					result.Failed++
					return
				}
				result.Succeeded++
				if conflicted {
					result.Conflicts++
				}
			}()
		}
		wg.Wait()

		if ctx.Err() != nil || s.queue.Len() == 0 {
			break
		}
		select {
		case <-ctx.Done():
			return result
		case <-time.After(s.batchDelay):
		}
	}
	return result
}

// syncOne sends a single operation and settles its outcome: conflict
// resolution, cache write-back and queue accounting.
func (s *Coordinator) syncOne(ctx context.Context, op queue.Operation) (conflicted, ok bool) {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	started := time.Now()
	res, err := s.fetcher.Send(opCtx, op)
	if err != nil {
		s.queue.MarkFailed(op.ID, err)
		var netErr *NetworkError
		if errors.As(err, &netErr) {
			s.markOffline()
		}
		s.log.Warn("operation sync failed",
			"id", op.ID,
			"type", op.Type,
			"retry_count", op.RetryCount,
			"error", err)
		return false, false
	}
	s.markOnline()

	var local conflict.Document
	if op.Payload != nil {
		local = op.Payload.Document()
	}
	final := res.Document
	conflicted = conflict.Detect(op.Type, local, res.Document)
	if conflicted {
		resolution := s.engine.Resolve(conflict.Data{
			OperationID:   op.ID,
			OperationType: op.Type,
			Local:         local,
			Server:        res.Document,
			DetectedAt:    s.now(),
		})
		final = resolution.Data
		s.log.Info("conflict resolved",
			"id", op.ID,
			"type", op.Type,
			"strategy", resolution.Strategy)
	}
	if op.CacheKey != "" && final != nil {
		s.cache.Set(op.CacheKey, final, 0)
	}
	s.queue.MarkCompleted(op.ID, time.Since(started))
	return conflicted, true
}

// markOffline flips connectivity off without triggering a sync.
func (s *Coordinator) markOffline() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.online {
		s.online = false
		s.log.Info("network error during sync, going offline")
	}
}

// markOnline flips connectivity on without triggering a sync; the running
// drain is already moving the queue.
func (s *Coordinator) markOnline() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.online {
		s.online = true
		s.log.Info("sync succeeded, back online")
	}
}
