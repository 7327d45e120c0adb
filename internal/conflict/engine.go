package conflict

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

const defaultHistorySize = 20

// Engine runs conflicts through the registered resolvers and keeps a bounded
// history of what was decided.
type Engine struct {
	mu          sync.Mutex
	resolvers   []Resolver
	history     []Record
	historySize int
	now         func() time.Time
	log         *slog.Logger
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

func WithHistorySize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.historySize = n
		}
	}
}

// NewEngine builds an engine with the built-in resolvers registered, ordered
// by descending priority. The server-wins fallback is always present, so
// Resolve is total.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		historySize: defaultHistorySize,
		now:         time.Now,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.resolvers = []Resolver{
		progressMergeResolver{},
		settingsMergeResolver{},
		answerServerWinsResolver{},
		timestampResolver{},
		serverWinsResolver{},
	}
	e.sortResolvers()
	return e
}

// Register adds a custom resolver. Resolvers with higher priority are
// consulted before lower ones; among equals, registration order holds.
func (e *Engine) Register(r Resolver) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.resolvers = append(e.resolvers, r)
	e.sortResolvers()
}

// sortResolvers orders by descending priority. Callers hold the lock, except
// NewEngine before the engine escapes.
func (e *Engine) sortResolvers() {
	sort.SliceStable(e.resolvers, func(i, j int) bool {
		return e.resolvers[i].Priority() > e.resolvers[j].Priority()
	})
}

// Resolve runs d through the resolvers in priority order and returns the
// first successful resolution. A resolver error falls through to the next
// resolver rather than failing the sync.
func (e *Engine) Resolve(d Data) Resolution {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, r := range e.resolvers {
		if !r.CanResolve(d) {
			continue
		}
		res, err := r.Resolve(d)
		if err != nil {
			e.log.Warn("conflict resolver failed",
				"resolver", r.Name(),
				"operation_id", d.OperationID,
				"operation_type", d.OperationType,
				"error", err)
			continue
		}
		res.Strategy = r.Name()
		e.record(d, res.Strategy)
		e.log.Debug("conflict resolved",
			"strategy", res.Strategy,
			"operation_id", d.OperationID,
			"operation_type", d.OperationType)
		return res
	}

	res, _ := serverWinsResolver{}.Resolve(d)
	res.Strategy = serverWinsResolver{}.Name()
	e.record(d, res.Strategy)
	return res
}

func (e *Engine) record(d Data, strategy string) {
	e.history = append(e.history, Record{
		OperationID:   d.OperationID,
		OperationType: d.OperationType,
		Strategy:      strategy,
		ResolvedAt:    e.now(),
	})
	if len(e.history) > e.historySize {
		e.history = e.history[len(e.history)-e.historySize:]
	}
}

// History returns the most recent resolutions, oldest first.
func (e *Engine) History() []Record {
	e.mu.Lock()
	defer e.mu.Unlock()

	history := make([]Record, len(e.history))
	copy(history, e.history)
	return history
}
