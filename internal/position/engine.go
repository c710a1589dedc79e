package position

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"dex-sniper-bot-go/internal/inflight"
	"dex-sniper-bot-go/internal/logger"
	"dex-sniper-bot-go/internal/validator"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
)

// Validator decides buy eligibility
type Validator interface {
	Validate(ctx context.Context, c validator.Candidate) validator.Verdict
}

// Result is the terminal outcome of one submitted candidate
type Result struct {
	Address string
	State   State // ABORTED for rejected candidates
	Reason  ExitReason
	Verdict validator.Verdict
	Err     error
}

// Engine runs one lifecycle per accepted candidate. The inflight store
// guarantees at most one lifecycle per address across submitters.
type Engine struct {
	ctx       context.Context
	store     inflight.Store
	validator Validator
	cfg       Config
	deps      Deps
	logger    *logger.Logger

	wg     sync.WaitGroup
	mu     sync.RWMutex
	active map[string]*Lifecycle
}

// NewEngine creates an engine. Lifecycles run under ctx; cancelling it stops
// holding loops at the next tick boundary.
func NewEngine(ctx context.Context, store inflight.Store, v Validator, cfg Config, deps Deps) *Engine {
	if deps.Logger == nil {
		deps.Logger = logger.Discard()
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	return &Engine{
		ctx:       ctx,
		store:     store,
		validator: v,
		cfg:       cfg,
		deps:      deps,
		logger:    deps.Logger,
		active:    make(map[string]*Lifecycle),
	}
}

// Submit starts processing address unless it is already in flight. The
// returned channel receives exactly one Result. A false return means the
// submission was a no-op.
func (e *Engine) Submit(address, source string) (<-chan Result, bool) {
	e.logger.LogCandidateReceived(address, source)

	ok, err := e.store.TryAcquire(e.ctx, address)
	if err != nil {
		e.logger.LogError("engine", "acquire", err, logrus.Fields{"mint": address})
		return nil, false
	}
	if !ok {
		e.logger.LogCandidateDuplicate(address, source)
		return nil, false
	}

	done := make(chan Result, 1)
	candidate := validator.Candidate{Address: address, Source: source, DiscoveredAt: e.deps.Clock.Now()}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		done <- e.process(candidate)
		close(done)
	}()
	return done, true
}

func (e *Engine) process(c validator.Candidate) (res Result) {
	res = Result{Address: c.Address, State: StateAborted}

	defer func() {
		if r := recover(); r != nil {
			res.State = StateAborted
			res.Err = fmt.Errorf("lifecycle panic: %v", r)
			e.logger.LogError("engine", "lifecycle", res.Err, logrus.Fields{"mint": c.Address})
		}
		e.mu.Lock()
		delete(e.active, c.Address)
		e.mu.Unlock()
		if err := e.store.Release(context.Background(), c.Address); err != nil {
			e.logger.LogError("engine", "release", err, logrus.Fields{"mint": c.Address})
		}
	}()

	res.Verdict = e.validator.Validate(e.ctx, c)
	if !res.Verdict.Passed {
		return res
	}
	if err := e.ctx.Err(); err != nil {
		res.Err = err
		return res
	}

	lc := NewLifecycle(c.Address, e.cfg, e.deps)
	e.mu.Lock()
	e.active[c.Address] = lc
	e.mu.Unlock()

	res.State, res.Err = lc.Run(e.ctx)
	res.Reason = lc.Reason()
	return res
}

// Active lists running lifecycles ordered by address
func (e *Engine) Active() []Status {
	e.mu.RLock()
	out := make([]Status, 0, len(e.active))
	for _, lc := range e.active {
		out = append(out, lc.Status())
	}
	e.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// Wait blocks until every submitted candidate has finished
func (e *Engine) Wait() {
	e.wg.Wait()
}
