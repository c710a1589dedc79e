package position

import (
	"context"
	"sync"
	"testing"
	"time"

	"dex-sniper-bot-go/internal/inflight"
	"dex-sniper-bot-go/internal/validator"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gateValidator struct {
	gate    chan struct{}
	verdict validator.Verdict
	panics  bool

	mu    sync.Mutex
	calls int
}

func (v *gateValidator) Validate(ctx context.Context, c validator.Candidate) validator.Verdict {
	v.mu.Lock()
	v.calls++
	v.mu.Unlock()
	if v.gate != nil {
		<-v.gate
	}
	if v.panics {
		panic("validator exploded")
	}
	return v.verdict
}

func newTestEngine(t *testing.T, v Validator, h *harness) (*Engine, *inflight.MemoryStore) {
	t.Helper()
	store := inflight.NewMemoryStore()
	deps := h.deps()
	deps.Clock = clock.New()
	e := NewEngine(context.Background(), store, v, Config{
		Policy:       defaultPolicy(),
		PollInterval: time.Millisecond,
	}, deps)
	return e, store
}

func waitResult(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("lifecycle did not finish")
		return Result{}
	}
}

func TestEngineDuplicateSubmitIsNoop(t *testing.T) {
	v := &gateValidator{gate: make(chan struct{}), verdict: validator.Verdict{Rule: validator.RuleLiquidity}}
	e, store := newTestEngine(t, v, newHarness(prices(100)))

	var wg sync.WaitGroup
	results := make(chan (<-chan Result), 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ch, ok := e.Submit(mint, "test"); ok {
				results <- ch
			}
		}()
	}
	wg.Wait()
	close(results)

	var accepted []<-chan Result
	for ch := range results {
		accepted = append(accepted, ch)
	}
	require.Len(t, accepted, 1)
	assert.Equal(t, 1, store.Len())

	close(v.gate)
	res := waitResult(t, accepted[0])
	assert.Equal(t, StateAborted, res.State)
	assert.False(t, res.Verdict.Passed)
	assert.Equal(t, validator.RuleLiquidity, res.Verdict.Rule)

	e.Wait()
	assert.Zero(t, store.Len(), "rejected candidate is released")
	assert.Equal(t, 1, v.calls)

	_, ok := e.Submit(mint, "test")
	assert.True(t, ok, "address can be submitted again once released")
	e.Wait()
}

func TestEngineRunsLifecycleToClose(t *testing.T) {
	h := newHarness(prices(100, 105, 85))
	e, store := newTestEngine(t, &gateValidator{verdict: validator.Verdict{Passed: true}}, h)

	ch, ok := e.Submit(mint, "webhook")
	require.True(t, ok)
	res := waitResult(t, ch)

	assert.Equal(t, StateClosed, res.State)
	assert.Equal(t, ExitStopLoss, res.Reason)
	assert.NoError(t, res.Err)
	assert.Equal(t, 1, h.trader.buys)
	assert.Len(t, h.trader.sells, 1)

	e.Wait()
	assert.Zero(t, store.Len())
	assert.Empty(t, e.Active())
}

func TestEngineReleasesAfterAbort(t *testing.T) {
	h := newHarness(prices(100))
	h.trader.buyErr = assert.AnError
	e, store := newTestEngine(t, &gateValidator{verdict: validator.Verdict{Passed: true}}, h)

	ch, ok := e.Submit(mint, "webhook")
	require.True(t, ok)
	res := waitResult(t, ch)

	assert.Equal(t, StateAborted, res.State)
	assert.ErrorIs(t, res.Err, assert.AnError)
	e.Wait()
	assert.Zero(t, store.Len())
}

func TestEngineRecoversPanics(t *testing.T) {
	e, store := newTestEngine(t, &gateValidator{panics: true}, newHarness(prices(100)))

	ch, ok := e.Submit(mint, "feed")
	require.True(t, ok)
	res := waitResult(t, ch)

	assert.Equal(t, StateAborted, res.State)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "validator exploded")
	e.Wait()
	assert.Zero(t, store.Len())
}

func TestEngineActiveListsHolding(t *testing.T) {
	h := newHarness(prices(100))
	e, _ := newTestEngine(t, &gateValidator{verdict: validator.Verdict{Passed: true}}, h)
	ctx, cancel := context.WithCancel(context.Background())
	e.ctx = ctx

	_, ok := e.Submit(mint, "webhook")
	require.True(t, ok)

	require.Eventually(t, func() bool {
		active := e.Active()
		return len(active) == 1 && active[0].State == StateHolding
	}, 5*time.Second, 5*time.Millisecond)

	active := e.Active()
	assert.Equal(t, mint, active[0].Address)
	assert.Equal(t, 100.0, active[0].EntryPrice)

	cancel()
	e.Wait()
	assert.Empty(t, e.Active())
}

func TestEngineSkipsEntryAfterShutdown(t *testing.T) {
	h := newHarness(prices(100))
	v := &gateValidator{gate: make(chan struct{}), verdict: validator.Verdict{Passed: true}}
	e, store := newTestEngine(t, v, h)
	ctx, cancel := context.WithCancel(context.Background())
	e.ctx = ctx

	ch, ok := e.Submit(mint, "webhook")
	require.True(t, ok)

	// shutdown begins while the candidate is still being validated
	cancel()
	close(v.gate)
	res := waitResult(t, ch)

	assert.Equal(t, StateAborted, res.State)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Zero(t, h.trader.buys)
	e.Wait()
	assert.Zero(t, store.Len())
}
