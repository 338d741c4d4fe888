// Package rollcall drives the animated roll call: a short cosmetic roll over
// the live roster followed by exactly one authoritative pick.
package rollcall

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/internal/domain/selection"
	"github.com/okian/rollcall/pkg/logger"
	"github.com/okian/rollcall/pkg/metrics"
)

// Reference cadence.
const (
	DefaultTickInterval = 100 * time.Millisecond
	DefaultMaxTicks     = 20
	DefaultChartTop     = 10
)

// Backend is the JSON contract the animator consumes.
type Backend interface {
	Students(ctx context.Context) ([]model.Student, error)
	Call(ctx context.Context) (model.CallResult, error)
	History(ctx context.Context) ([]model.CallRecord, error)
	Stats(ctx context.Context) (model.Stats, error)
}

// View receives everything the animator renders. Refresh calls the three
// dependent-view methods from separate goroutines, so implementations must
// be safe for concurrent use.
type View interface {
	SetTrigger(enabled bool)
	ShowLoading()
	ShowRolling(name string)
	ShowPlaceholder(msg string)
	ShowResult(res model.CallResult)
	Highlight(name string)
	ShowCallCount(n int)
	ShowHistory(records []model.CallRecord)
	ShowStats(stats model.Stats, chart []model.StudentStat)
}

// Outcome summarizes one finished cycle.
type Outcome struct {
	State  State
	Result *model.CallResult
	Ticks  int // roster reads performed
	Err    error
}

// Animator runs roll-call cycles, one at a time.
type Animator struct {
	backend Backend
	view    View

	clock    clockwork.Clock
	interval time.Duration
	maxTicks int
	randn    func(n int) int
	chartTop int
	log      logger.Logger

	state atomic.Int32
	ticks atomic.Int64
}

// New creates an Animator rendering into view.
func New(backend Backend, view View, opts ...Option) *Animator {
	a := &Animator{
		backend:  backend,
		view:     view,
		clock:    clockwork.NewRealClock(),
		interval: DefaultTickInterval,
		maxTicks: DefaultMaxTicks,
		chartTop: DefaultChartTop,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.randn == nil {
		a.randn = selection.NewUniform().IntN
	}
	if a.log == nil {
		a.log = logger.Get().Named("animator")
	}
	return a
}

// State returns the current phase.
func (a *Animator) State() State {
	return State(a.state.Load())
}

// Ticks returns the number of cosmetic draws of the running cycle.
func (a *Animator) Ticks() int {
	return int(a.ticks.Load())
}

// RollCall runs one cycle to completion. It returns ErrBusy without side
// effects when a cycle is already running.
func (a *Animator) RollCall(ctx context.Context) (Outcome, error) {
	if !a.begin() {
		return Outcome{State: a.State()}, ErrBusy
	}
	out := a.cycle(ctx)
	return out, out.Err
}

// Trigger starts a cycle in the background. It reports false when a cycle
// is already running.
func (a *Animator) Trigger(ctx context.Context) bool {
	if !a.begin() {
		return false
	}
	go a.cycle(ctx)
	return true
}

func (a *Animator) begin() bool {
	return a.state.CompareAndSwap(int32(Idle), int32(Rolling))
}

// cycle owns the Rolling state acquired by begin.
func (a *Animator) cycle(ctx context.Context) Outcome {
	a.ticks.Store(0)
	a.view.SetTrigger(false)
	defer func() {
		// Idle first: a view may start the next cycle from SetTrigger(true).
		a.state.Store(int32(Idle))
		a.view.SetTrigger(true)
	}()
	a.view.ShowLoading()

	out := a.run(ctx)
	a.state.Store(int32(out.State))
	metrics.RecordAnimatorCycle(outcomeLabel(out))

	if out.State == Done {
		a.log.Info(ctx, "roll call done",
			logger.String("name", out.Result.Name),
			logger.Int("count", out.Result.Count),
			logger.Int("ticks", out.Ticks),
		)
	} else {
		a.log.Warn(ctx, "roll call failed", logger.Int("ticks", out.Ticks), logger.Error(out.Err))
	}
	return out
}

func (a *Animator) run(ctx context.Context) Outcome {
	ticker := a.clock.NewTicker(a.interval)
	stopped := false
	stop := func() {
		if !stopped {
			ticker.Stop()
			stopped = true
		}
	}
	defer stop()

	reads := 0
	for draws := 0; draws < a.maxTicks; {
		select {
		case <-ctx.Done():
			stop()
			return a.fail(reads, fmt.Errorf("%w: %w", ErrTransport, ctx.Err()))
		case <-ticker.Chan():
		}

		students, err := a.backend.Students(ctx)
		reads++
		metrics.RecordAnimatorTick()
		if err != nil {
			stop()
			return a.fail(reads, asTransport(err))
		}
		if len(students) == 0 {
			stop()
			a.view.ShowPlaceholder(EmptyRosterMessage)
			return Outcome{State: Failed, Ticks: reads, Err: ErrEmptyRoster}
		}

		a.view.ShowRolling(students[a.randn(len(students))].Name)
		draws++
		a.ticks.Store(int64(draws))
	}
	stop()

	a.state.Store(int32(Committing))
	start := a.clock.Now()
	res, err := a.backend.Call(ctx)
	metrics.RecordCommitLatency(float64(a.clock.Since(start).Microseconds()) / 1e3)
	if err != nil {
		var rej *RejectedError
		if errors.As(err, &rej) {
			a.view.ShowPlaceholder(rej.Message)
			return Outcome{State: Failed, Ticks: reads, Err: err}
		}
		return a.fail(reads, asTransport(err))
	}

	a.view.ShowResult(res)
	a.view.Highlight(res.Name)
	a.Refresh(ctx)
	return Outcome{State: Done, Result: &res, Ticks: reads}
}

func (a *Animator) fail(reads int, err error) Outcome {
	a.view.ShowPlaceholder(FailureMessage)
	return Outcome{State: Failed, Ticks: reads, Err: err}
}

// Refresh reloads the call counter, the history list and the statistics.
// The three reads run concurrently; a failed read is logged and leaves the
// previous rendering in place.
func (a *Animator) Refresh(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		records, err := a.backend.History(ctx)
		if err != nil {
			a.log.Warn(ctx, "call counter refresh failed", logger.Error(err))
			return
		}
		a.view.ShowCallCount(len(records))
	}()
	go func() {
		defer wg.Done()
		records, err := a.backend.History(ctx)
		if err != nil {
			a.log.Warn(ctx, "history refresh failed", logger.Error(err))
			return
		}
		a.view.ShowHistory(records)
	}()
	go func() {
		defer wg.Done()
		stats, err := a.backend.Stats(ctx)
		if err != nil {
			a.log.Warn(ctx, "stats refresh failed", logger.Error(err))
			return
		}
		a.view.ShowStats(stats, stats.Top(a.chartTop))
	}()
	wg.Wait()
}

// asTransport classifies err as a transport failure unless it already is one.
func asTransport(err error) error {
	if errors.Is(err, ErrTransport) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransport, err)
}

func outcomeLabel(out Outcome) string {
	switch {
	case out.State == Done:
		return "done"
	case errors.Is(out.Err, ErrEmptyRoster):
		return "empty_roster"
	case errors.Is(out.Err, ErrCallRejected):
		return "rejected"
	default:
		return "transport"
	}
}
