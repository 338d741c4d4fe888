package rollcall

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func roster(names ...string) []model.Student {
	out := make([]model.Student, len(names))
	for i, n := range names {
		out[i] = model.Student{Name: n}
	}
	return out
}

// fakeBackend records every request in order.
type fakeBackend struct {
	mu    sync.Mutex
	clock clockwork.Clock

	roster      func(read int) []model.Student
	studentsErr func(read int) error
	callResult  model.CallResult
	callErr     error
	history     []model.CallRecord
	historyErr  error
	stats       model.Stats

	reads   []time.Time
	calls   int
	hist    int
	statsN  int
	journal []string
}

func newFakeBackend(clock clockwork.Clock, students []model.Student) *fakeBackend {
	return &fakeBackend{
		clock:      clock,
		roster:     func(int) []model.Student { return students },
		callResult: model.CallResult{Name: "Bob", Count: 4},
	}
}

func (b *fakeBackend) Students(context.Context) ([]model.Student, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reads = append(b.reads, b.clock.Now())
	b.journal = append(b.journal, "students")
	n := len(b.reads)
	if b.studentsErr != nil {
		if err := b.studentsErr(n); err != nil {
			return nil, err
		}
	}
	return b.roster(n), nil
}

func (b *fakeBackend) Call(context.Context) (model.CallResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	b.journal = append(b.journal, "call")
	if b.callErr != nil {
		return model.CallResult{}, b.callErr
	}
	return b.callResult, nil
}

func (b *fakeBackend) History(context.Context) ([]model.CallRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hist++
	b.journal = append(b.journal, "history")
	return b.history, b.historyErr
}

func (b *fakeBackend) Stats(context.Context) (model.Stats, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.statsN++
	b.journal = append(b.journal, "stats")
	return b.stats, nil
}

func (b *fakeBackend) readCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.reads)
}

type backendCounts struct {
	reads   []time.Time
	calls   int
	hist    int
	statsN  int
	journal []string
}

func (b *fakeBackend) snapshot() backendCounts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return backendCounts{
		reads:   append([]time.Time(nil), b.reads...),
		calls:   b.calls,
		hist:    b.hist,
		statsN:  b.statsN,
		journal: append([]string(nil), b.journal...),
	}
}

func (b *fakeBackend) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reads, b.journal = nil, nil
	b.calls, b.hist, b.statsN = 0, 0, 0
}

// recordingView keeps everything rendered.
type recordingView struct {
	mu           sync.Mutex
	triggers     []bool
	loading      int
	rolling      []string
	placeholders []string
	results      []model.CallResult
	highlights   []string
	callCounts   []int
	histories    [][]model.CallRecord
	stats        []model.Stats
	charts       [][]model.StudentStat
}

func (v *recordingView) SetTrigger(enabled bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.triggers = append(v.triggers, enabled)
}

func (v *recordingView) ShowLoading() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.loading++
}

func (v *recordingView) ShowRolling(name string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rolling = append(v.rolling, name)
}

func (v *recordingView) ShowPlaceholder(msg string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.placeholders = append(v.placeholders, msg)
}

func (v *recordingView) ShowResult(res model.CallResult) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.results = append(v.results, res)
}

func (v *recordingView) Highlight(name string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.highlights = append(v.highlights, name)
}

func (v *recordingView) ShowCallCount(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.callCounts = append(v.callCounts, n)
}

func (v *recordingView) ShowHistory(records []model.CallRecord) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.histories = append(v.histories, records)
}

func (v *recordingView) ShowStats(stats model.Stats, chart []model.StudentStat) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stats = append(v.stats, stats)
	v.charts = append(v.charts, chart)
}

func (v *recordingView) lastTrigger() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.triggers) == 0 {
		return true
	}
	return v.triggers[len(v.triggers)-1]
}

// retriggerView starts the next cycle from the first SetTrigger(true).
type retriggerView struct {
	*recordingView
	ctx context.Context
	a   *Animator

	mu        sync.Mutex
	fired     bool
	restarted chan bool
}

func newRetriggerView(ctx context.Context) *retriggerView {
	return &retriggerView{recordingView: &recordingView{}, ctx: ctx, restarted: make(chan bool, 1)}
}

func (v *retriggerView) SetTrigger(enabled bool) {
	v.recordingView.SetTrigger(enabled)
	if !enabled {
		return
	}
	v.mu.Lock()
	first := !v.fired
	v.fired = true
	v.mu.Unlock()
	if first {
		v.restarted <- v.a.Trigger(v.ctx)
	}
}

type cycleResult struct {
	out Outcome
	err error
}

func start(ctx context.Context, a *Animator) <-chan cycleResult {
	done := make(chan cycleResult, 1)
	go func() {
		out, err := a.RollCall(ctx)
		done <- cycleResult{out: out, err: err}
	}()
	return done
}

// drive advances the fake clock one period at a time, waiting for each
// roster read, until the cycle finishes.
func drive(clock *clockwork.FakeClock, b *fakeBackend, interval time.Duration, done <-chan cycleResult) (cycleResult, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		return cycleResult{}, false
	}
	for {
		reads := b.readCount()
		clock.Advance(interval)
		for b.readCount() == reads {
			select {
			case r := <-done:
				return r, true
			case <-ctx.Done():
				return cycleResult{}, false
			case <-time.After(time.Millisecond):
			}
		}
		select {
		case r := <-done:
			return r, true
		default:
		}
	}
}
