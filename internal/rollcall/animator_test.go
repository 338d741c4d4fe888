package rollcall

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/rollcall/internal/domain/model"
)

const interval = 100 * time.Millisecond

func newFixture(students []model.Student, opts ...Option) (*Animator, *fakeBackend, *recordingView, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClock()
	b := newFakeBackend(clock, students)
	v := &recordingView{}
	opts = append([]Option{WithClock(clock), WithTickInterval(interval), WithMaxTicks(20)}, opts...)
	return New(b, v, opts...), b, v, clock
}

func TestRollCallSuccess(t *testing.T) {
	Convey("Given a healthy backend with three students", t, func() {
		a, b, v, clock := newFixture(roster("Alice", "Bob", "Carol"))
		b.history = []model.CallRecord{{Name: "Ann"}, {Name: "Bob"}, {Name: "Cid"}, {Name: "Bob"}}
		b.stats = model.Stats{TotalStudents: 3, TotalCalls: 4, StudentStats: []model.StudentStat{
			{Name: "Bob", Count: 4, Percentage: 100},
		}}
		begin := clock.Now()

		Convey("When a roll call runs to completion", func() {
			r, ok := drive(clock, b, interval, start(context.Background(), a))
			So(ok, ShouldBeTrue)
			got := b.snapshot()

			Convey("Then exactly one commit is issued after twenty reads", func() {
				So(r.err, ShouldBeNil)
				So(r.out.State, ShouldEqual, Done)
				So(r.out.Ticks, ShouldEqual, 20)
				So(got.calls, ShouldEqual, 1)
				So(got.reads, ShouldHaveLength, 20)
				So(got.journal[20], ShouldEqual, "call")
			})

			Convey("Then the reads are one period apart", func() {
				So(got.reads[0].Sub(begin), ShouldEqual, interval)
				for i := 1; i < len(got.reads); i++ {
					So(got.reads[i].Sub(got.reads[i-1]), ShouldEqual, interval)
				}
			})

			Convey("Then the view shows Bob and his count", func() {
				So(r.out.Result, ShouldResemble, &model.CallResult{Name: "Bob", Count: 4})
				So(v.results, ShouldResemble, []model.CallResult{{Name: "Bob", Count: 4}})
				So(v.highlights, ShouldResemble, []string{"Bob"})
				So(v.rolling, ShouldHaveLength, 20)
				So(v.loading, ShouldEqual, 1)
			})

			Convey("Then counter, history and stats refresh exactly once after the commit", func() {
				tail := got.journal[21:]
				So(tail, ShouldHaveLength, 3)
				So(tail, ShouldContain, "stats")
				So(got.hist, ShouldEqual, 2)
				So(got.statsN, ShouldEqual, 1)
				So(v.callCounts, ShouldResemble, []int{4})
				So(v.histories, ShouldHaveLength, 1)
				So(v.stats, ShouldHaveLength, 1)
				So(v.charts[0], ShouldHaveLength, 1)
			})

			Convey("Then the trigger is enabled again and the animator is idle", func() {
				So(v.triggers, ShouldResemble, []bool{false, true})
				So(a.State(), ShouldEqual, Idle)
			})
		})
	})
}

func TestRollCallEmptyRoster(t *testing.T) {
	Convey("Given a roster that empties at the seventh read", t, func() {
		a, b, v, clock := newFixture(nil)
		full := roster("Alice", "Bob", "Carol")
		b.roster = func(read int) []model.Student {
			if read >= 7 {
				return nil
			}
			return full
		}

		Convey("When a roll call runs", func() {
			r, ok := drive(clock, b, interval, start(context.Background(), a))
			So(ok, ShouldBeTrue)
			got := b.snapshot()

			Convey("Then it stops at that read without committing", func() {
				So(r.out.State, ShouldEqual, Failed)
				So(errors.Is(r.err, ErrEmptyRoster), ShouldBeTrue)
				So(r.out.Ticks, ShouldEqual, 7)
				So(got.reads, ShouldHaveLength, 7)
				So(got.calls, ShouldEqual, 0)
				So(v.rolling, ShouldHaveLength, 6)
				So(v.placeholders, ShouldResemble, []string{EmptyRosterMessage})
			})

			Convey("Then the trigger is enabled again", func() {
				So(v.lastTrigger(), ShouldBeTrue)
				So(a.State(), ShouldEqual, Idle)
			})

			Convey("Then no further reads happen", func() {
				clock.Advance(10 * interval)
				time.Sleep(10 * time.Millisecond)
				So(b.readCount(), ShouldEqual, 7)
			})
		})

		Convey("When the roster is empty from the start", func() {
			b.roster = func(int) []model.Student { return nil }
			r, ok := drive(clock, b, interval, start(context.Background(), a))
			So(ok, ShouldBeTrue)
			So(r.out.Ticks, ShouldEqual, 1)
			So(b.snapshot().calls, ShouldEqual, 0)
		})
	})
}

func TestRollCallFailures(t *testing.T) {
	Convey("Given an animator over a fake backend", t, func() {
		a, b, v, clock := newFixture(roster("Alice", "Bob"))

		Convey("When the pick is rejected", func() {
			b.callErr = Rejected("student list is empty")
			r, ok := drive(clock, b, interval, start(context.Background(), a))
			So(ok, ShouldBeTrue)

			Convey("Then the backend message replaces the name", func() {
				So(r.out.State, ShouldEqual, Failed)
				So(errors.Is(r.err, ErrCallRejected), ShouldBeTrue)
				So(v.placeholders, ShouldResemble, []string{"student list is empty"})
				So(v.results, ShouldBeEmpty)
				So(b.snapshot().hist, ShouldEqual, 0)
				So(v.lastTrigger(), ShouldBeTrue)
			})
		})

		Convey("When the pick fails in transport", func() {
			b.callErr = errors.New("connection reset")
			r, ok := drive(clock, b, interval, start(context.Background(), a))
			So(ok, ShouldBeTrue)

			Convey("Then the generic placeholder is shown", func() {
				So(errors.Is(r.err, ErrTransport), ShouldBeTrue)
				So(v.placeholders, ShouldResemble, []string{FailureMessage})
				So(b.snapshot().calls, ShouldEqual, 1)
			})
		})

		Convey("When a roster read fails mid roll", func() {
			b.studentsErr = func(read int) error {
				if read == 3 {
					return errors.New("timeout")
				}
				return nil
			}
			r, ok := drive(clock, b, interval, start(context.Background(), a))
			So(ok, ShouldBeTrue)

			Convey("Then the cycle fails without a commit", func() {
				So(errors.Is(r.err, ErrTransport), ShouldBeTrue)
				So(r.out.Ticks, ShouldEqual, 3)
				So(b.snapshot().calls, ShouldEqual, 0)
				So(v.placeholders, ShouldResemble, []string{FailureMessage})
			})
		})

		Convey("When the context is cancelled while rolling", func() {
			ctx, cancel := context.WithCancel(context.Background())
			done := start(ctx, a)
			bctx, bcancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer bcancel()
			So(clock.BlockUntilContext(bctx, 1), ShouldBeNil)
			cancel()

			var r cycleResult
			select {
			case r = <-done:
			case <-time.After(5 * time.Second):
			}

			Convey("Then the cycle ends as a transport failure", func() {
				So(errors.Is(r.err, ErrTransport), ShouldBeTrue)
				So(errors.Is(r.err, context.Canceled), ShouldBeTrue)
				So(b.snapshot().calls, ShouldEqual, 0)
				So(a.State(), ShouldEqual, Idle)
			})
		})

		Convey("When a cycle fails and the backend recovers", func() {
			b.studentsErr = func(int) error { return errors.New("down") }
			r, ok := drive(clock, b, interval, start(context.Background(), a))
			So(ok, ShouldBeTrue)
			So(r.out.State, ShouldEqual, Failed)
			So(v.lastTrigger(), ShouldBeTrue)

			b.mu.Lock()
			b.studentsErr = nil
			b.mu.Unlock()
			b.reset()
			begin := clock.Now()
			r, ok = drive(clock, b, interval, start(context.Background(), a))
			So(ok, ShouldBeTrue)

			Convey("Then the next cycle completes normally", func() {
				got := b.snapshot()
				So(r.out.State, ShouldEqual, Done)
				So(got.reads, ShouldHaveLength, 20)
				So(got.calls, ShouldEqual, 1)
				So(got.reads[19].Sub(begin), ShouldEqual, 20*interval)
			})
		})
	})
}

func TestRollCallReentrancy(t *testing.T) {
	Convey("Given a roll call in progress", t, func() {
		a, b, v, clock := newFixture(roster("Alice", "Bob", "Carol"))
		ctx := context.Background()
		done := start(ctx, a)

		bctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		So(clock.BlockUntilContext(bctx, 1), ShouldBeNil)
		So(a.State(), ShouldEqual, Rolling)

		Convey("When triggered again", func() {
			_, err := a.RollCall(ctx)
			started := a.Trigger(ctx)

			Convey("Then both attempts are ignored", func() {
				So(errors.Is(err, ErrBusy), ShouldBeTrue)
				So(started, ShouldBeFalse)
			})

			Convey("Then the running cycle still commits exactly once", func() {
				r, ok := drive(clock, b, interval, done)
				So(ok, ShouldBeTrue)
				So(r.out.State, ShouldEqual, Done)
				got := b.snapshot()
				So(got.calls, ShouldEqual, 1)
				So(got.reads, ShouldHaveLength, 20)
				So(v.triggers, ShouldResemble, []bool{false, true})
			})
		})
	})
}

func TestTrigger(t *testing.T) {
	Convey("Given an idle animator", t, func() {
		a, b, v, clock := newFixture(roster("Alice"))

		Convey("When triggered", func() {
			So(a.Trigger(context.Background()), ShouldBeTrue)

			Convey("Then the cycle runs in the background", func() {
				bctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				So(clock.BlockUntilContext(bctx, 1), ShouldBeNil)
				for i := 0; i < 20; i++ {
					reads := b.readCount()
					clock.Advance(interval)
					for b.readCount() == reads && bctx.Err() == nil {
						time.Sleep(time.Millisecond)
					}
				}
				for a.State() != Idle && bctx.Err() == nil {
					time.Sleep(time.Millisecond)
				}
				So(a.State(), ShouldEqual, Idle)
				So(b.snapshot().calls, ShouldEqual, 1)
				So(v.lastTrigger(), ShouldBeTrue)
			})
		})
	})
}

func TestTriggerFromEnabledView(t *testing.T) {
	Convey("Given a view that triggers again as soon as it is enabled", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		clock := clockwork.NewFakeClock()
		b := newFakeBackend(clock, nil)
		v := newRetriggerView(ctx)
		a := New(b, v, WithClock(clock), WithTickInterval(interval), WithMaxTicks(20))
		v.a = a

		Convey("When a cycle ends on an empty roster", func() {
			r, ok := drive(clock, b, interval, start(ctx, a))
			So(ok, ShouldBeTrue)
			So(errors.Is(r.err, ErrEmptyRoster), ShouldBeTrue)

			Convey("Then the trigger from inside the view starts a new cycle", func() {
				var accepted bool
				select {
				case accepted = <-v.restarted:
				case <-ctx.Done():
				}
				So(accepted, ShouldBeTrue)

				So(clock.BlockUntilContext(ctx, 1), ShouldBeNil)
				clock.Advance(interval)
				for (b.readCount() < 2 || a.State() != Idle) && ctx.Err() == nil {
					time.Sleep(time.Millisecond)
				}
				So(b.readCount(), ShouldEqual, 2)
				So(a.State(), ShouldEqual, Idle)
				So(v.lastTrigger(), ShouldBeTrue)
			})
		})
	})
}

func TestUniformDraw(t *testing.T) {
	Convey("Given a fixed roster of four names", t, func() {
		const draws = 4000
		names := []string{"Alice", "Bob", "Carol", "Dave"}
		clock := clockwork.NewRealClock()
		b := newFakeBackend(clock, roster(names...))
		v := &recordingView{}
		a := New(b, v, WithTickInterval(time.Microsecond), WithMaxTicks(draws))

		Convey("When the animator rolls many times", func() {
			_, err := a.RollCall(context.Background())
			So(err, ShouldBeNil)

			Convey("Then every name is drawn about equally often", func() {
				So(v.rolling, ShouldHaveLength, draws)
				counts := map[string]int{}
				for _, n := range v.rolling {
					counts[n]++
				}
				expected := float64(draws) / float64(len(names))
				for _, n := range names {
					So(math.Abs(float64(counts[n])-expected), ShouldBeLessThan, expected*0.15)
				}
			})
		})
	})
}

func TestRefresh(t *testing.T) {
	Convey("Given a backend whose history read fails", t, func() {
		a, b, v, _ := newFixture(roster("Alice"), WithChartTop(2))
		b.historyErr = errors.New("down")
		b.stats = model.Stats{TotalCalls: 3, StudentStats: []model.StudentStat{
			{Name: "A", Count: 2}, {Name: "B", Count: 1}, {Name: "C", Count: 0},
		}}
		v.callCounts = []int{9}

		Convey("When the dependent views refresh", func() {
			a.Refresh(context.Background())

			Convey("Then the failed views keep their previous rendering", func() {
				So(v.callCounts, ShouldResemble, []int{9})
				So(v.histories, ShouldBeEmpty)
			})

			Convey("Then the stats view gets the top entries only", func() {
				So(v.charts, ShouldHaveLength, 1)
				So(v.charts[0], ShouldHaveLength, 2)
				So(v.stats[0].StudentStats, ShouldHaveLength, 3)
			})

			Convey("Then the animator state is untouched", func() {
				So(a.State(), ShouldEqual, Idle)
			})
		})
	})
}

func TestStateString(t *testing.T) {
	Convey("State names", t, func() {
		So(Idle.String(), ShouldEqual, "idle")
		So(Rolling.String(), ShouldEqual, "rolling")
		So(Committing.String(), ShouldEqual, "committing")
		So(Done.String(), ShouldEqual, "done")
		So(Failed.String(), ShouldEqual, "failed")
		So(State(42).String(), ShouldEqual, "unknown")
	})
}
