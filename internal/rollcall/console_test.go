package rollcall

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/rollcall/internal/domain/model"
)

func TestConsole(t *testing.T) {
	Convey("Given a console writing to a buffer", t, func() {
		var buf bytes.Buffer
		now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.Local)
		clock := clockwork.NewFakeClockAt(now)
		c := NewConsole(&buf, WithConsoleClock(clock))

		Convey("Then a buffer is not a terminal", func() {
			So(c.tty, ShouldBeFalse)
		})

		Convey("When a roll is rendered", func() {
			c.ShowLoading()
			c.ShowRolling("Alice")
			c.ShowRolling("Bob")
			c.ShowResult(model.CallResult{Name: "Bob", Count: 4})
			c.Highlight("Bob")

			Convey("Then every frame is its own line", func() {
				So(buf.String(), ShouldEqual, "rolling...\n  Alice\n  Bob\ncalled: Bob (4th call)\n>>> Bob <<<\n")
			})
		})

		Convey("When the history is rendered", func() {
			c.ShowHistory([]model.CallRecord{
				model.NewCallRecord("Alice", now.Add(-3*time.Minute)),
				{Name: "Bob", Time: "not a time"},
			})

			Convey("Then times are relative to the clock", func() {
				out := buf.String()
				So(out, ShouldContainSubstring, "Alice  3 minutes ago")
				So(out, ShouldContainSubstring, "Bob    not a time")
			})
		})

		Convey("When an empty history is rendered", func() {
			c.ShowHistory(nil)
			So(buf.String(), ShouldEqual, "history: none\n")
		})

		Convey("When stats are rendered", func() {
			stats := model.Stats{TotalStudents: 3, TotalCalls: 3, StudentStats: []model.StudentStat{
				{Name: "Bob", Count: 2, Percentage: 200.0 / 3},
				{Name: "Alice", Count: 1, Percentage: 100.0 / 3},
				{Name: "Carol", Count: 0, Percentage: 0},
			}}
			c.ShowStats(stats, stats.Top(2))
			c.ShowCallCount(12345)

			Convey("Then the chart scales to the top entry", func() {
				lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
				So(lines[0], ShouldEqual, "students: 3  calls: 3")
				So(lines, ShouldHaveLength, 4)
				So(lines[1], ShouldContainSubstring, "Bob   | "+strings.Repeat("#", chartWidth)+" 2 (66.7%)")
				So(lines[2], ShouldContainSubstring, "Alice | "+strings.Repeat("#", chartWidth/2))
				So(lines[2], ShouldEndWith, "1 (33.3%)")
				So(lines[3], ShouldEqual, "total calls: 12,345")
			})
		})

		Convey("When the trigger toggles", func() {
			c.SetTrigger(false)
			So(c.TriggerEnabled(), ShouldBeFalse)
			c.SetTrigger(true)
			So(c.TriggerEnabled(), ShouldBeTrue)
			So(buf.Len(), ShouldEqual, 0)
		})
	})

	Convey("Given a console in terminal mode", t, func() {
		var buf bytes.Buffer
		c := NewConsole(&buf, WithTerminal(true))

		Convey("When names roll and a placeholder follows", func() {
			c.ShowRolling("Alice")
			c.ShowRolling("Bob")
			c.ShowPlaceholder(FailureMessage)
			c.Highlight("Bob")

			Convey("Then names redraw in place and the banner is bold", func() {
				So(buf.String(), ShouldEqual,
					ansiClearLine+"  Alice"+ansiClearLine+"  Bob\n"+FailureMessage+"\n"+ansiBold+">>> Bob <<<"+ansiReset+"\n")
			})
		})
	})
}
