package rollcall

import (
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/jonboulle/clockwork"
	"github.com/mattn/go-isatty"

	"github.com/okian/rollcall/internal/domain/model"
)

const (
	ansiBold      = "\033[1m"
	ansiReset     = "\033[0m"
	ansiClearLine = "\r\033[K"

	chartWidth = 30
)

// ConsoleOption configures a Console.
type ConsoleOption func(*Console)

// WithTerminal forces terminal rendering on or off.
func WithTerminal(tty bool) ConsoleOption {
	return func(c *Console) {
		c.tty = tty
	}
}

// WithConsoleClock sets the clock used for relative history times.
func WithConsoleClock(clock clockwork.Clock) ConsoleOption {
	return func(c *Console) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// Console is a View writing to a terminal or a plain stream. On a terminal
// the rolling names are redrawn in place and the final name is bold.
type Console struct {
	mu      sync.Mutex
	w       io.Writer
	tty     bool
	clock   clockwork.Clock
	inFrame bool
	enabled bool
}

// NewConsole creates a Console. Terminal mode is detected from w.
func NewConsole(w io.Writer, opts ...ConsoleOption) *Console {
	c := &Console{
		w:       w,
		tty:     isTerminal(w),
		clock:   clockwork.NewRealClock(),
		enabled: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// TriggerEnabled reports whether a new roll call may start.
func (c *Console) TriggerEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// SetTrigger records whether a new roll call may start.
func (c *Console) SetTrigger(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = enabled
}

// ShowLoading announces the roll.
func (c *Console) ShowLoading() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endFrame()
	c.printf("rolling...\n")
}

// ShowRolling draws one cosmetic candidate.
func (c *Console) ShowRolling(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tty {
		c.printf("%s  %s", ansiClearLine, name)
		c.inFrame = true
		return
	}
	c.printf("  %s\n", name)
}

// ShowPlaceholder replaces the name with msg.
func (c *Console) ShowPlaceholder(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endFrame()
	c.printf("%s\n", msg)
}

// ShowResult prints the called student and the cumulative count.
func (c *Console) ShowResult(res model.CallResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endFrame()
	c.printf("called: %s (%s call)\n", res.Name, humanize.Ordinal(res.Count))
}

// Highlight prints name as a banner, bold on a terminal.
func (c *Console) Highlight(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endFrame()
	if c.tty {
		c.printf("%s>>> %s <<<%s\n", ansiBold, name, ansiReset)
		return
	}
	c.printf(">>> %s <<<\n", name)
}

// ShowCallCount prints the total number of calls.
func (c *Console) ShowCallCount(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endFrame()
	c.printf("total calls: %s\n", humanize.Comma(int64(n)))
}

// ShowHistory prints the history, oldest first, with relative times.
func (c *Console) ShowHistory(records []model.CallRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endFrame()
	if len(records) == 0 {
		c.printf("history: none\n")
		return
	}
	now := c.clock.Now()
	width := nameWidth(len(records), func(i int) string { return records[i].Name })
	c.printf("history:\n")
	for _, r := range records {
		when := r.Time
		if at, err := r.CalledAt(); err == nil {
			when = humanize.RelTime(at, now, "ago", "from now")
		}
		c.printf("  %s  %s\n", pad(r.Name, width), when)
	}
}

// ShowStats prints the totals and a bar chart of chart.
func (c *Console) ShowStats(stats model.Stats, chart []model.StudentStat) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endFrame()
	c.printf("students: %s  calls: %s\n",
		humanize.Comma(int64(stats.TotalStudents)), humanize.Comma(int64(stats.TotalCalls)))
	if len(chart) == 0 {
		return
	}

	peak := 0
	for _, s := range chart {
		peak = max(peak, s.Count)
	}
	width := nameWidth(len(chart), func(i int) string { return chart[i].Name })
	for _, s := range chart {
		c.printf("  %s | %s %d (%s%%)\n",
			pad(s.Name, width), bar(s.Count, peak), s.Count, humanize.FtoaWithDigits(math.Round(s.Percentage*10)/10, 1))
	}
}

// endFrame terminates an in-place rolling line. Callers hold mu.
func (c *Console) endFrame() {
	if c.inFrame {
		c.printf("\n")
		c.inFrame = false
	}
}

func (c *Console) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.w, format, args...)
}

func bar(count, peak int) string {
	if peak <= 0 {
		return ""
	}
	n := count * chartWidth / peak
	if n == 0 && count > 0 {
		n = 1
	}
	return strings.Repeat("#", n) + strings.Repeat(" ", chartWidth-n)
}

func nameWidth(n int, name func(int) string) int {
	width := 0
	for i := range n {
		width = max(width, utf8.RuneCountInString(name(i)))
	}
	return width
}

func pad(s string, width int) string {
	if n := utf8.RuneCountInString(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}
