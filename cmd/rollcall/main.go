package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/okian/rollcall/internal/adapters/http/client"
	"github.com/okian/rollcall/internal/config"
	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/internal/rollcall"
	"github.com/okian/rollcall/pkg/logger"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailed  = 1
	exitUsage   = 2
	exitBackend = 3
)

const usage = `Roll Call terminal client

Usage:
  rollcall [options] <command> [args]

Commands:
  call           roll and call on one student
  status         show the call counter, history and statistics
  history        show the latest calls
  stats          show per-student statistics
  import <file>  replace the roster with a .txt, .csv or .xlsx file
  clear -y       remove the roster and the history
  watch          stream live events until interrupted

Options:
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one command and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if err := logger.InitWithWriter(stderr, config.New().LogFormat); err != nil {
		fmt.Fprintln(stderr, "failed to initialize logging:", err)
		return exitFailed
	}

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintln(stderr, "failed to load config:", err)
		return exitFailed
	}

	fs := flag.NewFlagSet("rollcall", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	var (
		baseURL  = fs.String("url", cfg.BaseURL, "Base URL of the roll-call backend")
		timeout  = fs.Duration("timeout", cfg.RequestTimeout(), "Timeout of every backend request")
		interval = fs.Duration("interval", cfg.TickInterval(), "Animation cadence")
		ticks    = fs.Int("ticks", cfg.MaxTicks, "Cosmetic draws before the pick")
		top      = fs.Int("top", cfg.ChartTop, "Entries shown in the statistics chart")
		verbose  = fs.Bool("verbose", false, "Enable debug logging")
	)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	level := "warn"
	if *verbose {
		level = "debug"
	}
	_ = logger.SetLevelString(level)

	c, err := client.New(*baseURL, client.WithTimeout(*timeout))
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	view := rollcall.NewConsole(stdout)

	cmd := fs.Arg(0)
	rest := fs.Args()
	if len(rest) > 0 {
		rest = rest[1:]
	}

	switch cmd {
	case "call":
		a := rollcall.New(c, view,
			rollcall.WithTickInterval(*interval),
			rollcall.WithMaxTicks(*ticks),
			rollcall.WithChartTop(*top),
		)
		if _, err := a.RollCall(ctx); err != nil {
			return exitCode(err)
		}
		return exitOK

	case "status":
		a := rollcall.New(c, view, rollcall.WithChartTop(*top))
		a.Refresh(ctx)
		return exitOK

	case "history":
		records, err := c.History(ctx)
		if err != nil {
			return fail(stderr, err)
		}
		view.ShowCallCount(len(records))
		view.ShowHistory(records)
		return exitOK

	case "stats":
		stats, err := c.Stats(ctx)
		if err != nil {
			return fail(stderr, err)
		}
		view.ShowStats(stats, stats.Top(*top))
		return exitOK

	case "import":
		if len(rest) != 1 {
			fmt.Fprintln(stderr, "import needs exactly one file")
			return exitUsage
		}
		return importRoster(ctx, c, rest[0], stdout, stderr)

	case "clear":
		cfs := flag.NewFlagSet("clear", flag.ContinueOnError)
		cfs.SetOutput(stderr)
		yes := cfs.Bool("y", false, "Confirm removal of all data")
		if err := cfs.Parse(rest); err != nil {
			return exitUsage
		}
		if !*yes {
			fmt.Fprintln(stderr, "clear removes the roster and the history; rerun with -y to confirm")
			return exitUsage
		}
		if err := c.Clear(ctx); err != nil {
			return fail(stderr, err)
		}
		fmt.Fprintln(stdout, "all data cleared")
		return exitOK

	case "watch":
		err := c.Watch(ctx, func(e model.Event) {
			fmt.Fprintln(stdout, describe(e))
		})
		if err != nil {
			return fail(stderr, err)
		}
		return exitOK

	default:
		fs.Usage()
		return exitUsage
	}
}

func importRoster(ctx context.Context, c *client.Client, path string, stdout, stderr io.Writer) int {
	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitFailed
	}
	defer func() { _ = f.Close() }()

	n, err := c.Import(ctx, filepath.Base(path), f)
	if err != nil {
		return fail(stderr, err)
	}
	fmt.Fprintf(stdout, "imported %s students\n", humanize.Comma(int64(n)))
	return exitOK
}

// exitCode maps a failed roll call. The console already shows the reason.
func exitCode(err error) int {
	if errors.Is(err, rollcall.ErrTransport) {
		return exitBackend
	}
	return exitFailed
}

func fail(stderr io.Writer, err error) int {
	var rej *rollcall.RejectedError
	if errors.As(err, &rej) {
		fmt.Fprintln(stderr, rej.Message)
		return exitFailed
	}
	fmt.Fprintln(stderr, err)
	if client.IsTransport(err) {
		return exitBackend
	}
	return exitFailed
}

func describe(e model.Event) string {
	at := e.At.Local().Format(time.TimeOnly)
	switch e.Kind {
	case model.EventCall:
		return fmt.Sprintf("%s  called %s (%s call)", at, e.Name, humanize.Ordinal(e.Count))
	case model.EventImport:
		return fmt.Sprintf("%s  roster imported: %s students", at, humanize.Comma(int64(e.Students)))
	case model.EventClear:
		return fmt.Sprintf("%s  all data cleared", at)
	default:
		return fmt.Sprintf("%s  %s", at, e.Kind)
	}
}
