package rollcall

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/okian/rollcall/pkg/logger"
)

// Option configures the Animator.
type Option func(*Animator)

// WithClock sets the clock driving the tick cadence.
func WithClock(c clockwork.Clock) Option {
	return func(a *Animator) {
		if c != nil {
			a.clock = c
		}
	}
}

// WithTickInterval sets the period between roster reads.
func WithTickInterval(d time.Duration) Option {
	return func(a *Animator) {
		if d > 0 {
			a.interval = d
		}
	}
}

// WithMaxTicks sets the number of cosmetic draws before the commit.
func WithMaxTicks(n int) Option {
	return func(a *Animator) {
		if n > 0 {
			a.maxTicks = n
		}
	}
}

// WithRand sets the cosmetic draw. randn(n) must return a value in [0, n).
func WithRand(randn func(n int) int) Option {
	return func(a *Animator) {
		if randn != nil {
			a.randn = randn
		}
	}
}

// WithChartTop sets how many statistics entries the chart receives.
func WithChartTop(n int) Option {
	return func(a *Animator) {
		if n > 0 {
			a.chartTop = n
		}
	}
}

// WithLogger sets the animator logger.
func WithLogger(l logger.Logger) Option {
	return func(a *Animator) {
		if l != nil {
			a.log = l
		}
	}
}
