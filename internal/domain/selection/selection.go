// Package selection picks students from a roster.
package selection

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"sync"

	"github.com/okian/rollcall/internal/domain/model"
)

// Picker chooses one roster index. It returns -1 for an empty roster.
type Picker interface {
	Pick(students []model.Student) int
}

// Option applies a configuration option to a picker.
type Option func(*source)

// WithSource replaces the random source, mainly for deterministic tests.
func WithSource(src rand.Source) Option {
	return func(s *source) {
		if src != nil {
			s.rng = rand.New(src)
		}
	}
}

// WithSeed seeds the default PCG source with fixed values.
func WithSeed(seed1, seed2 uint64) Option {
	return WithSource(rand.NewPCG(seed1, seed2))
}

// source is a mutex guarded generator; *rand.Rand is not safe for concurrent use.
type source struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newSource(opts []Option) *source {
	s := &source{rng: rand.New(rand.NewPCG(cryptoSeed(), cryptoSeed()))}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *source) intN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(n)
}

func (s *source) float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

func cryptoSeed() uint64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		// crypto/rand.Read does not fail on supported platforms.
		panic("selection: crypto seed: " + err.Error())
	}
	return binary.LittleEndian.Uint64(b[:])
}

// Weighted favours students that were called less often. Each student has
// weight 1/(count+1).
type Weighted struct {
	src *source
}

// NewWeighted creates a weighted picker.
func NewWeighted(opts ...Option) *Weighted {
	return &Weighted{src: newSource(opts)}
}

// Pick implements Picker.
func (w *Weighted) Pick(students []model.Student) int {
	if len(students) == 0 {
		return -1
	}

	total := 0.0
	for _, s := range students {
		total += Weight(s.Count)
	}

	target := w.src.float64() * total
	acc := 0.0
	for i, s := range students {
		acc += Weight(s.Count)
		if target < acc {
			return i
		}
	}
	// Rounding can leave target a hair above the final sum.
	return len(students) - 1
}

// Weight returns the selection weight for a student called count times.
func Weight(count int) float64 {
	if count < 0 {
		count = 0
	}
	return 1 / float64(count+1)
}

// Uniform gives every student the same probability.
type Uniform struct {
	src *source
}

// NewUniform creates a uniform picker.
func NewUniform(opts ...Option) *Uniform {
	return &Uniform{src: newSource(opts)}
}

// Pick implements Picker.
func (u *Uniform) Pick(students []model.Student) int {
	return u.IntN(len(students))
}

// IntN returns a uniform index in [0,n), or -1 when n <= 0.
func (u *Uniform) IntN(n int) int {
	if n <= 0 {
		return -1
	}
	return u.src.intN(n)
}
