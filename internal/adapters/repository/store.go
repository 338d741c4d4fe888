// Package repository stores the roster and the call history.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/rollcall/internal/domain/model"
)

// Supported store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ChooseFunc picks one roster index. It runs while the store holds its write
// lock, so the pick and the counter increment are atomic.
type ChooseFunc func(students []model.Student) int

// Store provides read/write access to the roster and its call history.
type Store interface {
	// Students returns the roster in import order.
	Students(ctx context.Context) ([]model.Student, error)

	// ReplaceStudents swaps the roster. History is left untouched.
	ReplaceStudents(ctx context.Context, students []model.Student) error

	// RecordCall picks a student with choose, increments its counter and
	// appends a history record stamped at. Returns ErrEmptyRoster when there
	// is nobody to pick.
	RecordCall(ctx context.Context, choose ChooseFunc, at time.Time) (model.CallResult, error)

	// History returns at most limit of the latest records, oldest first.
	History(ctx context.Context, limit int) ([]model.CallRecord, error)

	// CallCount returns the total number of recorded calls.
	CallCount(ctx context.Context) (int, error)

	// Clear removes the roster and the whole history.
	Clear(ctx context.Context) error

	Close() error
}

// Open creates the store for driver. dsn is ignored by the memory store.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (Store, error) {
	switch driver {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverSQLite, DriverPostgres:
		return OpenSQL(ctx, driver, dsn, opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}

func pick(choose ChooseFunc, students []model.Student) (int, error) {
	if len(students) == 0 {
		return 0, ErrEmptyRoster
	}
	idx := choose(students)
	if idx < 0 || idx >= len(students) {
		return 0, fmt.Errorf("%w: %d of %d", ErrInvalidPick, idx, len(students))
	}
	return idx, nil
}

func validLimit(limit int) error {
	if limit <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}
	return nil
}
