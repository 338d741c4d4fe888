// Package service implements the roll-call backend used by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	eventqueue "github.com/okian/rollcall/internal/adapters/mq/queue"
	"github.com/okian/rollcall/internal/adapters/mq/worker"
	"github.com/okian/rollcall/internal/adapters/repository"
	"github.com/okian/rollcall/internal/domain/dedupe"
	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/internal/domain/roster"
	"github.com/okian/rollcall/internal/domain/selection"
	"github.com/okian/rollcall/pkg/logger"
	"github.com/okian/rollcall/pkg/metrics"
)

// Default service configuration constants.
const (
	defaultHistoryLimit = 50
	defaultQueueSize    = 1024
	defaultReplaySize   = 4096

	dispatcherDrainTimeout = 5 * time.Second
)

// Service owns the roster, the call history and the live event pipeline.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      repository.Store
	picker     selection.Picker
	replays    dedupe.Cache
	eventQueue *eventqueue.InMemoryQueue
	dispatcher *worker.Dispatcher
	publisher  worker.Publisher
	clock      clockwork.Clock

	// Cancels the dispatcher once Stop has drained the queue.
	stopDispatch context.CancelFunc

	// Serializes keyed calls so a retried key never picks twice.
	keyedMu sync.Mutex

	// Configuration
	historyLimit int
	queueSize    int
	replaySize   int

	started bool
	logger  logger.Logger
}

// New constructs a Service. Without WithStore it keeps data in memory.
func New(opts ...Option) *Service {
	s := &Service{
		historyLimit: defaultHistoryLimit,
		queueSize:    defaultQueueSize,
		replaySize:   defaultReplaySize,
		clock:        clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.store == nil {
		s.store = repository.NewMemoryStore()
	}
	if s.picker == nil {
		s.picker = selection.NewWeighted()
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.replays = dedupe.NewInMemoryCache(dedupe.WithMaxSize(s.replaySize))
	return s
}

// Start launches the live event dispatcher when a publisher is configured.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.publisher != nil {
		s.eventQueue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
		s.dispatcher = worker.NewDispatcher(s.eventQueue, s.publisher, worker.WithName("live"))
		// The dispatcher outlives ctx so Stop can drain what is queued.
		dctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		s.stopDispatch = cancel
		s.dispatcher.Start(dctx)
	}

	if students, err := s.store.Students(ctx); err == nil {
		metrics.UpdateRosterSize(len(students))
	}
	if n, err := s.store.CallCount(ctx); err == nil {
		metrics.UpdateHistorySize(n)
	}

	s.started = true
	s.logger.Info(ctx, "roll-call service started",
		logger.Int("history_limit", s.historyLimit),
		logger.Bool("live_feed", s.publisher != nil),
	)
	return nil
}

// Stop shuts down the dispatcher and closes the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping roll-call service...")

	if s.eventQueue != nil {
		_ = s.eventQueue.Close()
	}
	if s.dispatcher != nil {
		select {
		case <-s.dispatcher.Done():
		case <-time.After(dispatcherDrainTimeout):
			s.logger.Warn(ctx, "live dispatcher did not drain in time")
			_ = s.dispatcher.Shutdown(ctx)
		}
	}
	if s.stopDispatch != nil {
		s.stopDispatch()
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error(ctx, "closing store failed", logger.Error(err))
	}

	s.eventQueue = nil
	s.dispatcher = nil
	s.stopDispatch = nil
	s.started = false
	s.logger.Info(ctx, "roll-call service stopped")
}

// Students returns the roster in import order.
func (s *Service) Students(ctx context.Context) ([]model.Student, error) {
	students, err := s.store.Students(ctx)
	if err != nil {
		return nil, fmt.Errorf("load students: %w", err)
	}
	return students, nil
}

// Call performs the authoritative weighted pick. Returns ErrEmptyRoster when
// no roster has been imported.
func (s *Service) Call(ctx context.Context) (model.CallResult, error) {
	res, err := s.store.RecordCall(ctx, s.picker.Pick, s.clock.Now())
	if err != nil {
		if errors.Is(err, ErrEmptyRoster) {
			metrics.RecordCallRejected()
			return model.CallResult{}, err
		}
		return model.CallResult{}, fmt.Errorf("record call: %w", err)
	}

	metrics.RecordCallCommitted()
	if n, err := s.store.CallCount(ctx); err == nil {
		metrics.UpdateHistorySize(n)
	}
	s.logger.Debug(ctx, "student called", logger.String("name", res.Name), logger.Int("count", res.Count))
	s.publish(ctx, model.Event{Kind: model.EventCall, Name: res.Name, Count: res.Count})
	return res, nil
}

// CallOnce is Call guarded by an idempotency key: repeating a key returns
// the first result and replayed=true without picking again. An empty key
// behaves like Call.
func (s *Service) CallOnce(ctx context.Context, key string) (res model.CallResult, replayed bool, err error) {
	if key == "" {
		res, err = s.Call(ctx)
		return res, false, err
	}

	s.keyedMu.Lock()
	defer s.keyedMu.Unlock()

	if prev, ok := s.replays.Lookup(ctx, key); ok {
		metrics.RecordCallReplay()
		return prev, true, nil
	}
	res, err = s.Call(ctx)
	if err != nil {
		return res, false, err
	}
	s.replays.Record(ctx, key, res)
	return res, false, nil
}

// History returns the latest call records, oldest first.
func (s *Service) History(ctx context.Context) ([]model.CallRecord, error) {
	records, err := s.store.History(ctx, s.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return records, nil
}

// Stats aggregates per-student counts, sorted by count descending. Students
// with equal counts keep roster order.
func (s *Service) Stats(ctx context.Context) (model.Stats, error) {
	students, err := s.store.Students(ctx)
	if err != nil {
		return model.Stats{}, fmt.Errorf("load students: %w", err)
	}
	total, err := s.store.CallCount(ctx)
	if err != nil {
		return model.Stats{}, fmt.Errorf("count calls: %w", err)
	}

	stats := model.Stats{
		TotalStudents: len(students),
		TotalCalls:    total,
		StudentStats:  make([]model.StudentStat, len(students)),
	}
	for i, st := range students {
		pct := 0.0
		if total > 0 {
			pct = float64(st.Count) / float64(total) * 100
		}
		stats.StudentStats[i] = model.StudentStat{Name: st.Name, Count: st.Count, Percentage: pct}
	}
	sort.SliceStable(stats.StudentStats, func(i, j int) bool {
		return stats.StudentStats[i].Count > stats.StudentStats[j].Count
	})
	return stats, nil
}

// Import replaces the roster with the names in r. Counts start at zero and
// the history is kept. Returns the number of imported students.
func (s *Service) Import(ctx context.Context, filename string, r io.Reader) (int, error) {
	students, err := roster.Parse(filename, r)
	if err != nil {
		metrics.RecordImport(importResult(err))
		return 0, err
	}
	if err := s.store.ReplaceStudents(ctx, students); err != nil {
		metrics.RecordImport("store_error")
		return 0, fmt.Errorf("replace students: %w", err)
	}

	metrics.RecordImport("ok")
	metrics.UpdateRosterSize(len(students))
	s.logger.Info(ctx, "roster imported", logger.String("file", filename), logger.Int("students", len(students)))
	s.publish(ctx, model.Event{Kind: model.EventImport, Students: len(students)})
	return len(students), nil
}

// Clear removes the roster, the whole call history and every remembered
// idempotency key.
func (s *Service) Clear(ctx context.Context) error {
	s.keyedMu.Lock()
	defer s.keyedMu.Unlock()

	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear store: %w", err)
	}
	s.replays.Reset(ctx)
	metrics.UpdateRosterSize(0)
	metrics.UpdateHistorySize(0)
	s.logger.Info(ctx, "data cleared")
	s.publish(ctx, model.Event{Kind: model.EventClear})
	return nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":      s.started,
		"historyLimit": s.historyLimit,
		"queueSize":    s.queueSize,
		"replayKeys":   s.replays.Size(),
		"liveFeed":     s.publisher != nil,
	}
	if s.eventQueue != nil {
		stats["queueLength"] = s.eventQueue.Len()
	}
	return stats
}

// publish hands e to the live queue. Dropped events are counted, never fatal.
func (s *Service) publish(ctx context.Context, e model.Event) { //nolint:gocritic // hugeParam: Event is enqueued by value
	s.mu.RLock()
	q := s.eventQueue
	s.mu.RUnlock()
	if q == nil {
		return
	}

	e.ID = uuid.NewString()
	e.At = s.clock.Now()
	if err := q.Enqueue(ctx, e); err != nil {
		s.logger.Warn(ctx, "live event dropped", logger.String("kind", string(e.Kind)), logger.Error(err))
	}
}

func importResult(err error) string {
	switch {
	case errors.Is(err, roster.ErrUnsupportedFormat):
		return "unsupported_format"
	case errors.Is(err, roster.ErrEmptyFile):
		return "empty_file"
	case errors.Is(err, roster.ErrMissingFilename):
		return "missing_filename"
	case errors.Is(err, roster.ErrMalformedFile):
		return "malformed_file"
	default:
		return "parse_error"
	}
}
