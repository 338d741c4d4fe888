package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/pkg/logger"
	"github.com/okian/rollcall/pkg/metrics"
)

const defaultPublishTimeout = 2 * time.Second

// Publisher delivers an event to its subscribers.
type Publisher interface {
	Publish(ctx context.Context, e model.Event) error
}

// Queue defines how the dispatcher receives events.
type Queue interface {
	Dequeue() <-chan model.Event
}

// Dispatcher reads events one at a time, so subscribers see them in the
// order they were enqueued.
type Dispatcher struct {
	queue          Queue
	publisher      Publisher
	name           string
	publishTimeout time.Duration

	startOnce sync.Once
	shutdown  chan struct{}
	done      chan struct{}
	stopOnce  sync.Once

	logger logger.Logger
}

// NewDispatcher creates a dispatcher for queue and publisher.
func NewDispatcher(queue Queue, publisher Publisher, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		queue:          queue,
		publisher:      publisher,
		name:           "dispatcher",
		publishTimeout: defaultPublishTimeout,
		shutdown:       make(chan struct{}),
		done:           make(chan struct{}),
		logger:         logger.Get().Named("dispatcher"),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.name != "dispatcher" {
		d.logger = d.logger.Named(d.name)
	}
	return d
}

// Start runs the dispatch loop in its own goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	d.startOnce.Do(func() {
		go d.Run(ctx)
	})
}

// Run dispatches events until ctx is done, Shutdown is called or the queue
// channel is closed. When the queue closes, the events still buffered are
// delivered first.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)

	events := d.queue.Dequeue()
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.shutdown:
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			d.dispatch(ctx, event)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, event model.Event) { //nolint:gocritic // hugeParam: Event is received by value
	pubCtx, cancel := context.WithTimeout(ctx, d.publishTimeout)
	defer cancel()

	if err := d.publisher.Publish(pubCtx, event); err != nil {
		metrics.RecordLiveEventDropped()
		metrics.RecordErrorByComponent("dispatcher", "publish_error")
		d.logger.Warn(ctx, "publish failed",
			logger.String("event_id", event.ID),
			logger.String("kind", string(event.Kind)),
			logger.Error(err),
		)
		return
	}
	metrics.RecordLiveEventPublished()
}

// Shutdown stops the loop and waits for it to exit.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.stopOnce.Do(func() { close(d.shutdown) })

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		d.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed once the dispatch loop has exited.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}
