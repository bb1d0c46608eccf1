package audit

import (
	"context"
	"errors"
	"sync"
	"time"

	id "vouch/pkg/domain"
)

// ErrBufferFull is returned by async emission when the inbox is saturated.
// Audit is best-effort for operations events; callers log and move on.
var ErrBufferFull = errors.New("audit buffer full")

// Publisher emits audit events to a store, either synchronously or through
// a buffered background worker.
type Publisher struct {
	store Store

	inbox chan Event
	done  chan struct{}
	once  sync.Once
}

type Option func(*Publisher)

// WithAsyncBuffer switches the publisher to async mode with the given inbox
// capacity. Emission never blocks the request path; events are dropped when
// the inbox is full.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		p.inbox = make(chan Event, size)
	}
}

func NewPublisher(store Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, done: make(chan struct{})}
	for _, opt := range opts {
		opt(p)
	}
	if p.inbox != nil {
		go p.run()
	}
	return p
}

func (p *Publisher) run() {
	defer close(p.done)
	for event := range p.inbox {
		// Persistence failures are swallowed here; the store is
		// responsible for its own logging.
		_ = p.store.Append(context.Background(), event)
	}
}

// Emit records an audit event. In sync mode it appends directly; in async
// mode it enqueues without blocking and drops when the buffer is full.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Category == "" {
		event.Category = AuditEvent(event.Action).Category()
	}

	if p.inbox == nil {
		return p.store.Append(ctx, event)
	}

	select {
	case p.inbox <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrBufferFull
	}
}

// List returns the stored events for one user.
func (p *Publisher) List(ctx context.Context, userID id.UserID) ([]Event, error) {
	return p.store.ListByUser(ctx, userID)
}

// Close drains the async inbox and stops the worker. Safe to call on a
// sync-mode publisher and safe to call twice.
func (p *Publisher) Close() {
	if p.inbox == nil {
		return
	}
	p.once.Do(func() {
		close(p.inbox)
		<-p.done
	})
}
