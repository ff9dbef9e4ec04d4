package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrBufferFull is returned by Async.Append when the buffer cannot take more
// entries. The entry is dropped.
var ErrBufferFull = errors.New("audit buffer full")

// Async decouples callers from a slow sink. Append enqueues without blocking;
// Run drains the queue into the wrapped sink until its context ends, then
// flushes what is left.
type Async struct {
	sink    Sink
	inbox   chan Entry
	logger  *slog.Logger
	metrics *Metrics
	done    chan struct{}
	once    sync.Once
}

func NewAsync(sink Sink, buffer int, logger *slog.Logger, metrics *Metrics) *Async {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Async{
		sink:    sink,
		inbox:   make(chan Entry, buffer),
		logger:  logger,
		metrics: metrics,
		done:    make(chan struct{}),
	}
}

// Append implements Sink.
func (a *Async) Append(_ context.Context, entry Entry) error {
	select {
	case a.inbox <- entry:
		a.metrics.SetQueued(len(a.inbox))
		return nil
	default:
		a.metrics.IncDropped()
		return ErrBufferFull
	}
}

// Run persists queued entries. Sink failures are logged and the worker keeps
// going. When ctx ends the remaining entries are written with a context that
// is no longer cancelled, then Run returns.
func (a *Async) Run(ctx context.Context) error {
	defer a.once.Do(func() { close(a.done) })
	for {
		select {
		case <-ctx.Done():
			a.drain(context.WithoutCancel(ctx))
			return ctx.Err()
		case entry := <-a.inbox:
			a.write(ctx, entry)
		}
	}
}

// Done is closed once Run has flushed and returned.
func (a *Async) Done() <-chan struct{} {
	return a.done
}

func (a *Async) drain(ctx context.Context) {
	for {
		select {
		case entry := <-a.inbox:
			a.write(ctx, entry)
		default:
			return
		}
	}
}

func (a *Async) write(ctx context.Context, entry Entry) {
	a.metrics.SetQueued(len(a.inbox))
	if err := a.sink.Append(ctx, entry); err != nil {
		a.metrics.IncFailed(entry.Action)
		a.logger.WarnContext(ctx, "async audit write failed",
			"action", entry.Action,
			"serial", entry.Serial,
			"request_id", entry.RequestID,
			"error", err,
		)
	}
}
