package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"simrelease/pkg/requestcontext"
)

// ErrWrite marks a failed audit write. It only ever reaches logs and tests.
var ErrWrite = errors.New("audit write failed")

// Sink persists entries. Implementations are append-only.
type Sink interface {
	Append(ctx context.Context, entry Entry) error
}

// WriteResult is the outcome of a best-effort write. Callers may inspect it
// but must not turn it into a failure of the audited operation.
type WriteResult struct {
	Err error
}

func (r WriteResult) OK() bool { return r.Err == nil }

// Recorder is the best-effort front of a Sink. It stamps identity, request
// metadata and time from the context before writing.
type Recorder struct {
	sink    Sink
	logger  *slog.Logger
	metrics *Metrics
}

type RecorderOption func(*Recorder)

func WithRecorderMetrics(m *Metrics) RecorderOption {
	return func(r *Recorder) { r.metrics = m }
}

func NewRecorder(sink Sink, logger *slog.Logger, opts ...RecorderOption) *Recorder {
	r := &Recorder{sink: sink, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record completes entry from ctx and appends it. Sink errors and panics are
// logged at WARN and returned inside the WriteResult.
func (r *Recorder) Record(ctx context.Context, entry Entry) (res WriteResult) {
	if r == nil || r.sink == nil {
		return WriteResult{}
	}
	entry = r.complete(ctx, entry)

	defer func() {
		if p := recover(); p != nil {
			res = r.failed(ctx, entry, fmt.Errorf("%w: panic: %v", ErrWrite, p))
		}
	}()
	if err := r.sink.Append(ctx, entry); err != nil {
		return r.failed(ctx, entry, fmt.Errorf("%w: %w", ErrWrite, err))
	}
	r.metrics.IncWritten(entry.Action)
	return WriteResult{}
}

func (r *Recorder) complete(ctx context.Context, e Entry) Entry {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = requestcontext.Now(ctx).UTC()
	}
	if e.Actor == "" {
		e.Actor = requestcontext.Actor(ctx)
	}
	e.Actor = strings.ToLower(e.Actor)
	if e.Role == "" {
		e.Role = requestcontext.Role(ctx)
	}
	if e.ClientIP == "" {
		e.ClientIP = requestcontext.ClientIP(ctx)
	}
	if e.ClientLabel == "" {
		e.ClientLabel = requestcontext.ClientLabel(ctx)
	}
	if e.RequestID == "" {
		e.RequestID = requestcontext.RequestID(ctx)
	}
	return e
}

func (r *Recorder) failed(ctx context.Context, e Entry, err error) WriteResult {
	r.metrics.IncFailed(e.Action)
	r.logger.WarnContext(ctx, "audit write failed",
		"action", e.Action,
		"serial", e.Serial,
		"request_id", e.RequestID,
		"error", err,
	)
	return WriteResult{Err: err}
}

// Outcome is a convenience for building entries from a terminal step.
func Outcome(action string, ok bool, outcome, serial string, priorStatus *string, priorDealer *int64, message string) Entry {
	status := StatusError
	if ok {
		status = StatusSuccess
	}
	return Entry{
		Action:        action,
		Status:        status,
		Outcome:       outcome,
		Serial:        serial,
		PriorStatus:   priorStatus,
		PriorDealerID: priorDealer,
		Message:       message,
	}
}
