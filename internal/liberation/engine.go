// Package liberation implements the SIM liberation state machine: for each
// identifier it reads the registry state, applies the environment's release
// rules, provisions AUC after a successful release and audits every step.
package liberation

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"simrelease/internal/auc"
	"simrelease/internal/audit"
	"simrelease/internal/iccid"
	libmetrics "simrelease/internal/liberation/metrics"
	"simrelease/internal/registry"
	dErrors "simrelease/pkg/domain-errors"
	pstrings "simrelease/pkg/platform/strings"
	"simrelease/pkg/requestcontext"
)

// Engine runs liberation requests. It is safe for concurrent use; each
// request owns its registry sessions.
type Engine struct {
	opener     registry.Opener
	normalizer *iccid.Normalizer
	auc        auc.Creator
	recorder   *audit.Recorder
	policy     registry.ReleasePolicy
	logger     *slog.Logger
	metrics    *libmetrics.Metrics
	tracer     trace.Tracer
}

type Option func(*Engine)

func WithMetrics(m *libmetrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

func New(
	opener registry.Opener,
	normalizer *iccid.Normalizer,
	creator auc.Creator,
	recorder *audit.Recorder,
	policy registry.ReleasePolicy,
	logger *slog.Logger,
	opts ...Option,
) *Engine {
	e := &Engine{
		opener:     opener,
		normalizer: normalizer,
		auc:        creator,
		recorder:   recorder,
		policy:     policy,
		logger:     logger,
		tracer:     otel.Tracer("simrelease/liberation"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Liberate processes every identifier of req in order and returns one outcome
// per raw input. Identifiers that normalize to the same serial are processed
// once and share the result. An error is returned only when the request fails
// as a whole, before any identifier is processed.
func (e *Engine) Liberate(ctx context.Context, req Request) ([]Outcome, error) {
	env := req.Environment
	if env != registry.EnvironmentProd && env != registry.EnvironmentUAT {
		return nil, dErrors.New(dErrors.CodeBadRequest, "invalid environment")
	}

	start := time.Now()
	defer func() { e.metrics.ObserveRequest(string(env), time.Since(start)) }()

	ctx = withRequestMetadata(ctx, req)
	ctx, span := e.tracer.Start(ctx, "liberation.liberate", trace.WithAttributes(
		attribute.String("environment", string(env)),
		attribute.Int("identifiers", len(req.Identifiers)),
		attribute.Bool("batch", req.Batch),
	))
	defer span.End()

	serials := make([]string, len(req.Identifiers))
	anyValid := false
	for i, raw := range req.Identifiers {
		serials[i] = e.normalizer.Normalize(raw)
		anyValid = anyValid || e.normalizer.IsValid(serials[i])
	}
	unique := pstrings.DedupeBy(serials, dedupeKey)

	var strat strategy
	if anyValid {
		s, err := e.open(ctx, env)
		if err != nil {
			e.metrics.IncrementWrapperFailure(string(env))
			span.RecordError(err)
			span.SetStatus(codes.Error, "open registry sessions")
			e.logger.ErrorContext(ctx, "liberation aborted", "environment", env, "error", err)
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "registry unavailable")
		}
		defer s.close(context.WithoutCancel(ctx))
		strat = s
	}

	results := make(map[string]Outcome, len(unique))
	for _, serial := range unique {
		results[dedupeKey(serial)] = e.processOne(ctx, strat, env, serial)
	}

	outcomes := make([]Outcome, len(req.Identifiers))
	for i, raw := range req.Identifiers {
		o := results[dedupeKey(serials[i])]
		o.Sim = raw
		outcomes[i] = o
	}

	summary := Summarize(outcomes)
	e.logger.InfoContext(ctx, "liberation completed",
		"environment", env,
		"request_id", requestcontext.RequestID(ctx),
		"identifiers", len(outcomes),
		"distinct", len(unique),
		"processed", summary.Processed,
		"anomalies", summary.Anomalies,
	)
	return outcomes, nil
}

// dedupeKey matches normalized serials regardless of suffix case, which is
// how IsValid compares them.
func dedupeKey(serial string) string {
	return strings.ToUpper(serial)
}

func withRequestMetadata(ctx context.Context, req Request) context.Context {
	if req.Actor != "" {
		ctx = requestcontext.WithActor(ctx, req.Actor, req.Role)
	}
	if req.ClientIP != "" {
		ctx = requestcontext.WithClientMetadata(ctx, req.ClientIP, requestcontext.ClientLabel(ctx))
	}
	return ctx
}

// open acquires the sessions env needs. UAT needs PROD and UAT together;
// they are opened concurrently and both released if either fails.
func (e *Engine) open(ctx context.Context, env registry.Environment) (strategy, error) {
	if env == registry.EnvironmentProd {
		sess, err := e.opener.Open(ctx, registry.EnvironmentProd)
		if err != nil {
			return nil, err
		}
		return &prodStrategy{releaser: e.releaser(env, sess)}, nil
	}

	var (
		g     errgroup.Group
		prod  registry.Session
		queue registry.QueueSession
	)
	g.Go(func() error {
		s, err := e.opener.Open(ctx, registry.EnvironmentProd)
		prod = s
		return err
	})
	g.Go(func() error {
		s, err := registry.OpenQueue(ctx, e.opener, registry.EnvironmentUAT)
		queue = s
		return err
	})
	if err := g.Wait(); err != nil {
		if prod != nil {
			_ = prod.Close(ctx)
		}
		if queue != nil {
			_ = queue.Close(ctx)
		}
		return nil, err
	}
	return &uatStrategy{releaser: e.releaser(env, queue), prod: prod, queue: queue}, nil
}

func (e *Engine) releaser(env registry.Environment, sess registry.Session) releaser {
	return releaser{env: env, sess: sess, policy: e.policy, auc: e.auc, logger: e.logger}
}

// processOne produces the outcome and the audit entry for one distinct serial.
func (e *Engine) processOne(ctx context.Context, strat strategy, env registry.Environment, serial string) Outcome {
	ctx, span := e.tracer.Start(ctx, "liberation.identifier", trace.WithAttributes(
		attribute.String("environment", string(env)),
		attribute.String("serial", serial),
	))
	defer span.End()

	if !e.normalizer.IsValid(serial) {
		st := failed(msgInvalid)
		e.record(ctx, env, serial, st)
		e.metrics.IncrementOutcome(string(env), string(st.status))
		return Outcome{Status: st.status, Message: st.message}
	}

	st := e.run(ctx, strat, env, serial)
	e.record(ctx, env, serial, st)
	e.metrics.IncrementOutcome(string(env), string(st.status))
	span.SetAttributes(attribute.String("outcome", string(st.status)))
	if st.status != StatusSuccess {
		span.SetStatus(codes.Error, st.message)
	}

	s := serial
	return Outcome{Serial: &s, Status: st.status, Message: st.message}
}

// run executes the strategy for serial. Errors and panics become an error
// outcome for this serial only, after rolling back uncommitted work.
func (e *Engine) run(ctx context.Context, strat strategy, env registry.Environment, serial string) (st step) {
	defer func() {
		if p := recover(); p != nil {
			e.metrics.IncrementRecovered(string(env))
			e.logger.ErrorContext(ctx, "panic while processing identifier",
				"environment", env,
				"serial", serial,
				"panic", p,
				"stack", string(debug.Stack()),
			)
			strat.rollback(ctx)
			st = failed(msgFailed(env, errors.New(msgInternalProcessing)))
		}
	}()

	res, err := strat.process(ctx, serial)
	if err != nil {
		strat.rollback(ctx)
		e.logger.ErrorContext(ctx, "identifier processing failed",
			"environment", env,
			"serial", serial,
			"error", err,
		)
		res.status = StatusError
		res.message = msgFailed(env, err)
	}
	return res
}

func (e *Engine) record(ctx context.Context, env registry.Environment, serial string, st step) {
	entry := audit.Outcome(string(env), st.status == StatusSuccess, string(st.status), serial, st.priorStatus, st.priorDealer, st.message)
	if res := e.recorder.Record(ctx, entry); !res.OK() {
		trace.SpanFromContext(ctx).AddEvent("audit write failed")
	}
}
