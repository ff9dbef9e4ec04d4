package auc

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"simrelease/internal/auc/delivery"
	aucmetrics "simrelease/internal/auc/metrics"
	"simrelease/internal/iccid"
	"simrelease/internal/registry"
)

// Result reports one AUC creation call. Skipped holds raw inputs rejected by
// validation; Processed holds the normalized serials sent downstream.
type Result struct {
	Success   bool     `json:"success"`
	Processed []string `json:"processed"`
	Skipped   []string `json:"skipped"`
	Filename  string   `json:"filename,omitempty"`
	Message   string   `json:"message"`
}

// Creator is what the liberation engine needs from this package. It builds
// on the session the engine already holds.
type Creator interface {
	CreateIn(ctx context.Context, sess registry.Session, identifiers []string) Result
}

// Service builds and delivers AUC batches, either on a session of its own or
// on one the caller lends it.
type Service struct {
	opener     registry.Opener
	normalizer *iccid.Normalizer
	builder    *Builder
	channel    delivery.Channel
	logger     *slog.Logger
	metrics    *aucmetrics.Metrics
	tracer     trace.Tracer
}

// Option configures a Service.
type Option func(*Service)

func WithMetrics(m *aucmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

func NewService(opener registry.Opener, normalizer *iccid.Normalizer, builder *Builder, channel delivery.Channel, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		opener:     opener,
		normalizer: normalizer,
		builder:    builder,
		channel:    channel,
		logger:     logger,
		tracer:     otel.Tracer("simrelease/auc"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create normalizes identifiers, builds a batch for the valid ones in env and
// delivers it. It never returns an error: every failure is reported through
// Result.Success and Result.Message.
func (s *Service) Create(ctx context.Context, identifiers []string, env registry.Environment) Result {
	return s.create(ctx, identifiers, env, func(ctx context.Context, serials []string) (*Batch, error) {
		return s.build(ctx, env, serials)
	})
}

// CreateIn is Create over a session the caller holds. The caller commits
// before calling, and the session stays open afterwards.
func (s *Service) CreateIn(ctx context.Context, sess registry.Session, identifiers []string) Result {
	return s.create(ctx, identifiers, sess.Environment(), func(ctx context.Context, serials []string) (*Batch, error) {
		return s.builder.Build(ctx, sess, serials)
	})
}

type buildFunc func(ctx context.Context, serials []string) (*Batch, error)

func (s *Service) create(ctx context.Context, identifiers []string, env registry.Environment, build buildFunc) Result {
	start := time.Now()
	defer func() { s.metrics.ObserveCreateLatency(time.Since(start)) }()

	ctx, span := s.tracer.Start(ctx, "auc.create", trace.WithAttributes(
		attribute.String("environment", string(env)),
		attribute.Int("identifiers", len(identifiers)),
	))
	defer span.End()

	out := Result{Processed: []string{}, Skipped: []string{}}
	var valid []string
	for _, raw := range identifiers {
		serial := s.normalizer.Normalize(raw)
		if !s.normalizer.IsValid(serial) {
			out.Skipped = append(out.Skipped, raw)
			continue
		}
		valid = append(valid, serial)
	}

	if len(valid) == 0 {
		out.Message = "No valid ICCID."
		s.metrics.IncrementBuild(string(env), "no_valid")
		return out
	}

	batch, err := build(ctx, valid)
	if err != nil {
		return s.fail(ctx, span, out, env, err)
	}
	if batch.Empty() {
		out.Message = fmt.Sprintf("No AUC data found in %s.", env)
		s.metrics.IncrementBuild(string(env), "no_data")
		s.logger.InfoContext(ctx, "no auc data", "environment", env, "serials", len(valid))
		return out
	}

	payload, err := batch.Encode()
	if err != nil {
		return s.fail(ctx, span, out, env, err)
	}
	filename, err := s.channel.Deliver(ctx, payload)
	s.metrics.IncrementDelivery(err == nil)
	if err != nil {
		return s.fail(ctx, span, out, env, err)
	}

	s.metrics.IncrementBuild(string(env), "delivered")
	s.metrics.ObserveBatch(len(batch.Entries))
	span.SetAttributes(attribute.String("filename", filename))
	s.logger.InfoContext(ctx, "auc batch created",
		"environment", env,
		"filename", filename,
		"entries", len(batch.Entries),
	)

	out.Success = true
	out.Processed = valid
	out.Filename = filename
	out.Message = fmt.Sprintf("AUC created successfully in %s (%s)", env, filename)
	return out
}

func (s *Service) build(ctx context.Context, env registry.Environment, serials []string) (*Batch, error) {
	sess, err := s.opener.Open(ctx, env)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := sess.Close(ctx); cerr != nil {
			s.logger.WarnContext(ctx, "close registry session", "environment", env, "error", cerr)
		}
	}()
	return s.builder.Build(ctx, sess, serials)
}

func (s *Service) fail(ctx context.Context, span trace.Span, out Result, env registry.Environment, err error) Result {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	s.metrics.IncrementBuild(string(env), "failed")
	s.logger.ErrorContext(ctx, "auc creation failed", "environment", env, "error", err)
	out.Message = fmt.Sprintf("AUC creation failed (%s): %v", env, err)
	return out
}
