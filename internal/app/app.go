// Package app assembles the liberation core from configuration: registry
// gateway, AUC delivery channel, audit sink and the engine on top of them.
// Both the HTTP server and simctl start from here.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/prometheus/client_golang/prometheus"

	"simrelease/internal/auc"
	"simrelease/internal/auc/delivery"
	aucmetrics "simrelease/internal/auc/metrics"
	"simrelease/internal/audit"
	auditkafka "simrelease/internal/audit/store/kafka"
	auditmemory "simrelease/internal/audit/store/memory"
	auditpostgres "simrelease/internal/audit/store/postgres"
	auditsqlite "simrelease/internal/audit/store/sqlite"
	"simrelease/internal/iccid"
	"simrelease/internal/liberation"
	libmetrics "simrelease/internal/liberation/metrics"
	"simrelease/internal/platform/config"
	"simrelease/internal/registry"
	"simrelease/internal/registry/store/memory"
	"simrelease/internal/registry/store/postgres"
	"simrelease/pkg/platform/circuit"
)

// Check probes one backing dependency.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// App is the assembled core. Close releases everything Build opened.
type App struct {
	Normalizer *iccid.Normalizer
	Registry   registry.Opener
	Auc        *auc.Service
	Recorder   *audit.Recorder
	Engine     *liberation.Engine
	Checks     []Check

	async   *audit.Async
	started bool
	closers []func(context.Context) error
	logger  *slog.Logger
}

// Build wires the core described by cfg. reg may be nil, in which case
// metrics are created but not registered.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger, reg prometheus.Registerer) (_ *App, err error) {
	a := &App{logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close(context.WithoutCancel(ctx))
		}
	}()

	a.Normalizer, err = iccid.New(cfg.SIM.Prefix, cfg.SIM.Suffix)
	if err != nil {
		return nil, fmt.Errorf("sim identifiers: %w", err)
	}
	policy := registry.ReleasePolicy{
		ReservedDealerID: cfg.Registry.Policy.ReservedDealerID,
		BusinessUnitID:   cfg.Registry.Policy.BusinessUnitID,
		RecordVersion:    cfg.Registry.Policy.RecordVersion,
	}

	if a.Registry, err = a.openRegistry(ctx, cfg.Registry, policy); err != nil {
		return nil, err
	}
	channel, err := openDelivery(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	auditMetrics := audit.NewMetrics(reg)
	sink, err := a.openAudit(ctx, cfg.Audit, auditMetrics)
	if err != nil {
		return nil, err
	}

	a.Recorder = audit.NewRecorder(sink, logger, audit.WithRecorderMetrics(auditMetrics))
	a.Auc = auc.NewService(a.Registry, a.Normalizer, auc.NewBuilder(cfg.AUC.DesignatedMediumClass), channel, logger,
		auc.WithMetrics(aucmetrics.New(reg)))
	a.Engine = liberation.New(a.Registry, a.Normalizer, a.Auc, a.Recorder, policy, logger,
		liberation.WithMetrics(libmetrics.New(reg)))
	return a, nil
}

func (a *App) openRegistry(ctx context.Context, cfg config.Registry, policy registry.ReleasePolicy) (registry.Opener, error) {
	switch cfg.Driver {
	case "memory":
		st := memory.New(policy)
		if cfg.FixturePath != "" {
			if err := st.LoadFixtures(cfg.FixturePath); err != nil {
				return nil, err
			}
		}
		a.logger.Warn("using in-memory registry", "fixture", cfg.FixturePath)
		return st, nil
	case "postgres":
		opts := []postgres.Option{postgres.WithQueues(postgres.Queues{
			CreateTable:     cfg.Queues.CreateTable,
			UpdateTable:     cfg.Queues.UpdateTable,
			CreateProcedure: cfg.Queues.CreateProcedure,
			UpdateProcedure: cfg.Queues.UpdateProcedure,
		})}
		for env, ep := range map[registry.Environment]config.Endpoint{
			registry.EnvironmentProd: cfg.Prod,
			registry.EnvironmentUAT:  cfg.UAT,
		} {
			if !ep.Configured() {
				continue
			}
			pool, err := postgres.NewPool(ctx, ep.DSN(), cfg.MaxConns)
			if err != nil {
				return nil, fmt.Errorf("registry %s: %w", env, err)
			}
			opts = append(opts, postgres.WithPool(env, pool))
		}
		gw, err := postgres.New(policy, a.logger, opts...)
		if err != nil {
			return nil, err
		}
		a.onClose(func(context.Context) error { gw.Close(); return nil })
		a.Checks = append(a.Checks, Check{Name: "registry", Ping: gw.Ping})
		return gw, nil
	default:
		return nil, fmt.Errorf("registry driver %q is not supported", cfg.Driver)
	}
}

func openDelivery(ctx context.Context, cfg config.Config, logger *slog.Logger) (delivery.Channel, error) {
	ch, err := openChannel(ctx, cfg, logger)
	if err != nil || cfg.Delivery.Driver == "memory" || cfg.Delivery.BreakerThreshold <= 0 {
		return ch, err
	}
	b := circuit.New(cfg.Delivery.Driver,
		circuit.WithFailureThreshold(cfg.Delivery.BreakerThreshold),
		circuit.WithCooldown(cfg.Delivery.BreakerCooldown),
	)
	return delivery.WithBreaker(ch, b, logger), nil
}

func openChannel(ctx context.Context, cfg config.Config, logger *slog.Logger) (delivery.Channel, error) {
	namer := delivery.Namer{Identity: cfg.Delivery.Identity(), Extension: cfg.AUC.Extension}
	switch cfg.Delivery.Driver {
	case "memory":
		logger.Warn("using in-memory AUC delivery")
		return delivery.NewMemory(namer), nil
	case "sftp":
		s := cfg.Delivery.SFTP
		return delivery.NewSFTP(delivery.SFTPConfig{
			Host:           s.Host,
			Port:           s.Port,
			User:           s.User,
			Password:       s.Password,
			InboxDir:       s.InboxDir,
			KnownHostsFile: s.KnownHostsFile,
			Timeout:        s.Timeout,
		}, namer, logger)
	case "s3":
		s := cfg.Delivery.S3
		return delivery.NewS3(ctx, delivery.S3Config{
			Bucket:       s.Bucket,
			Prefix:       s.Prefix,
			Region:       s.Region,
			Endpoint:     s.Endpoint,
			AccessKey:    s.AccessKey,
			SecretKey:    s.SecretKey,
			UsePathStyle: s.UsePathStyle,
		}, namer, logger)
	default:
		return nil, fmt.Errorf("delivery driver %q is not supported", cfg.Delivery.Driver)
	}
}

// openAudit returns the sink for cfg, behind the async publisher when a
// buffer is configured.
func (a *App) openAudit(ctx context.Context, cfg config.Audit, m *audit.Metrics) (audit.Sink, error) {
	var sink audit.Sink
	switch cfg.Driver {
	case "memory":
		sink = auditmemory.New()
	case "postgres":
		st, err := auditpostgres.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		a.onClose(func(context.Context) error { return st.Close() })
		if err := st.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		sink = st
	case "sqlite":
		st, err := auditsqlite.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		a.onClose(func(context.Context) error { return st.Close() })
		sink = st
	case "kafka":
		p, err := auditkafka.New(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return nil, err
		}
		a.onClose(p.Close)
		a.Checks = append(a.Checks, Check{Name: "audit", Ping: p.Ping})
		sink = p
	default:
		return nil, fmt.Errorf("audit driver %q is not supported", cfg.Driver)
	}

	if cfg.AsyncBuffer > 0 {
		a.async = audit.NewAsync(sink, cfg.AsyncBuffer, a.logger, m)
		return a.async, nil
	}
	return sink, nil
}

// Start launches background workers. They stop when ctx ends; Close waits
// for them to flush.
func (a *App) Start(ctx context.Context) {
	if a.async == nil || a.started {
		return
	}
	a.started = true
	go func() {
		_ = a.async.Run(ctx)
	}()
}

func (a *App) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Close waits for the audit worker, if started, then releases resources in
// reverse order of acquisition.
func (a *App) Close(ctx context.Context) error {
	if a.started {
		select {
		case <-a.async.Done():
		case <-ctx.Done():
			a.logger.Warn("audit queue not flushed before shutdown")
		}
	}
	var errs []error
	for _, fn := range slices.Backward(a.closers) {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
