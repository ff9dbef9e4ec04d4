package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"simrelease/internal/app"
	"simrelease/internal/auth"
	authhandler "simrelease/internal/auth/handler"
	"simrelease/internal/auth/revocation"
	"simrelease/internal/auth/token"
	"simrelease/internal/identity"
	libhandler "simrelease/internal/liberation/handler"
	"simrelease/internal/platform/config"
	"simrelease/internal/platform/httpserver"
	"simrelease/internal/platform/logger"
	"simrelease/internal/platform/metrics"
	platformredis "simrelease/internal/platform/redis"
	"simrelease/internal/platform/tracing"
	httptransport "simrelease/internal/transport/http"
)

// main loads configuration, wires the services and serves HTTP until
// SIGINT or SIGTERM.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	shutdownTracing := tracing.Setup(cfg.Tracing, log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	core, err := app.Build(ctx, cfg, log, reg)
	if err != nil {
		return fmt.Errorf("build core: %w", err)
	}
	workerCtx, stopWorkers := context.WithCancel(context.WithoutCancel(ctx))
	core.Start(workerCtx)

	directory, err := newDirectory(cfg.Identity, log)
	if err != nil {
		stopWorkers()
		_ = core.Close(context.Background())
		return err
	}

	var health []httptransport.HealthCheck
	for _, c := range core.Checks {
		health = append(health, httptransport.HealthCheck{Name: c.Name, Check: c.Ping})
	}

	var revocations revocation.List
	rdb, err := platformredis.Connect(ctx, cfg.Redis)
	if err != nil {
		stopWorkers()
		_ = core.Close(context.Background())
		return err
	}
	if rdb != nil {
		revocations = revocation.NewRedis(rdb.Client, revocation.WithMetrics(revocation.NewMetrics(reg)))
		health = append(health, httptransport.HealthCheck{Name: "redis", Check: rdb.Health})
	} else {
		log.Warn("REDIS_URL not set, token revocations are kept in memory")
		revocations = revocation.NewMemory()
	}

	tokens := token.NewService(cfg.Auth.SigningKey, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	roles := make(identity.Roles, len(cfg.Identity.Roles))
	for i, r := range cfg.Identity.Roles {
		roles[i] = identity.RoleMapping{Group: r.Group, Role: r.Role}
	}
	authService := auth.NewService(directory, roles, tokens, revocations, core.Recorder, log)

	deps := httptransport.Deps{
		Logger:      log,
		Metrics:     metrics.New(reg),
		MetricsAuth: cfg.Metrics.Token,
		Tokens:      token.NewMiddlewareAdapter(tokens),
		Revocations: revocations,
		Health:      health,
		Auth:        authhandler.New(authService, log),
		Protected:   []httptransport.Routes{libhandler.New(core.Engine, core.Auc, log)},
	}
	if cfg.Metrics.Enabled {
		deps.Gatherer = reg
	}
	srv := httpserver.New(cfg.Server, httptransport.NewRouter(deps))

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting simrelease", "addr", cfg.Server.Addr,
			"registry", cfg.Registry.Driver,
			"delivery", cfg.Delivery.Driver,
			"audit", cfg.Audit.Driver,
			"identity", cfg.Identity.Driver,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	stopWorkers()
	if err := core.Close(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("close core: %w", err))
	}
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("tracing shutdown: %w", err))
	}
	return errors.Join(append([]error{serveErr}, errs...)...)
}

func newDirectory(cfg config.Identity, log *slog.Logger) (identity.Directory, error) {
	switch cfg.Driver {
	case "ldap":
		return identity.NewLDAP(identity.LDAPConfig{
			URL:        cfg.LDAP.Server,
			BaseDN:     cfg.LDAP.BaseDN,
			SearchBase: cfg.LDAP.SearchBase,
			Timeout:    cfg.LDAP.Timeout,
		}, log)
	case "static":
		log.Warn("using static user directory", "file", cfg.StaticFile)
		return identity.LoadStatic(cfg.StaticFile)
	default:
		return nil, fmt.Errorf("identity driver %q is not supported", cfg.Driver)
	}
}
