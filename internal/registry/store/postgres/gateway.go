// Package postgres implements the registry gateway on pgx connection pools,
// one pool per environment.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/jackc/pgx/v5/pgxpool"

	"simrelease/internal/registry"
)

// Queues names the creation and correction queue tables and their
// procedures. Names are interpolated into SQL, so they are validated.
type Queues struct {
	CreateTable     string
	UpdateTable     string
	CreateProcedure string
	UpdateProcedure string
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

func (q Queues) validate() error {
	for name, v := range map[string]string{
		"create table":     q.CreateTable,
		"update table":     q.UpdateTable,
		"create procedure": q.CreateProcedure,
		"update procedure": q.UpdateProcedure,
	} {
		if !identifier.MatchString(v) {
			return fmt.Errorf("invalid %s name %q", name, v)
		}
	}
	return nil
}

// Gateway implements registry.Opener.
type Gateway struct {
	pools  map[registry.Environment]*pgxpool.Pool
	policy registry.ReleasePolicy
	queues Queues
	logger *slog.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithPool registers the pool for env. Environments without a pool fail to
// open with registry.ErrConnection.
func WithPool(env registry.Environment, pool *pgxpool.Pool) Option {
	return func(g *Gateway) {
		if pool != nil {
			g.pools[env] = pool
		}
	}
}

// WithQueues sets the UAT queue names.
func WithQueues(q Queues) Option {
	return func(g *Gateway) { g.queues = q }
}

// New constructs a Gateway. Pools are owned by the caller.
func New(policy registry.ReleasePolicy, logger *slog.Logger, opts ...Option) (*Gateway, error) {
	g := &Gateway{
		pools:  make(map[registry.Environment]*pgxpool.Pool),
		policy: policy,
		logger: logger,
		queues: Queues{
			CreateTable:     "mediation.sim_to_create",
			UpdateTable:     "mediation.sim_to_update",
			CreateProcedure: "mediation.create_sim_test",
			UpdateProcedure: "mediation.update_sim_test",
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	if err := g.queues.validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// NewPool builds a lazily connecting pool for dsn. An empty dsn yields a nil
// pool so the environment reports ErrConnection on first use.
func NewPool(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, nil
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse registry dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create registry pool: %w", err)
	}
	return pool, nil
}

// Open acquires a connection for env. The transaction starts with the first
// statement.
func (g *Gateway) Open(ctx context.Context, env registry.Environment) (registry.Session, error) {
	pool, ok := g.pools[env]
	if !ok {
		return nil, registry.ConnectionError(env, errors.New("registry endpoint is not configured"))
	}
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, registry.ConnectionError(env, err)
	}
	return &session{env: env, conn: conn, gw: g}, nil
}

// Ping checks every configured environment.
func (g *Gateway) Ping(ctx context.Context) error {
	var errs []error
	for env, pool := range g.pools {
		if err := pool.Ping(ctx); err != nil {
			errs = append(errs, registry.ConnectionError(env, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every pool.
func (g *Gateway) Close() {
	for _, pool := range g.pools {
		pool.Close()
	}
}
