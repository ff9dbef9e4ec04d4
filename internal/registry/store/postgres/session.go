package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"simrelease/internal/registry"
)

type session struct {
	env  registry.Environment
	conn *pgxpool.Conn
	tx   pgx.Tx
	gw   *Gateway
}

var _ registry.QueueSession = (*session)(nil)

var errClosed = errors.New("registry session closed")

func (s *session) Environment() registry.Environment { return s.env }

func (s *session) begin(ctx context.Context) (pgx.Tx, error) {
	if s.conn == nil {
		return nil, errClosed
	}
	if s.tx != nil {
		return s.tx, nil
	}
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin %s transaction: %w", s.env, err)
	}
	s.tx = tx
	return tx, nil
}

// querier is the read surface shared by a pooled connection and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// reader runs lookups inside the open write transaction so they see its
// changes. Otherwise they autocommit on the connection and leave no
// transaction idle between identifiers.
func (s *session) reader() (querier, error) {
	if s.conn == nil {
		return nil, errClosed
	}
	if s.tx != nil {
		return s.tx, nil
	}
	return s.conn, nil
}

func (s *session) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	return tx.Exec(ctx, sql, args...)
}

const selectStorageMedium = `
	SELECT sm_id, sm_serialnum, COALESCE(sm_status, ''), dealer_id, sm_delivery_id,
	       rec_version, prepaid_profile_id, business_unit_id, smc_id
	FROM storage_medium
	WHERE sm_serialnum = $1`

func (s *session) FindStorageMedium(ctx context.Context, serial string) (*registry.StorageMedium, error) {
	q, err := s.reader()
	if err != nil {
		return nil, err
	}
	var (
		m           registry.StorageMedium
		version     *int32
		mediumClass *int32
	)
	err = q.QueryRow(ctx, selectStorageMedium, serial).Scan(
		&m.ID, &m.Serial, &m.StatusCode, &m.DealerID, &m.DeliveryID,
		&version, &m.PrepaidProfileID, &m.BusinessUnitID, &mediumClass,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find storage medium in %s: %w", s.env, err)
	}
	m.Status = registry.DecodeStatus(m.StatusCode)
	if version != nil {
		m.RecordVersion = int(*version)
	}
	if mediumClass != nil {
		m.MediumClass = int(*mediumClass)
	}
	return &m, nil
}

const selectPort = `
	SELECT port_id, sm_id, COALESCE(port_num, ''), COALESCE(port_status, ''), dealer_id, dn_id, business_unit_id
	FROM port
	WHERE sm_id = $1
	ORDER BY port_id
	LIMIT 1`

func (s *session) FindPort(ctx context.Context, mediumID int64) (*registry.Port, error) {
	q, err := s.reader()
	if err != nil {
		return nil, err
	}
	var p registry.Port
	err = q.QueryRow(ctx, selectPort, mediumID).Scan(
		&p.ID, &p.MediumID, &p.Number, &p.StatusCode, &p.DealerID, &p.DirectoryNumberID, &p.BusinessUnitID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find port in %s: %w", s.env, err)
	}
	p.Status = registry.DecodeStatus(p.StatusCode)
	return &p, nil
}

const releaseStorageMedium = `
	UPDATE storage_medium
	SET sm_status = 'r',
	    dealer_id = $2,
	    sm_status_mod_date = now(),
	    sm_delivery_id = $2,
	    rec_version = $3,
	    prepaid_profile_id = NULL,
	    business_unit_id = $4
	WHERE sm_serialnum = $1`

func (s *session) ReleaseStorageMedium(ctx context.Context, serial string) error {
	pol := s.gw.policy
	if _, err := s.exec(ctx, releaseStorageMedium, serial, pol.ReservedDealerID, pol.RecordVersion, pol.BusinessUnitID); err != nil {
		return fmt.Errorf("release storage medium in %s: %w", s.env, err)
	}
	return nil
}

const releasePort = `
	UPDATE port
	SET port_status = 'r',
	    dealer_id = $2,
	    port_statusmoddat = now(),
	    port_moddate = now(),
	    dn_id = NULL,
	    business_unit_id = $3
	WHERE sm_id = $1`

func (s *session) ReleasePort(ctx context.Context, mediumID int64) error {
	pol := s.gw.policy
	if _, err := s.exec(ctx, releasePort, mediumID, pol.ReservedDealerID, pol.BusinessUnitID); err != nil {
		return fmt.Errorf("release port in %s: %w", s.env, err)
	}
	return nil
}

const selectProvisioning = `
	SELECT COALESCE(p.port_num, ''), COALESCE(p.port_ki, ''), COALESCE(p.port_tkey, ''), COALESCE(sm.smc_id, 0)
	FROM port p
	JOIN storage_medium sm ON p.sm_id = sm.sm_id
	WHERE sm.sm_serialnum = $1
	ORDER BY p.port_id`

func (s *session) FindProvisioning(ctx context.Context, serial string) ([]registry.AucProvisioning, error) {
	q, err := s.reader()
	if err != nil {
		return nil, err
	}
	rows, err := q.Query(ctx, selectProvisioning, serial)
	if err != nil {
		return nil, fmt.Errorf("find provisioning in %s: %w", s.env, err)
	}
	defer rows.Close()

	var out []registry.AucProvisioning
	for rows.Next() {
		var (
			rec         registry.AucProvisioning
			mediumClass int32
		)
		if err := rows.Scan(&rec.PortNumber, &rec.Key, &rec.KeyTableID, &mediumClass); err != nil {
			return nil, fmt.Errorf("scan provisioning: %w", err)
		}
		rec.MediumClass = int(mediumClass)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *session) EnqueueCreate(ctx context.Context, serial string) error {
	if _, err := s.exec(ctx, "INSERT INTO "+s.gw.queues.CreateTable+" VALUES ($1, NULL, NULL)", serial); err != nil {
		return fmt.Errorf("enqueue creation in %s: %w", s.env, err)
	}
	return nil
}

func (s *session) EnqueueUpdate(ctx context.Context, serial string) error {
	if _, err := s.exec(ctx, "INSERT INTO "+s.gw.queues.UpdateTable+" VALUES ($1, NULL, NULL)", serial); err != nil {
		return fmt.Errorf("enqueue correction in %s: %w", s.env, err)
	}
	return nil
}

func (s *session) RunCreateProcedure(ctx context.Context) error {
	if _, err := s.exec(ctx, "CALL "+s.gw.queues.CreateProcedure+"()"); err != nil {
		return fmt.Errorf("run creation procedure in %s: %w", s.env, err)
	}
	return nil
}

func (s *session) RunUpdateProcedure(ctx context.Context) error {
	if _, err := s.exec(ctx, "CALL "+s.gw.queues.UpdateProcedure+"()"); err != nil {
		return fmt.Errorf("run correction procedure in %s: %w", s.env, err)
	}
	return nil
}

func (s *session) Commit(ctx context.Context) error {
	if s.conn == nil {
		return errClosed
	}
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit %s: %w", s.env, err)
	}
	return nil
}

func (s *session) Rollback(ctx context.Context) error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("rollback %s: %w", s.env, err)
	}
	return nil
}

// Close rolls back anything uncommitted and returns the connection to the
// pool. It uses a detached context so a cancelled request still releases.
func (s *session) Close(ctx context.Context) error {
	if s.conn == nil {
		return nil
	}
	err := s.Rollback(context.WithoutCancel(ctx))
	if err != nil && s.gw.logger != nil {
		s.gw.logger.WarnContext(ctx, "registry rollback on close failed",
			"environment", string(s.env),
			"error", err,
		)
	}
	s.conn.Release()
	s.conn = nil
	return err
}
