package liberation

import (
	"context"
	"fmt"

	"simrelease/internal/registry"
)

// uatStrategy applies the UAT rules. It holds a PROD session for the live
// subscriber guard and a UAT session with the creation and correction queues.
type uatStrategy struct {
	releaser
	prod  registry.Session
	queue registry.QueueSession
}

func (s *uatStrategy) process(ctx context.Context, serial string) (step, error) {
	live, err := s.prod.FindStorageMedium(ctx, serial)
	if err != nil {
		return step{}, fmt.Errorf("check PROD status: %w", err)
	}
	if live != nil && live.Status == registry.StatusActive {
		// UAT is not the source of truth once the subscriber is live.
		st := failed(msgAlreadyActive(registry.EnvironmentProd))
		code := registry.StatusActive.Code()
		st.priorStatus = &code
		return st, nil
	}

	m, err := s.sess.FindStorageMedium(ctx, serial)
	if err != nil {
		return step{}, fmt.Errorf("find storage medium: %w", err)
	}
	if m == nil {
		return s.create(ctx, serial)
	}

	st, err := s.decide(ctx, m)
	st.observe(m)
	return st, err
}

func (s *uatStrategy) decide(ctx context.Context, m *registry.StorageMedium) (step, error) {
	switch {
	case m.HeldBy(s.policy.ReservedDealerID):
		return s.alreadyFree(ctx, m)
	case m.Status == registry.StatusActive:
		return failed(msgAlreadyActive(registry.EnvironmentUAT)), nil
	case m.Releasable():
		return s.liberate(ctx, m)
	case m.Status == registry.StatusPending:
		return s.correct(ctx, m)
	default:
		return failed(msgUnknownUAT), nil
	}
}

// correct pushes a pending serial through the registry's correction
// procedure. The queue is not checked for an existing entry first.
func (s *uatStrategy) correct(ctx context.Context, m *registry.StorageMedium) (step, error) {
	if err := s.queue.EnqueueUpdate(ctx, m.Serial); err != nil {
		return step{}, fmt.Errorf("enqueue correction: %w", err)
	}
	if err := s.queue.RunUpdateProcedure(ctx); err != nil {
		return step{}, fmt.Errorf("run correction procedure: %w", err)
	}
	if err := s.queue.Commit(ctx); err != nil {
		return step{}, fmt.Errorf("commit correction: %w", err)
	}
	s.logger.InfoContext(ctx, "pending sim corrected", "environment", s.env, "serial", m.Serial)
	return s.provision(ctx, m.Serial, msgUpdatedAndAucUAT), nil
}

// create asks the registry to materialize an unknown serial and re-reads it
// once to see whether the procedure produced a record.
func (s *uatStrategy) create(ctx context.Context, serial string) (step, error) {
	if err := s.queue.EnqueueCreate(ctx, serial); err != nil {
		return step{}, fmt.Errorf("enqueue creation: %w", err)
	}
	if err := s.queue.RunCreateProcedure(ctx); err != nil {
		return step{}, fmt.Errorf("run creation procedure: %w", err)
	}
	if err := s.queue.Commit(ctx); err != nil {
		return step{}, fmt.Errorf("commit creation: %w", err)
	}

	created, err := s.queue.FindStorageMedium(ctx, serial)
	if err != nil {
		return step{}, fmt.Errorf("re-read created medium: %w", err)
	}
	if created == nil {
		return failed(msgNotFoundAfterMake), nil
	}
	s.logger.InfoContext(ctx, "sim created", "environment", s.env, "serial", serial, "status", created.Status.String())
	return s.provision(ctx, serial, msgCreatedAndAucUAT), nil
}

func (s *uatStrategy) rollback(ctx context.Context) {
	s.rollbackSession(ctx, s.queue)
	s.rollbackSession(ctx, s.prod)
}

func (s *uatStrategy) close(ctx context.Context) {
	s.closeSession(ctx, s.queue)
	s.closeSession(ctx, s.prod)
}
