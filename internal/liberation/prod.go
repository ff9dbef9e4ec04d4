package liberation

import (
	"context"
	"fmt"

	"simrelease/internal/registry"
)

// prodStrategy applies the PROD rules on a single PROD session.
type prodStrategy struct {
	releaser
}

func (s *prodStrategy) process(ctx context.Context, serial string) (step, error) {
	m, err := s.sess.FindStorageMedium(ctx, serial)
	if err != nil {
		return step{}, fmt.Errorf("find storage medium: %w", err)
	}
	if m == nil {
		return step{status: StatusNotFound, message: msgNotFound(registry.EnvironmentProd)}, nil
	}

	st, err := s.decide(ctx, m)
	st.observe(m)
	return st, err
}

func (s *prodStrategy) decide(ctx context.Context, m *registry.StorageMedium) (step, error) {
	switch {
	case m.HeldBy(s.policy.ReservedDealerID):
		return s.alreadyFree(ctx, m)
	case m.Releasable():
		return s.liberate(ctx, m)
	case m.Status == registry.StatusActive:
		return failed(msgAlreadyActive(registry.EnvironmentProd)), nil
	case m.Status == registry.StatusBlocked:
		return failed(msgBlockedProd), nil
	default:
		return failed(msgUnknownProd), nil
	}
}

func (s *prodStrategy) rollback(ctx context.Context) {
	s.rollbackSession(ctx, s.sess)
}

func (s *prodStrategy) close(ctx context.Context) {
	s.closeSession(ctx, s.sess)
}
