package liberation

import (
	"context"
	"fmt"
	"log/slog"

	"simrelease/internal/auc"
	"simrelease/internal/registry"
)

// step is the terminal result of one identifier's branch, plus the registry
// state observed before any mutation (recorded on the audit entry).
type step struct {
	status      OutcomeStatus
	message     string
	priorStatus *string
	priorDealer *int64
}

func succeeded(message string) step { return step{status: StatusSuccess, message: message} }
func failed(message string) step    { return step{status: StatusError, message: message} }

// observe records m as the pre-mutation state. The legacy status code is kept
// as stored so audit rows stay comparable with older ones.
func (s *step) observe(m *registry.StorageMedium) {
	if m == nil {
		return
	}
	code := m.StatusCode
	if code == "" {
		code = m.Status.Code()
	}
	s.priorStatus = &code
	if m.DealerID != nil {
		d := *m.DealerID
		s.priorDealer = &d
	}
}

// strategy is one environment's transition rules over sessions it owns for
// the whole request.
type strategy interface {
	process(ctx context.Context, serial string) (step, error)
	rollback(ctx context.Context)
	close(ctx context.Context)
}

// releaser holds the branches PROD and UAT share: the already-free repair,
// the release mutation and AUC provisioning.
type releaser struct {
	env    registry.Environment
	sess   registry.Session
	policy registry.ReleasePolicy
	auc    auc.Creator
	logger *slog.Logger
}

// alreadyFree brings the port in line with a released medium and re-issues
// AUC. The AUC result never changes the outcome.
func (r *releaser) alreadyFree(ctx context.Context, m *registry.StorageMedium) (step, error) {
	p, err := r.sess.FindPort(ctx, m.ID)
	if err != nil {
		return step{}, fmt.Errorf("find port: %w", err)
	}
	if p != nil && !p.HeldBy(r.policy.ReservedDealerID) {
		if err := r.sess.ReleasePort(ctx, m.ID); err != nil {
			return step{}, fmt.Errorf("release port: %w", err)
		}
		if err := r.sess.Commit(ctx); err != nil {
			return step{}, fmt.Errorf("commit port release: %w", err)
		}
		r.logger.InfoContext(ctx, "port realigned with released medium",
			"environment", r.env,
			"serial", m.Serial,
			"port_status", p.Status.String(),
		)
	}

	if res := r.auc.CreateIn(ctx, r.sess, []string{m.Serial}); !res.Success {
		r.logger.InfoContext(ctx, "auc refresh for free sim not delivered",
			"environment", r.env,
			"serial", m.Serial,
			"message", res.Message,
		)
	}
	return succeeded(msgAlreadyFree(r.env)), nil
}

// liberate releases the medium and its port in one transaction, then
// provisions AUC. A failed AUC step does not undo the committed release.
func (r *releaser) liberate(ctx context.Context, m *registry.StorageMedium) (step, error) {
	if err := r.sess.ReleaseStorageMedium(ctx, m.Serial); err != nil {
		return step{}, fmt.Errorf("release storage medium: %w", err)
	}
	if err := r.sess.ReleasePort(ctx, m.ID); err != nil {
		return step{}, fmt.Errorf("release port: %w", err)
	}
	if err := r.sess.Commit(ctx); err != nil {
		return step{}, fmt.Errorf("commit release: %w", err)
	}
	r.logger.InfoContext(ctx, "sim released", "environment", r.env, "serial", m.Serial)
	return r.provision(ctx, m.Serial, msgLiberated(r.env)), nil
}

// provision runs AUC creation for serial. On success the outcome carries
// okMessage, otherwise the creation message.
func (r *releaser) provision(ctx context.Context, serial, okMessage string) step {
	res := r.auc.CreateIn(ctx, r.sess, []string{serial})
	if res.Success {
		return succeeded(okMessage)
	}
	return failed(res.Message)
}

func (r *releaser) closeSession(ctx context.Context, sess registry.Session) {
	if sess == nil {
		return
	}
	if err := sess.Close(ctx); err != nil {
		r.logger.WarnContext(ctx, "close registry session", "environment", sess.Environment(), "error", err)
	}
}

func (r *releaser) rollbackSession(ctx context.Context, sess registry.Session) {
	if sess == nil {
		return
	}
	if err := sess.Rollback(ctx); err != nil {
		r.logger.WarnContext(ctx, "rollback registry session", "environment", sess.Environment(), "error", err)
	}
}
