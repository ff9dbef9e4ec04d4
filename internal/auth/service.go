// Package auth logs operators in against the directory, issues their access
// tokens and revokes them on logout. Every login attempt is audited.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"simrelease/internal/audit"
	"simrelease/internal/auth/token"
	"simrelease/internal/identity"
	dErrors "simrelease/pkg/domain-errors"
)

// TokenIssuer signs access tokens.
type TokenIssuer interface {
	Issue(username, role string) (token.Issued, error)
	TTL() time.Duration
}

// RevocationList records revoked token ids.
type RevocationList interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
}

const (
	msgMissingCredentials = "Username and password are required"
	msgBadCredentials     = "Incorrect username or password"
	msgAccessDenied       = "Access denied"
	msgDirectoryDown      = "Directory unavailable"
	msgLoggedIn           = "User logged in successfully"
	msgLoggedOut          = "User logged out"
)

// LoginResult is a successful login.
type LoginResult struct {
	Username string
	Role     string
	Token    token.Issued
}

type Service struct {
	directory   identity.Directory
	roles       identity.Roles
	tokens      TokenIssuer
	revocations RevocationList
	recorder    *audit.Recorder
	logger      *slog.Logger
}

func NewService(
	directory identity.Directory,
	roles identity.Roles,
	tokens TokenIssuer,
	revocations RevocationList,
	recorder *audit.Recorder,
	logger *slog.Logger,
) *Service {
	return &Service{
		directory:   directory,
		roles:       roles,
		tokens:      tokens,
		revocations: revocations,
		recorder:    recorder,
		logger:      logger,
	}
}

// Login authenticates username, resolves its role and issues a token. A
// valid directory account without a mapped role is refused.
func (s *Service) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	username = identity.NormalizeUsername(username)
	if username == "" || password == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, msgMissingCredentials)
	}

	acc, err := s.directory.Authenticate(ctx, username, password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			s.audit(ctx, audit.ActionLogin, false, username, "", msgBadCredentials)
			return nil, dErrors.New(dErrors.CodeUnauthorized, msgBadCredentials)
		}
		s.logger.ErrorContext(ctx, "directory lookup failed", "username", username, "error", err)
		s.audit(ctx, audit.ActionLogin, false, username, "", msgDirectoryDown)
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "directory unavailable")
	}

	role := s.roles.Resolve(acc.Groups)
	if role == "" {
		s.logger.WarnContext(ctx, "login refused: no mapped group", "username", username, "groups", acc.Groups)
		s.audit(ctx, audit.ActionLogin, false, username, "", msgAccessDenied)
		return nil, dErrors.New(dErrors.CodeForbidden, msgAccessDenied)
	}

	issued, err := s.tokens.Issue(username, role)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "issue token")
	}

	s.audit(ctx, audit.ActionLogin, true, username, role, msgLoggedIn)
	s.logger.InfoContext(ctx, "user logged in", "username", username, "role", role)
	return &LoginResult{Username: username, Role: role, Token: issued}, nil
}

// Logout revokes the token jti for at most the token lifetime.
func (s *Service) Logout(ctx context.Context, username, role, jti string) error {
	if jti == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "token has no id")
	}
	if err := s.revocations.Revoke(ctx, jti, s.tokens.TTL()); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "revoke token")
	}
	s.audit(ctx, audit.ActionLogout, true, username, role, msgLoggedOut)
	return nil
}

func (s *Service) audit(ctx context.Context, action string, ok bool, username, role, message string) {
	status, outcome := audit.StatusError, "error"
	if ok {
		status, outcome = audit.StatusSuccess, "success"
	}
	s.recorder.Record(ctx, audit.Entry{
		Action:  action,
		Status:  status,
		Outcome: outcome,
		Actor:   username,
		Role:    role,
		Message: message,
	})
}
