package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"simrelease/internal/audit"
	auditmem "simrelease/internal/audit/store/memory"
	"simrelease/internal/auth/revocation"
	"simrelease/internal/auth/token"
	"simrelease/internal/identity"
	"simrelease/internal/identity/mocks"
	dErrors "simrelease/pkg/domain-errors"
	"simrelease/pkg/requestcontext"
)

var roles = identity.Roles{
	{Group: "ADM Support 1515 Group", Role: "support1515"},
	{Group: "CRM IT Team", Role: "crm_it_team"},
}

type ServiceSuite struct {
	suite.Suite
	ctx       context.Context
	directory *mocks.MockDirectory
	tokens    *token.Service
	trl       *revocation.Memory
	audits    *auditmem.Store
	service   *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = requestcontext.WithClientMetadata(context.Background(), "10.9.8.7", "Chrome/Windows")
	s.directory = mocks.NewMockDirectory(gomock.NewController(s.T()))
	s.tokens = token.NewService("test-key", "simrelease", 24*time.Hour)
	s.trl = revocation.NewMemory()
	s.audits = auditmem.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.service = NewService(s.directory, roles, s.tokens, s.trl, audit.NewRecorder(s.audits, logger), logger)
}

func (s *ServiceSuite) onlyAudit() audit.Entry {
	entries := s.audits.All()
	s.Require().Len(entries, 1)
	return entries[0]
}

func (s *ServiceSuite) TestLogin_Success() {
	s.directory.EXPECT().Authenticate(gomock.Any(), "jdoe", "s3cret").
		Return(&identity.Account{Username: "jdoe", Groups: []string{"Everyone", "CRM IT Team"}}, nil)

	res, err := s.service.Login(s.ctx, "  JDoe ", "s3cret")

	s.Require().NoError(err)
	s.Equal("jdoe", res.Username)
	s.Equal("crm_it_team", res.Role)

	claims, err := s.tokens.Validate(res.Token.Value)
	s.Require().NoError(err)
	s.Equal("jdoe", claims.Username())
	s.Equal("crm_it_team", claims.UserType)

	e := s.onlyAudit()
	s.Equal(audit.ActionLogin, e.Action)
	s.Equal(audit.StatusSuccess, e.Status)
	s.Equal("jdoe", e.Actor)
	s.Equal("crm_it_team", e.Role)
	s.Equal("User logged in successfully", e.Message)
	s.Equal("10.9.8.7", e.ClientIP)
}

func (s *ServiceSuite) TestLogin_MissingFields() {
	for _, tc := range []struct{ user, pass string }{{"", "pw"}, {"   ", "pw"}, {"jdoe", ""}} {
		_, err := s.service.Login(s.ctx, tc.user, tc.pass)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
		s.Contains(err.Error(), "Username and password are required")
	}
	s.Empty(s.audits.All())
}

func (s *ServiceSuite) TestLogin_BadCredentials() {
	s.directory.EXPECT().Authenticate(gomock.Any(), "jdoe", "wrong").Return(nil, identity.ErrInvalidCredentials)

	_, err := s.service.Login(s.ctx, "jdoe", "wrong")

	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	s.Contains(err.Error(), "Incorrect username or password")
	e := s.onlyAudit()
	s.Equal(audit.StatusError, e.Status)
	s.Equal("jdoe", e.Actor)
	s.Empty(e.Role)
}

func (s *ServiceSuite) TestLogin_NoMappedRole() {
	s.directory.EXPECT().Authenticate(gomock.Any(), "guest", "pw").
		Return(&identity.Account{Username: "guest", Groups: []string{"Everyone"}}, nil)

	_, err := s.service.Login(s.ctx, "guest", "pw")

	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	s.Equal("Access denied", s.onlyAudit().Message)
}

func (s *ServiceSuite) TestLogin_DirectoryDown() {
	s.directory.EXPECT().Authenticate(gomock.Any(), "jdoe", "pw").
		Return(nil, errors.Join(identity.ErrUnavailable, errors.New("dial tcp: i/o timeout")))

	_, err := s.service.Login(s.ctx, "jdoe", "pw")

	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	s.Equal(audit.StatusError, s.onlyAudit().Status)
}

func (s *ServiceSuite) TestLogin_AuditFailureDoesNotBlockLogin() {
	s.audits.FailWith(errors.New("audit db down"))
	s.directory.EXPECT().Authenticate(gomock.Any(), "ops", "pw").
		Return(&identity.Account{Username: "ops", Groups: []string{"ADM Support 1515 Group"}}, nil)

	res, err := s.service.Login(s.ctx, "ops", "pw")

	s.Require().NoError(err)
	s.Equal("support1515", res.Role)
}

func (s *ServiceSuite) TestLogout() {
	s.Require().NoError(s.service.Logout(s.ctx, "jdoe", "crm_it_team", "jti-1"))

	revoked, err := s.trl.IsRevoked(s.ctx, "jti-1")
	s.Require().NoError(err)
	s.True(revoked)
	s.Equal(audit.ActionLogout, s.onlyAudit().Action)

	err = s.service.Logout(s.ctx, "jdoe", "crm_it_team", "")
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}
