//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"simrelease/internal/audit"
	"simrelease/pkg/testutil/containers"
)

type StoreSuite struct {
	suite.Suite
	ctx   context.Context
	store *Store
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupSuite() {
	s.ctx = context.Background()
	pg := containers.NewPostgresContainer(s.T())

	store, err := Open(s.ctx, pg.DSN)
	s.Require().NoError(err)
	s.Require().NoError(store.EnsureSchema(s.ctx))
	s.store = store
}

func (s *StoreSuite) TearDownSuite() {
	if s.store != nil {
		_ = s.store.Close()
	}
}

func (s *StoreSuite) TestAppendThenList() {
	serial := "8921303" + uuid.NewString()[:12] + "F"
	prior := "d"
	at := time.Now().UTC().Truncate(time.Microsecond)

	s.Require().NoError(s.store.Append(s.ctx, audit.Entry{
		ID: uuid.NewString(), Action: audit.ActionProd, Status: audit.StatusSuccess, Outcome: "success",
		Actor: "ops", Role: "support1515", Serial: serial, PriorStatus: &prior,
		Message: "SIM liberated & AUC created in PROD", ClientIP: "10.0.0.7", Timestamp: at,
	}))
	s.Require().NoError(s.store.Append(s.ctx, audit.Entry{
		ID: "not-a-uuid", Action: audit.ActionProd, Actor: "ops", Serial: serial,
		Message: "Already free in PROD", Timestamp: at.Add(time.Second),
	}))

	got, err := s.store.List(s.ctx, audit.Filter{Serial: serial})
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal("Already free in PROD", got[0].Message)
	s.Nil(got[0].PriorStatus)
	s.Require().NotNil(got[1].PriorStatus)
	s.Equal("d", *got[1].PriorStatus)
	s.True(at.Equal(got[1].Timestamp))
}

func (s *StoreSuite) TestEnsureSchemaIsRepeatable() {
	s.NoError(s.store.EnsureSchema(s.ctx))
}
