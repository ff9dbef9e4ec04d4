package liberation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"simrelease/internal/auc"
	"simrelease/internal/auc/delivery"
	"simrelease/internal/audit"
	auditmem "simrelease/internal/audit/store/memory"
	"simrelease/internal/iccid"
	libmetrics "simrelease/internal/liberation/metrics"
	"simrelease/internal/registry"
	"simrelease/internal/registry/store/memory"
	dErrors "simrelease/pkg/domain-errors"
)

const reserved = int64(31970747)

var testPolicy = registry.ReleasePolicy{ReservedDealerID: reserved, BusinessUnitID: 2, RecordVersion: 2}

// serial completes a 12-digit body the way operators paste it.
func serial(body string) string { return "8921303" + body + "F" }

// sim builds a fixture with a port carrying AUC key material.
func sim(body, status string, dealer *int64, portStatus string, portDealer *int64) memory.Fixture {
	return memory.Fixture{
		Serial:      serial(body),
		Status:      status,
		DealerID:    dealer,
		MediumClass: 3,
		Port: &memory.PortFixture{
			Number:     "2280100" + body[4:],
			Status:     portStatus,
			DealerID:   portDealer,
			Key:        "00112233445566778899AABBCCDDEEFF",
			KeyTableID: "TK" + body[10:],
		},
	}
}

type EngineSuite struct {
	suite.Suite
	ctx      context.Context
	registry *memory.Store
	channel  *delivery.Memory
	audits   *auditmem.Store
	engine   *Engine
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.ctx = context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	normalizer := iccid.MustNew("8921303", "F")

	s.registry = memory.New(testPolicy)
	s.channel = delivery.NewMemory(delivery.Namer{
		Identity:  "sftp_aucfile",
		Extension: "SPML",
		Now:       func() time.Time { return time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC) },
	})
	s.audits = auditmem.New()

	creator := auc.NewService(s.registry, normalizer, auc.NewBuilder(3), s.channel, logger)
	s.engine = New(s.registry, normalizer, creator, audit.NewRecorder(s.audits, logger), testPolicy, logger,
		WithMetrics(libmetrics.New(nil)),
	)
}

func (s *EngineSuite) TearDownTest() {
	s.Zero(s.registry.OpenSessions(), "every registry session is released")
}

func (s *EngineSuite) liberate(env registry.Environment, ids ...string) []Outcome {
	out, err := s.engine.Liberate(s.ctx, Request{
		Identifiers: ids,
		Environment: env,
		Actor:       "ops.user",
		Role:        "support1515",
		ClientIP:    "10.20.30.40",
	})
	s.Require().NoError(err)
	s.Require().Len(out, len(ids))
	return out
}

func (s *EngineSuite) lastAudit() audit.Entry {
	all := s.audits.All()
	s.Require().NotEmpty(all)
	return all[len(all)-1]
}

// boundedOpener admits at most limit open sessions per environment, the way
// a fixed-size connection pool does. Open waits for a free slot until ctx ends.
type boundedOpener struct {
	store *memory.Store
	limit int

	mu    sync.Mutex
	slots map[registry.Environment]chan struct{}
}

func newBoundedOpener(store *memory.Store, limit int) *boundedOpener {
	return &boundedOpener{store: store, limit: limit, slots: map[registry.Environment]chan struct{}{}}
}

func (b *boundedOpener) slot(env registry.Environment) chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.slots[env]
	if !ok {
		ch = make(chan struct{}, b.limit)
		b.slots[env] = ch
	}
	return ch
}

func (b *boundedOpener) Open(ctx context.Context, env registry.Environment) (registry.Session, error) {
	slot := b.slot(env)
	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return nil, registry.ConnectionError(env, ctx.Err())
	}
	sess, err := b.store.Open(ctx, env)
	if err != nil {
		<-slot
		return nil, err
	}
	return &boundedSession{QueueSession: sess.(registry.QueueSession), slot: slot}, nil
}

type boundedSession struct {
	registry.QueueSession
	slot chan struct{}
	once sync.Once
}

func (b *boundedSession) Close(ctx context.Context) error {
	err := b.QueueSession.Close(ctx)
	b.once.Do(func() { <-b.slot })
	return err
}

func (s *EngineSuite) boundedEngine(limit int) *Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	normalizer := iccid.MustNew("8921303", "F")
	opener := newBoundedOpener(s.registry, limit)
	creator := auc.NewService(opener, normalizer, auc.NewBuilder(3), s.channel, logger)
	return New(opener, normalizer, creator, audit.NewRecorder(s.audits, logger), testPolicy, logger)
}

func (s *EngineSuite) TestProvisioningReusesTheRequestSession() {
	s.registry.Seed(registry.EnvironmentProd,
		sim("000000000070", "d", nil, "d", nil),
		sim("000000000071", "r", memory.ID(reserved), "a", memory.ID(9)),
	)
	s.registry.Seed(registry.EnvironmentUAT, sim("000000000072", "d", nil, "d", nil))
	engine := s.boundedEngine(1)

	ctx, cancel := context.WithTimeout(s.ctx, 2*time.Second)
	defer cancel()

	out, err := engine.Liberate(ctx, Request{Identifiers: []string{"000000000070", "000000000071"}, Environment: registry.EnvironmentProd})
	s.Require().NoError(err)
	s.Require().Len(out, 2)
	s.Equal("SIM liberated & AUC created in PROD", out[0].Message)
	s.Equal("Already free in PROD", out[1].Message)

	out, err = engine.Liberate(ctx, Request{Identifiers: []string{"000000000072"}, Environment: registry.EnvironmentUAT})
	s.Require().NoError(err)
	s.Require().Len(out, 1)
	s.Equal("SIM liberated & AUC created in UAT", out[0].Message)

	s.Len(s.channel.Delivered(), 3)
	s.Equal(2, s.registry.Count(registry.EnvironmentProd, memory.OpOpen), "one PROD session per request")
	s.Equal(1, s.registry.Count(registry.EnvironmentUAT, memory.OpOpen))
}

func (s *EngineSuite) TestInvalidIdentifiersNeverReachTheRegistry() {
	out := s.liberate(registry.EnvironmentProd, "12345", "89213030000000000001X")

	for _, o := range out {
		s.Equal(StatusError, o.Status)
		s.Equal("Invalid SIM number", o.Message)
		s.Nil(o.Serial)
	}
	s.Zero(s.registry.Count(registry.EnvironmentProd, memory.OpOpen))
	s.Zero(s.registry.Count(registry.EnvironmentProd, memory.OpFindStorageMedium))

	entries := s.audits.All()
	s.Require().Len(entries, 2)
	s.Equal(audit.ActionProd, entries[0].Action)
	s.Equal(audit.StatusError, entries[0].Status)
	s.Nil(entries[0].PriorStatus)
	s.Nil(entries[0].PriorDealerID)
}

func (s *EngineSuite) TestProdNotFound() {
	out := s.liberate(registry.EnvironmentProd, "123456789012")

	s.Equal(Outcome{Sim: "123456789012", Serial: out[0].Serial, Status: StatusNotFound, Message: "SIM not found in PROD"}, out[0])
	s.Require().NotNil(out[0].Serial)
	s.Equal(serial("123456789012"), *out[0].Serial)
	s.Equal("notFound", s.lastAudit().Outcome)
}

func (s *EngineSuite) TestProdDeactivatedIsReleasedAndProvisioned() {
	s.registry.Seed(registry.EnvironmentProd, sim("123456789012", "d", memory.ID(12), "a", memory.ID(12)))

	out := s.liberate(registry.EnvironmentProd, "123456789012")

	s.Equal(StatusSuccess, out[0].Status)
	s.Equal("SIM liberated & AUC created in PROD", out[0].Message)

	m, ok := s.registry.Medium(registry.EnvironmentProd, serial("123456789012"))
	s.Require().True(ok)
	s.Equal(registry.StatusReleased, m.Status)
	s.True(m.HeldBy(reserved))
	s.Equal(2, m.RecordVersion)
	s.Nil(m.PrepaidProfileID)

	p, ok := s.registry.PortFor(registry.EnvironmentProd, serial("123456789012"))
	s.Require().True(ok)
	s.True(p.HeldBy(reserved), "port agrees with the released medium")
	s.Nil(p.DirectoryNumberID)

	s.Len(s.channel.Delivered(), 1)

	e := s.lastAudit()
	s.Equal(audit.StatusSuccess, e.Status)
	s.Require().NotNil(e.PriorStatus)
	s.Equal("d", *e.PriorStatus)
	s.Require().NotNil(e.PriorDealerID)
	s.Equal(int64(12), *e.PriorDealerID)
	s.Equal("ops.user", e.Actor)
	s.Equal("support1515", e.Role)
	s.Equal("10.20.30.40", e.ClientIP)
}

func (s *EngineSuite) TestProdReleasedWithoutDealerIsReleased() {
	s.registry.Seed(registry.EnvironmentProd, sim("000000000002", "r", nil, "r", nil))

	out := s.liberate(registry.EnvironmentProd, "000000000002")

	s.Equal(StatusSuccess, out[0].Status)
	s.Equal("SIM liberated & AUC created in PROD", out[0].Message)
	m, _ := s.registry.Medium(registry.EnvironmentProd, serial("000000000002"))
	s.True(m.HeldBy(reserved))
}

func (s *EngineSuite) TestProdAlreadyFreeIsIdempotent() {
	s.registry.Seed(registry.EnvironmentProd, sim("000000000003", "r", memory.ID(reserved), "a", memory.ID(99)))

	first := s.liberate(registry.EnvironmentProd, "000000000003")
	second := s.liberate(registry.EnvironmentProd, "000000000003")

	for _, out := range [][]Outcome{first, second} {
		s.Equal(StatusSuccess, out[0].Status)
		s.Equal("Already free in PROD", out[0].Message)
	}
	s.Equal(1, s.registry.CountFor(registry.EnvironmentProd, serial("000000000003"), memory.OpReleasePort))
	s.Zero(s.registry.CountFor(registry.EnvironmentProd, serial("000000000003"), memory.OpReleaseMedium))

	p, _ := s.registry.PortFor(registry.EnvironmentProd, serial("000000000003"))
	s.True(p.HeldBy(reserved))
	s.Len(s.channel.Delivered(), 2, "AUC is re-issued on every already-free call")
}

func (s *EngineSuite) TestProdAlreadyFreeIgnoresAucFailure() {
	s.registry.Seed(registry.EnvironmentProd, sim("000000000004", "r", memory.ID(reserved), "r", memory.ID(reserved)))
	s.channel.FailWith(errors.New("inbox unreachable"))

	out := s.liberate(registry.EnvironmentProd, "000000000004")

	s.Equal(StatusSuccess, out[0].Status)
	s.Equal("Already free in PROD", out[0].Message)
}

func (s *EngineSuite) TestProdRefusals() {
	s.registry.Seed(registry.EnvironmentProd,
		sim("000000000010", "a", memory.ID(5), "a", memory.ID(5)),
		sim("000000000011", "b", nil, "b", nil),
		sim("000000000012", "x", nil, "x", nil),
		sim("000000000013", "r", memory.ID(5), "r", memory.ID(5)),
	)

	out := s.liberate(registry.EnvironmentProd, "000000000010", "000000000011", "000000000012", "000000000013")

	s.Equal("Already active in PROD", out[0].Message)
	s.Equal("SIM blocked in PROD", out[1].Message)
	s.Equal("Unknown status", out[2].Message)
	s.Equal("Unknown status", out[3].Message, "released to another dealer is not ours to touch")
	for _, o := range out {
		s.Equal(StatusError, o.Status)
	}
	s.Zero(s.registry.Count(registry.EnvironmentProd, memory.OpReleaseMedium))
	s.Zero(s.registry.Count(registry.EnvironmentProd, memory.OpReleasePort))

	m, _ := s.registry.Medium(registry.EnvironmentProd, serial("000000000010"))
	s.Equal(registry.StatusActive, m.Status)

	entries := s.audits.All()
	s.Require().Len(entries, 4)
	s.Require().NotNil(entries[2].PriorStatus)
	s.Equal("x", *entries[2].PriorStatus, "legacy code is audited as stored")
}

func (s *EngineSuite) TestProdAucFailureKeepsCommittedRelease() {
	s.registry.Seed(registry.EnvironmentProd, sim("000000000020", "d", nil, "d", nil))
	s.channel.FailWith(errors.New("permission denied"))

	out := s.liberate(registry.EnvironmentProd, "000000000020")

	s.Equal(StatusError, out[0].Status)
	s.Contains(out[0].Message, "AUC creation failed (PROD): ")
	s.Contains(out[0].Message, "permission denied")

	m, _ := s.registry.Medium(registry.EnvironmentProd, serial("000000000020"))
	s.True(m.HeldBy(reserved), "release is not undone by a failed AUC step")
}

func (s *EngineSuite) TestProdReleaseWithoutKeyMaterial() {
	s.registry.Seed(registry.EnvironmentProd, memory.Fixture{Serial: serial("000000000021"), Status: "d"})

	out := s.liberate(registry.EnvironmentProd, "000000000021")

	s.Equal(StatusError, out[0].Status)
	s.Equal("No AUC data found in PROD.", out[0].Message)
	s.Empty(s.channel.Delivered())
}

func (s *EngineSuite) TestDuplicatesAreProcessedOnce() {
	s.registry.Seed(registry.EnvironmentProd, sim("123456789012", "d", nil, "d", nil))
	ids := []string{"123456789012", serial("123456789012"), " 123456789012 ", "8921303123456789012f"}

	out := s.liberate(registry.EnvironmentProd, ids...)

	for i, o := range out {
		s.Equal(ids[i], o.Sim)
		s.Equal(StatusSuccess, o.Status)
		s.Equal("SIM liberated & AUC created in PROD", o.Message)
	}
	s.Equal(1, s.registry.CountFor(registry.EnvironmentProd, serial("123456789012"), memory.OpReleaseMedium))
	s.Len(s.audits.All(), 1)
	s.Len(s.channel.Delivered(), 1)
}

func (s *EngineSuite) TestUATRefusesWhenLiveInProd() {
	s.registry.Seed(registry.EnvironmentProd, sim("000000000030", "a", memory.ID(7), "a", memory.ID(7)))
	s.registry.Seed(registry.EnvironmentUAT, sim("000000000030", "d", nil, "d", nil))

	out := s.liberate(registry.EnvironmentUAT, "000000000030")

	s.Equal(StatusError, out[0].Status)
	s.Equal("Already active in PROD", out[0].Message)
	s.Zero(s.registry.Count(registry.EnvironmentUAT, memory.OpFindStorageMedium))
	s.Zero(s.registry.Count(registry.EnvironmentUAT, memory.OpReleaseMedium))

	e := s.lastAudit()
	s.Equal(audit.ActionUAT, e.Action)
	s.Require().NotNil(e.PriorStatus)
	s.Equal("a", *e.PriorStatus)
	s.Nil(e.PriorDealerID)
}

func (s *EngineSuite) TestUATBranches() {
	s.registry.Seed(registry.EnvironmentProd, sim("000000000041", "d", nil, "d", nil))
	s.registry.Seed(registry.EnvironmentUAT,
		sim("000000000040", "r", memory.ID(reserved), "r", memory.ID(reserved)),
		sim("000000000041", "d", nil, "d", nil),
		sim("000000000042", "a", memory.ID(3), "a", memory.ID(3)),
		sim("000000000043", "p", nil, "p", nil),
		sim("000000000044", "b", nil, "b", nil),
	)

	out := s.liberate(registry.EnvironmentUAT, "000000000040", "000000000041", "000000000042", "000000000043", "000000000044")

	s.Equal(Outcome{Sim: "000000000040", Serial: out[0].Serial, Status: StatusSuccess, Message: "Already free in UAT"}, out[0])
	s.Equal(Outcome{Sim: "000000000041", Serial: out[1].Serial, Status: StatusSuccess, Message: "SIM liberated & AUC created in UAT"}, out[1])
	s.Equal(Outcome{Sim: "000000000042", Serial: out[2].Serial, Status: StatusError, Message: "Already active in UAT"}, out[2])
	s.Equal(Outcome{Sim: "000000000043", Serial: out[3].Serial, Status: StatusSuccess, Message: "SIM updated & AUC created in UAT"}, out[3])
	s.Equal(Outcome{Sim: "000000000044", Serial: out[4].Serial, Status: StatusError, Message: "Unknown UAT status"}, out[4])

	corrected, _ := s.registry.Medium(registry.EnvironmentUAT, serial("000000000043"))
	s.True(corrected.HeldBy(reserved))
	s.Equal(1, s.registry.CountFor(registry.EnvironmentUAT, serial("000000000043"), memory.OpEnqueueUpdate))

	prodUntouched, _ := s.registry.Medium(registry.EnvironmentProd, serial("000000000041"))
	s.Equal(registry.StatusDeactivated, prodUntouched.Status, "UAT liberation never mutates PROD")

	for _, e := range s.audits.All() {
		s.Equal(audit.ActionUAT, e.Action)
	}
}

func (s *EngineSuite) TestUATCreatesUnknownSerial() {
	s.registry.SeedCatalog(registry.EnvironmentUAT, sim("000000000050", "r", memory.ID(reserved), "r", memory.ID(reserved)))

	out := s.liberate(registry.EnvironmentUAT, "000000000050")

	s.Equal(StatusSuccess, out[0].Status)
	s.Equal("SIM created & AUC created in UAT", out[0].Message)
	s.Equal(2, s.registry.CountFor(registry.EnvironmentUAT, serial("000000000050"), memory.OpFindStorageMedium),
		"one lookup before creation, one re-read after")
	s.Equal(1, s.registry.CountFor(registry.EnvironmentUAT, serial("000000000050"), memory.OpEnqueueCreate))

	_, ok := s.registry.Medium(registry.EnvironmentUAT, serial("000000000050"))
	s.True(ok)

	e := s.lastAudit()
	s.Nil(e.PriorStatus, "pre-mutation state of a missing record is null")
	s.Nil(e.PriorDealerID)
}

func (s *EngineSuite) TestUATCreationThatProducesNothing() {
	out := s.liberate(registry.EnvironmentUAT, "000000000051")

	s.Equal(StatusError, out[0].Status)
	s.Equal("SIM not found after creation in UAT", out[0].Message)
	s.Empty(s.channel.Delivered())
}

func (s *EngineSuite) TestUnreachableRegistryFailsTheWholeRequest() {
	s.registry.Inject(memory.Fault{Env: registry.EnvironmentUAT, Op: memory.OpOpen, Err: errors.New("TNS: no listener")})

	out, err := s.engine.Liberate(s.ctx, Request{Identifiers: []string{"000000000060"}, Environment: registry.EnvironmentUAT})

	s.Require().Error(err)
	s.Nil(out)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	s.ErrorIs(err, registry.ErrConnection)
	s.Empty(s.audits.All())
}

func (s *EngineSuite) TestRegistryErrorIsContainedToOneIdentifier() {
	s.registry.Seed(registry.EnvironmentProd,
		sim("000000000070", "d", nil, "d", nil),
		sim("000000000071", "d", nil, "d", nil),
	)
	s.registry.Inject(memory.Fault{Env: registry.EnvironmentProd, Op: memory.OpReleasePort, Serial: serial("000000000070"), Err: errors.New("ORA-00054: resource busy")})

	out := s.liberate(registry.EnvironmentProd, "000000000070", "000000000071")

	s.Equal(StatusError, out[0].Status)
	s.Contains(out[0].Message, "Processing failed in PROD")
	s.Contains(out[0].Message, "resource busy")
	s.Equal(StatusSuccess, out[1].Status)

	m, _ := s.registry.Medium(registry.EnvironmentProd, serial("000000000070"))
	s.Equal(registry.StatusDeactivated, m.Status, "partial release was rolled back")

	entries := s.audits.All()
	s.Require().Len(entries, 2)
	s.Require().NotNil(entries[0].PriorStatus)
	s.Equal("d", *entries[0].PriorStatus)
}

func (s *EngineSuite) TestPanicIsContainedToOneIdentifier() {
	s.registry.Seed(registry.EnvironmentProd,
		sim("000000000080", "d", nil, "d", nil),
		sim("000000000081", "d", nil, "d", nil),
	)
	s.registry.Inject(memory.Fault{Env: registry.EnvironmentProd, Op: memory.OpFindStorageMedium, Serial: serial("000000000080"), Panic: true})

	var out []Outcome
	s.NotPanics(func() { out = s.liberate(registry.EnvironmentProd, "000000000080", "000000000081") })

	s.Equal(StatusError, out[0].Status)
	s.Equal("Processing failed in PROD: internal error", out[0].Message)
	s.Equal(StatusSuccess, out[1].Status)
	s.Len(s.audits.All(), 2)
}

func (s *EngineSuite) TestAuditFailureDoesNotAbortLiberation() {
	s.registry.Seed(registry.EnvironmentProd, sim("000000000090", "d", nil, "d", nil))
	s.audits.FailWith(errors.New("audit db down"))

	out := s.liberate(registry.EnvironmentProd, "000000000090")

	s.Equal(StatusSuccess, out[0].Status)
}

func (s *EngineSuite) TestRejectsUnknownEnvironment() {
	_, err := s.engine.Liberate(s.ctx, Request{Identifiers: []string{"x"}, Environment: "DEV"})

	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func TestSummarize(t *testing.T) {
	s := Summarize([]Outcome{{Status: StatusSuccess}, {Status: StatusError}, {Status: StatusNotFound}})
	if got, want := s.Message(), "1 SIM processed successfully, 2 anomalies."; got != want {
		t.Fatalf("Message() = %q, want %q", got, want)
	}
}
