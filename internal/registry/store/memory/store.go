// Package memory is an in-process registry used in dev mode and tests.
//
// Each environment holds committed rows. Sessions keep private copies of the
// rows they touch and publish them on Commit, so a session reads its own
// writes while other sessions only see committed state.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"simrelease/internal/registry"
)

// Op names a session operation for fault injection and counters.
type Op string

const (
	OpOpen               Op = "open"
	OpFindStorageMedium  Op = "find_storage_medium"
	OpFindPort           Op = "find_port"
	OpReleaseMedium      Op = "release_storage_medium"
	OpReleasePort        Op = "release_port"
	OpFindProvisioning   Op = "find_provisioning"
	OpEnqueueCreate      Op = "enqueue_create"
	OpEnqueueUpdate      Op = "enqueue_update"
	OpRunCreateProcedure Op = "run_create_procedure"
	OpRunUpdateProcedure Op = "run_update_procedure"
	OpCommit             Op = "commit"
)

// Fault makes an operation fail (or panic) for one environment and, when
// Serial is set, only for that serial.
type Fault struct {
	Env    registry.Environment
	Op     Op
	Serial string
	Err    error
	Panic  bool
}

type portRow struct {
	port       registry.Port
	key        string
	keyTableID string
}

type environment struct {
	media   map[string]registry.StorageMedium
	ports   map[int64]portRow
	catalog map[string]Fixture
	createQ []string
	updateQ []string
}

func newEnvironment() *environment {
	return &environment{
		media:   make(map[string]registry.StorageMedium),
		ports:   make(map[int64]portRow),
		catalog: make(map[string]Fixture),
	}
}

// Store implements registry.Opener.
type Store struct {
	mu       sync.Mutex
	policy   registry.ReleasePolicy
	envs     map[registry.Environment]*environment
	faults   []Fault
	counts   map[registry.Environment]map[Op]int
	serialOp map[registry.Environment]map[string]map[Op]int
	open     int
	nextID   int64
}

// New creates an empty store for both environments.
func New(policy registry.ReleasePolicy) *Store {
	return &Store{
		policy: policy,
		envs: map[registry.Environment]*environment{
			registry.EnvironmentProd: newEnvironment(),
			registry.EnvironmentUAT:  newEnvironment(),
		},
		counts: map[registry.Environment]map[Op]int{
			registry.EnvironmentProd: {},
			registry.EnvironmentUAT:  {},
		},
		serialOp: map[registry.Environment]map[string]map[Op]int{
			registry.EnvironmentProd: {},
			registry.EnvironmentUAT:  {},
		},
		nextID: 1000,
	}
}

// Seed loads fixtures into env's committed state.
func (s *Store) Seed(env registry.Environment, fixtures ...Fixture) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.envs[env]
	for _, f := range fixtures {
		s.materialize(e, f)
	}
}

// SeedCatalog registers serials that env's create procedure can materialize.
func (s *Store) SeedCatalog(env registry.Environment, fixtures ...Fixture) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.envs[env]
	for _, f := range fixtures {
		e.catalog[strings.ToUpper(f.Serial)] = f
	}
}

// Inject registers a fault. Faults stay active until ClearFaults.
func (s *Store) Inject(f Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = append(s.faults, f)
}

func (s *Store) ClearFaults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = nil
}

// Count returns how many times op ran against env.
func (s *Store) Count(env registry.Environment, op Op) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[env][op]
}

// CountFor returns how many times op ran against env for serial. Port
// operations are attributed to the serial of their medium.
func (s *Store) CountFor(env registry.Environment, serial string, op Op) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serialOp[env][strings.ToUpper(serial)][op]
}

// OpenSessions returns the number of sessions not yet closed.
func (s *Store) OpenSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// Medium returns the committed storage medium for serial.
func (s *Store) Medium(env registry.Environment, serial string) (registry.StorageMedium, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.envs[env].media[strings.ToUpper(serial)]
	return m, ok
}

// PortFor returns the committed port linked to serial's medium.
func (s *Store) PortFor(env registry.Environment, serial string) (registry.Port, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.envs[env]
	m, ok := e.media[strings.ToUpper(serial)]
	if !ok {
		return registry.Port{}, false
	}
	p, ok := e.ports[m.ID]
	return p.port, ok
}

// Queued returns the committed, unprocessed creation and correction queues.
func (s *Store) Queued(env registry.Environment) (create, update []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.envs[env]
	return append([]string(nil), e.createQ...), append([]string(nil), e.updateQ...)
}

// Serials lists the committed serials of env in sorted order.
func (s *Store) Serials(env registry.Environment) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.envs[env].media))
	for k := range s.envs[env].media {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Open implements registry.Opener.
func (s *Store) Open(_ context.Context, env registry.Environment) (registry.Session, error) {
	if err := s.check(env, OpOpen, ""); err != nil {
		return nil, registry.ConnectionError(env, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open++
	return &session{
		store: s,
		env:   env,
		media: make(map[string]registry.StorageMedium),
		ports: make(map[int64]portRow),
	}, nil
}

// materialize must be called with mu held.
func (s *Store) materialize(e *environment, f Fixture) registry.StorageMedium {
	s.nextID++
	m := f.medium(s.nextID)
	e.media[strings.ToUpper(m.Serial)] = m
	if f.Port != nil {
		s.nextID++
		e.ports[m.ID] = f.Port.row(s.nextID, m.ID)
	}
	return m
}

// check counts op and applies any matching fault. Injected panics are raised
// after the lock is released.
func (s *Store) check(env registry.Environment, op Op, serial string) error {
	s.mu.Lock()
	if _, ok := s.envs[env]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown environment %q", env)
	}
	s.counts[env][op]++
	if serial != "" {
		key := strings.ToUpper(serial)
		if s.serialOp[env][key] == nil {
			s.serialOp[env][key] = map[Op]int{}
		}
		s.serialOp[env][key][op]++
	}
	var (
		err  error
		boom bool
	)
	for _, f := range s.faults {
		if f.Env != env || f.Op != op {
			continue
		}
		if f.Serial != "" && !strings.EqualFold(f.Serial, serial) {
			continue
		}
		if f.Panic {
			boom = true
			break
		}
		if f.Err != nil {
			err = f.Err
			break
		}
	}
	s.mu.Unlock()
	if boom {
		panic(fmt.Sprintf("memory registry: injected panic on %s %s", op, serial))
	}
	return err
}
