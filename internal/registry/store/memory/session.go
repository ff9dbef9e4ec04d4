package memory

import (
	"context"
	"errors"
	"strings"

	"simrelease/internal/registry"
)

var errClosed = errors.New("memory registry: session closed")

type session struct {
	store *Store
	env   registry.Environment

	media   map[string]registry.StorageMedium
	ports   map[int64]portRow
	createQ []string
	updateQ []string

	consumedCreate bool
	consumedUpdate bool
	closed         bool
}

var _ registry.QueueSession = (*session)(nil)

func key(serial string) string {
	return strings.ToUpper(strings.TrimSpace(serial))
}

func (s *session) Environment() registry.Environment { return s.env }

func (s *session) medium(serial string) (registry.StorageMedium, bool) {
	k := key(serial)
	if m, ok := s.media[k]; ok {
		return m, true
	}
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	m, ok := s.store.envs[s.env].media[k]
	return m, ok
}

func (s *session) port(mediumID int64) (portRow, bool) {
	if p, ok := s.ports[mediumID]; ok {
		return p, true
	}
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	p, ok := s.store.envs[s.env].ports[mediumID]
	return p, ok
}

func (s *session) serialOf(mediumID int64) string {
	for k, m := range s.media {
		if m.ID == mediumID {
			return k
		}
	}
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	for k, m := range s.store.envs[s.env].media {
		if m.ID == mediumID {
			return k
		}
	}
	return ""
}

func (s *session) FindStorageMedium(_ context.Context, serial string) (*registry.StorageMedium, error) {
	if s.closed {
		return nil, errClosed
	}
	if err := s.store.check(s.env, OpFindStorageMedium, key(serial)); err != nil {
		return nil, err
	}
	m, ok := s.medium(serial)
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (s *session) FindPort(_ context.Context, mediumID int64) (*registry.Port, error) {
	if s.closed {
		return nil, errClosed
	}
	if err := s.store.check(s.env, OpFindPort, s.serialOf(mediumID)); err != nil {
		return nil, err
	}
	p, ok := s.port(mediumID)
	if !ok {
		return nil, nil
	}
	return &p.port, nil
}

func (s *session) ReleaseStorageMedium(_ context.Context, serial string) error {
	if s.closed {
		return errClosed
	}
	if err := s.store.check(s.env, OpReleaseMedium, key(serial)); err != nil {
		return err
	}
	m, ok := s.medium(serial)
	if !ok {
		return nil
	}
	s.media[key(serial)] = s.releaseMedium(m)
	return nil
}

func (s *session) ReleasePort(_ context.Context, mediumID int64) error {
	if s.closed {
		return errClosed
	}
	if err := s.store.check(s.env, OpReleasePort, s.serialOf(mediumID)); err != nil {
		return err
	}
	p, ok := s.port(mediumID)
	if !ok {
		return nil
	}
	s.ports[mediumID] = s.releasePort(p)
	return nil
}

func (s *session) releaseMedium(m registry.StorageMedium) registry.StorageMedium {
	pol := s.store.policy
	m.Status = registry.StatusReleased
	m.StatusCode = registry.StatusReleased.Code()
	m.DealerID = ID(pol.ReservedDealerID)
	m.DeliveryID = ID(pol.ReservedDealerID)
	m.RecordVersion = pol.RecordVersion
	m.PrepaidProfileID = nil
	m.BusinessUnitID = ID(pol.BusinessUnitID)
	return m
}

func (s *session) releasePort(p portRow) portRow {
	pol := s.store.policy
	p.port.Status = registry.StatusReleased
	p.port.StatusCode = registry.StatusReleased.Code()
	p.port.DealerID = ID(pol.ReservedDealerID)
	p.port.DirectoryNumberID = nil
	p.port.BusinessUnitID = ID(pol.BusinessUnitID)
	return p
}

func (s *session) FindProvisioning(_ context.Context, serial string) ([]registry.AucProvisioning, error) {
	if s.closed {
		return nil, errClosed
	}
	if err := s.store.check(s.env, OpFindProvisioning, key(serial)); err != nil {
		return nil, err
	}
	m, ok := s.medium(serial)
	if !ok {
		return nil, nil
	}
	p, ok := s.port(m.ID)
	if !ok {
		return nil, nil
	}
	return []registry.AucProvisioning{{
		PortNumber:  p.port.Number,
		Key:         p.key,
		KeyTableID:  p.keyTableID,
		MediumClass: m.MediumClass,
	}}, nil
}

func (s *session) EnqueueCreate(_ context.Context, serial string) error {
	if s.closed {
		return errClosed
	}
	if err := s.store.check(s.env, OpEnqueueCreate, key(serial)); err != nil {
		return err
	}
	s.createQ = append(s.createQ, key(serial))
	return nil
}

func (s *session) EnqueueUpdate(_ context.Context, serial string) error {
	if s.closed {
		return errClosed
	}
	if err := s.store.check(s.env, OpEnqueueUpdate, key(serial)); err != nil {
		return err
	}
	s.updateQ = append(s.updateQ, key(serial))
	return nil
}

// RunCreateProcedure materializes every queued serial the catalog knows.
// Unknown serials are dropped from the queue without a record.
func (s *session) RunCreateProcedure(_ context.Context) error {
	if s.closed {
		return errClosed
	}
	if err := s.store.check(s.env, OpRunCreateProcedure, ""); err != nil {
		return err
	}
	for _, serial := range s.pendingQueue(true) {
		if _, exists := s.medium(serial); exists {
			continue
		}
		s.store.mu.Lock()
		f, known := s.store.envs[s.env].catalog[serial]
		if known {
			s.store.nextID++
			m := f.medium(s.store.nextID)
			s.media[serial] = m
			if f.Port != nil {
				s.store.nextID++
				s.ports[m.ID] = f.Port.row(s.store.nextID, m.ID)
			}
		}
		s.store.mu.Unlock()
	}
	s.createQ = nil
	s.consumedCreate = true
	return nil
}

// RunUpdateProcedure releases every queued serial that is still pending.
func (s *session) RunUpdateProcedure(_ context.Context) error {
	if s.closed {
		return errClosed
	}
	if err := s.store.check(s.env, OpRunUpdateProcedure, ""); err != nil {
		return err
	}
	for _, serial := range s.pendingQueue(false) {
		m, ok := s.medium(serial)
		if !ok || m.Status != registry.StatusPending {
			continue
		}
		s.media[serial] = s.releaseMedium(m)
		if p, ok := s.port(m.ID); ok {
			s.ports[m.ID] = s.releasePort(p)
		}
	}
	s.updateQ = nil
	s.consumedUpdate = true
	return nil
}

func (s *session) pendingQueue(create bool) []string {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	e := s.store.envs[s.env]
	var q []string
	if create {
		if !s.consumedCreate {
			q = append(q, e.createQ...)
		}
		return append(q, s.createQ...)
	}
	if !s.consumedUpdate {
		q = append(q, e.updateQ...)
	}
	return append(q, s.updateQ...)
}

func (s *session) Commit(_ context.Context) error {
	if s.closed {
		return errClosed
	}
	if err := s.store.check(s.env, OpCommit, ""); err != nil {
		return err
	}
	s.store.mu.Lock()
	e := s.store.envs[s.env]
	for k, m := range s.media {
		e.media[k] = m
	}
	for id, p := range s.ports {
		e.ports[id] = p
	}
	if s.consumedCreate {
		e.createQ = nil
	}
	if s.consumedUpdate {
		e.updateQ = nil
	}
	e.createQ = append(e.createQ, s.createQ...)
	e.updateQ = append(e.updateQ, s.updateQ...)
	s.store.mu.Unlock()
	s.reset()
	return nil
}

func (s *session) Rollback(_ context.Context) error {
	if s.closed {
		return nil
	}
	s.reset()
	return nil
}

func (s *session) reset() {
	s.media = make(map[string]registry.StorageMedium)
	s.ports = make(map[int64]portRow)
	s.createQ = nil
	s.updateQ = nil
	s.consumedCreate = false
	s.consumedUpdate = false
}

func (s *session) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}
	_ = s.Rollback(ctx)
	s.closed = true
	s.store.mu.Lock()
	s.store.open--
	s.store.mu.Unlock()
	return nil
}
