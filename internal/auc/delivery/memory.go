package delivery

import (
	"context"
	"sync"
)

// Delivered is a batch captured by the Memory channel.
type Delivered struct {
	Filename string
	Payload  []byte
}

// Memory keeps delivered batches in process. Used in dev mode and tests.
type Memory struct {
	mu        sync.Mutex
	namer     Namer
	delivered []Delivered
	err       error
}

func NewMemory(namer Namer) *Memory {
	return &Memory{namer: namer}
}

// FailWith makes subsequent deliveries fail with err; nil restores success.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Deliver implements Channel.
func (m *Memory) Deliver(_ context.Context, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", deliveryError("memory", m.err)
	}
	name := m.namer.Name()
	m.delivered = append(m.delivered, Delivered{Filename: name, Payload: append([]byte(nil), payload...)})
	return name, nil
}

// Delivered returns a copy of everything delivered so far.
func (m *Memory) Delivered() []Delivered {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Delivered(nil), m.delivered...)
}
