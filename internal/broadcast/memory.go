package broadcast

import (
	"context"
	"sync"

	"github.com/classpoll/livepoll/internal/models"
)

// MemoryBus is an in-process broadcaster for tests and single-process runs.
// Replicas join the bus and receive every snapshot published by the others,
// synchronously and in publish order.
type MemoryBus struct {
	mu      sync.Mutex
	members []*MemberHandle
}

// MemberHandle is one replica's attachment to a MemoryBus. It implements
// the engine's Publisher.
type MemberHandle struct {
	bus       *MemoryBus
	onReceive Receiver
}

// NewMemoryBus creates an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

// Join attaches a replica. Snapshots published by other members are handed
// to onReceive.
func (b *MemoryBus) Join(onReceive Receiver) *MemberHandle {
	m := &MemberHandle{bus: b, onReceive: onReceive}
	b.mu.Lock()
	b.members = append(b.members, m)
	b.mu.Unlock()
	return m
}

// Publish fans the snapshot out to every other member.
func (m *MemberHandle) Publish(_ context.Context, state models.SessionState) error {
	m.bus.mu.Lock()
	members := make([]*MemberHandle, len(m.bus.members))
	copy(members, m.bus.members)
	m.bus.mu.Unlock()

	for _, other := range members {
		if other == m || other.onReceive == nil {
			continue
		}
		other.onReceive(state)
	}
	return nil
}
