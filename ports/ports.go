// Package ports implements the ephemeral port allocator shared by udp and
// tcp. Grounded on the teacher's ports/port.go and ports/ports.go, which
// declare the portDescriptor/bindAddresses shape but never fill in the
// reserve/release logic — that state machine is built fresh here.
package ports

import (
	"sync"

	catnip "github.com/catnip-libos/catnip"
)

// portDescriptor uniquely identifies one bindable slot: a transport
// protocol and port number. Network protocol is omitted (this core speaks
// only IPv4) relative to the teacher's three-way key.
type portDescriptor struct {
	transport catnip.TransportProtocolNumber
	port      catnip.Port
}

// bindAddresses is the set of local addresses a descriptor has been bound
// against. catnip.Address("") (anyIPAddress) means "all local addresses",
// and conflicts with every other entry for the same descriptor.
type bindAddresses map[catnip.Address]struct{}

const anyIPAddress catnip.Address = ""

// Manager reserves and releases (transport, address, port) tuples,
// enforcing that two sockets never bind the same descriptor unless their
// bound addresses are disjoint and neither is the wildcard.
type Manager struct {
	mu             sync.Mutex
	allocatedPorts map[portDescriptor]bindAddresses

	ephemeralLow  catnip.Port
	ephemeralHigh catnip.Port
	nextEphemeral catnip.Port
}

// NewManager returns a Manager that picks ephemeral ports from
// [low, high], inclusive, per §6's udp_ephemeral_range.
func NewManager(low, high catnip.Port) *Manager {
	return &Manager{
		allocatedPorts: make(map[portDescriptor]bindAddresses),
		ephemeralLow:   low,
		ephemeralHigh:  high,
		nextEphemeral:  low,
	}
}

// Reserve claims (transport, addr, port). port == 0 picks the first free
// ephemeral port. Returns catnip.ErrInUse if the
// requested port is already taken by a conflicting bind.
func (m *Manager) Reserve(transport catnip.TransportProtocolNumber, addr catnip.Address, port catnip.Port) (catnip.Port, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if port != 0 {
		if !m.isAvailableLocked(transport, addr, port) {
			return 0, catnip.ErrInUse
		}
		m.reserveLocked(transport, addr, port)
		return port, nil
	}

	span := int(m.ephemeralHigh) - int(m.ephemeralLow) + 1
	for i := 0; i < span; i++ {
		p := m.nextEphemeral
		if m.nextEphemeral >= m.ephemeralHigh {
			m.nextEphemeral = m.ephemeralLow
		} else {
			m.nextEphemeral++
		}
		if m.isAvailableLocked(transport, addr, p) {
			m.reserveLocked(transport, addr, p)
			return p, nil
		}
	}
	return 0, catnip.ErrInUse
}

func (m *Manager) isAvailableLocked(transport catnip.TransportProtocolNumber, addr catnip.Address, port catnip.Port) bool {
	d := portDescriptor{transport: transport, port: port}
	bound, ok := m.allocatedPorts[d]
	if !ok {
		return true
	}
	if _, wildcardTaken := bound[anyIPAddress]; wildcardTaken {
		return false
	}
	if addr == anyIPAddress {
		return len(bound) == 0
	}
	_, taken := bound[addr]
	return !taken
}

func (m *Manager) reserveLocked(transport catnip.TransportProtocolNumber, addr catnip.Address, port catnip.Port) {
	d := portDescriptor{transport: transport, port: port}
	bound, ok := m.allocatedPorts[d]
	if !ok {
		bound = make(bindAddresses)
		m.allocatedPorts[d] = bound
	}
	bound[addr] = struct{}{}
}

// Release frees a previously-reserved (transport, addr, port) tuple.
func (m *Manager) Release(transport catnip.TransportProtocolNumber, addr catnip.Address, port catnip.Port) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := portDescriptor{transport: transport, port: port}
	bound, ok := m.allocatedPorts[d]
	if !ok {
		return
	}
	delete(bound, addr)
	if len(bound) == 0 {
		delete(m.allocatedPorts, d)
	}
}
