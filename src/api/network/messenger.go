package network

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	logs "github.com/danmuck/smplog"
)

type messengerState int32

const (
	stateCreated messengerState = iota
	stateActive
	stateDestroyed
)

type (
	// Handler receives the arguments of one named event.
	Handler func(args ...any)
	// AnyHandler receives every event along with its name.
	AnyHandler func(event string, args ...any)
)

// Messenger is the handle for one address on a Network. Events arrive as
// a name plus ordered arguments and are dispatched to handlers registered
// for that name.
type Messenger struct {
	network *Network
	address string
	state   atomic.Int32
	// life is held shared for the whole of a delivery and exclusively by
	// Destroy while it leaves the table.
	life sync.RWMutex

	mu       sync.RWMutex
	handlers map[string][]Handler
	anys     []AnyHandler
}

func newMessenger(n *Network, address string) *Messenger {
	return &Messenger{
		network:  n,
		address:  address,
		handlers: make(map[string][]Handler),
	}
}

func (m *Messenger) Address() string {
	return m.address
}

// On adds h to the handlers for event.
func (m *Messenger) On(event string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], h)
}

// Off drops every handler for event.
func (m *Messenger) Off(event string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, event)
}

func (m *Messenger) OnAny(h AnyHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.anys = append(m.anys, h)
}

// ReceiveMessage decodes payload and dispatches the event it carries.
// Destroy waits for a delivery in progress, so handlers never run after
// unsubscribe has been announced. Handlers must not Destroy their own
// Messenger synchronously.
func (m *Messenger) ReceiveMessage(payload []byte) error {
	m.life.RLock()
	defer m.life.RUnlock()
	if !m.active() {
		return fmt.Errorf("receive on %s: %w", m.address, ErrDestroyed)
	}

	event, args, err := m.network.deserialize(payload)
	if err != nil {
		return fmt.Errorf("receive on %s: %w", m.address, err)
	}
	m.emit(event, args)
	return nil
}

// Send encodes event and args and routes them to address. The sender's own
// address is not attached; include it in args when a reply is expected.
func (m *Messenger) Send(ctx context.Context, to string, event string, args ...any) error {
	if !m.active() {
		return fmt.Errorf("send from %s: %w", m.address, ErrDestroyed)
	}

	payload, err := m.network.serialize(event, args...)
	if err != nil {
		return fmt.Errorf("send from %s: %w", m.address, err)
	}
	return m.network.Send(ctx, to, payload)
}

// Destroy waits for in-flight deliveries, removes the address from the
// Network and waits for unsubscribe listeners. A Messenger already
// replaced by a newer registration leaves the table alone and announces
// nothing. The Messenger cannot be used afterwards.
func (m *Messenger) Destroy(ctx context.Context) error {
	m.life.Lock()
	if !m.state.CompareAndSwap(int32(stateActive), int32(stateDestroyed)) {
		m.life.Unlock()
		return fmt.Errorf("destroy %s: %w", m.address, ErrDestroyed)
	}
	removed := m.network.forget(m)
	m.life.Unlock()

	if !removed {
		logs.Debugf("Destroy(%s): superseded, not announcing", m.address)
		return nil
	}
	logs.Debugf("Destroy(%s)", m.address)

	if err := m.network.announce(ctx, true, m.address); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", m.address, err)
	}
	return nil
}

func (m *Messenger) activate() {
	m.state.CompareAndSwap(int32(stateCreated), int32(stateActive))
}

func (m *Messenger) active() bool {
	return messengerState(m.state.Load()) == stateActive
}

func (m *Messenger) emit(event string, args []any) {
	m.mu.RLock()
	handlers := append([]Handler(nil), m.handlers[event]...)
	anys := append([]AnyHandler(nil), m.anys...)
	m.mu.RUnlock()

	if len(handlers) == 0 && len(anys) == 0 {
		logs.Debugf("emit(%s): no handler for %q", m.address, event)
	}
	for _, h := range handlers {
		h(args...)
	}
	for _, h := range anys {
		h(event, args...)
	}
}
