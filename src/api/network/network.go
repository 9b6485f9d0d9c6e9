package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/danmuck/peernet/src/api/netif"
	"github.com/danmuck/peernet/src/api/transport"
	logs "github.com/danmuck/smplog"
)

// Network owns the table of locally managed addresses and decides, per
// send, whether a message stays in memory or goes to the raw sender.
type Network struct {
	mu         sync.RWMutex
	protocol   string
	iface      string
	address    string
	port       string
	messengers map[string]*Messenger
	sender     MessageSender

	serialize   SerializeFunc
	deserialize DeserializeFunc
	resolver    Resolver
	scheduler   Scheduler
	loop        *Loop

	lmu           sync.RWMutex
	onSubscribe   []SubscribeFunc
	onUnsubscribe []SubscribeFunc
	onSent        []SentFunc
	onError       []ErrorFunc

	closed atomic.Bool
	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a Network and configures its own endpoint from opts.
func New(opts Options, fns ...Option) (*Network, error) {
	codec := transport.ProtoCodec{}
	n := &Network{
		messengers:  make(map[string]*Messenger),
		serialize:   codec.Serialize,
		deserialize: codec.Deserialize,
		resolver:    netif.System{},
	}
	for _, fn := range fns {
		fn(n)
	}
	if err := n.Configure(opts); err != nil {
		return nil, err
	}

	if n.scheduler == nil {
		n.loop = NewLoop()
		n.scheduler = n.loop
	}
	n.ctx, n.cancel = context.WithCancel(context.Background())
	logs.Debugf("network.New(%s)", n.OwnURI())
	return n, nil
}

// Configure replaces the own endpoint. Nothing changes on error.
func (n *Network) Configure(opts Options) error {
	resolved, err := opts.resolve(n.resolver)
	if err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.protocol = resolved.Protocol
	n.iface = resolved.Interface
	n.address = resolved.Address
	n.port = resolved.Port
	return nil
}

// SetOwnURI parses uri as scheme://host:port and overwrites the own
// endpoint in one step. The interface is resolved best-effort.
func (n *Network) SetOwnURI(uri string) error {
	u, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURI, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURI, uri)
	}
	host, port, err := net.SplitHostPort(u.Host)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURI, err)
	}
	if host == "" {
		return fmt.Errorf("%w: %q has no host", ErrInvalidURI, uri)
	}

	iface, err := n.resolver.InterfaceFor(host)
	if err != nil {
		logs.Debugf("SetOwnURI(%s): no interface for host: %v", uri, err)
		iface = ""
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.protocol = u.Scheme
	n.iface = iface
	n.address = host
	n.port = port
	return nil
}

func (n *Network) OwnURI() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.protocol + "://" + net.JoinHostPort(n.address, n.port)
}

// Interface returns the interface name the own address lives on, if known.
func (n *Network) Interface() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.iface
}

// CreateMessenger registers address, replacing any previous Messenger for
// it, then waits for every subscribe listener. The Messenger is in the
// table before listeners run. On listener failure the registered Messenger
// is still returned alongside the error so the caller can Destroy it.
func (n *Network) CreateMessenger(ctx context.Context, address string) (*Messenger, error) {
	m := newMessenger(n, address)

	n.mu.Lock()
	if _, ok := n.messengers[address]; ok {
		logs.Debugf("CreateMessenger(%s): replacing existing messenger", address)
	}
	n.messengers[address] = m
	m.activate()
	n.mu.Unlock()

	if err := n.announce(ctx, false, address); err != nil {
		return m, fmt.Errorf("subscribe %s: %w", address, err)
	}
	return m, nil
}

func (n *Network) SetMessageSender(fn MessageSender) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sender = fn
}

// ReceiveMessage hands an inbound payload to the Messenger registered for
// address. Payloads for unmanaged addresses are dropped.
func (n *Network) ReceiveMessage(address string, payload []byte) error {
	m := n.lookup(address)
	if m == nil {
		logs.Debugf("ReceiveMessage(%s): not managed, dropping %d bytes", address, len(payload))
		return nil
	}
	err := m.ReceiveMessage(payload)
	if errors.Is(err, ErrDestroyed) {
		logs.Debugf("ReceiveMessage(%s): destroyed while routing, dropping", address)
		return nil
	}
	return err
}

func (n *Network) ManagesAddress(address string) bool {
	return n.lookup(address) != nil
}

// ForgetAddress removes address from the table. Absent addresses are a no-op.
func (n *Network) ForgetAddress(address string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.messengers, address)
}

// Addresses returns the managed addresses in sorted order.
func (n *Network) Addresses() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]string, 0, len(n.messengers))
	for addr := range n.messengers {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

// Send routes payload to address. Managed addresses are delivered on a
// later scheduler tick, after re-checking that the address is still
// managed; if it is gone by then, the payload goes to the raw sender
// instead. Unmanaged addresses go to the raw sender immediately and its
// error is returned. After Close every Send fails with ErrClosed.
func (n *Network) Send(ctx context.Context, to string, payload []byte) error {
	if n.closed.Load() {
		return fmt.Errorf("send %s: %w", to, ErrClosed)
	}
	if n.ManagesAddress(to) {
		logs.Debugf("Send(%s): deferring in-memory delivery", to)
		if err := n.scheduler.Defer(func() { n.deliver(to, payload) }); err != nil {
			return fmt.Errorf("send %s: %w", to, err)
		}
		return nil
	}
	return n.sendRaw(ctx, to, payload)
}

// Close rejects further sends and stops the default scheduler after
// draining queued deliveries.
func (n *Network) Close() {
	n.closed.Store(true)
	if n.loop != nil {
		n.loop.Close()
	}
	n.cancel()
}

func (n *Network) deliver(to string, payload []byte) {
	if m := n.lookup(to); m != nil {
		err := m.ReceiveMessage(payload)
		if err == nil {
			n.emitSent(SentEvent{To: to, Payload: payload, InMemory: true})
			return
		}
		if !errors.Is(err, ErrDestroyed) {
			logs.Errorf(err, "deliver(%s): in-memory delivery failed", to)
			n.emitError(fmt.Errorf("deliver %s: %w", to, err))
			return
		}
	}

	logs.Debugf("deliver(%s): no longer managed, falling back to raw sender", to)
	if err := n.sendRaw(n.ctx, to, payload); err != nil {
		logs.Warnf("deliver(%s): raw send failed: %v", to, err)
		n.emitError(fmt.Errorf("deliver %s: %w", to, err))
	}
}

func (n *Network) sendRaw(ctx context.Context, to string, payload []byte) error {
	n.mu.RLock()
	send := n.sender
	n.mu.RUnlock()
	if send == nil {
		return fmt.Errorf("send %s: %w", to, ErrNoSender)
	}

	if err := send(ctx, to, payload); err != nil {
		return err
	}
	n.emitSent(SentEvent{To: to, Payload: payload, InMemory: false})
	return nil
}

func (n *Network) lookup(address string) *Messenger {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.messengers[address]
}

// forget removes m's entry only if the table still points at m, and
// reports whether it did.
func (n *Network) forget(m *Messenger) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.messengers[m.address] != m {
		return false
	}
	delete(n.messengers, m.address)
	return true
}
