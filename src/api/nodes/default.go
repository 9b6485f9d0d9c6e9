package nodes

import (
	"context"
	"fmt"
	"sync"

	"github.com/danmuck/peernet/src/api/network"
	"github.com/danmuck/peernet/src/api/transport"
	logs "github.com/danmuck/smplog"
	"github.com/google/uuid"
)

type DefaultNode struct {
	id        string
	protocol  string
	network   *network.Network
	Router    RoutingTable
	Transport transport.TransportHandler
	exit      chan any
	wg        sync.WaitGroup
}

var _ Node = (*DefaultNode)(nil)

// NewDefaultNode builds the network, routing table and transport described
// by cfg. Nothing listens until Start.
func NewDefaultNode(cfg Config, opts ...network.Option) (*DefaultNode, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}

	nw, err := network.New(cfg.Network, opts...)
	if err != nil {
		return nil, err
	}

	router := NewDefaultRouter(cfg.Listen)
	for _, p := range cfg.Peers {
		if err := router.Insert(p); err != nil {
			nw.Close()
			return nil, err
		}
	}

	exit := make(chan any)
	var handler transport.TransportHandler
	switch cfg.Transport {
	case TransportZMQ:
		handler = transport.NewZmqHandler(cfg.ID, cfg.Listen)
	default:
		handler = transport.NewTCPHandler(cfg.Listen, exit)
	}

	protocol := cfg.Network.Protocol
	if protocol == "" {
		protocol = network.DefaultProtocol
	}
	return &DefaultNode{
		id:        cfg.ID,
		protocol:  protocol,
		network:   nw,
		Router:    router,
		Transport: handler,
		exit:      exit,
	}, nil
}

func (n *DefaultNode) ID() string {
	return n.id
}

func (n *DefaultNode) Address() string {
	return n.Transport.Addr()
}

func (n *DefaultNode) Network() *network.Network {
	return n.network
}

func (n *DefaultNode) Peers() []Peer {
	return n.Router.Peers()
}

// Start binds the transport, publishes the bound endpoint as the network's
// own URI and starts feeding inbound envelopes to the network.
func (n *DefaultNode) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := n.Transport.ListenAndAccept(); err != nil {
		return err
	}
	if err := n.network.SetOwnURI(fmt.Sprintf("%s://%s", n.protocol, n.Transport.Addr())); err != nil {
		return err
	}
	if r, ok := n.Router.(*DefaultRouter); ok {
		r.SetLocalhost(n.Transport.Addr())
	}
	n.network.SetMessageSender(n.sendRemote)
	logs.Infof("node %s listening on %s", n.id, n.network.OwnURI())

	n.wg.Add(1)
	go n.handleInbound()
	return nil
}

func (n *DefaultNode) Shutdown() error {
	close(n.exit)
	err := n.Transport.Close()
	n.wg.Wait()
	n.network.Close()
	return err
}

// sendRemote is the network's raw sender: resolve the endpoint serving
// address and ship the payload in an envelope.
func (n *DefaultNode) sendRemote(ctx context.Context, address string, payload []byte) error {
	peer, err := n.Router.Lookup(address)
	if err != nil {
		return fmt.Errorf("route %s: %w", address, err)
	}
	return n.Transport.Send(ctx, peer.Endpoint, transport.NewEnvelope(address, payload))
}

func (n *DefaultNode) handleInbound() {
	defer n.wg.Done()
	for env := range n.Transport.Inbound() {
		logs.Debugf("handleInbound(%s): envelope %s", env.Address, env.ID)
		if err := n.network.ReceiveMessage(env.Address, env.Payload); err != nil {
			logs.Warnf("handleInbound(%s): %v", env.Address, err)
		}
	}
	logs.Debugf("handleInbound(): exiting")
}
