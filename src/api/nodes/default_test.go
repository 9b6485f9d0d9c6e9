package nodes

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/danmuck/peernet/src/api/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type loopback struct{}

func (loopback) InterfaceFor(address string) (string, error) {
	if address == "127.0.0.1" {
		return "lo", nil
	}
	return "", errors.New("unknown address")
}

func (loopback) AddressFor(string) (string, error) {
	return "127.0.0.1", nil
}

func startNode(t *testing.T, transport string) *DefaultNode {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Transport = transport
	if transport == TransportZMQ {
		cfg.Listen = freeEndpoint(t)
	}

	n, err := NewDefaultNode(cfg, network.WithResolver(loopback{}))
	require.NoError(t, err)
	require.NoError(t, n.Start(context.Background()))
	t.Cleanup(func() { n.Shutdown() })
	return n
}

func testNodesExchange(t *testing.T, transport string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	left := startNode(t, transport)
	right := startNode(t, transport)
	assert.Equal(t, "tcp://"+left.Address(), left.Network().OwnURI())

	a, err := left.Network().CreateMessenger(ctx, "peerA")
	require.NoError(t, err)
	b, err := right.Network().CreateMessenger(ctx, "peerB")
	require.NoError(t, err)

	require.NoError(t, left.Router.Insert(Peer{Address: "peerB", Endpoint: right.Network().OwnURI()}))
	require.NoError(t, right.Router.Insert(Peer{Address: "peerA", Endpoint: left.Network().OwnURI()}))

	pongs := make(chan any, 1)
	a.On("pong", func(args ...any) { pongs <- args[0] })
	b.On("ping", func(args ...any) {
		// the reply-to address travels in the arguments
		replyTo := args[0].(string)
		if err := b.Send(ctx, replyTo, "pong", args[1]); err != nil {
			t.Errorf("pong: %v", err)
		}
	})

	sent := make(chan network.SentEvent, 1)
	left.Network().OnSent(func(ev network.SentEvent) { sent <- ev })

	require.NoError(t, a.Send(ctx, "peerB", "ping", "peerA", map[string]any{"n": 1}))

	select {
	case ev := <-sent:
		assert.False(t, ev.InMemory)
		assert.Equal(t, "peerB", ev.To)
	case <-ctx.Done():
		t.Fatal("timed out waiting for sent event")
	}

	select {
	case v := <-pongs:
		assert.Equal(t, map[string]any{"n": 1}, v)
	case <-ctx.Done():
		t.Fatal("timed out waiting for pong")
	}
}

func TestDefaultNodeTCPExchange(t *testing.T) {
	testNodesExchange(t, TransportTCP)
}

func TestDefaultNodeZMQExchange(t *testing.T) {
	testNodesExchange(t, TransportZMQ)
}

func TestDefaultNodeUnroutable(t *testing.T) {
	n := startNode(t, TransportTCP)

	// the node will not route an address back to its own listener
	err := n.Router.Insert(Peer{Address: "loop", Endpoint: n.Network().OwnURI()})
	assert.ErrorIs(t, err, ErrSelfRoute)

	err = n.Network().Send(context.Background(), "nobody", []byte("x"))
	assert.ErrorIs(t, err, ErrPeerNotFound)
}

func TestNewDefaultNodeRejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Transport = "smoke-signal"
	_, err := NewDefaultNode(cfg, network.WithResolver(loopback{}))
	assert.ErrorIs(t, err, network.ErrConfig)

	cfg = DefaultConfig()
	cfg.Network = network.Options{}
	_, err = NewDefaultNode(cfg, network.WithResolver(loopback{}))
	assert.ErrorIs(t, err, network.ErrConfig)
}

func freeEndpoint(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().String()
}
