package nodes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRouter(t *testing.T) {
	r := NewDefaultRouter("127.0.0.1:7000")

	require.NoError(t, r.Insert(Peer{Address: "peerB", Endpoint: "tcp://127.0.0.1:7001"}))
	require.NoError(t, r.Insert(Peer{Address: "peerA", Endpoint: "tcp://127.0.0.1:7002"}))
	assert.Equal(t, 2, r.Size())

	// re-inserting replaces the endpoint
	require.NoError(t, r.Insert(Peer{Address: "peerB", Endpoint: "tcp://127.0.0.1:7003"}))
	p, err := r.Lookup("peerB")
	require.NoError(t, err)
	assert.Equal(t, "tcp://127.0.0.1:7003", p.Endpoint)

	assert.Equal(t, []Peer{
		{Address: "peerA", Endpoint: "tcp://127.0.0.1:7002"},
		{Address: "peerB", Endpoint: "tcp://127.0.0.1:7003"},
	}, r.Peers())

	require.NoError(t, r.Remove("peerB"))
	assert.ErrorIs(t, r.Remove("peerB"), ErrPeerNotFound)
	_, err = r.Lookup("peerB")
	assert.ErrorIs(t, err, ErrPeerNotFound)

	assert.Error(t, r.Insert(Peer{Address: "peerC"}))
}

func TestDefaultRouterRefusesSelfRoute(t *testing.T) {
	r := NewDefaultRouter("127.0.0.1:7000")

	assert.ErrorIs(t, r.Insert(Peer{Address: "peerA", Endpoint: "tcp://127.0.0.1:7000"}), ErrSelfRoute)
	assert.ErrorIs(t, r.Insert(Peer{Address: "peerA", Endpoint: "127.0.0.1:7000"}), ErrSelfRoute)
	assert.Equal(t, 0, r.Size())

	// once rebound, the old endpoint is a valid remote again
	r.SetLocalhost("127.0.0.1:7100")
	require.NoError(t, r.Insert(Peer{Address: "peerA", Endpoint: "tcp://127.0.0.1:7000"}))
	assert.ErrorIs(t, r.Insert(Peer{Address: "peerB", Endpoint: "tcp://127.0.0.1:7100"}), ErrSelfRoute)
}
