package nodes

import (
	"errors"
	"sort"
	"sync"

	"github.com/danmuck/peernet/src/api/transport"
)

var (
	ErrPeerNotFound = errors.New("peer not found")
	ErrSelfRoute    = errors.New("peer endpoint is this node")
)

// Peer is a remote address and the transport endpoint that serves it.
type Peer struct {
	Address  string `toml:"address"`
	Endpoint string `toml:"endpoint"`
}

// All routing tables should implement this interface
type RoutingTable interface {
	Insert(peer Peer) error              // insert or replace a remote peer
	Remove(address string) error         // remove a peer by address
	Lookup(address string) (Peer, error) // lookup the endpoint serving address
	Peers() []Peer                       // all peers, sorted by address
	Size() int                           // number of known peers
}

type DefaultRouter struct {
	localhost string
	peers     map[string]Peer
	mu        sync.RWMutex
}

// NewDefaultRouter returns an empty table for a node listening on localhost.
func NewDefaultRouter(localhost string) *DefaultRouter {
	return &DefaultRouter{
		localhost: localhost,
		peers:     make(map[string]Peer),
	}
}

// Insert adds or replaces peer. Endpoints that point back at localhost
// are refused: an address this node does not manage would only bounce.
func (r *DefaultRouter) Insert(peer Peer) error {
	if peer.Address == "" || peer.Endpoint == "" {
		return errors.New("peer needs an address and an endpoint")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.localhost != "" && transport.HostPort(peer.Endpoint) == transport.HostPort(r.localhost) {
		return ErrSelfRoute
	}
	r.peers[peer.Address] = peer
	return nil
}

// SetLocalhost records the endpoint this node is actually bound to.
func (r *DefaultRouter) SetLocalhost(localhost string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.localhost = localhost
}

func (r *DefaultRouter) Remove(address string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.peers[address]; !exists {
		return ErrPeerNotFound
	}
	delete(r.peers, address)
	return nil
}

func (r *DefaultRouter) Lookup(address string) (Peer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	peer, ok := r.peers[address]
	if !ok {
		return Peer{}, ErrPeerNotFound
	}
	return peer, nil
}

func (r *DefaultRouter) Peers() []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Peer, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

func (r *DefaultRouter) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}
