package nodes

import (
	"context"

	"github.com/danmuck/peernet/src/api/network"
)

// Node hosts a Network on a real transport. Addresses the Network does
// not manage are looked up in the node's RoutingTable and sent over the
// wire; inbound envelopes are handed back to the Network.
type Node interface {
	ID() string                      // transport identity
	Address() string                 // bound listener address, empty before Start
	Start(ctx context.Context) error // listen and route remote traffic
	Shutdown() error                 // stop transport and network
	Network() *network.Network       // the local address table
	Peers() []Peer                   // known remote peers
}
