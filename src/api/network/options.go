package network

import (
	"context"
	"fmt"

	"github.com/danmuck/peernet/src/api/netif"
	"github.com/danmuck/peernet/src/api/transport"
)

const (
	DefaultProtocol = "tcp"
	UnassignedPort  = "*"
)

// Options identify this node's own endpoint. Interface and Address are
// derived from each other when only one is set.
type Options struct {
	Protocol  string `toml:"protocol"`
	Interface string `toml:"interface"`
	Address   string `toml:"address"`
	Port      string `toml:"port"`
}

type (
	SerializeFunc   func(event string, args ...any) ([]byte, error)
	DeserializeFunc func(payload []byte) (string, []any, error)

	// MessageSender delivers a payload to an address that is not managed
	// by this Network. Its errors belong to the host.
	MessageSender func(ctx context.Context, address string, payload []byte) error
)

// Resolver maps between interface names and host addresses.
type Resolver interface {
	InterfaceFor(address string) (string, error)
	AddressFor(iface string) (string, error)
}

type Option func(*Network)

func WithSerializer(fn SerializeFunc) Option {
	return func(n *Network) { n.serialize = fn }
}

func WithDeserializer(fn DeserializeFunc) Option {
	return func(n *Network) { n.deserialize = fn }
}

// WithCodec installs both halves of a transport codec.
func WithCodec(c transport.EventCodec) Option {
	return func(n *Network) {
		n.serialize = c.Serialize
		n.deserialize = c.Deserialize
	}
}

func WithResolver(r Resolver) Option {
	return func(n *Network) { n.resolver = r }
}

// WithScheduler replaces the default Loop used for deferred local delivery.
func WithScheduler(s Scheduler) Option {
	return func(n *Network) { n.scheduler = s }
}

func WithMessageSender(fn MessageSender) Option {
	return func(n *Network) { n.sender = fn }
}

// resolve fills in the missing half of the interface/address pair.
func (o Options) resolve(r Resolver) (Options, error) {
	if o.Protocol == "" {
		o.Protocol = DefaultProtocol
	}
	if o.Port == "" {
		o.Port = UnassignedPort
	}

	var err error
	switch {
	case o.Interface == "" && o.Address == "":
		return o, fmt.Errorf("%w: neither interface nor address given", ErrConfig)
	case o.Interface == "":
		if o.Interface, err = r.InterfaceFor(o.Address); err != nil {
			return o, fmt.Errorf("%w: %v", ErrConfig, err)
		}
	case o.Address == "":
		if o.Address, err = r.AddressFor(o.Interface); err != nil {
			return o, fmt.Errorf("%w: %v", ErrConfig, err)
		}
	}
	return o, nil
}

var _ Resolver = netif.System{}
