package nodes

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/peernet/src/api/network"
)

const (
	TransportTCP = "tcp"
	TransportZMQ = "zmq"
)

// Config describes one node. It is usually read from a TOML file:
//
//	id = "node-1"
//	listen = "127.0.0.1:7000"
//	transport = "tcp"
//
//	[network]
//	address = "127.0.0.1"
//
//	[[peers]]
//	address = "peerB"
//	endpoint = "tcp://127.0.0.1:7001"
type Config struct {
	ID        string          `toml:"id"`
	Listen    string          `toml:"listen"`
	Transport string          `toml:"transport"`
	Network   network.Options `toml:"network"`
	Peers     []Peer          `toml:"peers"`
}

// DefaultConfig listens on an ephemeral loopback port over TCP.
func DefaultConfig() Config {
	return Config{
		Listen:    "127.0.0.1:0",
		Transport: TransportTCP,
		Network: network.Options{
			Protocol: network.DefaultProtocol,
			Address:  "127.0.0.1",
		},
	}
}

// LoadConfig decodes path over DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.Transport {
	case TransportTCP, TransportZMQ:
	default:
		return fmt.Errorf("%w: unknown transport %q", network.ErrConfig, c.Transport)
	}
	if c.Listen == "" {
		return fmt.Errorf("%w: listen address required", network.ErrConfig)
	}
	for i, p := range c.Peers {
		if p.Address == "" || p.Endpoint == "" {
			return fmt.Errorf("%w: peers[%d] needs address and endpoint", network.ErrConfig, i)
		}
	}
	return nil
}
