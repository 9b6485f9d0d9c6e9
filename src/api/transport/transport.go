package transport

import (
	"context"
	"strings"
)

type TransportHandler interface {
	ListenAndAccept() error                                         // listen and accept connections
	Addr() string                                                   // bound host:port, empty before listening
	Send(ctx context.Context, endpoint string, env *Envelope) error // send an envelope to a remote endpoint
	Inbound() <-chan *Envelope                                      // inbound envelopes
	Close() error                                                   // close listener, connections and channels
}

// HostPort strips a scheme such as tcp:// from endpoint.
func HostPort(endpoint string) string {
	if i := strings.Index(endpoint, "://"); i >= 0 {
		return endpoint[i+3:]
	}
	return endpoint
}
