package network

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// SentEvent reports which path a completed send took.
type SentEvent struct {
	To       string
	Payload  []byte
	InMemory bool
}

type (
	// SubscribeFunc observes an address entering or leaving the table.
	// CreateMessenger and Destroy wait for every listener to return.
	SubscribeFunc func(ctx context.Context, address string) error
	SentFunc      func(SentEvent)
	// ErrorFunc receives failures from deferred deliveries, which have no
	// caller left to return them to.
	ErrorFunc func(error)
)

// OnSubscribe registers a listener fired when a Messenger is created.
func (n *Network) OnSubscribe(fn SubscribeFunc) {
	n.lmu.Lock()
	defer n.lmu.Unlock()
	n.onSubscribe = append(n.onSubscribe, fn)
}

// OnUnsubscribe registers a listener fired when a Messenger is destroyed.
func (n *Network) OnUnsubscribe(fn SubscribeFunc) {
	n.lmu.Lock()
	defer n.lmu.Unlock()
	n.onUnsubscribe = append(n.onUnsubscribe, fn)
}

func (n *Network) OnSent(fn SentFunc) {
	n.lmu.Lock()
	defer n.lmu.Unlock()
	n.onSent = append(n.onSent, fn)
}

func (n *Network) OnError(fn ErrorFunc) {
	n.lmu.Lock()
	defer n.lmu.Unlock()
	n.onError = append(n.onError, fn)
}

// announce runs every listener concurrently and waits for all of them.
func (n *Network) announce(ctx context.Context, unsubscribe bool, address string) error {
	n.lmu.RLock()
	listeners := n.onSubscribe
	if unsubscribe {
		listeners = n.onUnsubscribe
	}
	listeners = append([]SubscribeFunc(nil), listeners...)
	n.lmu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, fn := range listeners {
		g.Go(func() error { return fn(gctx, address) })
	}
	return g.Wait()
}

func (n *Network) emitSent(ev SentEvent) {
	n.lmu.RLock()
	listeners := append([]SentFunc(nil), n.onSent...)
	n.lmu.RUnlock()

	for _, fn := range listeners {
		fn(ev)
	}
}

func (n *Network) emitError(err error) {
	n.lmu.RLock()
	listeners := append([]ErrorFunc(nil), n.onError...)
	n.lmu.RUnlock()

	for _, fn := range listeners {
		fn(err)
	}
}
