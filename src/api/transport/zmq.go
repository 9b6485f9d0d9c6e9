package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	logs "github.com/danmuck/smplog"
	"github.com/go-zeromq/zmq4"
)

var ErrNotListening = errors.New("handler is not listening")

// ZmqHandler receives envelopes on a ROUTER socket and sends them through
// one DEALER socket per remote endpoint.
type ZmqHandler struct {
	id       string
	endpoint string

	ctx    context.Context
	cancel context.CancelFunc

	router  zmq4.Socket
	dealers map[string]zmq4.Socket
	mu      sync.Mutex

	inbound chan *Envelope
	once    sync.Once
	wg      sync.WaitGroup
}

var _ TransportHandler = (*ZmqHandler)(nil)

// NewZmqHandler creates a handler that will bind to endpoint
// (tcp://host:port or host:port). id becomes the socket identity.
func NewZmqHandler(id, endpoint string) *ZmqHandler {
	ctx, cancel := context.WithCancel(context.Background())
	return &ZmqHandler{
		id:       id,
		endpoint: "tcp://" + HostPort(endpoint),
		ctx:      ctx,
		cancel:   cancel,
		dealers:  make(map[string]zmq4.Socket),
		inbound:  make(chan *Envelope, 64),
	}
}

func (h *ZmqHandler) ListenAndAccept() error {
	logs.Debugf("ListenAndAccept(%s)", h.endpoint)
	h.mu.Lock()
	defer h.mu.Unlock()

	router := zmq4.NewRouter(h.ctx, zmq4.WithID(zmq4.SocketIdentity(h.id)))
	if err := router.Listen(h.endpoint); err != nil {
		router.Close()
		return fmt.Errorf("failed to bind router: %w", err)
	}
	h.router = router

	h.wg.Add(1)
	go h.receiverLoop()
	return nil
}

func (h *ZmqHandler) Addr() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.router == nil || h.router.Addr() == nil {
		return ""
	}
	return h.router.Addr().String()
}

func (h *ZmqHandler) Send(ctx context.Context, endpoint string, env *Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := env.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}

	dealer, err := h.dealer(endpoint)
	if err != nil {
		return err
	}
	if err := dealer.Send(zmq4.NewMsg(data)); err != nil {
		h.dropDealer(endpoint, dealer)
		return fmt.Errorf("failed to send envelope: %w", err)
	}
	logs.Debugf("Send(%s): envelope %s for %s", endpoint, env.ID, env.Address)
	return nil
}

func (h *ZmqHandler) Inbound() <-chan *Envelope {
	return h.inbound
}

func (h *ZmqHandler) Close() error {
	h.once.Do(func() {
		h.cancel()

		h.mu.Lock()
		if h.router != nil {
			_ = h.router.Close()
		}
		for endpoint, dealer := range h.dealers {
			_ = dealer.Close()
			delete(h.dealers, endpoint)
		}
		h.mu.Unlock()

		h.wg.Wait()
		close(h.inbound)
	})
	return nil
}

func (h *ZmqHandler) dealer(endpoint string) (zmq4.Socket, error) {
	key := "tcp://" + HostPort(endpoint)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ctx.Err() != nil {
		return nil, ErrNotListening
	}
	if d, ok := h.dealers[key]; ok {
		return d, nil
	}

	d := zmq4.NewDealer(h.ctx, zmq4.WithID(zmq4.SocketIdentity(h.id)))
	if err := d.Dial(key); err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", key, err)
	}
	h.dealers[key] = d
	return d, nil
}

func (h *ZmqHandler) dropDealer(endpoint string, d zmq4.Socket) {
	key := "tcp://" + HostPort(endpoint)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.dealers[key] == d {
		delete(h.dealers, key)
	}
	_ = d.Close()
}

// receiverLoop reads ROUTER messages. The last frame is the envelope; the
// frames before it are peer identities added by the socket.
func (h *ZmqHandler) receiverLoop() {
	defer h.wg.Done()

	for {
		msg, err := h.router.Recv()
		if err != nil {
			if h.ctx.Err() != nil {
				return
			}
			logs.Warnf("receiverLoop error: %v", err)
			continue
		}
		if len(msg.Frames) == 0 {
			continue
		}

		env := &Envelope{}
		if err := env.UnmarshalBinary(msg.Frames[len(msg.Frames)-1]); err != nil {
			logs.Warnf("receiverLoop: dropping frame: %v", err)
			continue
		}

		select {
		case h.inbound <- env:
		case <-h.ctx.Done():
			return
		}
	}
}
