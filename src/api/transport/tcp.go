package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	logs "github.com/danmuck/smplog"
)

type TCPHandler struct {
	address  string
	listener net.Listener
	inbound  chan *Envelope
	coder    Coder
	exit     chan any
	stop     chan struct{}
	once     sync.Once
	wg       sync.WaitGroup

	mu    sync.Mutex
	conns map[string]net.Conn
}

var _ TransportHandler = (*TCPHandler)(nil)

// TCPHandler generator function
func NewTCPHandler(address string, exit chan any) *TCPHandler {
	logs.Debugf("NewTCPHandler(%s)", address)
	return &TCPHandler{
		address: address,
		inbound: make(chan *Envelope, 64),
		exit:    exit,
		stop:    make(chan struct{}),
		coder:   DefaultCoder{},
		conns:   make(map[string]net.Conn),
	}
}

// interface

// close listener, outbound connections and the inbound channel
func (h *TCPHandler) Close() error {
	logs.Debugf("Close(start)")
	h.once.Do(func() {
		close(h.stop)

		h.mu.Lock()
		for endpoint, conn := range h.conns {
			conn.Close()
			delete(h.conns, endpoint)
		}
		h.mu.Unlock()

		h.wg.Wait()
		close(h.inbound)
	})
	logs.Debugf("Close(done)")
	return nil
}

// Listen and accept connections via TCPHandler.listener
func (h *TCPHandler) ListenAndAccept() error {
	logs.Debugf("ListenAndAccept(%s)", h.address)
	var err error
	h.listener, err = net.Listen("tcp", HostPort(h.address))
	if err != nil {
		return err
	}

	h.wg.Add(1)
	go h.acceptConnections()

	return nil
}

func (h *TCPHandler) Addr() string {
	if h.listener == nil {
		return ""
	}
	return h.listener.Addr().String()
}

// Send an envelope to endpoint using the configured encoder. Connections
// are cached per endpoint and dropped on write failure.
func (h *TCPHandler) Send(ctx context.Context, endpoint string, env *Envelope) error {
	data, err := h.coder.Encode(env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}

	conn, err := h.dial(ctx, endpoint)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", endpoint, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetWriteDeadline(deadline)
	} else {
		conn.SetWriteDeadline(time.Time{})
	}

	_, err = conn.Write(data)
	if err != nil {
		h.drop(endpoint, conn)
		return fmt.Errorf("failed to write envelope: %w", err)
	}
	logs.Debugf("Send(%s): envelope %s for %s", endpoint, env.ID, env.Address)
	return nil
}

// Receive envelopes from the inbound channel
func (h *TCPHandler) Inbound() <-chan *Envelope {
	return h.inbound
}

// private

func (h *TCPHandler) dial(ctx context.Context, endpoint string) (net.Conn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conn, ok := h.conns[endpoint]; ok {
		return conn, nil
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", HostPort(endpoint))
	if err != nil {
		return nil, err
	}
	h.conns[endpoint] = conn
	return conn, nil
}

func (h *TCPHandler) drop(endpoint string, conn net.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[endpoint] == conn {
		delete(h.conns, endpoint)
	}
	conn.Close()
}

func (h *TCPHandler) done() bool {
	select {
	case <-h.exit:
		return true
	case <-h.stop:
		return true
	default:
		return false
	}
}

// listener accept loop
func (h *TCPHandler) acceptConnections() {
	logs.Debugf("acceptConnections(): start")
	defer h.wg.Done()
	defer h.listener.Close()
	for {
		if h.done() {
			logs.Debugf("acceptConnections(): exit")
			return
		}
		h.listener.(*net.TCPListener).SetDeadline(time.Now().Add(500 * time.Millisecond)) // Non-blocking
		conn, err := h.listener.Accept()
		if err != nil {
			var opErr *net.OpError
			if errors.As(err, &opErr) && opErr.Timeout() {
				// Timeout, continue to check exit
				continue
			}
			logs.Warnf("acceptConnections error: %s", err)
			return
		}
		h.wg.Add(1)
		go h.handleConnection(conn)
	}
}

// listener connection handler
func (h *TCPHandler) handleConnection(conn net.Conn) {
	defer h.wg.Done()
	defer conn.Close()
	clientAddr := conn.RemoteAddr().String()
	logs.Debugf("handleConnection(%s): start", clientAddr)

	reader := bufio.NewReader(conn)

	for !h.done() {
		conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond)) // Non-blocking

		_, err := reader.Peek(1)
		if err != nil {
			var opErr *net.OpError
			if errors.As(err, &opErr) && opErr.Timeout() {
				// Timeout, continue to check exit
				continue
			}
			if err == io.EOF {
				logs.Debugf("Connection closed by peer.")
				return
			}
			logs.Warnf("Error reading from reader: %v", err)
			return
		}

		// a frame has started; give the rest of it time to arrive
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		env, err := h.coder.Decode(reader)
		if err != nil {
			logs.Warnf("handleConnection error: %v", err)
			break
		}

		select {
		case h.inbound <- env:
		case <-h.exit:
			return
		case <-h.stop:
			return
		}
	}
	logs.Debugf("handleConnection(%s): connection released", clientAddr)
}
