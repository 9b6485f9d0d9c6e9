package transport

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestTCPHandlerListenAndAccept(t *testing.T) {
	exit := make(chan any)
	handler := NewTCPHandler("localhost:0", exit)

	if err := handler.ListenAndAccept(); err != nil {
		t.Fatalf("ListenAndAccept failed: %v", err)
	}

	// Verify we can connect to it
	conn, err := net.DialTimeout("tcp", handler.Addr(), 2*time.Second)
	if err != nil {
		t.Fatalf("Failed to connect to handler: %v", err)
	}
	conn.Close()

	// Clean shutdown
	close(exit)
	handler.Close()

	if _, ok := <-handler.Inbound(); ok {
		t.Fatal("Expected inbound channel to be closed")
	}
}

func TestTCPHandlerReceiveRawFrame(t *testing.T) {
	exit := make(chan any)
	handler := NewTCPHandler("localhost:0", exit)

	if err := handler.ListenAndAccept(); err != nil {
		t.Fatalf("ListenAndAccept failed: %v", err)
	}
	defer handler.Close()

	// Connect a client
	conn, err := net.DialTimeout("tcp", handler.Addr(), 2*time.Second)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	// Send an envelope from the client side
	env := &Envelope{
		ID:      "frame-1",
		Address: "peerB",
		Payload: []byte("hello"),
	}

	coder := DefaultCoder{}
	encoded, err := coder.Encode(env)
	if err != nil {
		t.Fatalf("Failed to encode envelope: %v", err)
	}

	if _, err := conn.Write(encoded); err != nil {
		t.Fatalf("Failed to write envelope: %v", err)
	}

	// Read from inbound channel
	select {
	case received := <-handler.Inbound():
		if received == nil {
			t.Fatal("Received nil envelope")
		}
		if received.Address != "peerB" {
			t.Errorf("Expected address 'peerB', got '%s'", received.Address)
		}
		if string(received.Payload) != "hello" {
			t.Errorf("Expected payload 'hello', got '%s'", received.Payload)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Timed out waiting for envelope")
	}
}

func TestTCPHandlerSendBetweenHandlers(t *testing.T) {
	server := NewTCPHandler("localhost:0", nil)
	if err := server.ListenAndAccept(); err != nil {
		t.Fatalf("ListenAndAccept failed: %v", err)
	}
	defer server.Close()

	client := NewTCPHandler("localhost:0", nil)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	endpoint := "tcp://" + server.Addr()
	for i, body := range []string{"one", "two"} {
		if err := client.Send(ctx, endpoint, NewEnvelope("peerA", []byte(body))); err != nil {
			t.Fatalf("Send #%d failed: %v", i, err)
		}
	}

	// both frames ride the cached connection, in order
	for _, want := range []string{"one", "two"} {
		select {
		case got := <-server.Inbound():
			if string(got.Payload) != want {
				t.Errorf("Expected payload '%s', got '%s'", want, got.Payload)
			}
			if got.ID == "" {
				t.Error("Expected envelope id to survive the wire")
			}
		case <-ctx.Done():
			t.Fatalf("Timed out waiting for %s", want)
		}
	}
}

func TestTCPHandlerSendUnreachable(t *testing.T) {
	// grab a free port, then release it so nothing listens there
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	addr := l.Addr().String()
	l.Close()

	client := NewTCPHandler("localhost:0", nil)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Send(ctx, addr, NewEnvelope("peerA", nil)); err == nil {
		t.Fatal("Expected dial error")
	}
}
