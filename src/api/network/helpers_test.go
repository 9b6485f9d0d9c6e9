package network

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// manualScheduler holds deferred tasks until tick is called.
type manualScheduler struct {
	mu    sync.Mutex
	tasks []func()
}

func (s *manualScheduler) Defer(task func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, task)
	return nil
}

func (s *manualScheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// tick runs the tasks queued so far, in order.
func (s *manualScheduler) tick() {
	s.mu.Lock()
	tasks := s.tasks
	s.tasks = nil
	s.mu.Unlock()
	for _, task := range tasks {
		task()
	}
}

type fakeResolver struct {
	ifaces map[string]string // address -> interface
}

func (r fakeResolver) InterfaceFor(address string) (string, error) {
	for addr, iface := range r.ifaces {
		if addr == address {
			return iface, nil
		}
	}
	return "", errors.New("unknown address")
}

func (r fakeResolver) AddressFor(iface string) (string, error) {
	for addr, name := range r.ifaces {
		if name == iface {
			return addr, nil
		}
	}
	return "", errors.New("unknown interface")
}

type rawCall struct {
	address string
	payload []byte
}

// recorder captures raw sends and sent events.
type recorder struct {
	mu   sync.Mutex
	raw  []rawCall
	sent []SentEvent
	errs []error
	fail error
}

func (r *recorder) send(_ context.Context, address string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.raw = append(r.raw, rawCall{address: address, payload: payload})
	return nil
}

func (r *recorder) onSent(ev SentEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, ev)
}

func (r *recorder) onError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) rawCalls() []rawCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]rawCall(nil), r.raw...)
}

func (r *recorder) sentEvents() []SentEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SentEvent(nil), r.sent...)
}

func (r *recorder) failures() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

var testResolver = fakeResolver{ifaces: map[string]string{"10.0.0.5": "eth0", "127.0.0.1": "lo"}}

// newTestNetwork returns a Network on a manual scheduler with a recording
// raw sender installed.
func newTestNetwork(t *testing.T) (*Network, *manualScheduler, *recorder) {
	t.Helper()
	sched := &manualScheduler{}
	rec := &recorder{}

	n, err := New(Options{Address: "127.0.0.1"},
		WithResolver(testResolver),
		WithScheduler(sched),
		WithMessageSender(rec.send),
	)
	require.NoError(t, err)
	n.OnSent(rec.onSent)
	n.OnError(rec.onError)
	t.Cleanup(n.Close)
	return n, sched, rec
}
