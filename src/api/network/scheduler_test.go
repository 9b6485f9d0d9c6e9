package network

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoopRunsInOrder(t *testing.T) {
	l := NewLoop()

	var mu sync.Mutex
	var got []int
	for i := 0; i < 100; i++ {
		assert.NoError(t, l.Defer(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}
	l.Close()

	want := make([]int, 100)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, got)
}

func TestLoopRejectsAfterClose(t *testing.T) {
	l := NewLoop()
	l.Close()
	l.Close()

	ran := false
	assert.ErrorIs(t, l.Defer(func() { ran = true }), ErrClosed)
	assert.False(t, ran)
}

func TestLoopTaskMayDefer(t *testing.T) {
	l := NewLoop()
	done := make(chan struct{})
	assert.NoError(t, l.Defer(func() {
		assert.NoError(t, l.Defer(func() { close(done) }))
	}))
	<-done
	l.Close()
}
