package softgpu

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gridframe/frame"
)

// Fence is a completion flag backed by a channel that is closed when the
// fence is signaled.
type Fence struct {
	mu   sync.Mutex
	done chan struct{}
}

func newFence(signaled bool) *Fence {
	f := &Fence{done: make(chan struct{})}
	if signaled {
		close(f.done)
	}
	return f
}

func (f *Fence) current() chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.done
}

// Wait blocks until the fence is signaled, ctx is done or timeout elapses.
func (f *Fence) Wait(ctx context.Context, timeout time.Duration) error {
	done := f.current()
	select {
	case <-done:
		return nil
	default:
	}

	var expired <-chan time.Time
	if timeout != frame.WaitForever {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-expired:
		return fmt.Errorf("%w after %v", frame.ErrWaitTimeout, timeout)
	}
}

// Reset makes the fence unsignaled. Resetting an unsignaled fence is a
// no-op.
func (f *Fence) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	select {
	case <-f.done:
		f.done = make(chan struct{})
	default:
	}
	return nil
}

// Signaled reports whether the fence is signaled.
func (f *Fence) Signaled() bool {
	select {
	case <-f.current():
		return true
	default:
		return false
	}
}

func (f *Fence) signal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	select {
	case <-f.done:
	default:
		close(f.done)
	}
}

// Destroy is a no-op; fences hold no device memory.
func (f *Fence) Destroy() {}

// Semaphore orders submissions on the device. It counts up to
// frame.FramesInFlight unconsumed signals; waits consume them in order.
type Semaphore struct {
	ch chan struct{}
}

func newSemaphore() *Semaphore {
	return &Semaphore{ch: make(chan struct{}, frame.FramesInFlight)}
}

func (s *Semaphore) signal() error {
	select {
	case s.ch <- struct{}{}:
		return nil
	default:
		return ErrSemaphoreOverflow
	}
}

// wait consumes the signal. It returns false if quit closes first.
func (s *Semaphore) wait(quit <-chan struct{}) bool {
	select {
	case <-s.ch:
		return true
	case <-quit:
		return false
	}
}

// Destroy is a no-op.
func (s *Semaphore) Destroy() {}
