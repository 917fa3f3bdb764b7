package frame

import (
	"context"
	"math"
	"time"

	"github.com/gogpu/gridframe/config"
)

// WaitForever is the fence wait timeout used by the frame loop. A wait that
// exceeds it is treated as a lost device.
const WaitForever = time.Duration(math.MaxInt64)

// QueueKind selects the hardware queue a command buffer is allocated for.
type QueueKind uint8

const (
	QueueCompute QueueKind = iota
	QueueGraphics
)

func (k QueueKind) String() string {
	if k == QueueCompute {
		return "compute"
	}
	return "graphics"
}

// Fence is a host-waitable completion flag signaled by the device when a
// submission finishes.
type Fence interface {
	// Wait blocks until the fence is signaled, ctx is done or timeout
	// elapses. A timeout returns an error wrapping ErrWaitTimeout.
	Wait(ctx context.Context, timeout time.Duration) error
	// Reset returns the fence to the unsignaled state.
	Reset() error
	Signaled() bool
	Destroy()
}

// Semaphore is a device-side signal used to order submissions and
// presentation without blocking the host.
type Semaphore interface {
	Destroy()
}

// CommandBuffer is an opaque recording target filled by a Recorder.
type CommandBuffer interface {
	Reset() error
	Destroy()
}

// Device creates the synchronization objects and command buffers owned by
// the frame slots.
type Device interface {
	// CreateFence creates a fence, initially signaled if signaled is true.
	CreateFence(signaled bool) (Fence, error)
	CreateSemaphore() (Semaphore, error)
	CreateCommandBuffer(kind QueueKind) (CommandBuffer, error)
}

// Submission is one batch of command buffers for a queue.
type Submission struct {
	Commands []CommandBuffer
	// Wait semaphores must be signaled before the commands execute.
	Wait []Semaphore
	// Signal semaphores are signaled when the commands complete.
	Signal []Semaphore
	// Fence, if non-nil, is signaled when the commands complete.
	Fence Fence
}

// Queue accepts submissions. Submit must not block on device execution.
type Queue interface {
	Submit(s Submission) error
}

// Extent is the size of the presentation surface in pixels.
type Extent struct {
	Width, Height uint32
}

// AcquireStatus is the outcome of Surface.Acquire.
type AcquireStatus uint8

const (
	AcquireOK AcquireStatus = iota
	// AcquireSuboptimal returns a usable image; the frame proceeds.
	AcquireSuboptimal
	// AcquireStale means no image was acquired and the surface must be
	// recreated.
	AcquireStale
)

// PresentStatus is the outcome of Surface.Present.
type PresentStatus uint8

const (
	PresentOK PresentStatus = iota
	PresentSuboptimal
	PresentStale
)

// Surface is the presentation engine.
type Surface interface {
	// Acquire returns the index of the next image. On AcquireOK and
	// AcquireSuboptimal, signal is signaled once the image is ready.
	Acquire(signal Semaphore) (uint32, AcquireStatus, error)
	// Present queues image for presentation after wait is signaled.
	Present(image uint32, wait Semaphore) (PresentStatus, error)
	Extent() Extent
}

// ResizeNotifier reports external resize requests, such as a window
// framebuffer change. TakeResize clears the pending request.
type ResizeNotifier interface {
	TakeResize() bool
}

// Recreator rebuilds surface-dependent state. It must be synchronous and
// idempotent; an error is fatal to the frame loop.
type Recreator func() error

// Recorder fills command buffers. The frame loop only resets and submits
// them; it never inspects their contents.
type Recorder interface {
	RecordCompute(slot SlotIndex, snap *config.Snapshot, cmd CommandBuffer) error
	RecordGraphics(slot SlotIndex, image uint32, snap *config.Snapshot, cmd CommandBuffer) error
}

// Params writes per-frame simulation and camera parameters into the
// slot's host-visible uniform memory.
type Params interface {
	UpdateUniforms(slot SlotIndex, extent Extent, snap *config.Snapshot) error
}
