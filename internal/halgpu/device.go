// Package halgpu adapts a gogpu/wgpu HAL device to the frame package.
//
// WebGPU exposes a single queue per device, so both frame.QueueCompute and
// frame.QueueGraphics submissions go to it. The queue executes submissions
// in order, which already satisfies every semaphore dependency of the frame
// protocol; semaphores are therefore markers with no device object behind
// them. Fences track the submission index returned by the queue.
package halgpu

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/gridframe/frame"
	"github.com/gogpu/wgpu/hal"

	// Register the Vulkan backend for Open.
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

var (
	// ErrNoHAL is returned by FromProvider when the provider does not
	// expose HAL objects.
	ErrNoHAL = errors.New("halgpu: provider does not expose HAL device and queue")

	// ErrForeignObject is returned when an object from another device
	// implementation is passed in.
	ErrForeignObject = errors.New("halgpu: object not created by halgpu")

	// ErrNoAdapter is returned by Open when the backend reports no adapter.
	ErrNoAdapter = errors.New("halgpu: no GPU adapters found")
)

// pollInterval is the sleep between completion polls in Fence.Wait.
const pollInterval = 200 * time.Microsecond

// Device implements frame.Device and frame.Queue over a HAL device.
type Device struct {
	device hal.Device
	queue  hal.Queue

	// Set when the device was opened here and must be destroyed by Close.
	instance hal.Instance
	owned    bool
}

// New wraps an existing device and queue. Close does not destroy them.
func New(device hal.Device, queue hal.Queue) *Device {
	return &Device{device: device, queue: queue}
}

// FromProvider wraps the device shared by a host application. The provider
// must also implement HalDevice() any and HalQueue() any.
func FromProvider(provider gpucontext.DeviceProvider) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNoHAL
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is %T", ErrNoHAL, hp.HalDevice())
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is %T", ErrNoHAL, hp.HalQueue())
	}
	slogger().Debug("halgpu: using provider device")
	return New(device, queue), nil
}

// Open creates an instance of backend and opens the first discrete or
// integrated GPU, falling back to the first adapter.
func Open(backend gputypes.Backend) (*Device, error) {
	b, ok := hal.GetBackend(backend)
	if !ok {
		return nil, fmt.Errorf("halgpu: backend %v not available", backend)
	}
	instance, err := b.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("halgpu: create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoAdapter
	}
	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("halgpu: open device: %w", err)
	}
	slogger().Info("halgpu: device opened", "adapter", selected.Info.Name)
	return &Device{device: openDev.Device, queue: openDev.Queue, instance: instance, owned: true}, nil
}

// HAL returns the wrapped device and queue.
func (d *Device) HAL() (hal.Device, hal.Queue) { return d.device, d.queue }

// Close destroys the device if Open created it.
func (d *Device) Close() {
	if !d.owned {
		return
	}
	d.device.Destroy()
	if d.instance != nil {
		d.instance.Destroy()
	}
	d.owned = false
}

// CreateFence implements frame.Device.
func (d *Device) CreateFence(signaled bool) (frame.Fence, error) {
	return &Fence{queue: d.queue, armed: !signaled}, nil
}

// CreateSemaphore implements frame.Device.
func (d *Device) CreateSemaphore() (frame.Semaphore, error) {
	return Semaphore{}, nil
}

// CreateCommandBuffer implements frame.Device.
func (d *Device) CreateCommandBuffer(kind frame.QueueKind) (frame.CommandBuffer, error) {
	return &CommandBuffer{device: d.device, kind: kind}, nil
}

// Submit implements frame.Queue. Wait and signal semaphores are implied by
// queue order.
func (d *Device) Submit(s frame.Submission) error {
	var fence *Fence
	if s.Fence != nil {
		f, ok := s.Fence.(*Fence)
		if !ok {
			return fmt.Errorf("%w: fence %T", ErrForeignObject, s.Fence)
		}
		fence = f
	}

	cmds := make([]hal.CommandBuffer, 0, len(s.Commands))
	for _, c := range s.Commands {
		cb, ok := c.(*CommandBuffer)
		if !ok {
			return fmt.Errorf("%w: command buffer %T", ErrForeignObject, c)
		}
		raw, err := cb.finish()
		if err != nil {
			return err
		}
		cmds = append(cmds, raw)
	}

	index, err := d.queue.Submit(cmds)
	if err != nil {
		return fmt.Errorf("halgpu: submit: %w", err)
	}
	if fence != nil {
		fence.index, fence.armed = index, false
	}
	return nil
}

// Fence implements frame.Fence over the queue's submission index. It is
// signaled once the queue has completed the submission that last carried
// it.
type Fence struct {
	queue hal.Queue
	index uint64

	// armed is set between Reset and the next submission.
	armed bool
}

// Wait implements frame.Fence. The queue is polled every pollInterval; ctx
// is checked between polls.
func (f *Fence) Wait(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	forever := timeout == frame.WaitForever
	for {
		if f.Signaled() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !forever && !time.Now().Before(deadline) {
			return fmt.Errorf("%w after %v", frame.ErrWaitTimeout, timeout)
		}
		time.Sleep(pollInterval)
	}
}

// Reset implements frame.Fence. The fence stays unsignaled until it is
// submitted again.
func (f *Fence) Reset() error {
	f.armed = true
	return nil
}

// Signaled implements frame.Fence.
func (f *Fence) Signaled() bool {
	return !f.armed && f.queue.PollCompleted() >= f.index
}

// Destroy implements frame.Fence. The fence holds no device object.
func (f *Fence) Destroy() {}

// Semaphore implements frame.Semaphore. It carries no device object.
type Semaphore struct{}

// Destroy is a no-op.
func (Semaphore) Destroy() {}
