// Package frame drives the per-frame protocol between a compute queue, a
// graphics queue and a presentation surface.
//
// Each frame runs on one of FramesInFlight slots. A slot's command buffers
// are re-recorded only after its completion fence has been observed
// signaled, so at most FramesInFlight frames of work are in flight and the
// host never overwrites resources the device may still read. Cross-queue
// ordering (compute before graphics, acquire before graphics, graphics
// before present) is expressed with semaphores and never blocks the host.
//
// A Context is driven by a single goroutine:
//
//	fc, err := frame.NewContext(frame.Options{...})
//	if err != nil {
//		return err
//	}
//	defer fc.Destroy(context.Background())
//	_, err = fc.Run(ctx, 0)
package frame

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/gridframe/config"
)

// Options configures a Context. Device, ComputeQueue, GraphicsQueue,
// Surface and Recorder are required.
type Options struct {
	Device        Device
	ComputeQueue  Queue
	GraphicsQueue Queue
	Surface       Surface
	Recorder      Recorder

	// Params is optional.
	Params Params

	// Recreate is called when the surface goes stale or a resize is
	// pending. Nil means there is nothing to rebuild.
	Recreate Recreator
	Resize   ResizeNotifier

	// Registry supplies one configuration snapshot per frame. Nil uses
	// config.Default().
	Registry *config.Registry

	// WaitTimeout bounds fence waits. Zero means WaitForever.
	WaitTimeout time.Duration

	// Profile enables the frame profiler. It is also enabled by the
	// GRIDFRAME_FRAME_PROFILE environment variable.
	Profile bool
}

// FrameResult describes one AdvanceFrame call.
type FrameResult struct {
	// Slot is the frame slot the call used.
	Slot SlotIndex
	// Image is the presented surface image. Valid unless Skipped.
	Image uint32
	// Skipped is set when the surface was stale at acquire: compute was
	// submitted but nothing was drawn or presented, and the same slot is
	// retried by the next call.
	Skipped bool
	// Recreated is set when the recreation callback ran.
	Recreated bool
}

// Context is the frame orchestrator. It is not safe for concurrent use.
type Context struct {
	opts     Options
	sync     *SyncRegistry
	registry *config.Registry
	profiler *Profiler
	timeout  time.Duration

	slot   SlotIndex
	frames uint64

	// computePending marks a slot whose compute-finished semaphore was
	// signaled but not consumed by a graphics submission, after a stale
	// acquire. The next compute submission on the slot waits on it first.
	computePending [FramesInFlight]bool

	closed bool
}

// NewContext allocates the frame slots.
func NewContext(opts Options) (*Context, error) {
	switch {
	case opts.Device == nil:
		return nil, errors.New("frame: device is required")
	case opts.ComputeQueue == nil || opts.GraphicsQueue == nil:
		return nil, errors.New("frame: compute and graphics queues are required")
	case opts.Surface == nil:
		return nil, errors.New("frame: surface is required")
	case opts.Recorder == nil:
		return nil, ErrNoRecorder
	}

	sync, err := NewSyncRegistry(opts.Device)
	if err != nil {
		return nil, err
	}

	c := &Context{
		opts:     opts,
		sync:     sync,
		registry: opts.Registry,
		timeout:  opts.WaitTimeout,
	}
	if c.registry == nil {
		c.registry = config.NewRegistry(nil)
	}
	if c.timeout <= 0 {
		c.timeout = WaitForever
	}
	if opts.Profile || config.EnvFlag(config.EnvFrameProfile) {
		c.profiler = NewProfiler()
	}
	slogger().Debug("frame: context created", "slots", FramesInFlight, "profile", c.profiler != nil)
	return c, nil
}

// Slot returns the slot the next AdvanceFrame call will use.
func (c *Context) Slot() SlotIndex { return c.slot }

// Frames returns the number of frames presented so far.
func (c *Context) Frames() uint64 { return c.frames }

// Profiler returns the frame profiler, or nil when profiling is off.
func (c *Context) Profiler() *Profiler { return c.profiler }

// Sync exposes the slot synchronization objects, for recorders that need
// to inspect them in tests. They must not be mutated.
func (c *Context) Sync() *SyncRegistry { return c.sync }

// AdvanceFrame runs one frame on the current slot. Surface staleness is
// handled internally and never returned as an error; any returned error is
// fatal and the Context must then only be destroyed.
func (c *Context) AdvanceFrame(ctx context.Context) (FrameResult, error) {
	if c.closed {
		return FrameResult{}, ErrClosed
	}

	slot := c.slot
	s := c.sync.At(slot)
	snap := c.registry.Load()
	res := FrameResult{Slot: slot}
	p := c.profiler

	frameStart := p.start()

	// Compute: wait for the slot, refresh uniforms, record and submit.
	if err := s.ComputeFence.Wait(ctx, c.timeout); err != nil {
		return res, c.fail(OpWaitCompute, slot, err)
	}
	t := p.since(PhaseComputeWait, frameStart)

	if c.opts.Params != nil {
		if err := c.opts.Params.UpdateUniforms(slot, c.opts.Surface.Extent(), snap); err != nil {
			return res, c.fail(OpUpdateUniforms, slot, err)
		}
	}
	if err := c.submitCompute(slot, s, snap); err != nil {
		return res, err
	}
	t = p.since(PhaseComputeWork, t)

	// Graphics: wait for the slot and acquire an image.
	if err := s.GraphicsFence.Wait(ctx, c.timeout); err != nil {
		return res, c.fail(OpWaitGraphics, slot, err)
	}
	t = p.since(PhaseGraphicsWait, t)

	image, status, err := c.opts.Surface.Acquire(s.ImageAvailable)
	if err != nil {
		return res, c.fail(OpAcquire, slot, err)
	}
	t = p.since(PhaseAcquire, t)
	if status == AcquireStale {
		slogger().Warn("frame: surface stale at acquire, recreating", "slot", slot)
		if err := c.recreate(slot); err != nil {
			return res, err
		}
		res.Skipped, res.Recreated = true, true
		return res, nil
	}
	res.Image = image

	if err := c.submitGraphics(slot, image, s, snap); err != nil {
		return res, err
	}
	t = p.since(PhaseGraphicsSubmit, t)

	pst, err := c.opts.Surface.Present(image, s.RenderFinished)
	if err != nil {
		return res, c.fail(OpPresent, slot, err)
	}
	resized := c.opts.Resize != nil && c.opts.Resize.TakeResize()
	if pst != PresentOK || resized {
		slogger().Warn("frame: recreating surface after present",
			"slot", slot, "stale", pst == PresentStale, "suboptimal", pst == PresentSuboptimal, "resized", resized)
		if err := c.recreate(slot); err != nil {
			return res, err
		}
		res.Recreated = true
	}
	p.since(PhasePresent, t)

	c.slot = slot.Next()
	c.frames++
	p.endFrame(frameStart)
	return res, nil
}

func (c *Context) submitCompute(slot SlotIndex, s *SlotSync, snap *config.Snapshot) error {
	s.computeUnsubmitted = true
	if err := s.ComputeFence.Reset(); err != nil {
		return c.fail(OpSubmitCompute, slot, fmt.Errorf("reset fence: %w", err))
	}
	if err := s.ComputeCmd.Reset(); err != nil {
		return c.fail(OpRecordCompute, slot, fmt.Errorf("reset command buffer: %w", err))
	}
	if err := c.opts.Recorder.RecordCompute(slot, snap, s.ComputeCmd); err != nil {
		return c.fail(OpRecordCompute, slot, err)
	}

	sub := Submission{
		Commands: []CommandBuffer{s.ComputeCmd},
		Signal:   []Semaphore{s.ComputeFinished},
		Fence:    s.ComputeFence,
	}
	if c.computePending[slot] {
		sub.Wait = []Semaphore{s.ComputeFinished}
	}
	if err := c.opts.ComputeQueue.Submit(sub); err != nil {
		return c.fail(OpSubmitCompute, slot, err)
	}
	s.computeUnsubmitted = false
	c.computePending[slot] = true
	return nil
}

func (c *Context) submitGraphics(slot SlotIndex, image uint32, s *SlotSync, snap *config.Snapshot) error {
	s.graphicsUnsubmitted = true
	if err := s.GraphicsFence.Reset(); err != nil {
		return c.fail(OpSubmitGraphics, slot, fmt.Errorf("reset fence: %w", err))
	}
	if err := s.GraphicsCmd.Reset(); err != nil {
		return c.fail(OpRecordGraphics, slot, fmt.Errorf("reset command buffer: %w", err))
	}
	if err := c.opts.Recorder.RecordGraphics(slot, image, snap, s.GraphicsCmd); err != nil {
		return c.fail(OpRecordGraphics, slot, err)
	}

	err := c.opts.GraphicsQueue.Submit(Submission{
		Commands: []CommandBuffer{s.GraphicsCmd},
		Wait:     []Semaphore{s.ComputeFinished, s.ImageAvailable},
		Signal:   []Semaphore{s.RenderFinished},
		Fence:    s.GraphicsFence,
	})
	if err != nil {
		return c.fail(OpSubmitGraphics, slot, err)
	}
	s.graphicsUnsubmitted = false
	c.computePending[slot] = false
	return nil
}

func (c *Context) recreate(slot SlotIndex) error {
	if c.opts.Recreate == nil {
		return nil
	}
	if err := c.opts.Recreate(); err != nil {
		return c.fail(OpRecreate, slot, err)
	}
	return nil
}

func (c *Context) fail(op Op, slot SlotIndex, err error) error {
	e := &Error{Op: op, Slot: slot, Err: err}
	if isStop(err) {
		slogger().Debug("frame: stopped", "op", string(op), "slot", slot, "err", err)
		return e
	}
	slogger().Error("frame: fatal", "op", string(op), "slot", slot, "err", err)
	return e
}

func isStop(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Run advances frames until ctx is done, limit frames have been presented
// (limit <= 0 means no limit) or a fatal error occurs. The stop condition
// is checked once per iteration and by the fence waits; either way a stop
// returns a nil error. It returns the number of frames presented.
func (c *Context) Run(ctx context.Context, limit int) (int, error) {
	presented := 0
	for limit <= 0 || presented < limit {
		if ctx.Err() != nil {
			return presented, nil
		}
		res, err := c.AdvanceFrame(ctx)
		if err != nil {
			if ctx.Err() != nil && isStop(err) {
				return presented, nil
			}
			return presented, err
		}
		if !res.Skipped {
			presented++
		}
	}
	return presented, nil
}

// Destroy waits for all in-flight work and releases the slot objects. It
// is safe to call more than once.
func (c *Context) Destroy(ctx context.Context) error {
	if c.closed {
		return nil
	}
	c.closed = true
	err := c.sync.WaitIdle(ctx)
	c.sync.destroy()
	slogger().Debug("frame: context destroyed", "frames", c.frames)
	if err != nil {
		return fmt.Errorf("frame: wait idle: %w", err)
	}
	return nil
}
