package frame

import (
	"context"
	"errors"
	"fmt"
)

// SlotSync is the synchronization state and command buffers owned by one
// frame slot.
type SlotSync struct {
	ComputeCmd  CommandBuffer
	GraphicsCmd CommandBuffer

	// ComputeFence and GraphicsFence gate host reuse of the slot.
	ComputeFence  Fence
	GraphicsFence Fence

	ComputeFinished Semaphore
	ImageAvailable  Semaphore
	RenderFinished  Semaphore

	// Set between a fence reset and the submission that signals it. A
	// fence left set by a failed frame never signals.
	computeUnsubmitted  bool
	graphicsUnsubmitted bool
}

// SyncRegistry owns the per-slot synchronization objects for the lifetime
// of a Context.
type SyncRegistry struct {
	slots Ring[SlotSync]
}

// NewSyncRegistry allocates every slot's objects. Fences start signaled so
// the first frame on each slot does not block. On error, everything created
// so far is destroyed.
func NewSyncRegistry(dev Device) (*SyncRegistry, error) {
	r := &SyncRegistry{}
	for i := range r.slots {
		if err := r.slots[i].create(dev); err != nil {
			r.destroy()
			return nil, fmt.Errorf("frame: create slot %d: %w", i, err)
		}
	}
	return r, nil
}

func (s *SlotSync) create(dev Device) error {
	var err error
	if s.ComputeCmd, err = dev.CreateCommandBuffer(QueueCompute); err != nil {
		return fmt.Errorf("compute command buffer: %w", err)
	}
	if s.GraphicsCmd, err = dev.CreateCommandBuffer(QueueGraphics); err != nil {
		return fmt.Errorf("graphics command buffer: %w", err)
	}
	if s.ComputeFence, err = dev.CreateFence(true); err != nil {
		return fmt.Errorf("compute fence: %w", err)
	}
	if s.GraphicsFence, err = dev.CreateFence(true); err != nil {
		return fmt.Errorf("graphics fence: %w", err)
	}
	if s.ComputeFinished, err = dev.CreateSemaphore(); err != nil {
		return fmt.Errorf("compute finished semaphore: %w", err)
	}
	if s.ImageAvailable, err = dev.CreateSemaphore(); err != nil {
		return fmt.Errorf("image available semaphore: %w", err)
	}
	if s.RenderFinished, err = dev.CreateSemaphore(); err != nil {
		return fmt.Errorf("render finished semaphore: %w", err)
	}
	return nil
}

// At returns the objects of slot.
func (r *SyncRegistry) At(slot SlotIndex) *SlotSync { return r.slots.At(slot) }

// WaitIdle waits for every slot fence that has work submitted against it.
// Fences reset by a frame that failed before its submission are skipped.
func (r *SyncRegistry) WaitIdle(ctx context.Context) error {
	var errs []error
	for i := range r.slots {
		s := &r.slots[i]
		for _, f := range []struct {
			fence       Fence
			unsubmitted bool
		}{
			{s.ComputeFence, s.computeUnsubmitted},
			{s.GraphicsFence, s.graphicsUnsubmitted},
		} {
			if f.fence == nil || f.unsubmitted {
				continue
			}
			if err := f.fence.Wait(ctx, WaitForever); err != nil {
				errs = append(errs, fmt.Errorf("slot %d: %w", i, err))
			}
		}
	}
	return errors.Join(errs...)
}

func (r *SyncRegistry) destroy() {
	for i := range r.slots {
		s := &r.slots[i]
		for _, d := range []interface{ Destroy() }{
			s.ComputeCmd, s.GraphicsCmd,
			s.ComputeFence, s.GraphicsFence,
			s.ComputeFinished, s.ImageAvailable, s.RenderFinished,
		} {
			if d != nil {
				d.Destroy()
			}
		}
		*s = SlotSync{}
	}
}
