package halgpu

import (
	"fmt"

	"github.com/gogpu/gridframe/config"
	"github.com/gogpu/gridframe/frame"
	"github.com/gogpu/wgpu/hal"
)

// DrawFunc records the draws of a frame into enc, targeting surface image
// image. Mesh, render target and graphics pipeline state live outside this
// package.
type DrawFunc func(enc hal.CommandEncoder, slot frame.SlotIndex, image uint32, draws []config.Draw) error

// Recorder implements frame.Recorder with compute passes over the slot's
// bind group.
type Recorder struct {
	Kernels   *Kernels
	Resources *Resources

	// Draw is optional; without it graphics recording only dispatches the
	// post-graphics compute pipelines.
	Draw DrawFunc

	seeded  bool
	skipped map[string]bool
}

// RecordCompute implements frame.Recorder. The first recording dispatches
// the cell seeding pipeline ahead of the pre-graphics pipelines when it is
// compiled.
func (r *Recorder) RecordCompute(slot frame.SlotIndex, snap *config.Snapshot, cmd frame.CommandBuffer) error {
	enc, err := encoder(cmd)
	if err != nil {
		return err
	}
	names := snap.PreCompute()
	if !r.seeded {
		if _, ok := r.Kernels.Pipeline(config.SeedPipeline); ok {
			names = append([]string{config.SeedPipeline}, names...)
		}
		r.seeded = true
	}
	r.dispatch(enc, slot, snap, names)
	return nil
}

// RecordGraphics implements frame.Recorder.
func (r *Recorder) RecordGraphics(slot frame.SlotIndex, image uint32, snap *config.Snapshot, cmd frame.CommandBuffer) error {
	enc, err := encoder(cmd)
	if err != nil {
		return err
	}
	if r.Draw != nil {
		if err := r.Draw(enc, slot, image, snap.Draws()); err != nil {
			return fmt.Errorf("halgpu: draw: %w", err)
		}
	}
	r.dispatch(enc, slot, snap, snap.PostCompute())
	return nil
}

func encoder(cmd frame.CommandBuffer) (hal.CommandEncoder, error) {
	cb, ok := cmd.(*CommandBuffer)
	if !ok {
		return nil, fmt.Errorf("%w: command buffer %T", ErrForeignObject, cmd)
	}
	enc := cb.Encoder()
	if enc == nil {
		return nil, errNotRecording
	}
	return enc, nil
}

func (r *Recorder) dispatch(enc hal.CommandEncoder, slot frame.SlotIndex, snap *config.Snapshot, names []string) {
	if len(names) == 0 {
		return
	}
	bg := r.Resources.BindGroup(slot)
	for _, name := range names {
		pipeline, ok := r.Kernels.Pipeline(name)
		if !ok {
			r.skip(name)
			continue
		}
		groups := snap.WorkGroups(name)
		pass := enc.BeginComputePass(&hal.ComputePassDescriptor{Label: name})
		pass.SetPipeline(pipeline)
		pass.SetBindGroup(0, bg, nil)
		pass.Dispatch(groups[0], groups[1], groups[2])
		pass.End()
	}
}

// skip logs a pipeline without a kernel once.
func (r *Recorder) skip(name string) {
	if r.skipped[name] {
		return
	}
	if r.skipped == nil {
		r.skipped = make(map[string]bool)
	}
	r.skipped[name] = true
	slogger().Warn("halgpu: no kernel for compute pipeline, skipping", "pipeline", name)
}
