package softgpu

import (
	"fmt"

	"github.com/gogpu/gridframe/config"
	"github.com/gogpu/gridframe/frame"
)

// Recorder implements frame.Recorder by recording the snapshot's pipelines
// as softgpu commands.
//
// The compute buffer gets the pre-graphics compute pipelines. On the first
// compute recording the cell seeding pipeline is dispatched ahead of them,
// when the snapshot defines it. The graphics buffer gets one draw per
// graphics pipeline followed by the post-graphics compute pipelines.
type Recorder struct {
	seeded bool
}

// Seeded reports whether the seeding dispatch has been recorded.
func (r *Recorder) Seeded() bool { return r.seeded }

// RecordCompute implements frame.Recorder.
func (r *Recorder) RecordCompute(slot frame.SlotIndex, snap *config.Snapshot, cmd frame.CommandBuffer) error {
	cb, ok := cmd.(*CommandBuffer)
	if !ok {
		return fmt.Errorf("%w: command buffer %T", ErrForeignObject, cmd)
	}
	if !r.seeded {
		if p, ok := snap.Pipelines[config.SeedPipeline]; ok && p.Compute {
			cb.Dispatch(config.SeedPipeline, snap.WorkGroups(config.SeedPipeline))
			slogger().Debug("softgpu: seeding cells", "slot", slot)
		}
		r.seeded = true
	}
	for _, name := range snap.PreCompute() {
		cb.Dispatch(name, snap.WorkGroups(name))
	}
	return nil
}

// RecordGraphics implements frame.Recorder.
func (r *Recorder) RecordGraphics(slot frame.SlotIndex, image uint32, snap *config.Snapshot, cmd frame.CommandBuffer) error {
	cb, ok := cmd.(*CommandBuffer)
	if !ok {
		return fmt.Errorf("%w: command buffer %T", ErrForeignObject, cmd)
	}
	for _, d := range snap.Draws() {
		cb.Draw(d.Pipeline, d.Op, image)
	}
	for _, name := range snap.PostCompute() {
		cb.Dispatch(name, snap.WorkGroups(name))
	}
	return nil
}
