package halgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/gridframe/frame"
	"github.com/gogpu/gridframe/internal/params"
	"github.com/gogpu/wgpu/hal"
)

// CellStride is the size in bytes of one cell in the storage buffers.
const CellStride = 16

// Resources owns the per-slot uniform buffers, the cell storage ping-pong
// pair and one bind group per slot built from a frame.DescriptorTable.
type Resources struct {
	device hal.Device
	queue  hal.Queue

	uniforms frame.Ring[hal.Buffer]
	storage  frame.PingPong[hal.Buffer]

	table      *frame.DescriptorTable
	layout     hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	groups     frame.Ring[hal.BindGroup]
}

// NewResources allocates buffers for cells cells and binds them with the
// standard descriptor layout. Sampled and storage images are optional;
// their View must be a hal.TextureView.
func NewResources(d *Device, cells uint32, sampled, storageImage *frame.ImageBinding) (*Resources, error) {
	r := &Resources{device: d.device, queue: d.queue}
	if err := r.create(cells, sampled, storageImage); err != nil {
		r.Destroy()
		return nil, err
	}
	slogger().Debug("halgpu: resources created", "cells", cells, "descriptors", r.table.Len())
	return r, nil
}

func (r *Resources) create(cells uint32, sampled, storageImage *frame.ImageBinding) error {
	var err error
	r.uniforms, err = frame.NewRing(func(s frame.SlotIndex) (hal.Buffer, error) {
		return r.device.CreateBuffer(&hal.BufferDescriptor{
			Label: "uniforms_" + s.String(),
			Size:  params.Size,
			Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
		})
	})
	if err != nil {
		return fmt.Errorf("halgpu: create uniform buffer: %w", err)
	}

	size := uint64(max(cells, 1)) * CellStride
	for _, b := range []*hal.Buffer{&r.storage.In, &r.storage.Out} {
		*b, err = r.device.CreateBuffer(&hal.BufferDescriptor{
			Label: "cells",
			Size:  size,
			Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
		})
		if err != nil {
			return fmt.Errorf("halgpu: create storage buffer: %w", err)
		}
	}

	var uniformBindings frame.Ring[frame.BufferBinding]
	for i := range uniformBindings {
		uniformBindings[i] = frame.BufferBinding{Buffer: r.uniforms[i], Size: params.Size}
	}
	pair := frame.PingPong[frame.BufferBinding]{
		In:  frame.BufferBinding{Buffer: r.storage.In, Size: size},
		Out: frame.BufferBinding{Buffer: r.storage.Out, Size: size},
	}
	r.table, err = frame.StandardTable(uniformBindings, pair, sampled, storageImage)
	if err != nil {
		return err
	}

	r.layout, err = r.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   "frame_bind_layout",
		Entries: layoutEntries(r.table.Writes(0)),
	})
	if err != nil {
		return fmt.Errorf("halgpu: create bind group layout: %w", err)
	}
	r.pipeLayout, err = r.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "frame_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{r.layout},
	})
	if err != nil {
		return fmt.Errorf("halgpu: create pipeline layout: %w", err)
	}

	r.groups, err = frame.NewRing(func(s frame.SlotIndex) (hal.BindGroup, error) {
		entries, err := groupEntries(r.table.Writes(s))
		if err != nil {
			return nil, err
		}
		return r.device.CreateBindGroup(&hal.BindGroupDescriptor{
			Label:   "frame_bind_" + s.String(),
			Layout:  r.layout,
			Entries: entries,
		})
	})
	if err != nil {
		return fmt.Errorf("halgpu: create bind group: %w", err)
	}
	return nil
}

func layoutEntries(writes []frame.Write) []gputypes.BindGroupLayoutEntry {
	out := make([]gputypes.BindGroupLayoutEntry, 0, len(writes))
	for _, w := range writes {
		e := gputypes.BindGroupLayoutEntry{Binding: w.Binding, Visibility: gputypes.ShaderStageCompute}
		switch w.Resource.Kind() {
		case frame.UniformBuffer:
			e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}
		case frame.StorageBuffer:
			e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}
		case frame.SampledImage:
			e.Texture = &gputypes.TextureBindingLayout{
				SampleType:    gputypes.TextureSampleTypeFloat,
				ViewDimension: gputypes.TextureViewDimension2D,
			}
		case frame.StorageImage:
			e.StorageTexture = &gputypes.StorageTextureBindingLayout{
				Access:        gputypes.StorageTextureAccessReadWrite,
				Format:        gputypes.TextureFormatRGBA8Unorm,
				ViewDimension: gputypes.TextureViewDimension2D,
			}
		}
		out = append(out, e)
	}
	return out
}

func groupEntries(writes []frame.Write) ([]gputypes.BindGroupEntry, error) {
	out := make([]gputypes.BindGroupEntry, 0, len(writes))
	for _, w := range writes {
		switch res := w.Resource.(type) {
		case frame.BufferBinding:
			buf, ok := res.Buffer.(hal.Buffer)
			if !ok {
				return nil, fmt.Errorf("%w: binding %d buffer %T", ErrForeignObject, w.Binding, res.Buffer)
			}
			out = append(out, gputypes.BindGroupEntry{
				Binding:  w.Binding,
				Resource: gputypes.BufferBinding{Buffer: buf.NativeHandle(), Offset: res.Offset, Size: res.Size},
			})
		case frame.ImageBinding:
			view, ok := res.View.(hal.TextureView)
			if !ok {
				return nil, fmt.Errorf("%w: binding %d view %T", ErrForeignObject, w.Binding, res.View)
			}
			out = append(out, gputypes.BindGroupEntry{
				Binding:  w.Binding,
				Resource: gputypes.TextureViewBinding{TextureView: view.NativeHandle()},
			})
		}
	}
	return out, nil
}

// WriteUniforms is a params.Sink uploading the block to the slot's uniform
// buffer.
func (r *Resources) WriteUniforms(slot frame.SlotIndex, b *params.Block) error {
	if err := r.queue.WriteBuffer(*r.uniforms.At(slot), 0, b.Bytes()); err != nil {
		return fmt.Errorf("halgpu: write uniforms: %w", err)
	}
	return nil
}

// BindGroup returns the bind group of slot.
func (r *Resources) BindGroup(slot frame.SlotIndex) hal.BindGroup { return *r.groups.At(slot) }

// PipelineLayout returns the layout shared by every kernel.
func (r *Resources) PipelineLayout() hal.PipelineLayout { return r.pipeLayout }

// Table returns the descriptor table the bind groups were built from.
func (r *Resources) Table() *frame.DescriptorTable { return r.table }

// Destroy releases everything. It is safe on partially created resources.
func (r *Resources) Destroy() {
	for i := range r.groups {
		if r.groups[i] != nil {
			r.device.DestroyBindGroup(r.groups[i])
			r.groups[i] = nil
		}
	}
	if r.pipeLayout != nil {
		r.device.DestroyPipelineLayout(r.pipeLayout)
		r.pipeLayout = nil
	}
	if r.layout != nil {
		r.device.DestroyBindGroupLayout(r.layout)
		r.layout = nil
	}
	for _, b := range []*hal.Buffer{&r.uniforms[0], &r.uniforms[1], &r.storage.In, &r.storage.Out} {
		if *b != nil {
			r.device.DestroyBuffer(*b)
			*b = nil
		}
	}
}
