package frame

import (
	"errors"
	"fmt"
	"sort"
)

// NumDescriptors is the capacity of a DescriptorTable: one uniform
// buffer, the two bindings of the storage ping-pong pair, one sampled
// image and one storage image.
const NumDescriptors = 5

// Binding indices of the standard layout.
const (
	BindingUniform         uint32 = 0
	BindingStorageCurrent  uint32 = 1
	BindingStoragePrevious uint32 = 2
	BindingSampledImage    uint32 = 3
	BindingStorageImage    uint32 = 4
)

var (
	ErrTableFull    = errors.New("frame: descriptor table is full")
	ErrBindingInUse = errors.New("frame: descriptor binding already assigned")
	ErrKindMismatch = errors.New("frame: resource kind does not match binding")
)

// ResourceKind discriminates Binding values.
type ResourceKind uint8

const (
	UniformBuffer ResourceKind = iota
	StorageBuffer
	SampledImage
	StorageImage
)

func (k ResourceKind) String() string {
	switch k {
	case UniformBuffer:
		return "uniform_buffer"
	case StorageBuffer:
		return "storage_buffer"
	case SampledImage:
		return "sampled_image"
	case StorageImage:
		return "storage_image"
	default:
		return "unknown"
	}
}

// Binding is the resource backing one descriptor. It is implemented only
// by BufferBinding and ImageBinding.
type Binding interface {
	Kind() ResourceKind
	isBinding()
}

// BufferBinding is a buffer range bound as a uniform or storage buffer.
// A zero Size means the whole buffer.
type BufferBinding struct {
	Storage bool
	Buffer  any
	Offset  uint64
	Size    uint64
}

func (b BufferBinding) Kind() ResourceKind {
	if b.Storage {
		return StorageBuffer
	}
	return UniformBuffer
}

func (BufferBinding) isBinding() {}

// ImageBinding is an image view bound as a sampled or storage image.
// Sampler is only used for sampled images.
type ImageBinding struct {
	Storage bool
	View    any
	Sampler any
}

func (b ImageBinding) Kind() ResourceKind {
	if b.Storage {
		return StorageImage
	}
	return SampledImage
}

func (ImageBinding) isBinding() {}

// Write is one descriptor update for a slot.
type Write struct {
	Binding  uint32
	Resource Binding
}

// DescriptorTable records which resource backs each binding on every
// frame slot. Per-slot resources are kept in a Ring; a storage pair
// contributes two bindings whose buffers swap with slot parity.
type DescriptorTable struct {
	entries map[uint32]func(SlotIndex) Binding
}

// NewDescriptorTable returns an empty table.
func NewDescriptorTable() *DescriptorTable {
	return &DescriptorTable{entries: make(map[uint32]func(SlotIndex) Binding, NumDescriptors)}
}

func (t *DescriptorTable) reserve(bindings ...uint32) error {
	if len(t.entries)+len(bindings) > NumDescriptors {
		return ErrTableFull
	}
	for i, b := range bindings {
		if _, used := t.entries[b]; used {
			return fmt.Errorf("%w: %d", ErrBindingInUse, b)
		}
		for _, other := range bindings[:i] {
			if other == b {
				return fmt.Errorf("%w: %d", ErrBindingInUse, b)
			}
		}
	}
	return nil
}

// SetUniform binds one uniform buffer per slot.
func (t *DescriptorTable) SetUniform(binding uint32, perSlot Ring[BufferBinding]) error {
	for _, b := range perSlot {
		if b.Storage {
			return fmt.Errorf("%w: binding %d wants %s", ErrKindMismatch, binding, UniformBuffer)
		}
	}
	if err := t.reserve(binding); err != nil {
		return err
	}
	t.entries[binding] = func(s SlotIndex) Binding { return *perSlot.At(s) }
	return nil
}

// SetStoragePair binds a ping-pong pair: current receives pair.Current(slot)
// and previous receives pair.Previous(slot).
func (t *DescriptorTable) SetStoragePair(current, previous uint32, pair PingPong[BufferBinding]) error {
	pair.In.Storage, pair.Out.Storage = true, true
	if err := t.reserve(current, previous); err != nil {
		return err
	}
	t.entries[current] = func(s SlotIndex) Binding { return pair.Current(s) }
	t.entries[previous] = func(s SlotIndex) Binding { return pair.Previous(s) }
	return nil
}

// SetImage binds the same image on every slot.
func (t *DescriptorTable) SetImage(binding uint32, img ImageBinding) error {
	if err := t.reserve(binding); err != nil {
		return err
	}
	t.entries[binding] = func(SlotIndex) Binding { return img }
	return nil
}

// Len returns the number of assigned bindings.
func (t *DescriptorTable) Len() int { return len(t.entries) }

// Writes returns the descriptor updates for slot, ordered by binding.
func (t *DescriptorTable) Writes(slot SlotIndex) []Write {
	out := make([]Write, 0, len(t.entries))
	for b, fn := range t.entries {
		out = append(out, Write{Binding: b, Resource: fn(slot)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Binding < out[j].Binding })
	return out
}

// StandardTable builds the standard layout: per-slot uniforms at
// BindingUniform, the storage pair at BindingStorageCurrent and
// BindingStoragePrevious, and optional sampled and storage images.
func StandardTable(uniforms Ring[BufferBinding], storage PingPong[BufferBinding], sampled, storageImage *ImageBinding) (*DescriptorTable, error) {
	t := NewDescriptorTable()
	if err := t.SetUniform(BindingUniform, uniforms); err != nil {
		return nil, err
	}
	if err := t.SetStoragePair(BindingStorageCurrent, BindingStoragePrevious, storage); err != nil {
		return nil, err
	}
	if sampled != nil {
		img := *sampled
		img.Storage = false
		if err := t.SetImage(BindingSampledImage, img); err != nil {
			return nil, err
		}
	}
	if storageImage != nil {
		img := *storageImage
		img.Storage = true
		if err := t.SetImage(BindingStorageImage, img); err != nil {
			return nil, err
		}
	}
	return t, nil
}
