// Package params builds the per-frame uniform block shared by the compute
// and graphics pipelines.
package params

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/gogpu/gridframe/config"
	"github.com/gogpu/gridframe/frame"
)

// Size is the encoded size of a Block in bytes.
const Size = 96

// Block is the uniform data of one frame.
type Block struct {
	Time        float32
	DeltaTime   float32
	Width       uint32
	Height      uint32
	GridWidth   uint32
	GridHeight  uint32
	AliveCells  uint32
	CellSize    float32

	WaterThreshold       float32
	WaterDeadZone        float32
	ShoreBandWidth       float32
	BorderHighlightWidth float32

	LightPos [4]float32

	CameraPosition [3]float32
	FieldOfView    float32

	NearClipping float32
	FarClipping  float32
	Aspect       float32
	Frame        uint32
}

// Bytes encodes b little-endian in field order.
func (b *Block) Bytes() []byte {
	out := make([]byte, 0, Size)
	u := func(v uint32) { out = binary.LittleEndian.AppendUint32(out, v) }
	f := func(v float32) { u(math.Float32bits(v)) }

	f(b.Time)
	f(b.DeltaTime)
	u(b.Width)
	u(b.Height)
	u(b.GridWidth)
	u(b.GridHeight)
	u(b.AliveCells)
	f(b.CellSize)
	f(b.WaterThreshold)
	f(b.WaterDeadZone)
	f(b.ShoreBandWidth)
	f(b.BorderHighlightWidth)
	for _, v := range b.LightPos {
		f(v)
	}
	for _, v := range b.CameraPosition {
		f(v)
	}
	f(b.FieldOfView)
	f(b.NearClipping)
	f(b.FarClipping)
	f(b.Aspect)
	u(b.Frame)
	return out
}

// Sink receives the block written for a slot.
type Sink func(slot frame.SlotIndex, b *Block) error

// Updater implements frame.Params. Simulation time advances with the wall
// clock scaled by the snapshot's timer speed.
type Updater struct {
	// Now is the clock. Nil means time.Now.
	Now func() time.Time

	sink   Sink
	blocks frame.Ring[Block]
	start  time.Time
	last   time.Time
	simT   float32
	frames uint32
}

// NewUpdater returns an updater passing every block to sink. A nil sink
// only keeps the blocks.
func NewUpdater(sink Sink) *Updater {
	return &Updater{sink: sink}
}

// UpdateUniforms implements frame.Params.
func (u *Updater) UpdateUniforms(slot frame.SlotIndex, extent frame.Extent, snap *config.Snapshot) error {
	now := time.Now
	if u.Now != nil {
		now = u.Now
	}
	t := now()
	if u.start.IsZero() {
		u.start, u.last = t, t
	}
	dt := float32(t.Sub(u.last).Seconds()) * snap.World.TimerSpeed
	u.last = t
	u.simT += dt

	b := u.blocks.At(slot)
	*b = Block{
		Time:                 u.simT,
		DeltaTime:            dt,
		Width:                extent.Width,
		Height:               extent.Height,
		GridWidth:            uint32(max(snap.Terrain.GridWidth, 0)),  //nolint:gosec // clamped
		GridHeight:           uint32(max(snap.Terrain.GridHeight, 0)), //nolint:gosec // clamped
		AliveCells:           snap.Terrain.AliveCells,
		CellSize:             snap.Terrain.CellSize,
		WaterThreshold:       snap.World.WaterThreshold,
		WaterDeadZone:        snap.World.WaterDeadZone,
		ShoreBandWidth:       snap.World.ShoreBandWidth,
		BorderHighlightWidth: snap.World.BorderHighlightWidth,
		LightPos:             snap.World.LightPos,
		CameraPosition:       snap.World.CameraPosition,
		FieldOfView:          snap.World.FieldOfView,
		NearClipping:         snap.World.NearClipping,
		FarClipping:          snap.World.FarClipping,
		Frame:                u.frames,
	}
	if extent.Height > 0 {
		b.Aspect = float32(extent.Width) / float32(extent.Height)
	}
	u.frames++

	if u.sink != nil {
		return u.sink(slot, b)
	}
	return nil
}

// Block returns the last block written for slot.
func (u *Updater) Block(slot frame.SlotIndex) Block { return *u.blocks.At(slot) }
