package params

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/gogpu/gridframe/config"
	"github.com/gogpu/gridframe/frame"
)

func TestBlockBytes(t *testing.T) {
	b := Block{Time: 1.5, Width: 800, Frame: 7, LightPos: [4]float32{0, 0, 0, 2}}
	data := b.Bytes()
	if len(data) != Size {
		t.Fatalf("len = %d, want %d", len(data), Size)
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(data[0:])); got != 1.5 {
		t.Errorf("Time = %v, want 1.5", got)
	}
	if got := binary.LittleEndian.Uint32(data[8:]); got != 800 {
		t.Errorf("Width = %d, want 800", got)
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(data[60:])); got != 2 {
		t.Errorf("LightPos.w = %v, want 2", got)
	}
	if got := binary.LittleEndian.Uint32(data[Size-4:]); got != 7 {
		t.Errorf("Frame = %d, want 7", got)
	}
}

func TestUpdaterAdvancesScaledTime(t *testing.T) {
	snap := config.Default()
	snap.World.TimerSpeed = 2

	clock := time.Unix(100, 0)
	var got []frame.SlotIndex
	u := NewUpdater(func(slot frame.SlotIndex, b *Block) error {
		got = append(got, slot)
		return nil
	})
	u.Now = func() time.Time { return clock }

	extent := frame.Extent{Width: 1000, Height: 500}
	if err := u.UpdateUniforms(0, extent, snap); err != nil {
		t.Fatal(err)
	}
	clock = clock.Add(500 * time.Millisecond)
	if err := u.UpdateUniforms(1, extent, snap); err != nil {
		t.Fatal(err)
	}

	b0, b1 := u.Block(0), u.Block(1)
	if b0.Time != 0 || b0.Frame != 0 {
		t.Errorf("first block = %+v", b0)
	}
	if b1.Time != 1 || b1.DeltaTime != 1 {
		t.Errorf("second block time = %v dt = %v, want 1 and 1", b1.Time, b1.DeltaTime)
	}
	if b1.Frame != 1 || b1.Aspect != 2 {
		t.Errorf("second block frame = %d aspect = %v", b1.Frame, b1.Aspect)
	}
	if b1.GridWidth != uint32(snap.Terrain.GridWidth) || b1.AliveCells != snap.Terrain.AliveCells {
		t.Errorf("terrain fields not copied: %+v", b1)
	}
	if len(got) != 2 || got[0] != 0 || got[1] != 1 {
		t.Errorf("sink slots = %v", got)
	}
}

func TestUpdaterSinkError(t *testing.T) {
	boom := errors.New("boom")
	u := NewUpdater(func(frame.SlotIndex, *Block) error { return boom })
	if err := u.UpdateUniforms(0, frame.Extent{}, config.Default()); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}
