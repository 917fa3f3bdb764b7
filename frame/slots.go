package frame

import "strconv"

// FramesInFlight is the number of frame slots. It is fixed: slot
// resources are double buffered and the storage ping-pong relies on slot
// parity.
const FramesInFlight = 2

// SlotIndex identifies a frame slot in [0, FramesInFlight).
type SlotIndex uint32

// Next returns the slot used by the following frame.
func (s SlotIndex) Next() SlotIndex { return (s + 1) % FramesInFlight }

// Even reports whether s has even parity.
func (s SlotIndex) Even() bool { return s%2 == 0 }

func (s SlotIndex) String() string { return strconv.FormatUint(uint64(s), 10) }

// Ring holds one T per frame slot.
type Ring[T any] [FramesInFlight]T

// At returns a pointer to the element for slot.
func (r *Ring[T]) At(slot SlotIndex) *T { return &r[slot%FramesInFlight] }

// NewRing builds a ring by calling fn once per slot, in slot order. The
// first error aborts construction.
func NewRing[T any](fn func(SlotIndex) (T, error)) (Ring[T], error) {
	var r Ring[T]
	for i := range r {
		v, err := fn(SlotIndex(i))
		if err != nil {
			return r, err
		}
		r[i] = v
	}
	return r, nil
}

// PingPong is a pair of resources alternately used as current output and
// previous input. Even slots write In and read Out; odd slots the reverse.
type PingPong[T any] struct {
	In  T
	Out T
}

// Current returns the resource slot writes this frame.
func (p PingPong[T]) Current(slot SlotIndex) T {
	if slot.Even() {
		return p.In
	}
	return p.Out
}

// Previous returns the resource written by the previous frame, which slot
// reads.
func (p PingPong[T]) Previous(slot SlotIndex) T {
	if slot.Even() {
		return p.Out
	}
	return p.In
}
