package halgpu

import "github.com/gogpu/gridframe/frame"

// Offscreen implements frame.Surface for headless runs: images are indices
// into a ring the DrawFunc renders to, acquisition never blocks and
// presentation only advances a counter.
type Offscreen struct {
	Images int
	Size   frame.Extent

	next     uint32
	Presents uint64
}

// Acquire implements frame.Surface.
func (o *Offscreen) Acquire(frame.Semaphore) (uint32, frame.AcquireStatus, error) {
	n := uint32(max(o.Images, 1)) //nolint:gosec // image count is small
	img := o.next % n
	o.next = (img + 1) % n
	return img, frame.AcquireOK, nil
}

// Present implements frame.Surface.
func (o *Offscreen) Present(uint32, frame.Semaphore) (frame.PresentStatus, error) {
	o.Presents++
	return frame.PresentOK, nil
}

// Extent implements frame.Surface.
func (o *Offscreen) Extent() frame.Extent { return o.Size }
