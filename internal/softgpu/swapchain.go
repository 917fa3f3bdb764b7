package softgpu

import (
	"fmt"
	"sync"

	"github.com/gogpu/gridframe/frame"
)

// SwapchainOptions configures a Swapchain.
type SwapchainOptions struct {
	// Images is the number of swapchain images. Zero means 3.
	Images int

	// Extent is the initial surface size. Zero means 1280x720.
	Extent frame.Extent

	// StaleEvery makes every StaleEvery-th acquire report a stale surface.
	// Zero disables it.
	StaleEvery int

	// SuboptimalEvery makes every SuboptimalEvery-th present report a
	// suboptimal surface. Zero disables it.
	SuboptimalEvery int
}

// Swapchain implements frame.Surface and frame.ResizeNotifier. Its Recreate
// method is a frame.Recreator.
//
// Presentation is queued on the device's graphics queue behind the frame's
// rendering and waits for the render-finished semaphore there.
type Swapchain struct {
	dev  *Device
	opts SwapchainOptions

	mu         sync.Mutex
	extent     frame.Extent
	pending    *frame.Extent
	resized    bool
	next       uint32
	acquires   int
	presents   int
	generation int
}

// NewSwapchain creates a swapchain presenting through dev.
func (d *Device) NewSwapchain(opts SwapchainOptions) *Swapchain {
	if opts.Images <= 0 {
		opts.Images = 3
	}
	if opts.Extent == (frame.Extent{}) {
		opts.Extent = frame.Extent{Width: 1280, Height: 720}
	}
	return &Swapchain{dev: d, opts: opts, extent: opts.Extent}
}

// Acquire implements frame.Surface.
func (s *Swapchain) Acquire(signal frame.Semaphore) (uint32, frame.AcquireStatus, error) {
	sem, ok := signal.(*Semaphore)
	if !ok {
		return 0, frame.AcquireOK, fmt.Errorf("%w: semaphore %T", ErrForeignObject, signal)
	}
	if s.dev.isClosed() {
		return 0, frame.AcquireOK, ErrClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.acquires++
	if s.opts.StaleEvery > 0 && s.acquires%s.opts.StaleEvery == 0 {
		return 0, frame.AcquireStale, nil
	}
	if err := sem.signal(); err != nil {
		return 0, frame.AcquireOK, fmt.Errorf("image available: %w", err)
	}
	img := s.next
	s.next = (s.next + 1) % uint32(s.opts.Images) //nolint:gosec // image count is small
	return img, frame.AcquireOK, nil
}

// Present implements frame.Surface.
func (s *Swapchain) Present(image uint32, wait frame.Semaphore) (frame.PresentStatus, error) {
	sem, ok := wait.(*Semaphore)
	if !ok {
		return frame.PresentOK, fmt.Errorf("%w: semaphore %T", ErrForeignObject, wait)
	}
	if image >= uint32(s.opts.Images) { //nolint:gosec // image count is small
		return frame.PresentOK, fmt.Errorf("softgpu: present of image %d out of %d", image, s.opts.Images)
	}

	err := s.dev.graphics.enqueue(submission{wait: []*Semaphore{sem}, present: true})
	if err != nil {
		return frame.PresentOK, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.presents++
	if s.opts.SuboptimalEvery > 0 && s.presents%s.opts.SuboptimalEvery == 0 {
		return frame.PresentSuboptimal, nil
	}
	return frame.PresentOK, nil
}

// Extent implements frame.Surface.
func (s *Swapchain) Extent() frame.Extent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.extent
}

// Resize requests a new extent, applied by the next Recreate.
func (s *Swapchain) Resize(width, height uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = &frame.Extent{Width: width, Height: height}
	s.resized = true
}

// TakeResize implements frame.ResizeNotifier.
func (s *Swapchain) TakeResize() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.resized
	s.resized = false
	return r
}

// Recreate rebuilds the swapchain images, applying a pending resize.
func (s *Swapchain) Recreate() error {
	if s.dev.isClosed() {
		return ErrClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil {
		s.extent = *s.pending
		s.pending = nil
	}
	s.next = 0
	s.generation++
	slogger().Info("softgpu: swapchain recreated",
		"generation", s.generation, "width", s.extent.Width, "height", s.extent.Height)
	return nil
}

// Generation returns how many times the swapchain was recreated.
func (s *Swapchain) Generation() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}
