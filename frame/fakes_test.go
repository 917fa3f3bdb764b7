package frame

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/gridframe/config"
)

// trace is the ordered log of every operation the fakes observe.
type trace struct {
	events []string
}

func (t *trace) add(format string, args ...any) {
	t.events = append(t.events, fmt.Sprintf(format, args...))
}

// fakeFence completes pending work when waited on. It refuses to be reset
// before a wait has observed it signaled, and refuses to wait when nothing
// will ever signal it.
type fakeFence struct {
	name      string
	tr        *trace
	signaled  bool
	pending   bool
	observed  bool
	destroyed bool
	waitErr   error
}

func (f *fakeFence) Wait(ctx context.Context, timeout time.Duration) error {
	if f.waitErr != nil {
		return f.waitErr
	}
	if f.pending {
		f.pending, f.signaled = false, true
	}
	if !f.signaled {
		return fmt.Errorf("%s: deadlock: wait on unsignaled fence with no pending work", f.name)
	}
	f.observed = true
	f.tr.add("wait %s", f.name)
	return nil
}

func (f *fakeFence) Reset() error {
	if !f.observed {
		return fmt.Errorf("%s: reset before signaled state was observed", f.name)
	}
	f.signaled, f.observed = false, false
	f.tr.add("reset %s", f.name)
	return nil
}

func (f *fakeFence) Signaled() bool { return f.signaled }
func (f *fakeFence) Destroy()       { f.destroyed = true }

type fakeSemaphore struct {
	name      string
	count     int
	destroyed bool
}

func (s *fakeSemaphore) Destroy() { s.destroyed = true }

func (s *fakeSemaphore) signal() error {
	if s.count > 0 {
		return fmt.Errorf("%s: signaled twice without a wait", s.name)
	}
	s.count++
	return nil
}

func (s *fakeSemaphore) consume() error {
	if s.count == 0 {
		return fmt.Errorf("%s: wait on semaphore that will never be signaled", s.name)
	}
	s.count--
	return nil
}

type fakeCmd struct {
	name      string
	tr        *trace
	resets    int
	destroyed bool
}

func (c *fakeCmd) Reset() error {
	c.resets++
	c.tr.add("reset %s", c.name)
	return nil
}
func (c *fakeCmd) Destroy() { c.destroyed = true }

type fakeDevice struct {
	tr         *trace
	fences     []*fakeFence
	semaphores []*fakeSemaphore
	cmds       []*fakeCmd
	failAfter  int // fail the Nth creation when > 0
	created    int
}

func (d *fakeDevice) tick() error {
	d.created++
	if d.failAfter > 0 && d.created == d.failAfter {
		return errors.New("out of device memory")
	}
	return nil
}

// Names follow creation order within a slot: cmd compute, cmd graphics,
// fence compute, fence graphics, then three semaphores.
func (d *fakeDevice) slotName(kind string, n int) string {
	return fmt.Sprintf("%s[%d]", kind, n)
}

func (d *fakeDevice) CreateFence(signaled bool) (Fence, error) {
	if err := d.tick(); err != nil {
		return nil, err
	}
	kind := "compute_fence"
	if len(d.fences)%2 == 1 {
		kind = "graphics_fence"
	}
	f := &fakeFence{name: d.slotName(kind, len(d.fences)/2), tr: d.tr, signaled: signaled}
	d.fences = append(d.fences, f)
	return f, nil
}

func (d *fakeDevice) CreateSemaphore() (Semaphore, error) {
	if err := d.tick(); err != nil {
		return nil, err
	}
	kinds := []string{"compute_finished", "image_available", "render_finished"}
	n := len(d.semaphores)
	s := &fakeSemaphore{name: d.slotName(kinds[n%3], n/3)}
	d.semaphores = append(d.semaphores, s)
	return s, nil
}

func (d *fakeDevice) CreateCommandBuffer(kind QueueKind) (CommandBuffer, error) {
	if err := d.tick(); err != nil {
		return nil, err
	}
	c := &fakeCmd{name: d.slotName(kind.String()+"_cmd", len(d.cmds)/2), tr: d.tr}
	d.cmds = append(d.cmds, c)
	return c, nil
}

type fakeQueue struct {
	name string
	tr   *trace
	err  error
}

func (q *fakeQueue) Submit(s Submission) error {
	if q.err != nil {
		return q.err
	}
	for _, w := range s.Wait {
		if err := w.(*fakeSemaphore).consume(); err != nil {
			return err
		}
	}
	for _, sig := range s.Signal {
		if err := sig.(*fakeSemaphore).signal(); err != nil {
			return err
		}
	}
	if s.Fence != nil {
		f := s.Fence.(*fakeFence)
		if f.signaled {
			return fmt.Errorf("%s: submitted with a signaled fence", f.name)
		}
		f.pending = true
	}
	names := make([]string, len(s.Commands))
	for i, c := range s.Commands {
		names[i] = c.(*fakeCmd).name
	}
	q.tr.add("submit %s %v", q.name, names)
	return nil
}

type fakeSurface struct {
	tr         *trace
	acquire    []AcquireStatus // scripted statuses, then AcquireOK
	present    []PresentStatus // scripted statuses, then PresentOK
	acquireErr error
	presentErr error
	next       uint32
	acquires   int
	presents   int
}

func (s *fakeSurface) Acquire(signal Semaphore) (uint32, AcquireStatus, error) {
	if s.acquireErr != nil {
		return 0, AcquireOK, s.acquireErr
	}
	status := AcquireOK
	if s.acquires < len(s.acquire) {
		status = s.acquire[s.acquires]
	}
	s.acquires++
	if status == AcquireStale {
		s.tr.add("acquire stale")
		return 0, status, nil
	}
	if err := signal.(*fakeSemaphore).signal(); err != nil {
		return 0, status, err
	}
	img := s.next
	s.next = (s.next + 1) % 3
	s.tr.add("acquire %d", img)
	return img, status, nil
}

func (s *fakeSurface) Present(image uint32, wait Semaphore) (PresentStatus, error) {
	if s.presentErr != nil {
		return PresentOK, s.presentErr
	}
	if err := wait.(*fakeSemaphore).consume(); err != nil {
		return PresentOK, err
	}
	status := PresentOK
	if s.presents < len(s.present) {
		status = s.present[s.presents]
	}
	s.presents++
	s.tr.add("present %d", image)
	return status, nil
}

func (s *fakeSurface) Extent() Extent { return Extent{Width: 800, Height: 600} }

type fakeRecorder struct {
	tr          *trace
	computeErr  error
	graphicsErr error
	onCompute   func(SlotIndex)
	snaps       []*config.Snapshot
}

func (r *fakeRecorder) RecordCompute(slot SlotIndex, snap *config.Snapshot, cmd CommandBuffer) error {
	if r.computeErr != nil {
		return r.computeErr
	}
	r.snaps = append(r.snaps, snap)
	r.tr.add("record compute %d", slot)
	if r.onCompute != nil {
		r.onCompute(slot)
	}
	return nil
}

func (r *fakeRecorder) RecordGraphics(slot SlotIndex, image uint32, snap *config.Snapshot, cmd CommandBuffer) error {
	if r.graphicsErr != nil {
		return r.graphicsErr
	}
	r.tr.add("record graphics %d image %d", slot, image)
	return nil
}

type fakeParams struct {
	tr *trace
}

func (p *fakeParams) UpdateUniforms(slot SlotIndex, extent Extent, snap *config.Snapshot) error {
	p.tr.add("uniforms %d %dx%d", slot, extent.Width, extent.Height)
	return nil
}

type fakeResize struct{ pending bool }

func (r *fakeResize) TakeResize() bool {
	p := r.pending
	r.pending = false
	return p
}

// harness wires the fakes into a Context.
type harness struct {
	tr          *trace
	dev         *fakeDevice
	compute     *fakeQueue
	graphics    *fakeQueue
	surface     *fakeSurface
	recorder    *fakeRecorder
	resize      *fakeResize
	recreated   int
	recreateErr error
	ctx         *Context
}

func newHarness(mod func(*harness, *Options)) (*harness, error) {
	tr := &trace{}
	h := &harness{
		tr:       tr,
		dev:      &fakeDevice{tr: tr},
		compute:  &fakeQueue{name: "compute", tr: tr},
		graphics: &fakeQueue{name: "graphics", tr: tr},
		surface:  &fakeSurface{tr: tr},
		recorder: &fakeRecorder{tr: tr},
		resize:   &fakeResize{},
	}
	opts := Options{
		Device:        h.dev,
		ComputeQueue:  h.compute,
		GraphicsQueue: h.graphics,
		Surface:       h.surface,
		Recorder:      h.recorder,
		Params:        &fakeParams{tr: tr},
		Resize:        h.resize,
		Recreate: func() error {
			h.recreated++
			tr.add("recreate")
			return h.recreateErr
		},
		Registry: config.NewRegistry(&config.Snapshot{}),
	}
	if mod != nil {
		mod(h, &opts)
	}
	c, err := NewContext(opts)
	if err != nil {
		return nil, err
	}
	h.ctx = c
	h.tr.events = nil
	return h, nil
}
