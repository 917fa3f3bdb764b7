// Package softgpu is an in-process device for the frame loop.
//
// Each queue executes submissions in order on its own goroutine, so host
// and device work overlap the way they do on real hardware. Fences and
// semaphores are channels, and Swapchain simulates a presentation surface
// that can be told to go stale. The package is used by the gridframe
// command's simulation mode and by integration tests.
package softgpu

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gridframe/frame"
)

var (
	// ErrClosed is returned by operations on a closed device.
	ErrClosed = errors.New("softgpu: device closed")

	// ErrForeignObject is returned when an object created by another
	// device implementation is passed in.
	ErrForeignObject = errors.New("softgpu: object not created by softgpu")

	// ErrSemaphoreOverflow is recorded when a semaphore collects more
	// unconsumed signals than there are frames in flight.
	ErrSemaphoreOverflow = errors.New("softgpu: semaphore signaled more often than waited on")
)

// Options configures a Device.
type Options struct {
	// CommandCost is the simulated execution time of one command.
	CommandCost time.Duration

	// QueueDepth bounds the pending submissions per queue. Zero means 8.
	QueueDepth int

	// OnExecute, if set, is called on the queue goroutine for every
	// executed submission, after its waits and before its signals.
	OnExecute func(kind frame.QueueKind, cmds []Command)
}

// Stats counts executed work.
type Stats struct {
	Submissions uint64
	Dispatches  uint64
	Draws       uint64
	Presents    uint64
}

// Device implements frame.Device.
type Device struct {
	opts Options

	compute  *Queue
	graphics *Queue

	mu     sync.RWMutex
	closed bool
	quit   chan struct{}

	faultMu sync.Mutex
	fault   error

	submissions atomic.Uint64
	dispatches  atomic.Uint64
	draws       atomic.Uint64
	presents    atomic.Uint64
}

// New starts a device with its compute and graphics queues.
func New(opts Options) *Device {
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = 8
	}
	d := &Device{opts: opts, quit: make(chan struct{})}
	d.compute = d.newQueue(frame.QueueCompute)
	d.graphics = d.newQueue(frame.QueueGraphics)
	slogger().Debug("softgpu: device started", "queue_depth", opts.QueueDepth, "command_cost", opts.CommandCost)
	return d
}

// ComputeQueue returns the compute queue.
func (d *Device) ComputeQueue() *Queue { return d.compute }

// GraphicsQueue returns the graphics queue.
func (d *Device) GraphicsQueue() *Queue { return d.graphics }

// CreateFence implements frame.Device.
func (d *Device) CreateFence(signaled bool) (frame.Fence, error) {
	if d.isClosed() {
		return nil, ErrClosed
	}
	return newFence(signaled), nil
}

// CreateSemaphore implements frame.Device.
func (d *Device) CreateSemaphore() (frame.Semaphore, error) {
	if d.isClosed() {
		return nil, ErrClosed
	}
	return newSemaphore(), nil
}

// CreateCommandBuffer implements frame.Device.
func (d *Device) CreateCommandBuffer(kind frame.QueueKind) (frame.CommandBuffer, error) {
	if d.isClosed() {
		return nil, ErrClosed
	}
	return &CommandBuffer{kind: kind}, nil
}

// Stats returns the work executed so far.
func (d *Device) Stats() Stats {
	return Stats{
		Submissions: d.submissions.Load(),
		Dispatches:  d.dispatches.Load(),
		Draws:       d.draws.Load(),
		Presents:    d.presents.Load(),
	}
}

// Err returns the first synchronization fault observed by a queue, such as
// an overflowing semaphore.
func (d *Device) Err() error {
	d.faultMu.Lock()
	defer d.faultMu.Unlock()
	return d.fault
}

func (d *Device) recordFault(err error) {
	d.faultMu.Lock()
	defer d.faultMu.Unlock()
	if d.fault == nil {
		d.fault = err
		slogger().Error("softgpu: synchronization fault", "err", err)
	}
}

func (d *Device) isClosed() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.closed
}

// Close stops the queues. Submissions still waiting on a semaphore are
// abandoned; everything else already submitted is executed first.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.quit)
	close(d.compute.work)
	close(d.graphics.work)
	d.mu.Unlock()

	<-d.compute.done
	<-d.graphics.done
	slogger().Debug("softgpu: device closed", "submissions", d.submissions.Load())
	return d.Err()
}

type submission struct {
	cmds    []Command
	wait    []*Semaphore
	signal  []*Semaphore
	fence   *Fence
	present bool
}

// Queue implements frame.Queue. Submissions execute in order.
type Queue struct {
	dev  *Device
	kind frame.QueueKind
	work chan submission
	done chan struct{}
}

func (d *Device) newQueue(kind frame.QueueKind) *Queue {
	q := &Queue{
		dev:  d,
		kind: kind,
		work: make(chan submission, d.opts.QueueDepth),
		done: make(chan struct{}),
	}
	go q.run()
	return q
}

// Submit enqueues s. It blocks only when the queue is full.
func (q *Queue) Submit(s frame.Submission) error {
	sub, err := convert(s)
	if err != nil {
		return err
	}

	return q.enqueue(sub)
}

func (q *Queue) enqueue(sub submission) error {
	q.dev.mu.RLock()
	defer q.dev.mu.RUnlock()
	if q.dev.closed {
		return ErrClosed
	}
	q.work <- sub
	return nil
}

func convert(s frame.Submission) (submission, error) {
	var sub submission
	for _, c := range s.Commands {
		cb, ok := c.(*CommandBuffer)
		if !ok {
			return sub, fmt.Errorf("%w: command buffer %T", ErrForeignObject, c)
		}
		sub.cmds = append(sub.cmds, cb.cmds...)
	}
	sub.cmds = slices.Clip(sub.cmds)
	var err error
	if sub.wait, err = semaphores(s.Wait); err != nil {
		return sub, err
	}
	if sub.signal, err = semaphores(s.Signal); err != nil {
		return sub, err
	}
	if s.Fence != nil {
		f, ok := s.Fence.(*Fence)
		if !ok {
			return sub, fmt.Errorf("%w: fence %T", ErrForeignObject, s.Fence)
		}
		sub.fence = f
	}
	return sub, nil
}

func semaphores(in []frame.Semaphore) ([]*Semaphore, error) {
	out := make([]*Semaphore, 0, len(in))
	for _, s := range in {
		sem, ok := s.(*Semaphore)
		if !ok {
			return nil, fmt.Errorf("%w: semaphore %T", ErrForeignObject, s)
		}
		out = append(out, sem)
	}
	return out, nil
}

func (q *Queue) run() {
	defer close(q.done)
	for sub := range q.work {
		q.execute(sub)
	}
}

func (q *Queue) execute(sub submission) {
	d := q.dev
	for _, w := range sub.wait {
		if !w.wait(d.quit) {
			slogger().Debug("softgpu: abandoned submission", "queue", q.kind.String())
			return
		}
	}
	if sub.present {
		d.presents.Add(1)
		return
	}

	for _, c := range sub.cmds {
		if d.opts.CommandCost > 0 {
			time.Sleep(d.opts.CommandCost)
		}
		switch c.Kind {
		case CmdDispatch:
			d.dispatches.Add(1)
		case CmdDraw:
			d.draws.Add(1)
		}
	}
	if d.opts.OnExecute != nil {
		d.opts.OnExecute(q.kind, sub.cmds)
	}
	d.submissions.Add(1)

	for _, s := range sub.signal {
		if err := s.signal(); err != nil {
			d.recordFault(fmt.Errorf("%s queue: %w", q.kind, err))
		}
	}
	if sub.fence != nil {
		sub.fence.signal()
	}
}
