package frame

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/gogpu/gridframe/config"
)

func mustHarness(t *testing.T, mod func(*harness, *Options)) *harness {
	t.Helper()
	t.Setenv(config.EnvFrameProfile, "")
	h, err := newHarness(mod)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	return h
}

func TestNewContextRequiresCollaborators(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*harness, *Options)
	}{
		{"device", func(_ *harness, o *Options) { o.Device = nil }},
		{"compute queue", func(_ *harness, o *Options) { o.ComputeQueue = nil }},
		{"graphics queue", func(_ *harness, o *Options) { o.GraphicsQueue = nil }},
		{"surface", func(_ *harness, o *Options) { o.Surface = nil }},
		{"recorder", func(_ *harness, o *Options) { o.Recorder = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := newHarness(tt.mod); err == nil {
				t.Error("NewContext succeeded, want error")
			}
		})
	}

	_, err := newHarness(func(_ *harness, o *Options) { o.Recorder = nil })
	if !errors.Is(err, ErrNoRecorder) {
		t.Errorf("err = %v, want ErrNoRecorder", err)
	}
}

func TestNewContextCleansUpOnCreateFailure(t *testing.T) {
	var dev *fakeDevice
	_, err := newHarness(func(h *harness, o *Options) {
		dev = h.dev
		// Fail on the first object of the second slot.
		h.dev.failAfter = 8
	})
	if err == nil {
		t.Fatal("NewContext succeeded, want error")
	}
	if !strings.Contains(err.Error(), "slot 1") {
		t.Errorf("err = %q, want it to name slot 1", err)
	}
	for _, f := range dev.fences {
		if !f.destroyed {
			t.Errorf("%s not destroyed", f.name)
		}
	}
	for _, s := range dev.semaphores {
		if !s.destroyed {
			t.Errorf("%s not destroyed", s.name)
		}
	}
	for _, c := range dev.cmds {
		if !c.destroyed {
			t.Errorf("%s not destroyed", c.name)
		}
	}
}

func TestAdvanceFrameProtocolOrder(t *testing.T) {
	h := mustHarness(t, nil)

	res, err := h.ctx.AdvanceFrame(context.Background())
	if err != nil {
		t.Fatalf("AdvanceFrame: %v", err)
	}
	if res.Slot != 0 || res.Image != 0 || res.Skipped || res.Recreated {
		t.Errorf("result = %+v", res)
	}

	want := []string{
		"wait compute_fence[0]",
		"uniforms 0 800x600",
		"reset compute_fence[0]",
		"reset compute_cmd[0]",
		"record compute 0",
		"submit compute [compute_cmd[0]]",
		"wait graphics_fence[0]",
		"acquire 0",
		"reset graphics_fence[0]",
		"reset graphics_cmd[0]",
		"record graphics 0 image 0",
		"submit graphics [graphics_cmd[0]]",
		"present 0",
	}
	if !slices.Equal(h.tr.events, want) {
		t.Errorf("trace =\n%s\nwant\n%s", strings.Join(h.tr.events, "\n"), strings.Join(want, "\n"))
	}
}

func TestSlotsAlternate(t *testing.T) {
	h := mustHarness(t, nil)

	var slots []SlotIndex
	for range 5 {
		res, err := h.ctx.AdvanceFrame(context.Background())
		if err != nil {
			t.Fatalf("AdvanceFrame: %v", err)
		}
		slots = append(slots, res.Slot)
	}
	if want := []SlotIndex{0, 1, 0, 1, 0}; !slices.Equal(slots, want) {
		t.Errorf("slots = %v, want %v", slots, want)
	}
	if h.ctx.Frames() != 5 {
		t.Errorf("Frames() = %d, want 5", h.ctx.Frames())
	}
	if h.ctx.Slot() != 1 {
		t.Errorf("Slot() = %d, want 1", h.ctx.Slot())
	}
}

// The fake fences reject a reset that was not preceded by an observed
// signal and a wait with no pending work, so a clean run of many frames
// proves every slot is reused only after its work completed.
func TestSlotReuseWaitsForCompletion(t *testing.T) {
	h := mustHarness(t, nil)

	for i := range 20 {
		if _, err := h.ctx.AdvanceFrame(context.Background()); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
	}

	for _, name := range []string{"compute_fence[0]", "compute_fence[1]", "graphics_fence[0]", "graphics_fence[1]"} {
		waited := false
		for _, ev := range h.tr.events {
			switch ev {
			case "wait " + name:
				waited = true
			case "reset " + name:
				if !waited {
					t.Fatalf("%s reset without a preceding wait", name)
				}
				waited = false
			}
		}
	}
}

func TestStaleAcquireSkipsFrame(t *testing.T) {
	h := mustHarness(t, func(h *harness, _ *Options) {
		h.surface.acquire = []AcquireStatus{AcquireOK, AcquireStale}
	})
	ctx := context.Background()

	if _, err := h.ctx.AdvanceFrame(ctx); err != nil {
		t.Fatalf("frame 1: %v", err)
	}
	h.tr.events = nil

	res, err := h.ctx.AdvanceFrame(ctx)
	if err != nil {
		t.Fatalf("stale frame: %v", err)
	}
	if !res.Skipped || !res.Recreated || res.Slot != 1 {
		t.Errorf("result = %+v, want skipped and recreated on slot 1", res)
	}
	if h.recreated != 1 {
		t.Errorf("recreated = %d, want 1", h.recreated)
	}
	if h.ctx.Slot() != 1 || h.ctx.Frames() != 1 {
		t.Errorf("slot, frames = %d, %d; want 1, 1", h.ctx.Slot(), h.ctx.Frames())
	}
	for _, ev := range h.tr.events {
		if ev == "reset graphics_fence[1]" || strings.HasPrefix(ev, "submit graphics") || strings.HasPrefix(ev, "present") {
			t.Errorf("unexpected %q after stale acquire", ev)
		}
	}

	// The retry on the same slot must consume the unconsumed compute
	// signal; the fake semaphores fail on a double signal.
	res, err = h.ctx.AdvanceFrame(ctx)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if res.Skipped || res.Slot != 1 {
		t.Errorf("retry result = %+v", res)
	}
	if h.ctx.Slot() != 0 || h.ctx.Frames() != 2 {
		t.Errorf("slot, frames = %d, %d; want 0, 2", h.ctx.Slot(), h.ctx.Frames())
	}

	for i := range 4 {
		if _, err := h.ctx.AdvanceFrame(ctx); err != nil {
			t.Fatalf("frame %d after retry: %v", i, err)
		}
	}
}

func TestPresentRecreates(t *testing.T) {
	tests := []struct {
		name    string
		present PresentStatus
		resize  bool
	}{
		{"stale", PresentStale, false},
		{"suboptimal", PresentSuboptimal, false},
		{"resized", PresentOK, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := mustHarness(t, func(h *harness, _ *Options) {
				h.surface.present = []PresentStatus{tt.present}
				h.resize.pending = tt.resize
			})

			res, err := h.ctx.AdvanceFrame(context.Background())
			if err != nil {
				t.Fatalf("AdvanceFrame: %v", err)
			}
			if !res.Recreated || res.Skipped {
				t.Errorf("result = %+v, want recreated", res)
			}
			if h.recreated != 1 {
				t.Errorf("recreated = %d, want 1", h.recreated)
			}
			if h.ctx.Frames() != 1 || h.ctx.Slot() != 1 {
				t.Errorf("frame did not advance")
			}
			if h.resize.pending {
				t.Error("resize flag not cleared")
			}

			res, err = h.ctx.AdvanceFrame(context.Background())
			if err != nil {
				t.Fatalf("second frame: %v", err)
			}
			if res.Recreated {
				t.Error("second frame recreated again")
			}
		})
	}
}

func TestSuboptimalAcquireProceeds(t *testing.T) {
	h := mustHarness(t, func(h *harness, _ *Options) {
		h.surface.acquire = []AcquireStatus{AcquireSuboptimal}
	})
	res, err := h.ctx.AdvanceFrame(context.Background())
	if err != nil {
		t.Fatalf("AdvanceFrame: %v", err)
	}
	if res.Skipped || res.Recreated {
		t.Errorf("result = %+v, want a normal frame", res)
	}
	if h.surface.presents != 1 {
		t.Errorf("presents = %d, want 1", h.surface.presents)
	}
}

func TestFatalErrors(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name   string
		mod    func(*harness, *Options)
		op     Op
		target error
	}{
		{
			name:   "compute fence timeout",
			mod:    func(h *harness, _ *Options) {},
			op:     OpWaitCompute,
			target: ErrWaitTimeout,
		},
		{
			name:   "record compute",
			mod:    func(h *harness, _ *Options) { h.recorder.computeErr = boom },
			op:     OpRecordCompute,
			target: boom,
		},
		{
			name:   "submit compute",
			mod:    func(h *harness, _ *Options) { h.compute.err = boom },
			op:     OpSubmitCompute,
			target: boom,
		},
		{
			name:   "acquire",
			mod:    func(h *harness, _ *Options) { h.surface.acquireErr = boom },
			op:     OpAcquire,
			target: boom,
		},
		{
			name:   "submit graphics",
			mod:    func(h *harness, _ *Options) { h.graphics.err = boom },
			op:     OpSubmitGraphics,
			target: boom,
		},
		{
			name:   "present",
			mod:    func(h *harness, _ *Options) { h.surface.presentErr = boom },
			op:     OpPresent,
			target: boom,
		},
		{
			name: "recreate",
			mod: func(h *harness, _ *Options) {
				h.surface.acquire = []AcquireStatus{AcquireStale}
				h.recreateErr = boom
			},
			op:     OpRecreate,
			target: boom,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := mustHarness(t, tt.mod)
			if tt.target == ErrWaitTimeout {
				h.dev.fences[0].waitErr = fmt.Errorf("%w after 1s", ErrWaitTimeout)
			}

			_, err := h.ctx.AdvanceFrame(context.Background())
			var fe *Error
			if !errors.As(err, &fe) {
				t.Fatalf("err = %v, want *Error", err)
			}
			if fe.Op != tt.op {
				t.Errorf("Op = %q, want %q", fe.Op, tt.op)
			}
			if fe.Slot != 0 {
				t.Errorf("Slot = %d, want 0", fe.Slot)
			}
			if !errors.Is(err, tt.target) {
				t.Errorf("err = %v, want it to wrap %v", err, tt.target)
			}
		})
	}
}

func TestRunLimit(t *testing.T) {
	h := mustHarness(t, func(h *harness, _ *Options) {
		h.surface.acquire = []AcquireStatus{AcquireOK, AcquireStale}
	})
	n, err := h.ctx.Run(context.Background(), 4)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n != 4 {
		t.Errorf("presented = %d, want 4", n)
	}
	if h.surface.presents != 4 {
		t.Errorf("presents = %d, want 4", h.surface.presents)
	}
}

func TestRunStopsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	computes := 0
	h := mustHarness(t, func(h *harness, _ *Options) {
		h.recorder.onCompute = func(SlotIndex) {
			computes++
			if computes == 3 {
				cancel()
			}
		}
	})

	n, err := h.ctx.Run(ctx, 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// The frame in progress when the context is cancelled completes.
	if n != 3 {
		t.Errorf("presented = %d, want 3", n)
	}
}

func TestRunReturnsFatalError(t *testing.T) {
	h := mustHarness(t, nil)
	h.surface.presentErr = errors.New("device lost")

	n, err := h.ctx.Run(context.Background(), 10)
	if n != 0 {
		t.Errorf("presented = %d, want 0", n)
	}
	var fe *Error
	if !errors.As(err, &fe) || fe.Op != OpPresent {
		t.Errorf("err = %v, want present *Error", err)
	}
}

func TestSnapshotPerFrame(t *testing.T) {
	reg := config.NewRegistry(&config.Snapshot{})
	h := mustHarness(t, func(_ *harness, o *Options) { o.Registry = reg })
	ctx := context.Background()

	if _, err := h.ctx.AdvanceFrame(ctx); err != nil {
		t.Fatal(err)
	}
	next := &config.Snapshot{DrawOps: map[string]config.DrawOp{"Cells": config.InstancedCells}}
	reg.Replace(next)
	if _, err := h.ctx.AdvanceFrame(ctx); err != nil {
		t.Fatal(err)
	}

	if len(h.recorder.snaps) != 2 {
		t.Fatalf("recorded %d snapshots, want 2", len(h.recorder.snaps))
	}
	if h.recorder.snaps[0] == next || h.recorder.snaps[1] != next {
		t.Error("replaced snapshot not picked up by the next frame")
	}
}

func TestDestroy(t *testing.T) {
	h := mustHarness(t, nil)
	ctx := context.Background()
	for range 3 {
		if _, err := h.ctx.AdvanceFrame(ctx); err != nil {
			t.Fatal(err)
		}
	}

	if err := h.ctx.Destroy(ctx); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	for _, f := range h.dev.fences {
		if !f.destroyed {
			t.Errorf("%s not destroyed", f.name)
		}
		if f.pending {
			t.Errorf("%s still pending after Destroy", f.name)
		}
	}
	for _, s := range h.dev.semaphores {
		if !s.destroyed {
			t.Errorf("%s not destroyed", s.name)
		}
	}

	if err := h.ctx.Destroy(ctx); err != nil {
		t.Errorf("second Destroy: %v", err)
	}
	if _, err := h.ctx.AdvanceFrame(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("AdvanceFrame after Destroy: err = %v, want ErrClosed", err)
	}
}

func TestProfilerReports(t *testing.T) {
	h := mustHarness(t, func(_ *harness, o *Options) { o.Profile = true })
	p := h.ctx.Profiler()
	if p == nil {
		t.Fatal("Profiler() = nil with Profile set")
	}

	clock := time.Unix(0, 0)
	p.now = func() time.Time {
		clock = clock.Add(time.Millisecond)
		return clock
	}
	var reports []ProfileReport
	p.OnReport = func(r ProfileReport) { reports = append(reports, r) }

	if _, err := h.ctx.Run(context.Background(), ProfileInterval-1); err != nil {
		t.Fatal(err)
	}
	if len(reports) != 0 {
		t.Fatalf("report after %d frames", ProfileInterval-1)
	}
	if _, err := h.ctx.Run(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	if len(reports) != 1 {
		t.Fatalf("reports = %d, want 1", len(reports))
	}

	r := p.Last()
	if r.Frames != ProfileInterval {
		t.Errorf("Frames = %d, want %d", r.Frames, ProfileInterval)
	}
	for ph := PhaseComputeWait; ph < PhaseFrame; ph++ {
		if r.Average[ph] != time.Millisecond {
			t.Errorf("%s average = %v, want 1ms", ph, r.Average[ph])
		}
	}
	if r.Average[PhaseFrame] != 7*time.Millisecond {
		t.Errorf("frame average = %v, want 7ms", r.Average[PhaseFrame])
	}
	if r.MaxFrame != 7*time.Millisecond {
		t.Errorf("MaxFrame = %v, want 7ms", r.MaxFrame)
	}
}

func TestProfilerDisabled(t *testing.T) {
	h := mustHarness(t, nil)
	if h.ctx.Profiler() != nil {
		t.Error("Profiler() != nil without Profile")
	}
	var p *Profiler
	if p.Last().Frames != 0 {
		t.Error("nil profiler reported frames")
	}
}

func TestErrorMessage(t *testing.T) {
	err := &Error{Op: OpPresent, Slot: 1, Err: errors.New("lost")}
	if got, want := err.Error(), "frame: present (slot 1): lost"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestDestroyAfterFatalError(t *testing.T) {
	boom := errors.New("record failed")
	tests := []struct {
		name string
		fail func(*harness)
	}{
		{"record compute", func(h *harness) { h.recorder.computeErr = boom }},
		{"submit compute", func(h *harness) { h.compute.err = boom }},
		{"record graphics", func(h *harness) { h.recorder.graphicsErr = boom }},
		{"submit graphics", func(h *harness) { h.graphics.err = boom }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := mustHarness(t, nil)
			if _, err := h.ctx.AdvanceFrame(context.Background()); err != nil {
				t.Fatal(err)
			}
			tt.fail(h)
			if _, err := h.ctx.AdvanceFrame(context.Background()); !errors.Is(err, boom) {
				t.Fatalf("AdvanceFrame: err = %v, want %v", err, boom)
			}

			// The fence reset by the failed frame is never signaled.
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := h.ctx.Destroy(ctx); err != nil {
				t.Fatalf("Destroy: %v", err)
			}
			for _, f := range h.dev.fences {
				if !f.destroyed {
					t.Errorf("%s not destroyed", f.name)
				}
			}
		})
	}
}

func TestRunStopsDuringFenceWait(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { SetLogger(nil) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := mustHarness(t, func(h *harness, _ *Options) {
		h.recorder.onCompute = func(SlotIndex) { cancel() }
	})
	// graphics_fence[0] reports the cancellation the way a real wait does.
	h.dev.fences[1].waitErr = fmt.Errorf("wait: %w", context.Canceled)

	n, err := h.ctx.Run(ctx, 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n != 0 {
		t.Errorf("presented = %d, want 0", n)
	}
	if strings.Contains(buf.String(), "frame: fatal") {
		t.Errorf("cancellation logged as fatal:\n%s", buf.String())
	}
}
