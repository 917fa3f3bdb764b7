package frame

import (
	"log/slog"
	"time"
)

// ProfileInterval is the number of frames averaged per profiler report.
const ProfileInterval = 60

// Phase is a timed section of AdvanceFrame.
type Phase uint8

const (
	PhaseComputeWait Phase = iota
	PhaseComputeWork
	PhaseGraphicsWait
	PhaseAcquire
	PhaseGraphicsSubmit
	PhasePresent
	PhaseFrame
	numPhases
)

var phaseNames = [numPhases]string{
	"compute_wait",
	"compute_work",
	"graphics_wait",
	"acquire",
	"graphics_submit",
	"present",
	"frame",
}

func (p Phase) String() string {
	if p < numPhases {
		return phaseNames[p]
	}
	return "unknown"
}

// ProfileReport holds averaged phase timings over Frames frames.
type ProfileReport struct {
	Frames   int
	Average  [numPhases]time.Duration
	MaxFrame time.Duration
}

// Profiler accumulates per-phase frame timings and logs their averages
// every ProfileInterval frames. A nil *Profiler is valid and records
// nothing.
type Profiler struct {
	now func() time.Time

	frames   int
	sums     [numPhases]time.Duration
	maxFrame time.Duration
	last     ProfileReport

	// OnReport, if set, receives every report after it is logged.
	OnReport func(ProfileReport)
}

// NewProfiler returns a profiler using the wall clock.
func NewProfiler() *Profiler {
	return &Profiler{now: time.Now}
}

func (p *Profiler) start() time.Time {
	if p == nil {
		return time.Time{}
	}
	return p.now()
}

// since records the time elapsed from t0 under phase and returns the
// current time for chaining.
func (p *Profiler) since(ph Phase, t0 time.Time) time.Time {
	if p == nil {
		return time.Time{}
	}
	t := p.now()
	p.sums[ph] += t.Sub(t0)
	return t
}

// endFrame records the whole-frame duration and emits a report when the
// interval is complete.
func (p *Profiler) endFrame(t0 time.Time) {
	if p == nil {
		return
	}
	d := p.now().Sub(t0)
	p.sums[PhaseFrame] += d
	if d > p.maxFrame {
		p.maxFrame = d
	}
	p.frames++
	if p.frames < ProfileInterval {
		return
	}

	r := ProfileReport{Frames: p.frames, MaxFrame: p.maxFrame}
	for i, s := range p.sums {
		r.Average[i] = s / time.Duration(p.frames)
	}
	p.last = r
	p.frames, p.sums, p.maxFrame = 0, [numPhases]time.Duration{}, 0

	attrs := make([]any, 0, 2*int(numPhases)+2)
	for i, avg := range r.Average {
		attrs = append(attrs, slog.Float64(Phase(i).String()+"_ms", ms(avg)))
	}
	attrs = append(attrs, slog.Float64("max_frame_ms", ms(r.MaxFrame)))
	slogger().Info("frame: profile", attrs...)

	if p.OnReport != nil {
		p.OnReport(r)
	}
}

// Last returns the most recent report.
func (p *Profiler) Last() ProfileReport {
	if p == nil {
		return ProfileReport{}
	}
	return p.last
}

func ms(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }
