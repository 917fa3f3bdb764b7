// Package plan orders the steps of a shader graph and splits them into
// the three execution phases consumed by the frame loop.
//
// A step is the set of graph nodes sharing a shader name. Steps are ordered
// by a priority topological sort whose ties are always broken by discovery
// order (first appearance in the graph's node list), so the same graph
// always yields the same plan.
package plan

import (
	"strconv"

	"github.com/twmb/murmur3"

	"github.com/gogpu/gridframe/graph"
)

// Phase identifies one of the three execution phases.
type Phase uint8

const (
	PhasePreGraphicsCompute Phase = iota
	PhaseGraphics
	PhasePostGraphicsCompute
)

// String implements fmt.Stringer.
func (p Phase) String() string {
	switch p {
	case PhasePreGraphicsCompute:
		return "pre_graphics_compute"
	case PhaseGraphics:
		return "graphics"
	case PhasePostGraphicsCompute:
		return "post_graphics_compute"
	default:
		return "Phase(" + strconv.Itoa(int(p)) + ")"
	}
}

// Step is a scheduling unit with the traits accumulated from its nodes.
type Step struct {
	Name        string
	HasCompute  bool
	HasGraphics bool
}

// Plan is the phase-partitioned execution order of a graph's steps.
type Plan struct {
	PreGraphicsCompute  []string
	Graphics            []string
	PostGraphicsCompute []string
}

// Len returns the total number of steps in the plan.
func (p Plan) Len() int {
	return len(p.PreGraphicsCompute) + len(p.Graphics) + len(p.PostGraphicsCompute)
}

// Phase returns the sequence for phase ph.
func (p Plan) Phase(ph Phase) []string {
	switch ph {
	case PhasePreGraphicsCompute:
		return p.PreGraphicsCompute
	case PhaseGraphics:
		return p.Graphics
	case PhasePostGraphicsCompute:
		return p.PostGraphicsCompute
	default:
		return nil
	}
}

// Steps returns every step name in phase order.
func (p Plan) Steps() []string {
	out := make([]string, 0, p.Len())
	out = append(out, p.PreGraphicsCompute...)
	out = append(out, p.Graphics...)
	out = append(out, p.PostGraphicsCompute...)
	return out
}

// PhaseOf reports which phase holds the named step.
func (p Plan) PhaseOf(name string) (Phase, bool) {
	for _, ph := range []Phase{PhasePreGraphicsCompute, PhaseGraphics, PhasePostGraphicsCompute} {
		for _, s := range p.Phase(ph) {
			if s == name {
				return ph, true
			}
		}
	}
	return 0, false
}

// Fingerprint returns a hex murmur3 digest of the plan. Two plans have the
// same fingerprint exactly when their phase sequences are identical.
func (p Plan) Fingerprint() string {
	h := murmur3.New64()
	for _, ph := range []Phase{PhasePreGraphicsCompute, PhaseGraphics, PhasePostGraphicsCompute} {
		h.Write([]byte{0xff, byte(ph)})
		for _, s := range p.Phase(ph) {
			h.Write([]byte(s))
			h.Write([]byte{0})
		}
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

// Report is the full result of planning a graph.
type Report struct {
	Plan Plan

	// Order is every step in final execution order, before partitioning.
	Order []Step

	// Boundary is the index in Order of the first graphics step, or
	// len(Order) when there is none.
	Boundary int

	// CycleFallback is set when the step graph had a cycle and Order is
	// plain discovery order instead of a topological order.
	CycleFallback bool
}

// Build returns the execution plan for g. A cyclic step graph does not
// fail; the plan falls back to discovery order and a warning is logged.
func Build(g *graph.Graph) Plan {
	r := BuildReport(g)
	if r.CycleFallback {
		slogger().Warn("plan: step graph has a cycle, using discovery order",
			"steps", len(r.Order))
	}
	return r.Plan
}

// BuildReport plans g and reports how the order was obtained.
func BuildReport(g *graph.Graph) Report {
	steps, index := discoverSteps(g)
	succ, indeg := projectEdges(g, index, len(steps))

	order, ok := prioritySort(succ, indeg)
	if !ok {
		order = make([]int, len(steps))
		for i := range order {
			order[i] = i
		}
	}

	r := Report{
		Order:         make([]Step, len(order)),
		CycleFallback: !ok,
	}
	for i, si := range order {
		r.Order[i] = steps[si]
	}
	r.Boundary, r.Plan = partition(r.Order)

	slogger().Debug("plan: built",
		"pre", r.Plan.PreGraphicsCompute,
		"graphics", r.Plan.Graphics,
		"post", r.Plan.PostGraphicsCompute)
	return r
}

// discoverSteps groups nodes by shader name in first-seen order.
func discoverSteps(g *graph.Graph) ([]Step, map[string]int) {
	var steps []Step
	index := make(map[string]int)
	for _, n := range g.Nodes() {
		i, ok := index[n.ShaderName]
		if !ok {
			i = len(steps)
			index[n.ShaderName] = i
			steps = append(steps, Step{Name: n.ShaderName})
		}
		if n.Stage.IsCompute() {
			steps[i].HasCompute = true
		} else {
			steps[i].HasGraphics = true
		}
	}
	return steps, index
}

// projectEdges lifts node edges onto steps, dropping duplicates and self
// loops. It returns successor lists and in-degrees indexed by step.
func projectEdges(g *graph.Graph, index map[string]int, n int) ([][]int, []int) {
	succ := make([][]int, n)
	indeg := make([]int, n)
	seen := make(map[[2]int]struct{})
	for _, e := range g.Edges() {
		from, _ := g.Node(e.From)
		to, _ := g.Node(e.To)
		a, b := index[from.ShaderName], index[to.ShaderName]
		if a == b {
			continue
		}
		k := [2]int{a, b}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		succ[a] = append(succ[a], b)
		indeg[b]++
	}
	return succ, indeg
}

// prioritySort repeatedly scans steps in discovery order and emits every
// step whose in-degree has dropped to zero. It stops when all steps are
// emitted or a full pass emits nothing, so it runs at most n passes.
func prioritySort(succ [][]int, indeg []int) ([]int, bool) {
	n := len(indeg)
	remaining := append([]int(nil), indeg...)
	emitted := make([]bool, n)
	order := make([]int, 0, n)

	for len(order) < n {
		progress := false
		for i := 0; i < n; i++ {
			if emitted[i] || remaining[i] != 0 {
				continue
			}
			emitted[i] = true
			order = append(order, i)
			progress = true
			for _, s := range succ[i] {
				remaining[s]--
			}
		}
		if !progress {
			return order, false
		}
	}
	return order, true
}

func partition(order []Step) (int, Plan) {
	boundary := len(order)
	for i, s := range order {
		if s.HasGraphics {
			boundary = i
			break
		}
	}

	var p Plan
	for i, s := range order {
		switch {
		case s.HasGraphics:
			p.Graphics = append(p.Graphics, s.Name)
		case i < boundary:
			p.PreGraphicsCompute = append(p.PreGraphicsCompute, s.Name)
		default:
			p.PostGraphicsCompute = append(p.PostGraphicsCompute, s.Name)
		}
	}
	return boundary, p
}
