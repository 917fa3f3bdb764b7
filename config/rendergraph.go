package config

import "github.com/gogpu/gridframe/plan"

// RenderStage is where a render graph node runs within a frame.
type RenderStage uint8

const (
	PreCompute RenderStage = iota
	Graphics
	PostCompute
)

func (s RenderStage) String() string {
	switch s {
	case PreCompute:
		return "pre_compute"
	case Graphics:
		return "graphics"
	case PostCompute:
		return "post_compute"
	default:
		return "unknown"
	}
}

// RenderNode is one active pipeline of the render graph.
type RenderNode struct {
	Stage    RenderStage
	Pipeline string
	DrawOp   DrawOp
}

// RenderGraph is the list of pipelines currently selected for rendering.
// It is treated as a value: reconfiguration builds a new one.
type RenderGraph struct {
	Nodes []RenderNode
}

// Clone returns a deep copy.
func (rg RenderGraph) Clone() RenderGraph {
	return RenderGraph{Nodes: append([]RenderNode(nil), rg.Nodes...)}
}

// Pipelines returns the pipeline names of the nodes in stage s, in order.
func (rg RenderGraph) Pipelines(s RenderStage) []string {
	var out []string
	for _, n := range rg.Nodes {
		if n.Stage == s {
			out = append(out, n.Pipeline)
		}
	}
	return out
}

// WithGraphics returns a copy of rg whose graphics nodes are replaced by
// pipelines, in the given order. Compute nodes are kept. Draw operations
// are looked up in ops.
func (rg RenderGraph) WithGraphics(pipelines []string, ops map[string]DrawOp) RenderGraph {
	out := RenderGraph{Nodes: make([]RenderNode, 0, len(rg.Nodes)+len(pipelines))}
	for _, n := range rg.Nodes {
		if n.Stage != Graphics {
			out.Nodes = append(out.Nodes, n)
		}
	}
	for _, p := range pipelines {
		out.Nodes = append(out.Nodes, RenderNode{Stage: Graphics, Pipeline: p, DrawOp: ops[p]})
	}
	return out
}

// RenderGraphFromPlan lays out a plan as a render graph, resolving the draw
// operation of each graphics step through ops.
func RenderGraphFromPlan(p plan.Plan, ops map[string]DrawOp) RenderGraph {
	rg := RenderGraph{Nodes: make([]RenderNode, 0, p.Len())}
	for _, s := range p.PreGraphicsCompute {
		rg.Nodes = append(rg.Nodes, RenderNode{Stage: PreCompute, Pipeline: s})
	}
	for _, s := range p.Graphics {
		rg.Nodes = append(rg.Nodes, RenderNode{Stage: Graphics, Pipeline: s, DrawOp: ops[s]})
	}
	for _, s := range p.PostGraphicsCompute {
		rg.Nodes = append(rg.Nodes, RenderNode{Stage: PostCompute, Pipeline: s})
	}
	return rg
}
