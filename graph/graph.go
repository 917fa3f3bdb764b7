// Package graph holds a validated description of shader nodes, the data
// edges between them and the graph's input/output anchors.
//
// A Graph is a passive container. It preserves insertion order of nodes and
// edges because the execution planner uses that order to break ties, and it
// does not check for cycles; cycle handling belongs to the planner.
//
//	g := graph.New()
//	_ = g.AddNode(graph.Node{ID: "seed", ShaderName: "Seed", Stage: graph.StageComp})
//	_ = g.AddNode(graph.Node{ID: "draw", ShaderName: "Terrain", Stage: graph.StageVert})
//	_ = g.AddEdge(graph.Edge{From: "seed", To: "draw"})
//	g.SetInput(graph.Endpoint{NodeID: "seed", Resource: "cells"})
//	g.SetOutput(graph.Endpoint{NodeID: "draw", Resource: "color"})
//	err := g.Validate()
package graph

import "fmt"

// Node is a single shader bound to a named pipeline step.
type Node struct {
	ID         string
	ShaderName string
	Stage      Stage
}

// ShaderPath returns the conventional relative path of the node's shader
// source, e.g. "shaders/Cells.vert".
func (n Node) ShaderPath() string {
	return "shaders/" + n.ShaderName + "." + n.Stage.Extension()
}

// Edge is a data dependency: the output of From feeds the input of To.
type Edge struct {
	From string
	To   string
}

// Endpoint anchors the graph input or output to a node resource.
type Endpoint struct {
	NodeID   string
	Resource string
}

// DrawBinding assigns a draw operation tag to a graphics pipeline.
type DrawBinding struct {
	Pipeline string
	DrawOp   string
}

// PipelineDefinition groups shader node ids into a named pipeline.
// WorkGroups is only meaningful for compute pipelines; zero components mean
// "derive from settings".
type PipelineDefinition struct {
	Name       string
	Compute    bool
	ShaderIDs  []string
	WorkGroups [3]uint32
}

// Setting is a raw key/value pair carried by the graph source.
type Setting struct {
	Key   string
	Value string
}

// Graph is an order-preserving container of nodes, edges, endpoints,
// draw bindings, pipeline definitions and settings. The zero value is an
// empty graph ready to use.
type Graph struct {
	nodes     []Node
	edges     []Edge
	bindings  []DrawBinding
	pipelines []PipelineDefinition
	settings  []Setting

	nodeIndex     map[string]int
	edgeSet       map[Edge]struct{}
	bindingIndex  map[string]int
	pipelineIndex map[string]int
	settingIndex  map[string]int

	input  *Endpoint
	output *Endpoint
}

// New returns an empty graph.
func New() *Graph {
	g := &Graph{}
	g.init()
	return g
}

func (g *Graph) init() {
	if g.nodeIndex != nil {
		return
	}
	g.nodeIndex = make(map[string]int)
	g.edgeSet = make(map[Edge]struct{})
	g.bindingIndex = make(map[string]int)
	g.pipelineIndex = make(map[string]int)
	g.settingIndex = make(map[string]int)
}

// AddNode appends a node. It fails if the id or shader name is blank, the
// stage is unknown, or the id is already present.
func (g *Graph) AddNode(n Node) error {
	g.init()
	switch {
	case n.ID == "":
		return &NodeError{Err: ErrBlankID}
	case n.ShaderName == "":
		return &NodeError{ID: n.ID, Err: ErrBlankShaderName}
	case !n.Stage.Known():
		return &NodeError{ID: n.ID, Err: ErrUnknownStage}
	}
	if _, dup := g.nodeIndex[n.ID]; dup {
		return &NodeError{ID: n.ID, Err: ErrDuplicateNode}
	}
	g.nodeIndex[n.ID] = len(g.nodes)
	g.nodes = append(g.nodes, n)
	return nil
}

// AddEdge appends a data edge. Both endpoints must exist. Self edges and
// edges already present are accepted and ignored so that redundant
// declarations from generated sources do not fail.
func (g *Graph) AddEdge(e Edge) error {
	g.init()
	if _, ok := g.nodeIndex[e.From]; !ok {
		return &EdgeError{Side: "source", NodeID: e.From}
	}
	if _, ok := g.nodeIndex[e.To]; !ok {
		return &EdgeError{Side: "target", NodeID: e.To}
	}
	if e.From == e.To {
		return nil
	}
	if _, dup := g.edgeSet[e]; dup {
		return nil
	}
	g.edgeSet[e] = struct{}{}
	g.edges = append(g.edges, e)
	return nil
}

// AddDrawBinding records the draw operation for a graphics pipeline.
func (g *Graph) AddDrawBinding(b DrawBinding) error {
	g.init()
	if b.Pipeline == "" {
		return fmt.Errorf("%w: pipeline name cannot be blank", ErrInvalidBinding)
	}
	if b.DrawOp == "" {
		return fmt.Errorf("%w: draw op cannot be blank for pipeline %s", ErrInvalidBinding, b.Pipeline)
	}
	if _, dup := g.bindingIndex[b.Pipeline]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicateBinding, b.Pipeline)
	}
	g.bindingIndex[b.Pipeline] = len(g.bindings)
	g.bindings = append(g.bindings, b)
	return nil
}

// AddPipelineDefinition records an explicit pipeline definition.
func (g *Graph) AddPipelineDefinition(p PipelineDefinition) error {
	g.init()
	if p.Name == "" {
		return fmt.Errorf("%w: name cannot be blank", ErrInvalidPipeline)
	}
	if _, dup := g.pipelineIndex[p.Name]; dup {
		return fmt.Errorf("%w: duplicate pipeline definition: %s", ErrInvalidPipeline, p.Name)
	}
	if len(p.ShaderIDs) == 0 {
		return fmt.Errorf("%w: pipeline definition has no shaders: %s", ErrInvalidPipeline, p.Name)
	}
	p.ShaderIDs = append([]string(nil), p.ShaderIDs...)
	g.pipelineIndex[p.Name] = len(g.pipelines)
	g.pipelines = append(g.pipelines, p)
	return nil
}

// AddSetting records a key/value setting. Keys must be unique.
func (g *Graph) AddSetting(key, value string) error {
	g.init()
	if key == "" {
		return fmt.Errorf("%w: key cannot be blank", ErrInvalidSetting)
	}
	if value == "" {
		return fmt.Errorf("%w: value cannot be blank for key %s", ErrInvalidSetting, key)
	}
	if _, dup := g.settingIndex[key]; dup {
		return fmt.Errorf("%w: duplicate setting key: %s", ErrInvalidSetting, key)
	}
	g.settingIndex[key] = len(g.settings)
	g.settings = append(g.settings, Setting{Key: key, Value: value})
	return nil
}

// SetInput sets the graph input endpoint. Last write wins; the endpoint is
// checked by Validate.
func (g *Graph) SetInput(e Endpoint) { g.input = &e }

// SetOutput sets the graph output endpoint. Last write wins; the endpoint is
// checked by Validate.
func (g *Graph) SetOutput(e Endpoint) { g.output = &e }

// Validate checks that the graph is non-empty, that both endpoints are set
// and resolve to existing nodes, and that pipeline definitions and draw
// bindings reference what they claim to. It does not check for cycles.
func (g *Graph) Validate() error {
	if len(g.nodes) == 0 {
		return &ValidationError{Err: ErrEmptyGraph}
	}
	if g.input == nil {
		return &ValidationError{Err: ErrMissingInput}
	}
	if g.output == nil {
		return &ValidationError{Err: ErrMissingOutput}
	}
	if !g.HasNode(g.input.NodeID) {
		return &ValidationError{Subject: "input endpoint " + g.input.NodeID, Err: ErrMissingNode}
	}
	if !g.HasNode(g.output.NodeID) {
		return &ValidationError{Subject: "output endpoint " + g.output.NodeID, Err: ErrMissingNode}
	}

	for _, p := range g.pipelines {
		var hasCompute, hasGraphics bool
		for _, id := range p.ShaderIDs {
			n, ok := g.Node(id)
			if !ok {
				return &ValidationError{Subject: "pipeline " + p.Name + " shader " + id, Err: ErrMissingNode}
			}
			if n.Stage.IsCompute() {
				hasCompute = true
			} else {
				hasGraphics = true
			}
		}
		if p.Compute && !hasCompute {
			return &ValidationError{Subject: p.Name, Err: fmt.Errorf("%w: compute pipeline has no compute shader", ErrInvalidPipeline)}
		}
		if !p.Compute && !hasGraphics {
			return &ValidationError{Subject: p.Name, Err: fmt.Errorf("%w: graphics pipeline has no graphics shaders", ErrInvalidPipeline)}
		}
	}

	for _, b := range g.bindings {
		if !g.isGraphicsPipeline(b.Pipeline) {
			return &ValidationError{Subject: b.Pipeline, Err: fmt.Errorf("%w: unknown graphics pipeline", ErrInvalidBinding)}
		}
	}
	return nil
}

// isGraphicsPipeline reports whether name is a non-compute definition or,
// without a definition, the shader name of a graphics step.
func (g *Graph) isGraphicsPipeline(name string) bool {
	if i, ok := g.pipelineIndex[name]; ok {
		return !g.pipelines[i].Compute
	}
	for _, n := range g.nodes {
		if n.ShaderName == name && !n.Stage.IsCompute() {
			return true
		}
	}
	return false
}

// HasNode reports whether a node with the given id exists.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodeIndex[id]
	return ok
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (Node, bool) {
	i, ok := g.nodeIndex[id]
	if !ok {
		return Node{}, false
	}
	return g.nodes[i], true
}

// Nodes returns the nodes in insertion order. The slice must not be modified.
func (g *Graph) Nodes() []Node { return g.nodes }

// Edges returns the edges in insertion order. The slice must not be modified.
func (g *Graph) Edges() []Edge { return g.edges }

// DrawBindings returns the draw bindings in insertion order.
func (g *Graph) DrawBindings() []DrawBinding { return g.bindings }

// PipelineDefinitions returns the explicit pipeline definitions in insertion order.
func (g *Graph) PipelineDefinitions() []PipelineDefinition { return g.pipelines }

// Settings returns the settings in insertion order.
func (g *Graph) Settings() []Setting { return g.settings }

// SettingsMap returns the settings as a fresh map.
func (g *Graph) SettingsMap() map[string]string {
	m := make(map[string]string, len(g.settings))
	for _, s := range g.settings {
		m[s.Key] = s.Value
	}
	return m
}

// Input returns the input endpoint, if set.
func (g *Graph) Input() (Endpoint, bool) {
	if g.input == nil {
		return Endpoint{}, false
	}
	return *g.input, true
}

// Output returns the output endpoint, if set.
func (g *Graph) Output() (Endpoint, bool) {
	if g.output == nil {
		return Endpoint{}, false
	}
	return *g.output, true
}
