// Package config holds the runtime configuration consumed by the frame
// loop: the active render graph, the execution plan, the pipeline table,
// draw operations and terrain/world settings.
//
// Configuration is published as immutable *Snapshot values through a
// Registry. The frame loop loads one snapshot per frame, so a
// reconfiguration is always observed whole at a frame boundary.
package config

import (
	"fmt"
	"maps"
	"sync/atomic"

	"github.com/gogpu/gridframe/graph"
	"github.com/gogpu/gridframe/plan"
)

// Snapshot is one immutable configuration state. Callers that need to
// change it work on a Clone and publish it with Registry.Replace.
type Snapshot struct {
	// RenderGraph, when set, selects the pipelines run each frame.
	// Otherwise Plan is used.
	RenderGraph *RenderGraph
	Plan        *plan.Plan

	Pipelines map[string]Pipeline
	DrawOps   map[string]DrawOp
	Terrain   Terrain
	World     World
}

// Clone returns a deep copy of s.
func (s *Snapshot) Clone() *Snapshot {
	c := *s
	if s.RenderGraph != nil {
		rg := s.RenderGraph.Clone()
		c.RenderGraph = &rg
	}
	if s.Plan != nil {
		p := plan.Plan{
			PreGraphicsCompute:  append([]string(nil), s.Plan.PreGraphicsCompute...),
			Graphics:            append([]string(nil), s.Plan.Graphics...),
			PostGraphicsCompute: append([]string(nil), s.Plan.PostGraphicsCompute...),
		}
		c.Plan = &p
	}
	c.Pipelines = maps.Clone(s.Pipelines)
	c.DrawOps = maps.Clone(s.DrawOps)
	return &c
}

// PreCompute returns the compute pipelines recorded before graphics.
func (s *Snapshot) PreCompute() []string {
	switch {
	case s.RenderGraph != nil:
		return s.RenderGraph.Pipelines(PreCompute)
	case s.Plan != nil:
		return s.Plan.PreGraphicsCompute
	}
	return nil
}

// PostCompute returns the compute pipelines recorded after graphics.
func (s *Snapshot) PostCompute() []string {
	switch {
	case s.RenderGraph != nil:
		return s.RenderGraph.Pipelines(PostCompute)
	case s.Plan != nil:
		return s.Plan.PostGraphicsCompute
	}
	return nil
}

// Draw is a graphics pipeline paired with its draw operation.
type Draw struct {
	Pipeline string
	Op       DrawOp
}

// Draws returns the graphics pipelines to draw, in order. A node whose draw
// operation is unknown falls back to the DrawOps table; pipelines that
// still have no known operation are skipped.
func (s *Snapshot) Draws() []Draw {
	var out []Draw
	add := func(name string, op DrawOp) {
		if op == DrawOpUnknown {
			op = s.DrawOps[name]
		}
		if op != DrawOpUnknown {
			out = append(out, Draw{Pipeline: name, Op: op})
		}
	}
	switch {
	case s.RenderGraph != nil:
		for _, n := range s.RenderGraph.Nodes {
			if n.Stage == Graphics {
				add(n.Pipeline, n.DrawOp)
			}
		}
	case s.Plan != nil:
		for _, name := range s.Plan.Graphics {
			add(name, DrawOpUnknown)
		}
	}
	return out
}

// WorkGroups returns the dispatch size of a compute pipeline, or
// DefaultWorkGroups when the pipeline is not in the table.
func (s *Snapshot) WorkGroups(name string) [3]uint32 {
	if p, ok := s.Pipelines[name]; ok && p.Compute {
		return p.WorkGroups
	}
	return DefaultWorkGroups(name, s.Terrain)
}

// Registry publishes configuration snapshots. It is safe for concurrent
// use; readers never observe a partially updated snapshot.
type Registry struct {
	cur atomic.Pointer[Snapshot]
}

// NewRegistry returns a registry publishing s, or Default() when s is nil.
func NewRegistry(s *Snapshot) *Registry {
	if s == nil {
		s = Default()
	}
	r := &Registry{}
	r.cur.Store(s)
	return r
}

// Load returns the current snapshot. It must not be modified.
func (r *Registry) Load() *Snapshot { return r.cur.Load() }

// Replace publishes s as a whole.
func (r *Registry) Replace(s *Snapshot) { r.cur.Store(s) }

// Update applies fn to a clone of the current snapshot and publishes the
// result. fn may run more than once if another update races it.
func (r *Registry) Update(fn func(*Snapshot)) {
	for {
		old := r.cur.Load()
		next := old.Clone()
		fn(next)
		if r.cur.CompareAndSwap(old, next) {
			return
		}
	}
}

// SetRenderGraph replaces the active render graph.
func (r *Registry) SetRenderGraph(rg RenderGraph) {
	rg = rg.Clone()
	r.Update(func(s *Snapshot) { s.RenderGraph = &rg })
}

// SelectGraphics keeps the compute nodes of the active render graph and
// replaces its graphics nodes with pipelines.
func (r *Registry) SelectGraphics(pipelines []string) {
	r.Update(func(s *Snapshot) {
		var base RenderGraph
		if s.RenderGraph != nil {
			base = *s.RenderGraph
		}
		rg := base.WithGraphics(pipelines, s.DrawOps)
		s.RenderGraph = &rg
	})
	slogger().Info("config: graphics selection changed", "pipelines", pipelines)
}

// Install replaces the configuration with one derived from g. Settings
// from g are applied first, then overrides. The terrain and world settings
// of the current snapshot are the base; everything else is rebuilt.
func (r *Registry) Install(g *graph.Graph, overrides map[string]string) error {
	s, err := Build(r.Load(), g, overrides)
	if err != nil {
		return err
	}
	r.Replace(s)
	slogger().Info("config: graph installed",
		"pipelines", len(s.Pipelines),
		"pre", len(s.Plan.PreGraphicsCompute),
		"graphics", len(s.Plan.Graphics),
		"post", len(s.Plan.PostGraphicsCompute))
	return nil
}

// Build derives a snapshot from g on top of the settings of base.
func Build(base *Snapshot, g *graph.Graph, overrides map[string]string) (*Snapshot, error) {
	kv := g.SettingsMap()
	maps.Copy(kv, overrides)

	s := &Snapshot{Terrain: base.Terrain, World: base.World}
	if err := ApplySettings(s, kv); err != nil {
		return nil, fmt.Errorf("apply settings: %w", err)
	}

	pipelines, err := PipelinesFromGraph(g, s.Terrain, kv)
	if err != nil {
		return nil, fmt.Errorf("derive pipelines: %w", err)
	}
	s.Pipelines = pipelines

	// Built-in draw operations cover graphs without DRAW records.
	s.DrawOps = maps.Clone(defaultDrawOps)
	for _, b := range g.DrawBindings() {
		s.DrawOps[b.Pipeline] = ParseDrawOp(b.DrawOp)
	}

	p := plan.Build(g)
	s.Plan = &p
	rg := RenderGraphFromPlan(p, s.DrawOps)
	s.RenderGraph = &rg
	return s, nil
}
