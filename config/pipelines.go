package config

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/gogpu/gridframe/graph"
)

// wireFrameSuffix marks a graphics pipeline that borrows missing vertex or
// fragment shaders from the pipeline named by the rest of its name.
const wireFrameSuffix = "WireFrame"

// Pipeline describes the shaders and dispatch size of one named pipeline.
// WorkGroups is only meaningful for compute pipelines.
type Pipeline struct {
	Name       string
	Compute    bool
	Shaders    []string
	WorkGroups [3]uint32
}

// DefaultWorkGroups is the dispatch size used when none is configured:
// one group per 32x32 tile of the grid for Engine, a single group otherwise.
func DefaultWorkGroups(name string, t Terrain) [3]uint32 {
	if name == "Engine" {
		return [3]uint32{uint32(t.GridWidth+31) / 32, uint32(t.GridHeight+31) / 32, 1}
	}
	return [3]uint32{1, 1, 1}
}

// PipelinesFromGraph derives the pipeline table of g.
//
// Explicit pipeline definitions win; a compute definition with any zero
// work group component gets DefaultWorkGroups. Without explicit definitions
// every step becomes a pipeline whose shaders are the node ids sorted by
// stage then id. Compute pipelines read "workgroups.<name>" from kv.
func PipelinesFromGraph(g *graph.Graph, t Terrain, kv map[string]string) (map[string]Pipeline, error) {
	if defs := g.PipelineDefinitions(); len(defs) > 0 {
		out := make(map[string]Pipeline, len(defs))
		for _, d := range defs {
			p := Pipeline{Name: d.Name, Compute: d.Compute, Shaders: append([]string(nil), d.ShaderIDs...)}
			if d.Compute {
				p.WorkGroups = d.WorkGroups
				if p.WorkGroups[0] == 0 || p.WorkGroups[1] == 0 || p.WorkGroups[2] == 0 {
					p.WorkGroups = DefaultWorkGroups(d.Name, t)
				}
			}
			out[d.Name] = p
		}
		return out, nil
	}

	out := make(map[string]Pipeline)
	stageByID := make(map[string]graph.Stage)
	// first node id per stage, per step
	firstByStage := make(map[string]map[graph.Stage]string)

	for _, n := range g.Nodes() {
		p := out[n.ShaderName]
		p.Name = n.ShaderName
		p.Compute = p.Compute || n.Stage.IsCompute()
		p.Shaders = append(p.Shaders, n.ID)
		out[n.ShaderName] = p

		stageByID[n.ID] = n.Stage
		m := firstByStage[n.ShaderName]
		if m == nil {
			m = make(map[graph.Stage]string)
			firstByStage[n.ShaderName] = m
		}
		if _, ok := m[n.Stage]; !ok {
			m[n.Stage] = n.ID
		}
	}

	for name, p := range out {
		if !p.Compute && strings.HasSuffix(name, wireFrameSuffix) {
			p.Shaders = inheritBaseShaders(p.Shaders, stageByID, firstByStage[strings.TrimSuffix(name, wireFrameSuffix)])
		}

		sort.SliceStable(p.Shaders, func(i, j int) bool {
			a, b := p.Shaders[i], p.Shaders[j]
			ra, rb := stageByID[a].Rank(), stageByID[b].Rank()
			if ra != rb {
				return ra < rb
			}
			return a < b
		})
		p.Shaders = dedupSorted(p.Shaders)

		if p.Compute {
			wg, err := workGroupsSetting(kv, name, DefaultWorkGroups(name, t))
			if err != nil {
				return nil, err
			}
			p.WorkGroups = wg
		}
		out[name] = p
	}
	return out, nil
}

func inheritBaseShaders(shaders []string, stageByID map[string]graph.Stage, base map[graph.Stage]string) []string {
	if base == nil {
		return shaders
	}
	var hasVert, hasFrag bool
	for _, id := range shaders {
		switch stageByID[id] {
		case graph.StageVert:
			hasVert = true
		case graph.StageFrag:
			hasFrag = true
		}
	}
	if id, ok := base[graph.StageVert]; ok && !hasVert {
		shaders = append(shaders, id)
	}
	if id, ok := base[graph.StageFrag]; ok && !hasFrag {
		shaders = append(shaders, id)
	}
	return shaders
}

func dedupSorted(s []string) []string {
	if len(s) < 2 {
		return s
	}
	out := s[:1]
	for _, v := range s[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

// workGroupsSetting reads "workgroups.<name>" as three numbers, each
// clamped to at least 1. Counts above math.MaxUint32 are rejected.
func workGroupsSetting(kv map[string]string, name string, fallback [3]uint32) ([3]uint32, error) {
	key := "workgroups." + name
	v, ok := kv[key]
	if !ok {
		return fallback, nil
	}
	vals, err := parseFloatList(v, 3)
	if err != nil {
		return fallback, &SettingError{Key: key, Value: v, Err: err}
	}
	var wg [3]uint32
	for i, f := range vals {
		if float64(f) > math.MaxUint32 {
			return fallback, &SettingError{Key: key, Value: v, Err: errWorkGroupsRange}
		}
		wg[i] = uint32(math.Max(1, float64(f)))
	}
	return wg, nil
}

var errWorkGroupsRange = errors.New("work group count exceeds 4294967295")

// builtinPipelines is the pipeline table used before any graph is installed.
func builtinPipelines(t Terrain) map[string]Pipeline {
	gfx := func(name string, shaders ...string) Pipeline {
		return Pipeline{Name: name, Shaders: shaders}
	}
	comp := func(name string, shaders ...string) Pipeline {
		return Pipeline{Name: name, Compute: true, Shaders: shaders, WorkGroups: DefaultWorkGroups(name, t)}
	}
	list := []Pipeline{
		gfx("Cells", "CellsVert", "CellsFrag"),
		gfx("CellsFollower", "CellsFollowerVert", "CellsFrag"),
		comp("Engine", "EngineComp"),
		gfx("Landscape", "LandscapeVert", "LandscapeFrag"),
		gfx("LandscapeStatic", "LandscapeStaticVert", "LandscapeFrag"),
		gfx("LandscapeDebug", "LandscapeVert", "LandscapeDebugFrag"),
		gfx("LandscapeStage1", "LandscapeVert", "LandscapeStage1Frag"),
		gfx("LandscapeStage2", "LandscapeVert", "LandscapeStage2Frag"),
		gfx("LandscapeNormals", "LandscapeVert", "LandscapeNormalsFrag"),
		gfx("TerrainBox", "TerrainBoxSeamVert", "TerrainBoxFrag"),
		gfx("Sky", "SkyVert", "SkyFrag"),
		comp("PostFX", "PostFXComp"),
		comp("ComputeInPlace", "ComputeInPlaceComp"),
		comp("ComputeJitter", "ComputeJitterComp"),
		comp("ComputeCopy", "ComputeCopyComp"),
		comp(SeedPipeline, "SeedCellsComp"),
	}
	out := make(map[string]Pipeline, len(list))
	for _, p := range list {
		out[p.Name] = p
	}
	return out
}

func (p Pipeline) String() string {
	kind := "graphics"
	if p.Compute {
		kind = fmt.Sprintf("compute %dx%dx%d", p.WorkGroups[0], p.WorkGroups[1], p.WorkGroups[2])
	}
	return p.Name + " (" + kind + ") " + strings.Join(p.Shaders, ",")
}
