package config

import (
	"os"
	"strconv"
	"strings"
)

// Environment variables read by Default and the frame profiler.
const (
	EnvRenderStage    = "GRIDFRAME_RENDER_STAGE"
	EnvWorkloadPreset = "GRIDFRAME_WORKLOAD_PRESET"
	EnvComputeChain   = "GRIDFRAME_COMPUTE_CHAIN"
	EnvFrameProfile   = "GRIDFRAME_FRAME_PROFILE"
)

// Workload presets accepted in GRIDFRAME_WORKLOAD_PRESET.
const (
	PresetDefault      = "default"
	PresetComputeOnly  = "compute_only"
	PresetComputeChain = "compute_chain"
)

// SeedPipeline is the compute pipeline that seeds the initial cell state.
// Frame recorders run it once, before the first pre-compute step.
const SeedPipeline = "SeedCells"

const (
	DefaultRenderStage = 4
	MinRenderStage     = 0
	MaxRenderStage     = 5
)

var defaultComputeChain = []string{"ComputeInPlace", "ComputeJitter", "ComputeCopy"}

var defaultDrawOps = map[string]DrawOp{
	"Cells":            InstancedCells,
	"CellsFollower":    InstancedCells,
	"Landscape":        IndexedGrid,
	"LandscapeStatic":  IndexedGrid,
	"LandscapeDebug":   IndexedGrid,
	"LandscapeStage1":  IndexedGrid,
	"LandscapeStage2":  IndexedGrid,
	"LandscapeNormals": IndexedGrid,
	"TerrainBox":       IndexedGridBox,
	"Sky":              SkyDome,
}

// DefaultTerrain returns the built-in terrain settings.
func DefaultTerrain() Terrain {
	return Terrain{
		GridWidth:    100,
		GridHeight:   100,
		AliveCells:   2000,
		CellSize:     0.5,
		Subdivisions: 2,
		BoxDepth:     14,
		Layer1: NoiseLayer{
			Roughness: 0.4, Octaves: 10, Scale: 2.2,
			Amplitude: 16, Exponent: 2.8, Frequency: 1.6,
		},
		Layer2: NoiseLayer{
			Roughness: 1, Octaves: 10, Scale: 2.2,
			Amplitude: 3, Exponent: 1.5, Frequency: 2.4,
		},
		BlendFactor: 0.45,
	}
}

// DefaultWorld returns the built-in world and camera settings.
func DefaultWorld() World {
	return World{
		TimerSpeed:           25,
		WaterThreshold:       0.1,
		WaterDeadZone:        2.5,
		ShoreBandWidth:       1,
		BorderHighlightWidth: 0.10,
		LightPos:             [4]float32{0, 20, 20, 0},
		ZoomSpeed:            0.2,
		PanningSpeed:         0.4,
		FieldOfView:          35,
		NearClipping:         0.25,
		FarClipping:          800,
		CameraPosition:       [3]float32{0, 0, 80},
		Arcball: Arcball{
			TumbleMult: 1, PanMult: 1.4, DollyMult: 1.3,
			PanScalar: 0.65, ZoomScalar: 0.18, Smoothing: 0.25,
			DistancePanScale: 0.9, DistanceZoomScale: 0.8,
		},
		CubeShape:      1,
		RectangleShape: 0,
		SphereShape:    2,
	}
}

// Default builds the startup snapshot from the built-in tables and the
// GRIDFRAME_RENDER_STAGE, GRIDFRAME_WORKLOAD_PRESET and
// GRIDFRAME_COMPUTE_CHAIN environment variables.
func Default() *Snapshot {
	s := &Snapshot{
		Terrain: DefaultTerrain(),
		World:   DefaultWorld(),
		DrawOps: make(map[string]DrawOp, len(defaultDrawOps)),
	}
	for k, v := range defaultDrawOps {
		s.DrawOps[k] = v
	}
	s.Pipelines = builtinPipelines(s.Terrain)

	preset := WorkloadPreset()
	var rg RenderGraph
	if preset == PresetComputeOnly || preset == PresetComputeChain {
		chain := splitCSV(os.Getenv(EnvComputeChain))
		if len(chain) == 0 {
			chain = defaultComputeChain
		}
		for _, p := range chain {
			rg.Nodes = append(rg.Nodes, RenderNode{Stage: PreCompute, Pipeline: p})
		}
	} else {
		stage := RenderStageLevel()
		for _, p := range preComputeForLevel(stage) {
			rg.Nodes = append(rg.Nodes, RenderNode{Stage: PreCompute, Pipeline: p})
		}
		rg = rg.WithGraphics(GraphicsForLevel(stage), s.DrawOps)
	}
	s.RenderGraph = &rg

	slogger().Debug("config: default snapshot",
		"preset", preset, "nodes", len(rg.Nodes))
	return s
}

// RenderStageLevel reads GRIDFRAME_RENDER_STAGE. Unset, malformed or
// negative values give DefaultRenderStage; values above MaxRenderStage are
// clamped.
func RenderStageLevel() int {
	raw, ok := os.LookupEnv(EnvRenderStage)
	if !ok {
		return DefaultRenderStage
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < MinRenderStage {
		return DefaultRenderStage
	}
	if n > MaxRenderStage {
		return MaxRenderStage
	}
	return n
}

// WorkloadPreset reads GRIDFRAME_WORKLOAD_PRESET, lower-cased and trimmed.
func WorkloadPreset() string {
	p := strings.ToLower(strings.TrimSpace(os.Getenv(EnvWorkloadPreset)))
	if p == "" {
		return PresetDefault
	}
	return p
}

// GraphicsForLevel returns the graphics pipelines enabled at a render
// stage level, in draw order.
func GraphicsForLevel(level int) []string {
	switch {
	case level >= 4:
		return []string{"Sky", "Landscape", "TerrainBox", "Cells", "CellsFollower"}
	case level >= 3:
		return []string{"Sky", "Landscape", "TerrainBox"}
	case level >= 2:
		return []string{"LandscapeStage2"}
	case level >= 1:
		return []string{"LandscapeStage1"}
	default:
		return []string{"LandscapeDebug"}
	}
}

func preComputeForLevel(level int) []string {
	if level >= 4 {
		return []string{"Engine"}
	}
	return nil
}

func splitCSV(s string) []string {
	var out []string
	for _, tok := range strings.Split(s, ",") {
		if tok = strings.TrimSpace(tok); tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

// EnvTruthy reports whether v is "1", "true" or "on", ignoring case.
func EnvTruthy(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "on":
		return true
	}
	return false
}

// EnvFlag reads the named environment variable through EnvTruthy.
func EnvFlag(name string) bool {
	return EnvTruthy(os.Getenv(name))
}
