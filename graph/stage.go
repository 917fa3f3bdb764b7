package graph

// Stage identifies the shader stage a node runs in.
type Stage uint8

const (
	StageUnknown Stage = iota
	StageVert
	StageFrag
	StageComp
	StageTesc
	StageTese
	StageGeom
)

// StageFromExtension maps a shader file extension (vert, frag, comp, tesc,
// tese, geom) to its Stage. Anything else yields StageUnknown, which AddNode
// rejects.
func StageFromExtension(ext string) Stage {
	switch ext {
	case "vert":
		return StageVert
	case "frag":
		return StageFrag
	case "comp":
		return StageComp
	case "tesc":
		return StageTesc
	case "tese":
		return StageTese
	case "geom":
		return StageGeom
	default:
		return StageUnknown
	}
}

// Extension returns the file extension for the stage, or "unknown".
func (s Stage) Extension() string {
	switch s {
	case StageVert:
		return "vert"
	case StageFrag:
		return "frag"
	case StageComp:
		return "comp"
	case StageTesc:
		return "tesc"
	case StageTese:
		return "tese"
	case StageGeom:
		return "geom"
	default:
		return "unknown"
	}
}

// String implements fmt.Stringer.
func (s Stage) String() string { return s.Extension() }

// Known reports whether s is one of the recognized stages.
func (s Stage) Known() bool { return s >= StageVert && s <= StageGeom }

// IsCompute reports whether s is the compute stage.
func (s Stage) IsCompute() bool { return s == StageComp }

// IsGraphics reports whether s belongs to a graphics pipeline. Every known
// stage other than compute counts as graphics.
func (s Stage) IsGraphics() bool { return s.Known() && s != StageComp }

// Rank orders stages the way a graphics pipeline consumes them:
// vert, tesc, tese, geom, frag, comp, unknown.
func (s Stage) Rank() int {
	switch s {
	case StageVert:
		return 0
	case StageTesc:
		return 1
	case StageTese:
		return 2
	case StageGeom:
		return 3
	case StageFrag:
		return 4
	case StageComp:
		return 5
	default:
		return 6
	}
}
