package config

// DrawOp identifies how a graphics pipeline is drawn.
type DrawOp uint8

const (
	DrawOpUnknown DrawOp = iota
	InstancedCells
	IndexedGrid
	IndexedGridBox
	IndexedRectangle
	IndexedCube
	SkyDome
)

// ParseDrawOp maps a draw operation tag to its DrawOp. Legacy aliases
// ("cells_instanced", "grid_indexed", "grid_wireframe", "rectangle_indexed")
// are accepted; anything unrecognized is DrawOpUnknown.
func ParseDrawOp(s string) DrawOp {
	switch s {
	case "instanced:cells", "cells_instanced":
		return InstancedCells
	case "indexed:grid", "grid_indexed", "grid_wireframe":
		return IndexedGrid
	case "indexed:grid_box":
		return IndexedGridBox
	case "indexed:rectangle", "rectangle_indexed":
		return IndexedRectangle
	case "indexed:cube":
		return IndexedCube
	case "sky_dome":
		return SkyDome
	default:
		return DrawOpUnknown
	}
}

// String returns the canonical tag. Legacy aliases are never produced.
func (op DrawOp) String() string {
	switch op {
	case InstancedCells:
		return "instanced:cells"
	case IndexedGrid:
		return "indexed:grid"
	case IndexedGridBox:
		return "indexed:grid_box"
	case IndexedRectangle:
		return "indexed:rectangle"
	case IndexedCube:
		return "indexed:cube"
	case SkyDome:
		return "sky_dome"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler using the canonical tag.
func (op DrawOp) MarshalText() ([]byte, error) { return []byte(op.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler. Unknown tags decode to
// DrawOpUnknown without error.
func (op *DrawOp) UnmarshalText(b []byte) error {
	*op = ParseDrawOp(string(b))
	return nil
}
