package config

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidSetting is wrapped by every SettingError.
var ErrInvalidSetting = errors.New("config: invalid setting")

var errNotFinite = errors.New("value is not finite")

// SettingError reports a setting value that could not be parsed.
type SettingError struct {
	Key   string
	Value string
	Err   error
}

func (e *SettingError) Error() string {
	return fmt.Sprintf("config: invalid setting %s=%q: %v", e.Key, e.Value, e.Err)
}

func (e *SettingError) Unwrap() []error { return []error{ErrInvalidSetting, e.Err} }

// NoiseLayer parameterizes one octave stack of the terrain generator.
type NoiseLayer struct {
	Roughness    float32
	Octaves      int
	Scale        float32
	Amplitude    float32
	Exponent     float32
	Frequency    float32
	HeightOffset float32
}

// Terrain holds grid and terrain-generation settings.
type Terrain struct {
	GridWidth      int
	GridHeight     int
	AliveCells     uint32
	CellSize       float32
	Subdivisions   int
	BoxDepth       float32
	Layer1         NoiseLayer
	Layer2         NoiseLayer
	BlendFactor    float32
	AbsoluteHeight float32
}

// Arcball holds camera arcball tuning.
type Arcball struct {
	TumbleMult        float32
	PanMult           float32
	DollyMult         float32
	PanScalar         float32
	ZoomScalar        float32
	Smoothing         float32
	DistancePanScale  float32
	DistanceZoomScale float32
}

// World holds simulation, lighting and camera settings.
type World struct {
	TimerSpeed     float32
	WaterThreshold float32

	// The water border sits at WaterThreshold + WaterDeadZone.
	WaterDeadZone        float32
	ShoreBandWidth       float32
	BorderHighlightWidth float32
	LightPos             [4]float32

	ZoomSpeed      float32
	PanningSpeed   float32
	FieldOfView    float32
	NearClipping   float32
	FarClipping    float32
	CameraPosition [3]float32
	Arcball        Arcball

	CubeShape      int
	RectangleShape int
	SphereShape    int
}

// ApplySettings overlays key/value settings onto the terrain and world
// settings of s. Unrecognized keys are ignored; a recognized key with a
// malformed value fails and leaves s unchanged.
func ApplySettings(s *Snapshot, kv map[string]string) error {
	t, w := s.Terrain, s.World
	p := settingParser{kv: kv}

	p.setInt("terrain.grid_width", &t.GridWidth)
	p.setInt("terrain.grid_height", &t.GridHeight)
	p.setUint32("terrain.alive_cells", &t.AliveCells)
	p.setFloat("terrain.cell_size", &t.CellSize)
	p.setLayer("terrain.layer1.", &t.Layer1)
	p.setLayer("terrain.layer2.", &t.Layer2)
	p.setFloat("terrain.blend_factor", &t.BlendFactor)
	p.setFloat("terrain.absolute_height", &t.AbsoluteHeight)

	p.setFloat("world.timer_speed", &w.TimerSpeed)
	p.setFloat("world.water_threshold", &w.WaterThreshold)
	p.setFloats("world.light_pos", w.LightPos[:])

	p.setFloat("camera.zoom_speed", &w.ZoomSpeed)
	p.setFloat("camera.panning_speed", &w.PanningSpeed)
	p.setFloat("camera.field_of_view", &w.FieldOfView)
	p.setFloat("camera.near_clipping", &w.NearClipping)
	p.setFloat("camera.far_clipping", &w.FarClipping)
	p.setFloats("camera.position", w.CameraPosition[:])
	p.setFloat("camera.arcball_tumble_mult", &w.Arcball.TumbleMult)
	p.setFloat("camera.arcball_pan_mult", &w.Arcball.PanMult)
	p.setFloat("camera.arcball_dolly_mult", &w.Arcball.DollyMult)

	p.setInt("geometry.cube", &w.CubeShape)
	p.setInt("geometry.rectangle", &w.RectangleShape)
	p.setInt("geometry.sphere", &w.SphereShape)

	if p.err != nil {
		return p.err
	}
	s.Terrain, s.World = t, w
	return nil
}

// settingParser records the first parse failure and skips the rest.
type settingParser struct {
	kv  map[string]string
	err error
}

func (p *settingParser) lookup(key string) (string, bool) {
	if p.err != nil {
		return "", false
	}
	v, ok := p.kv[key]
	return strings.TrimSpace(v), ok
}

func (p *settingParser) fail(key, value string, err error) {
	var ne *strconv.NumError
	if errors.As(err, &ne) {
		err = ne.Err
	}
	p.err = &SettingError{Key: key, Value: value, Err: err}
}

func (p *settingParser) setInt(key string, dst *int) {
	v, ok := p.lookup(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return
	}
	*dst = n
}

func (p *settingParser) setUint32(key string, dst *uint32) {
	v, ok := p.lookup(key)
	if !ok {
		return
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		p.fail(key, v, err)
		return
	}
	*dst = uint32(n)
}

func (p *settingParser) setFloat(key string, dst *float32) {
	v, ok := p.lookup(key)
	if !ok {
		return
	}
	f, err := parseFloat(v)
	if err != nil {
		p.fail(key, v, err)
		return
	}
	*dst = f
}

func (p *settingParser) setFloats(key string, dst []float32) {
	v, ok := p.lookup(key)
	if !ok {
		return
	}
	vals, err := parseFloatList(v, len(dst))
	if err != nil {
		p.fail(key, v, err)
		return
	}
	copy(dst, vals)
}

func (p *settingParser) setLayer(prefix string, l *NoiseLayer) {
	p.setFloat(prefix+"roughness", &l.Roughness)
	p.setInt(prefix+"octaves", &l.Octaves)
	p.setFloat(prefix+"scale", &l.Scale)
	p.setFloat(prefix+"amplitude", &l.Amplitude)
	p.setFloat(prefix+"exponent", &l.Exponent)
	p.setFloat(prefix+"frequency", &l.Frequency)
	p.setFloat(prefix+"height_offset", &l.HeightOffset)
}

// parseFloatList parses exactly n comma separated numbers.
func parseFloatList(s string, n int) ([]float32, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("want %d comma separated values, got %d", n, len(parts))
	}
	out := make([]float32, n)
	for i, part := range parts {
		f, err := parseFloat(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

// parseFloat parses a finite float32; NaN and infinities are rejected.
func parseFloat(s string) (float32, error) {
	f, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errNotFinite
	}
	return float32(f), nil
}
