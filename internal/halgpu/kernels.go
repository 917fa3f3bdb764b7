package halgpu

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/gogpu/gridframe/config"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

// CompileWGSL compiles WGSL source to SPIR-V words.
func CompileWGSL(source string) ([]uint32, error) {
	spirv, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("halgpu: compile shader: %w", err)
	}
	if len(spirv)%4 != 0 {
		return nil, fmt.Errorf("halgpu: compile shader: SPIR-V size %d is not a multiple of 4", len(spirv))
	}

	// SPIR-V is a stream of little-endian 32-bit words.
	words := make([]uint32, len(spirv)/4)
	for i := range words {
		words[i] = uint32(spirv[i*4]) |
			uint32(spirv[i*4+1])<<8 |
			uint32(spirv[i*4+2])<<16 |
			uint32(spirv[i*4+3])<<24
	}
	return words, nil
}

// SourceFunc returns the WGSL source of a compute shader by shader name.
type SourceFunc func(shader string) (string, error)

// DirSource reads <dir>/<shader>.wgsl.
func DirSource(dir string) SourceFunc {
	return func(shader string) (string, error) {
		b, err := os.ReadFile(filepath.Join(dir, shader+".wgsl"))
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}

type kernel struct {
	module   hal.ShaderModule
	pipeline hal.ComputePipeline
}

// Kernels holds one compute pipeline per compute entry of the pipeline
// table, all sharing the frame pipeline layout.
type Kernels struct {
	device  hal.Device
	kernels map[string]kernel
}

// NewKernels compiles every compute pipeline in pipelines. A pipeline's
// first shader is its entry module; its source comes from src. Pipelines
// whose source is missing are skipped and reported in the returned list.
func NewKernels(d *Device, layout hal.PipelineLayout, pipelines map[string]config.Pipeline, src SourceFunc) (*Kernels, []string, error) {
	k := &Kernels{device: d.device, kernels: make(map[string]kernel)}
	var missing []string
	for _, name := range slices.Sorted(maps.Keys(pipelines)) {
		p := pipelines[name]
		if !p.Compute || len(p.Shaders) == 0 {
			continue
		}
		source, err := src(p.Shaders[0])
		if errors.Is(err, os.ErrNotExist) {
			missing = append(missing, name)
			continue
		}
		if err != nil {
			k.Destroy()
			return nil, nil, fmt.Errorf("halgpu: pipeline %s: %w", name, err)
		}
		if err := k.add(name, layout, source); err != nil {
			k.Destroy()
			return nil, nil, fmt.Errorf("halgpu: pipeline %s: %w", name, err)
		}
	}
	if len(missing) > 0 {
		slogger().Warn("halgpu: compute pipelines without shader source", "pipelines", missing)
	}
	return k, missing, nil
}

func (k *Kernels) add(name string, layout hal.PipelineLayout, source string) error {
	words, err := CompileWGSL(source)
	if err != nil {
		return err
	}
	module, err := k.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  name,
		Source: hal.ShaderSource{SPIRV: words},
	})
	if err != nil {
		return fmt.Errorf("create shader module: %w", err)
	}
	pipeline, err := k.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   name,
		Layout:  layout,
		Compute: hal.ComputeState{Module: module, EntryPoint: "main"},
	})
	if err != nil {
		k.device.DestroyShaderModule(module)
		return fmt.Errorf("create compute pipeline: %w", err)
	}
	k.kernels[name] = kernel{module: module, pipeline: pipeline}
	return nil
}

// Pipeline returns the compute pipeline for name.
func (k *Kernels) Pipeline(name string) (hal.ComputePipeline, bool) {
	kn, ok := k.kernels[name]
	return kn.pipeline, ok
}

// Names returns the compiled pipeline names, sorted.
func (k *Kernels) Names() []string { return slices.Sorted(maps.Keys(k.kernels)) }

// Destroy releases every pipeline and shader module.
func (k *Kernels) Destroy() {
	for name, kn := range k.kernels {
		k.device.DestroyComputePipeline(kn.pipeline)
		k.device.DestroyShaderModule(kn.module)
		delete(k.kernels, name)
	}
}
