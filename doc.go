// Package gridframe paces frames for a real-time renderer that simulates a
// cellular grid over generated terrain.
//
// # Overview
//
// gridframe has two halves. The frame loop in package frame keeps a compute
// queue and a graphics queue running two frames ahead of presentation
// without races: every frame slot owns its command buffers, completion
// fences and semaphores, and a slot is only re-recorded once its fences
// were observed signaled. The planner in packages graph and plan turns a
// declarative shader graph into an ordered execution plan of pre-graphics
// compute, graphics and post-graphics compute pipelines.
//
// # Quick Start
//
//	g, err := graph.ParseFile("cells.graph")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	reg := config.NewRegistry(config.Default())
//	if err := reg.Install(g, nil); err != nil {
//	    log.Fatal(err)
//	}
//
//	fc, err := frame.NewContext(frame.Options{
//	    Device:        dev,
//	    ComputeQueue:  dev.ComputeQueue(),
//	    GraphicsQueue: dev.GraphicsQueue(),
//	    Surface:       swapchain,
//	    Recorder:      recorder,
//	    Params:        params,
//	    Registry:      reg,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer fc.Destroy(context.Background())
//	_, err = fc.Run(ctx, 0)
//
// # Architecture
//
// The library is organized into:
//   - graph: shader graph model, validation and the text source format
//   - plan: execution plan builder with cycle fallback
//   - config: runtime configuration snapshots, settings and hot reload
//   - frame: slot ring, synchronization registry, frame context, descriptors
//   - internal/softgpu: in-process asynchronous device for simulation and tests
//   - internal/halgpu: device over the WebGPU HAL
//
// # Logging
//
// gridframe is silent by default. [SetLogger] enables structured logging
// for every package at once.
package gridframe

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0
)
