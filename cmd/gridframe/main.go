// Command gridframe inspects shader graphs and drives the frame loop
// against a simulated or real device.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/aquasecurity/table"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/gridframe"
	"github.com/gogpu/gridframe/config"
	"github.com/gogpu/gridframe/frame"
	"github.com/gogpu/gridframe/graph"
	"github.com/gogpu/gridframe/internal/halgpu"
	"github.com/gogpu/gridframe/internal/params"
	"github.com/gogpu/gridframe/internal/softgpu"
)

func main() {
	var (
		graphFile    = flag.String("graph", "", "shader graph file")
		settingsFile = flag.String("settings", "", "YAML settings applied over the graph settings")
		printPlan    = flag.Bool("plan", false, "print the execution plan")
		simulate     = flag.Int("simulate", 0, "run N frames (0 runs until interrupted with -watch)")
		device       = flag.String("device", "soft", "device for -simulate: soft or vulkan")
		shaders      = flag.String("shaders", "shaders", "directory of compute shader WGSL sources (vulkan)")
		staleEvery   = flag.Int("stale-every", 0, "make every Kth acquire stale (soft)")
		cost         = flag.Duration("command-cost", 50*time.Microsecond, "simulated cost per command (soft)")
		watch        = flag.Bool("watch", false, "reinstall the graph when the file changes")
		verbose      = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	if *verbose {
		gridframe.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var overrides map[string]string
	if *settingsFile != "" {
		kv, err := config.LoadSettingsFile(*settingsFile)
		if err != nil {
			log.Fatalf("Failed to load settings: %v", err)
		}
		overrides = kv
	}

	reg, err := load(*graphFile, overrides)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *printPlan {
		printSnapshot(os.Stdout, reg.Load())
	}

	if *watch {
		if *graphFile == "" {
			log.Fatal("-watch requires -graph")
		}
		w := &config.Watcher{Path: *graphFile, Registry: reg, Overrides: overrides}
		go func() {
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("Watcher stopped: %v", err)
			}
		}()
	}

	if *simulate == 0 && !*watch {
		return
	}

	var run func(context.Context, *config.Registry, int) (int, error)
	switch *device {
	case "soft":
		run = func(ctx context.Context, reg *config.Registry, n int) (int, error) {
			return runSoft(ctx, reg, n, *staleEvery, *cost)
		}
	case "vulkan":
		run = func(ctx context.Context, reg *config.Registry, n int) (int, error) {
			return runHAL(ctx, reg, n, *shaders)
		}
	default:
		log.Fatalf("Unknown device %q", *device)
	}

	start := time.Now()
	frames, err := run(ctx, reg, *simulate)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Frame loop failed after %d frames: %v", frames, err)
	}
	elapsed := time.Since(start)
	log.Printf("Presented %d frames in %v (%.1f fps)\n", frames, elapsed.Round(time.Millisecond),
		float64(frames)/max(elapsed.Seconds(), 1e-9))
}

// load builds the registry from the defaults, then the graph file, then
// the overrides.
func load(path string, overrides map[string]string) (*config.Registry, error) {
	reg := config.NewRegistry(config.Default())
	if path == "" {
		if len(overrides) == 0 {
			return reg, nil
		}
		var err error
		reg.Update(func(s *config.Snapshot) { err = config.ApplySettings(s, overrides) })
		return reg, err
	}
	g, err := graph.ParseFile(path)
	if err != nil {
		return nil, err
	}
	if err := reg.Install(g, overrides); err != nil {
		return nil, err
	}
	return reg, nil
}

func printSnapshot(w io.Writer, snap *config.Snapshot) {
	tbl := table.New(w)
	tbl.SetHeaders("#", "Stage", "Pipeline", "Draw", "Work groups")
	if snap.RenderGraph != nil {
		for i, n := range snap.RenderGraph.Nodes {
			draw, groups := "", ""
			if n.Stage == config.Graphics {
				draw = n.DrawOp.String()
			} else {
				g := snap.WorkGroups(n.Pipeline)
				groups = fmt.Sprintf("%d x %d x %d", g[0], g[1], g[2])
			}
			tbl.AddRow(fmt.Sprint(i), n.Stage.String(), n.Pipeline, draw, groups)
		}
	}
	tbl.Render()

	if snap.Plan != nil {
		fmt.Fprintf(w, "\nplan: %d steps, fingerprint %s\n", snap.Plan.Len(), snap.Plan.Fingerprint())
		fmt.Fprintf(w, "  pre:      %s\n", strings.Join(snap.Plan.PreGraphicsCompute, ", "))
		fmt.Fprintf(w, "  graphics: %s\n", strings.Join(snap.Plan.Graphics, ", "))
		fmt.Fprintf(w, "  post:     %s\n", strings.Join(snap.Plan.PostGraphicsCompute, ", "))
	}
}

func runSoft(ctx context.Context, reg *config.Registry, frames, staleEvery int, cost time.Duration) (int, error) {
	d := softgpu.New(softgpu.Options{CommandCost: cost})
	sc := d.NewSwapchain(softgpu.SwapchainOptions{StaleEvery: staleEvery})

	fc, err := frame.NewContext(frame.Options{
		Device:        d,
		ComputeQueue:  d.ComputeQueue(),
		GraphicsQueue: d.GraphicsQueue(),
		Surface:       sc,
		Recorder:      &softgpu.Recorder{},
		Params:        params.NewUpdater(nil),
		Recreate:      sc.Recreate,
		Resize:        sc,
		Registry:      reg,
	})
	if err != nil {
		d.Close()
		return 0, err
	}
	n, runErr := fc.Run(ctx, frames)
	err = errors.Join(runErr, fc.Destroy(context.Background()), d.Close())

	st := d.Stats()
	log.Printf("softgpu: %d submissions, %d dispatches, %d draws, %d presents, %d swapchain recreations\n",
		st.Submissions, st.Dispatches, st.Draws, st.Presents, sc.Generation())
	return n, err
}

func runHAL(ctx context.Context, reg *config.Registry, frames int, shaderDir string) (int, error) {
	d, err := halgpu.Open(gputypes.BackendVulkan)
	if err != nil {
		return 0, err
	}
	defer d.Close()

	snap := reg.Load()
	cells := uint32(max(snap.Terrain.GridWidth*snap.Terrain.GridHeight, 1)) //nolint:gosec // grid size is small
	res, err := halgpu.NewResources(d, cells, nil, nil)
	if err != nil {
		return 0, err
	}
	defer res.Destroy()

	kernels, missing, err := halgpu.NewKernels(d, res.PipelineLayout(), snap.Pipelines, halgpu.DirSource(shaderDir))
	if err != nil {
		return 0, err
	}
	defer kernels.Destroy()
	if len(missing) > 0 {
		log.Printf("No shader source for %s in %s\n", strings.Join(missing, ", "), shaderDir)
	}

	surface := &halgpu.Offscreen{Images: 3, Size: frame.Extent{Width: 1280, Height: 720}}
	fc, err := frame.NewContext(frame.Options{
		Device:        d,
		ComputeQueue:  d,
		GraphicsQueue: d,
		Surface:       surface,
		Recorder:      &halgpu.Recorder{Kernels: kernels, Resources: res},
		Params:        params.NewUpdater(res.WriteUniforms),
		Registry:      reg,
	})
	if err != nil {
		return 0, err
	}
	n, runErr := fc.Run(ctx, frames)
	return n, errors.Join(runErr, fc.Destroy(context.Background()))
}
