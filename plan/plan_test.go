package plan

import (
	"bytes"
	"fmt"
	"log/slog"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/gridframe/graph"
)

type node struct {
	id, shader string
	stage      graph.Stage
}

func newGraph(t *testing.T, nodes []node, edges [][2]string) *graph.Graph {
	t.Helper()
	g := graph.New()
	for _, n := range nodes {
		require.NoError(t, g.AddNode(graph.Node{ID: n.id, ShaderName: n.shader, Stage: n.stage}))
	}
	for _, e := range edges {
		require.NoError(t, g.AddEdge(graph.Edge{From: e[0], To: e[1]}))
	}
	return g
}

func TestScenarioA(t *testing.T) {
	g := newGraph(t, []node{
		{"A", "Seed", graph.StageComp},
		{"B", "Terrain", graph.StageVert},
		{"C", "Post", graph.StageComp},
	}, [][2]string{{"A", "B"}, {"B", "C"}})

	p := Build(g)
	assert.Equal(t, []string{"Seed"}, p.PreGraphicsCompute)
	assert.Equal(t, []string{"Terrain"}, p.Graphics)
	assert.Equal(t, []string{"Post"}, p.PostGraphicsCompute)
}

func TestScenarioB(t *testing.T) {
	g := newGraph(t, []node{
		{"v", "Shade", graph.StageVert},
		{"f", "Shade", graph.StageFrag},
	}, [][2]string{{"v", "f"}})

	r := BuildReport(g)
	require.Len(t, r.Order, 1)
	assert.Equal(t, Step{Name: "Shade", HasGraphics: true}, r.Order[0])
	assert.Equal(t, []string{"Shade"}, r.Plan.Graphics)
	assert.Empty(t, r.Plan.PreGraphicsCompute)
	assert.Empty(t, r.Plan.PostGraphicsCompute)
	assert.False(t, r.CycleFallback)
}

func TestMixedStepCountsAsGraphics(t *testing.T) {
	g := newGraph(t, []node{
		{"c", "Hybrid", graph.StageComp},
		{"g", "Hybrid", graph.StageGeom},
		{"p", "Prep", graph.StageComp},
	}, [][2]string{{"p", "c"}})

	r := BuildReport(g)
	assert.Equal(t, []string{"Prep"}, r.Plan.PreGraphicsCompute)
	assert.Equal(t, []string{"Hybrid"}, r.Plan.Graphics)
	assert.True(t, r.Order[1].HasCompute)
	assert.True(t, r.Order[1].HasGraphics)
}

func TestTiesBrokenByDiscoveryOrder(t *testing.T) {
	// C depends on nothing but is discovered last; B depends on A.
	g := newGraph(t, []node{
		{"b", "B", graph.StageComp},
		{"a", "A", graph.StageComp},
		{"c", "C", graph.StageComp},
	}, [][2]string{{"a", "b"}})

	p := Build(g)
	assert.Equal(t, []string{"A", "C", "B"}, p.PreGraphicsCompute)
}

func TestNoGraphicsStepsAllPre(t *testing.T) {
	g := newGraph(t, []node{
		{"x", "X", graph.StageComp},
		{"y", "Y", graph.StageComp},
	}, nil)

	r := BuildReport(g)
	assert.Equal(t, 2, r.Boundary)
	assert.Equal(t, []string{"X", "Y"}, r.Plan.PreGraphicsCompute)
	assert.Empty(t, r.Plan.Graphics)
	assert.Empty(t, r.Plan.PostGraphicsCompute)
}

func TestComputeAfterBoundaryIsPost(t *testing.T) {
	// Independent compute steps discovered after the first graphics step
	// land in the post phase.
	g := newGraph(t, []node{
		{"sky", "Sky", graph.StageVert},
		{"e", "Engine", graph.StageComp},
		{"cells", "Cells", graph.StageFrag},
	}, nil)

	p := Build(g)
	assert.Empty(t, p.PreGraphicsCompute)
	assert.Equal(t, []string{"Sky", "Cells"}, p.Graphics)
	assert.Equal(t, []string{"Engine"}, p.PostGraphicsCompute)
}

// P5: a cycle still yields a complete plan, in discovery order.
func TestCycleFallback(t *testing.T) {
	g := newGraph(t, []node{
		{"a", "A", graph.StageComp},
		{"b", "B", graph.StageVert},
		{"c", "C", graph.StageComp},
	}, [][2]string{{"a", "b"}, {"b", "c"}, {"c", "a"}})

	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { SetLogger(nil) })

	r := BuildReport(g)
	assert.True(t, r.CycleFallback)
	assert.Equal(t, []string{"A", "B", "C"}, []string{r.Order[0].Name, r.Order[1].Name, r.Order[2].Name})
	assert.Equal(t, []string{"A"}, r.Plan.PreGraphicsCompute)
	assert.Equal(t, []string{"B"}, r.Plan.Graphics)
	assert.Equal(t, []string{"C"}, r.Plan.PostGraphicsCompute)

	_ = Build(g)
	assert.Contains(t, buf.String(), "cycle")
}

func TestSelfLoopAfterProjectionIgnored(t *testing.T) {
	g := newGraph(t, []node{
		{"v", "Shade", graph.StageVert},
		{"f", "Shade", graph.StageFrag},
		{"e", "Engine", graph.StageComp},
	}, [][2]string{{"v", "f"}, {"f", "v"}, {"e", "v"}})

	r := BuildReport(g)
	assert.False(t, r.CycleFallback)
	assert.Equal(t, []string{"Engine"}, r.Plan.PreGraphicsCompute)
	assert.Equal(t, []string{"Shade"}, r.Plan.Graphics)
}

func randomGraph(t *testing.T, rng *rand.Rand, nodes, edges int) *graph.Graph {
	t.Helper()
	stages := []graph.Stage{graph.StageComp, graph.StageVert, graph.StageFrag, graph.StageComp}
	g := graph.New()
	for i := 0; i < nodes; i++ {
		n := graph.Node{
			ID:         fmt.Sprintf("n%d", i),
			ShaderName: fmt.Sprintf("S%d", rng.Intn(nodes/2+1)),
			Stage:      stages[rng.Intn(len(stages))],
		}
		require.NoError(t, g.AddNode(n))
	}
	for i := 0; i < edges; i++ {
		e := graph.Edge{From: fmt.Sprintf("n%d", rng.Intn(nodes)), To: fmt.Sprintf("n%d", rng.Intn(nodes))}
		require.NoError(t, g.AddEdge(e))
	}
	return g
}

// P2, P3 and P4 over random graphs, cyclic ones included.
func TestPlanProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for iter := 0; iter < 200; iter++ {
		g := randomGraph(t, rng, 2+rng.Intn(12), rng.Intn(20))
		r := BuildReport(g)
		p := r.Plan

		distinct := make(map[string]bool)
		for _, n := range g.Nodes() {
			distinct[n.ShaderName] = true
		}
		require.Equal(t, len(distinct), p.Len(), "iteration %d", iter)

		seen := make(map[string]bool)
		for _, s := range p.Steps() {
			require.False(t, seen[s], "step %s in more than one phase", s)
			seen[s] = true
		}

		for _, s := range r.Order {
			ph, ok := p.PhaseOf(s.Name)
			require.True(t, ok)
			if s.HasGraphics {
				assert.Equal(t, PhaseGraphics, ph, "graphics step %s", s.Name)
			} else {
				assert.NotEqual(t, PhaseGraphics, ph, "compute step %s", s.Name)
			}
		}

		again := Build(g)
		assert.Equal(t, p, again)
		assert.Equal(t, p.Fingerprint(), again.Fingerprint())
	}
}

// On acyclic graphs every step edge points forward in the order.
func TestTopologicalOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for iter := 0; iter < 100; iter++ {
		n := 3 + rng.Intn(10)
		g := graph.New()
		for i := 0; i < n; i++ {
			require.NoError(t, g.AddNode(graph.Node{ID: fmt.Sprintf("n%d", i), ShaderName: fmt.Sprintf("S%d", i), Stage: graph.StageComp}))
		}
		for k := 0; k < 2*n; k++ {
			a, b := rng.Intn(n), rng.Intn(n)
			if a > b {
				a, b = b, a
			}
			require.NoError(t, g.AddEdge(graph.Edge{From: fmt.Sprintf("n%d", b), To: fmt.Sprintf("n%d", a)}))
		}

		r := BuildReport(g)
		require.False(t, r.CycleFallback)
		pos := make(map[string]int)
		for i, s := range r.Order {
			pos[s.Name] = i
		}
		for _, e := range g.Edges() {
			from, _ := g.Node(e.From)
			to, _ := g.Node(e.To)
			assert.Less(t, pos[from.ShaderName], pos[to.ShaderName])
		}
	}
}

func TestFingerprintDistinguishesPhases(t *testing.T) {
	a := Plan{PreGraphicsCompute: []string{"X"}, Graphics: []string{"Y"}}
	b := Plan{Graphics: []string{"Y"}, PostGraphicsCompute: []string{"X"}}
	c := Plan{PreGraphicsCompute: []string{"XY"}}
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
	assert.Equal(t, a.Fingerprint(), Plan{PreGraphicsCompute: []string{"X"}, Graphics: []string{"Y"}}.Fingerprint())
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "pre_graphics_compute", PhasePreGraphicsCompute.String())
	assert.Equal(t, "graphics", PhaseGraphics.String())
	assert.Equal(t, "post_graphics_compute", PhasePostGraphicsCompute.String())
}
