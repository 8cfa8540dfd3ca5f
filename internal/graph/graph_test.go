package graph

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_SimpleChain(t *testing.T) {
	b := NewBuilder()
	b.AddTrust("AS0", "AS1", Infinite)
	b.AddTrust("AS1", "AS2", Infinite)

	g := b.Build()

	assert.Equal(t, float64(2), g.Distance("AS0", "AS2"))
	assert.Equal(t, []string{"AS0", "AS1", "AS2"}, g.Path("AS0", "AS2"))
}

func TestBuild_NoPath(t *testing.T) {
	b := NewBuilder()
	b.AddTrust("AS0", "AS1", Infinite)
	b.AddTrust("AS2", "AS3", Infinite)

	g := b.Build()

	assert.True(t, math.IsInf(g.Distance("AS0", "AS3"), 1))
	assert.Nil(t, g.Path("AS0", "AS3"))
}

func TestBuild_UnknownVertex(t *testing.T) {
	b := NewBuilder()
	b.AddTrust("AS0", "AS1", Infinite)
	g := b.Build()

	assert.Nil(t, g.Path("AS0", "nowhere"))
	_, ok := g.ID("nowhere")
	assert.False(t, ok)
}

func TestBuild_DuplicateEdgeDeduped(t *testing.T) {
	b := NewBuilder()
	b.AddTrust("user:X", "AS1", Infinite)
	b.AddTrust("user:X", "AS1", Infinite)
	b.AddTrust("AS1", "AS2", Infinite)

	g := b.Build()

	require.NotNil(t, g.Path("user:X", "AS2"))
	assert.Equal(t, float64(2), g.Distance("user:X", "AS2"))
}

func TestBuild_DistrustCutsPath(t *testing.T) {
	// user:X -> AS1 -> AS2, but AS1 distrusts AS2 directly.
	b := NewBuilder()
	b.AddTrust("user:X", "AS1", Infinite)
	b.AddTrust("AS1", "AS2", Infinite)
	b.AddDistrust("AS1", "AS2")

	g := b.Build()

	assert.True(t, math.IsInf(g.Distance("user:X", "AS2"), 1))
	assert.Nil(t, g.Path("user:X", "AS2"))
	// The direct edge into AS1 is untouched by the cut.
	assert.Equal(t, float64(1), g.Distance("user:X", "AS1"))
}

func TestBuild_DistrustDoesNotAffectAlternateRoute(t *testing.T) {
	// AS0 -> AS1 -> AS3 is cut by distrust(AS1,AS3), but AS0 -> AS2 -> AS3
	// remains usable.
	b := NewBuilder()
	b.AddTrust("AS0", "AS1", Infinite)
	b.AddTrust("AS1", "AS3", Infinite)
	b.AddDistrust("AS1", "AS3")
	b.AddTrust("AS0", "AS2", Infinite)
	b.AddTrust("AS2", "AS3", Infinite)

	g := b.Build()

	assert.Equal(t, []string{"AS0", "AS2", "AS3"}, g.Path("AS0", "AS3"))
}

func TestBuild_Path_DeepEqualAcrossRebuilds(t *testing.T) {
	// A freshly rebuilt graph over the same edge set must resolve to the
	// exact same hop sequence as the original, since PathComputer swaps
	// in a brand new Graph on every rebuild rather than mutating one.
	build := func() *Graph {
		b := NewBuilder()
		b.AddTrust("AS0", "AS1", Infinite)
		b.AddTrust("AS1", "AS2", Infinite)
		b.AddTrust("AS2", "AS3", Infinite)
		return b.Build()
	}

	g1, g2 := build(), build()
	p1, p2 := g1.Path("AS0", "AS3"), g2.Path("AS0", "AS3")

	if diff := cmp.Diff(p1, p2); diff != "" {
		t.Fatalf("path mismatch between independently rebuilt graphs (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"AS0", "AS1", "AS2", "AS3"}, p1)
}

func TestBuild_TriangleInequality(t *testing.T) {
	b := NewBuilder()
	b.AddTrust("A", "B", Infinite)
	b.AddTrust("B", "C", Infinite)
	b.AddTrust("C", "D", Infinite)
	b.AddTrust("A", "D", Infinite) // a shortcut edge

	g := b.Build()

	for _, k := range []string{"A", "B", "C", "D"} {
		dik := g.Distance("A", k)
		dkd := g.Distance(k, "D")
		dAD := g.Distance("A", "D")
		if math.IsInf(dik, 1) || math.IsInf(dkd, 1) {
			continue
		}
		assert.LessOrEqual(t, dAD, dik+dkd)
	}
}
