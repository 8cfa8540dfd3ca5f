// Package graph implements the trust graph owned by a RIB's PathComputer:
// vertices are TD tags, user tags, owner tags, and server IP literals;
// trust assertions become unit-weight directed edges, distrust assertions
// become pairwise cuts. All-pairs shortest paths are recomputed from
// scratch on every rebuild with Floyd-Warshall.
package graph

import "math"

// Infinite marks a trust edge with no transitivity bound; on the wire
// this is a trust cert whose r_transitivity is absent.
const Infinite = -1

// Graph is a directed graph over interned string identifiers with
// unit-weight trust edges and distrust cuts. It is immutable once built:
// PathComputer swaps in a freshly rebuilt Graph every rebuild cadence
// rather than mutating one in place, so readers never observe a partial
// rebuild (spec §4.3 Graph rebuild).
type Graph struct {
	ids   map[string]int
	names []string

	// trustAdj[u] is the deduplicated set of out-neighbors of u.
	trustAdj      []map[int]bool
	rTransitivity map[[2]int]int // finite bound recorded for an edge, if any
	distrust      map[[2]int]bool

	dist [][]float64
	// pred[i][j] is the vertex immediately before j on the best known
	// i->j path, or -1 if none (spec §4.3: "next[(u,v)]: predecessor of
	// v on that path").
	pred [][]int
}

// Builder accumulates edges before a single Floyd-Warshall pass.
type Builder struct {
	ids           map[string]int
	names         []string
	trustAdj      []map[int]bool
	rTransitivity map[[2]int]int
	distrust      map[[2]int]bool
}

// NewBuilder returns an empty graph builder.
func NewBuilder() *Builder {
	return &Builder{
		ids:           make(map[string]int),
		rTransitivity: make(map[[2]int]int),
		distrust:      make(map[[2]int]bool),
	}
}

// intern returns the integer id for name, allocating one if this is the
// first time name has been seen. Vertices are the union of every issuer
// and entity ever observed (spec §3 Graph invariant).
func (b *Builder) intern(name string) int {
	if id, ok := b.ids[name]; ok {
		return id
	}
	id := len(b.names)
	b.ids[name] = id
	b.names = append(b.names, name)
	b.trustAdj = append(b.trustAdj, nil)
	return id
}

// AddTrust inserts a trust edge unless the identical edge already exists.
// A finite rTransitivity is recorded in a side map; it is otherwise
// unused by path extraction (spec §4.3 reserves it for future pruning).
func (b *Builder) AddTrust(from, to string, rTransitivity int) {
	u, v := b.intern(from), b.intern(to)
	if b.trustAdj[u] == nil {
		b.trustAdj[u] = make(map[int]bool)
	}
	if b.trustAdj[u][v] {
		return // identical edge already exists
	}
	b.trustAdj[u][v] = true
	if rTransitivity != Infinite {
		b.rTransitivity[[2]int{u, v}] = rTransitivity
	}
}

// AddDistrust inserts a distrust cut between from and to.
func (b *Builder) AddDistrust(from, to string) {
	u, v := b.intern(from), b.intern(to)
	b.distrust[[2]int{u, v}] = true
}

// Build runs Floyd-Warshall over the accumulated edges and returns the
// resulting immutable Graph.
func (b *Builder) Build() *Graph {
	n := len(b.names)

	g := &Graph{
		ids:           b.ids,
		names:         b.names,
		trustAdj:      b.trustAdj,
		rTransitivity: b.rTransitivity,
		distrust:      b.distrust,
	}

	dist := make([][]float64, n)
	pred := make([][]int, n)
	for i := range dist {
		dist[i] = make([]float64, n)
		pred[i] = make([]int, n)
		for j := range dist[i] {
			dist[i][j] = math.Inf(1)
			pred[i][j] = -1
		}
		dist[i][i] = 0
	}

	for u, neighbors := range b.trustAdj {
		for v := range neighbors {
			if u == v {
				continue
			}
			dist[u][v] = 1
			pred[u][v] = u
		}
	}

	clampDistrust := func() {
		for e := range b.distrust {
			dist[e[0]][e[1]] = math.Inf(1)
			pred[e[0]][e[1]] = -1
		}
	}

	// After each outer iteration k, every distrust-cut (i,j) is clamped
	// back to infinity (spec §4.3). This makes the clamp sensitive to
	// iteration order; spec §9 calls this out as a known rough edge for
	// a future rewrite rather than something to fix here.
	clampDistrust()
	for k := 0; k < n; k++ {
		for i := 0; i < n; i++ {
			if math.IsInf(dist[i][k], 1) {
				continue
			}
			for j := 0; j < n; j++ {
				alt := dist[i][k] + dist[k][j]
				if alt < dist[i][j] {
					dist[i][j] = alt
					pred[i][j] = pred[k][j]
				}
			}
		}
		clampDistrust()
	}

	g.dist = dist
	g.pred = pred
	return g
}

// ID returns the interned id for name and whether it is known.
func (g *Graph) ID(name string) (int, bool) {
	id, ok := g.ids[name]
	return id, ok
}

// Name returns the string identifier for an interned vertex id.
func (g *Graph) Name(id int) string {
	return g.names[id]
}

// VertexCount reports the number of interned vertices, exported as the
// graph_vertices gauge after each rebuild (spec §4.3).
func (g *Graph) VertexCount() int {
	return len(g.names)
}

// Distance returns the shortest-path distance between two known vertices.
// Unknown vertices report +Inf.
func (g *Graph) Distance(start, end string) float64 {
	u, ok1 := g.ids[start]
	v, ok2 := g.ids[end]
	if !ok1 || !ok2 {
		return math.Inf(1)
	}
	return g.dist[u][v]
}

// Path reconstructs the shortest trust path from start to end as an
// ordered list of vertex names, inclusive of both endpoints. Returns nil
// if either endpoint is unknown or no path exists (spec §4.3 Path
// extraction).
func (g *Graph) Path(start, end string) []string {
	u, ok1 := g.ids[start]
	v, ok2 := g.ids[end]
	if !ok1 || !ok2 {
		return nil
	}
	if math.IsInf(g.dist[u][v], 1) {
		return nil
	}

	path := []string{g.names[v]}
	cur := v
	for cur != u {
		p := g.pred[u][cur]
		if p == -1 {
			return nil
		}
		path = append(path, g.names[p])
		cur = p
	}

	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
