package clique

import "sort"

// graph is an undirected simple graph over record indices 0..n-1 with sorted adjacency lists.
type graph struct {
	n   int
	adj [][]int
	set []map[int]bool
}

func newGraph(n int) *graph {
	g := &graph{n: n, adj: make([][]int, n), set: make([]map[int]bool, n)}
	for i := range g.set {
		g.set[i] = make(map[int]bool)
	}
	return g
}

func (g *graph) addEdge(u, v int) bool {
	if u == v || g.set[u][v] {
		return false
	}
	g.set[u][v] = true
	g.set[v][u] = true
	g.adj[u] = append(g.adj[u], v)
	g.adj[v] = append(g.adj[v], u)
	return true
}

func (g *graph) finalize() {
	for i := range g.adj {
		sort.Ints(g.adj[i])
	}
}

func (g *graph) degree(u int) int {
	return len(g.adj[u])
}

// components labels connected components with DFS, visiting nodes in index order.
// Isolated nodes form components of size one.
func (g *graph) components() [][]int {
	visited := make([]bool, g.n)
	var out [][]int
	for u := 0; u < g.n; u++ {
		if visited[u] {
			continue
		}
		var comp []int
		g.dfs(u, visited, &comp)
		sort.Ints(comp)
		out = append(out, comp)
	}
	return out
}

func (g *graph) dfs(u int, visited []bool, comp *[]int) {
	visited[u] = true
	*comp = append(*comp, u)
	for _, v := range g.adj[u] {
		if !visited[v] {
			g.dfs(v, visited, comp)
		}
	}
}

// maximalCliques enumerates every maximal clique with at least two members using Bron–Kerbosch
// with Tomita pivoting. Candidate sets are kept sorted so the emission order only depends on the
// node numbering.
func (g *graph) maximalCliques() [][]int {
	var p []int
	for u := 0; u < g.n; u++ {
		if g.degree(u) > 0 {
			p = append(p, u)
		}
	}
	var out [][]int
	g.expand(nil, p, nil, &out)
	return out
}

func (g *graph) expand(r, p, x []int, out *[][]int) {
	if len(p) == 0 && len(x) == 0 {
		if len(r) >= 2 {
			c := append([]int(nil), r...)
			sort.Ints(c)
			*out = append(*out, c)
		}
		return
	}

	pivot := g.pivot(p, x)
	var candidates []int
	for _, v := range p {
		if !g.set[pivot][v] {
			candidates = append(candidates, v)
		}
	}

	p = append([]int(nil), p...)
	x = append([]int(nil), x...)
	for _, v := range candidates {
		nr := append(append([]int(nil), r...), v)
		g.expand(nr, g.intersect(p, v), g.intersect(x, v), out)
		p = remove(p, v)
		x = insertSorted(x, v)
	}
}

// pivot picks the node of p ∪ x with the most neighbours in p; ties go to the lower index.
func (g *graph) pivot(p, x []int) int {
	best, bestCount := -1, -1
	consider := func(u int) {
		count := 0
		for _, v := range p {
			if g.set[u][v] {
				count++
			}
		}
		if count > bestCount || (count == bestCount && u < best) {
			best, bestCount = u, count
		}
	}
	for _, u := range p {
		consider(u)
	}
	for _, u := range x {
		consider(u)
	}
	return best
}

func (g *graph) intersect(s []int, v int) []int {
	var out []int
	for _, u := range s {
		if g.set[v][u] {
			out = append(out, u)
		}
	}
	return out
}

func remove(s []int, v int) []int {
	for i, u := range s {
		if u == v {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}

func insertSorted(s []int, v int) []int {
	i := sort.SearchInts(s, v)
	s = append(s, 0)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}
