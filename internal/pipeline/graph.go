package pipeline

// graph tracks buffer-to-buffer edges contributed by processors so cycle
// creation is rejected at construction time and shutdown can drain stages in
// topological order.
type graph struct {
	nodes []string
	edges map[string][]string
}

func newGraph() *graph {
	return &graph{edges: make(map[string][]string)}
}

func (g *graph) addNode(name string) {
	if _, ok := g.edges[name]; ok {
		return
	}
	g.nodes = append(g.nodes, name)
	g.edges[name] = nil
}

// connect adds edges from one upstream buffer to each downstream buffer,
// refusing the whole set if any edge would close a cycle.
func (g *graph) connect(from string, to []string) error {
	for _, t := range to {
		if path := g.findPath(t, from); path != nil {
			return &GraphCycleError{Path: append([]string{from}, path...)}
		}
	}
	g.edges[from] = append(g.edges[from], to...)
	return nil
}

// findPath returns the node path from src to dst, or nil.
func (g *graph) findPath(src, dst string) []string {
	if src == dst {
		return []string{src}
	}
	seen := make(map[string]bool)
	var dfs func(n string) []string
	dfs = func(n string) []string {
		if seen[n] {
			return nil
		}
		seen[n] = true
		for _, next := range g.edges[n] {
			if next == dst {
				return []string{n, next}
			}
			if rest := dfs(next); rest != nil {
				return append([]string{n}, rest...)
			}
		}
		return nil
	}
	return dfs(src)
}

// order returns the nodes topologically sorted, sources first. Isolated
// buffers keep their creation order.
func (g *graph) order() []string {
	indegree := make(map[string]int, len(g.nodes))
	for _, n := range g.nodes {
		indegree[n] = 0
	}
	for _, outs := range g.edges {
		for _, t := range outs {
			indegree[t]++
		}
	}

	queue := make([]string, 0, len(g.nodes))
	for _, n := range g.nodes {
		if indegree[n] == 0 {
			queue = append(queue, n)
		}
	}

	out := make([]string, 0, len(g.nodes))
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		out = append(out, n)
		for _, t := range g.edges[n] {
			indegree[t]--
			if indegree[t] == 0 {
				queue = append(queue, t)
			}
		}
	}
	return out
}
