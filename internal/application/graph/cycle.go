package graph

// findCycle returns one cycle in the needs relation as a closed path of job
// names (a -> b -> a), or nil when the relation is acyclic.
//
// Kahn's algorithm decides acyclicity; a DFS over declaration order then
// extracts a stable witness for the error message.
func findCycle(jobs []*Job) []string {
	indeg := make([]int, len(jobs))
	for _, j := range jobs {
		indeg[j.Index] = len(j.Needs)
	}
	queue := make([]*Job, 0, len(jobs))
	for _, j := range jobs {
		if indeg[j.Index] == 0 {
			queue = append(queue, j)
		}
	}
	visited := 0
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		visited++
		for _, d := range n.Dependents {
			indeg[d.Index]--
			if indeg[d.Index] == 0 {
				queue = append(queue, d)
			}
		}
	}
	if visited == len(jobs) {
		return nil
	}

	const (
		white = iota
		gray
		black
	)
	color := make([]int, len(jobs))
	parent := make([]int, len(jobs))
	for i := range parent {
		parent[i] = -1
	}

	var cycle []int
	var dfs func(u int) bool
	dfs = func(u int) bool {
		color[u] = gray
		for _, d := range jobs[u].Dependents {
			v := d.Index
			switch color[v] {
			case white:
				parent[v] = u
				if dfs(v) {
					return true
				}
			case gray:
				// Back edge u -> v closes the cycle v -> ... -> u -> v.
				cycle = append(cycle, v)
				for cur := u; cur != v && cur != -1; cur = parent[cur] {
					cycle = append(cycle, cur)
				}
				cycle = append(cycle, v)
				return true
			}
		}
		color[u] = black
		return false
	}

	for i := range jobs {
		if color[i] == white && dfs(i) {
			break
		}
	}

	out := make([]string, 0, len(cycle))
	for i := len(cycle) - 1; i >= 0; i-- {
		out = append(out, jobs[cycle[i]].Name())
	}
	return out
}
