package engine

import "sort"

// dag holds the validated adjacency of a run: forward successors, their
// reverse (predecessors), and a derived priority per node.
type dag struct {
	names        []string
	successors   map[string][]string
	predecessors map[string][]string
	priority     map[string]int
}

// buildDAG validates that successors is acyclic via iterated leaf-stripping
// (repeatedly remove nodes with zero remaining out-degree; if nodes remain
// once no more can be stripped, a cycle exists), then derives predecessors
// and a default priority per node (its number of direct successors: more
// independent downstream consumers run sooner).
func buildDAG(names []string, successors map[string][]string, priorityOverride map[string]int) (*dag, error) {
	outDegree := make(map[string]int, len(names))
	for _, n := range names {
		outDegree[n] = len(successors[n])
	}

	removed := make(map[string]bool, len(names))
	for {
		progressed := false
		var leaves []string
		for _, n := range names {
			if !removed[n] && outDegree[n] == 0 {
				leaves = append(leaves, n)
			}
		}
		if len(leaves) == 0 {
			break
		}
		sort.Strings(leaves)
		for _, leaf := range leaves {
			removed[leaf] = true
			progressed = true
		}
		for _, n := range names {
			if removed[n] {
				continue
			}
			count := 0
			for _, s := range successors[n] {
				if !removed[s] {
					count++
				}
			}
			outDegree[n] = count
		}
		if !progressed {
			break
		}
	}

	for _, n := range names {
		if !removed[n] {
			return nil, ErrCycle
		}
	}

	predecessors := make(map[string][]string, len(names))
	for _, n := range names {
		predecessors[n] = nil
	}
	for _, n := range names {
		for _, s := range successors[n] {
			predecessors[s] = append(predecessors[s], n)
		}
	}

	priority := make(map[string]int, len(names))
	for _, n := range names {
		if p, ok := priorityOverride[n]; ok {
			priority[n] = p
			continue
		}
		priority[n] = len(successors[n])
	}

	return &dag{
		names:        names,
		successors:   successors,
		predecessors: predecessors,
		priority:     priority,
	}, nil
}

// topoOrder returns a stable forward topological order (every node after
// all of its predecessors), via Kahn's algorithm with ties broken by
// name so the order is deterministic across runs.
func (g *dag) topoOrder() []string {
	inDegree := make(map[string]int, len(g.names))
	for _, n := range g.names {
		inDegree[n] = len(g.predecessors[n])
	}

	var frontier []string
	for _, n := range g.names {
		if inDegree[n] == 0 {
			frontier = append(frontier, n)
		}
	}
	sort.Strings(frontier)

	order := make([]string, 0, len(g.names))
	for len(frontier) > 0 {
		sort.Strings(frontier)
		n := frontier[0]
		frontier = frontier[1:]
		order = append(order, n)

		for _, s := range g.successors[n] {
			inDegree[s]--
			if inDegree[s] == 0 {
				frontier = append(frontier, s)
			}
		}
	}
	return order
}
