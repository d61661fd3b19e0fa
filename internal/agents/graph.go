package agents

import (
	"fmt"
	"sort"

	"github.com/quorumtrade/quorumtrade/internal/db"
)

// OrderFromGraph topologically sorts the agent connection graph of a
// non-system council into an execution order. Nodes not mentioned by
// any edge keep their configured order after the sorted ones. Cycles
// are an error.
func OrderFromGraph(refs []db.AgentRef, graph db.ConnectionsGraph) ([]db.AgentRef, error) {
	if len(graph.Edges) == 0 {
		return refs, nil
	}

	byKey := make(map[string]db.AgentRef, len(refs))
	for _, r := range refs {
		byKey[r.AgentKey] = r
	}

	indegree := make(map[string]int)
	successors := make(map[string][]string)
	for _, e := range graph.Edges {
		if _, ok := byKey[e.Source]; !ok {
			continue
		}
		if _, ok := byKey[e.Target]; !ok {
			continue
		}
		successors[e.Source] = append(successors[e.Source], e.Target)
		indegree[e.Target]++
		if _, ok := indegree[e.Source]; !ok {
			indegree[e.Source] = 0
		}
	}

	// Kahn's algorithm with sorted ready set for determinism.
	var ready []string
	for key, deg := range indegree {
		if deg == 0 {
			ready = append(ready, key)
		}
	}
	sort.Strings(ready)

	var sorted []string
	for len(ready) > 0 {
		key := ready[0]
		ready = ready[1:]
		sorted = append(sorted, key)

		next := successors[key]
		sort.Strings(next)
		for _, succ := range next {
			indegree[succ]--
			if indegree[succ] == 0 {
				ready = append(ready, succ)
			}
		}
		sort.Strings(ready)
	}

	if len(sorted) < len(indegree) {
		return nil, fmt.Errorf("agent connection graph contains a cycle")
	}

	inGraph := make(map[string]bool, len(sorted))
	out := make([]db.AgentRef, 0, len(refs))
	for _, key := range sorted {
		inGraph[key] = true
		out = append(out, byKey[key])
	}
	for _, r := range refs {
		if !inGraph[r.AgentKey] {
			out = append(out, r)
		}
	}
	return out, nil
}
