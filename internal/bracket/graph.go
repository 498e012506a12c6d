package bracket

import (
	"errors"
	"fmt"

	"github.com/dominikbraun/graph"
)

func matchKey(m Match) string {
	return m.Key()
}

// ProgressionGraph has every generated bracket match as a node. An edge runs
// from a match to each later match that one of its players advanced into.
type ProgressionGraph struct {
	graph.Graph[string, Match]
	adjacency map[string]map[string]graph.Edge[string]
}

func NewProgressionGraph(matches []Match) (*ProgressionGraph, error) {
	g := graph.New(matchKey, graph.Directed(), graph.PreventCycles())
	for _, m := range matches {
		if err := g.AddVertex(m); err != nil {
			return nil, fmt.Errorf("failed to add bracket match %s: %w", m.Key(), err)
		}
	}

	for _, m := range matches {
		for _, source := range []string{m.Source1, m.Source2} {
			if source == "" {
				continue
			}
			err := g.AddEdge(source, m.Key())
			if err != nil && !errors.Is(err, graph.ErrEdgeAlreadyExists) {
				return nil, fmt.Errorf("failed to link %s to %s: %w", source, m.Key(), err)
			}
		}
	}

	adjacency, err := g.AdjacencyMap()
	if err != nil {
		return nil, fmt.Errorf("failed to build adjacency map: %w", err)
	}
	return &ProgressionGraph{Graph: g, adjacency: adjacency}, nil
}

// Dependants returns the matches that were generated from the given match's result.
func (g *ProgressionGraph) Dependants(key string) []Match {
	out := g.adjacency[key]
	dependants := make([]Match, 0, len(out))
	for target := range out {
		m, err := g.Vertex(target)
		if err != nil {
			continue
		}
		dependants = append(dependants, m)
	}
	return dependants
}

// Editable reports whether a result can still change without invalidating a
// pairing that has already been made from it.
func (g *ProgressionGraph) Editable(key string) bool {
	return len(g.adjacency[key]) == 0
}
