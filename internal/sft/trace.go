package sft

import "fmt"

// MaxTraceDepth is the largest number of hops Trace will follow.
const MaxTraceDepth = 10

// PathStep is one identity on a traced path. EdgeNotes holds the notes of
// the link used to reach it and is empty for the first step.
type PathStep struct {
	Revision  *Revision `json:"revision" yaml:"revision"`
	EdgeNotes string    `json:"edge_notes,omitempty" yaml:"edge_notes,omitempty"`
}

// Trace finds the shortest directed path from start to end through the link
// graph. Outgoing links are explored in store order, so ties resolve the
// same way on every call.
func (s *SFTService) Trace(start, end string) ([]*PathStep, error) {
	from, err := s.ResolveUnique(start)
	if err != nil {
		return nil, fmt.Errorf("resolving start: %w", err)
	}
	to, err := s.ResolveUnique(end)
	if err != nil {
		return nil, fmt.Errorf("resolving end: %w", err)
	}
	if from.ID == to.ID {
		return nil, fmt.Errorf("tracing %s: %w", from.ID, ErrDegenerateQuery)
	}

	type hop struct {
		prev  string
		notes string
	}

	// parents doubles as the visited set: a node is recorded the first time
	// it is reached, which in BFS order is by a shortest path.
	parents := map[string]hop{from.ID: {}}
	latest := map[string]*Revision{from.ID: from, to.ID: to}
	frontier := []string{from.ID}
	found := false

	for depth := 0; depth < MaxTraceDepth && len(frontier) > 0 && !found; depth++ {
		var next []string
		for _, id := range frontier {
			links, err := s.database.OutgoingEdges(id)
			if err != nil {
				return nil, fmt.Errorf("expanding %s: %w", id, err)
			}
			for _, l := range links {
				tid := l.Edge.TargetID
				if _, seen := parents[tid]; seen {
					continue
				}
				parents[tid] = hop{prev: id, notes: l.Edge.Notes}
				if _, ok := latest[tid]; !ok {
					latest[tid] = l.Revision
				}
				if tid == to.ID {
					found = true
					break
				}
				next = append(next, tid)
			}
			if found {
				break
			}
		}
		frontier = next
	}

	if !found {
		s.logger.Debug("no path", "start", from.ID, "end", to.ID, "max_depth", MaxTraceDepth)
		return nil, fmt.Errorf("%s -> %s within %d hops: %w", from.OriginalFilename, to.OriginalFilename, MaxTraceDepth, ErrNoPathFound)
	}

	var steps []*PathStep
	for id := to.ID; ; {
		h := parents[id]
		steps = append(steps, &PathStep{Revision: latest[id], EdgeNotes: h.notes})
		if id == from.ID {
			break
		}
		id = h.prev
	}
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	return steps, nil
}
