package layout

import "slices"

// CountCrossings returns the number of edge crossings between consecutive
// rows of order, where order[l] lists the node IDs of layer l left to right.
// Edges that skip layers are not counted.
func CountCrossings(g Graph, order [][]string) int {
	total := 0
	for l := 0; l+1 < len(order); l++ {
		total += CountLayerCrossings(g, order[l], order[l+1])
	}
	return total
}

// CountLayerCrossings counts crossings among edges from upper to lower.
//
// Two edges (u1,v1) and (u2,v2) cross iff pos(u1) < pos(u2) and
// pos(v1) > pos(v2), so the count is the number of inversions in the target
// positions once edges are sorted by source. A Fenwick tree counts them in
// O(E log V).
func CountLayerCrossings(g Graph, upper, lower []string) int {
	if len(upper) == 0 || len(lower) == 0 {
		return 0
	}
	lowerPos := make(map[string]int, len(lower))
	for i, id := range lower {
		lowerPos[id] = i
	}

	type span struct{ upper, lower int }
	var spans []span
	for i, id := range upper {
		for _, e := range g.OutgoingEdges(id) {
			if pos, ok := lowerPos[e.Target]; ok {
				spans = append(spans, span{i, pos})
			}
		}
	}
	if len(spans) < 2 {
		return 0
	}
	slices.SortFunc(spans, func(a, b span) int {
		if a.upper != b.upper {
			return a.upper - b.upper
		}
		return a.lower - b.lower
	})

	fenwick := make([]int, len(lower)+1)
	crossings, seen := 0, 0
	for _, s := range spans {
		atMost := 0
		for q := s.lower + 1; q > 0; q -= q & -q {
			atMost += fenwick[q]
		}
		crossings += seen - atMost
		seen++
		for i := s.lower + 1; i < len(fenwick); i += i & -i {
			fenwick[i]++
		}
	}
	return crossings
}
