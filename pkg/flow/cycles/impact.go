package cycles

import "fmt"

// RecommendationType is the kind of fix suggested for a cycle.
type RecommendationType string

const (
	RecommendBreakCycle  RecommendationType = "break_cycle"
	RecommendRestructure RecommendationType = "restructure"
	RecommendWarning     RecommendationType = "warning"
)

// Recommendation is a suggested fix. It is never applied automatically.
type Recommendation struct {
	Type          RecommendationType `json:"type"`
	Description   string             `json:"description"`
	AffectedNodes []string           `json:"affectedNodes"`
}

// Impact summarizes the consequences of a set of cycles.
type Impact struct {
	CriticalNodes   []string         `json:"criticalNodes"`
	ImpactedFlows   []string         `json:"impactedFlows"`
	Recommendations []Recommendation `json:"recommendations"`
}

// AnalyzeImpact returns one recommendation per cycle together with the
// de-duplicated cycle nodes and the flow groups they belong to.
func AnalyzeImpact(g Graph, cycles []Cycle) Impact {
	impact := Impact{
		CriticalNodes:   []string{},
		ImpactedFlows:   []string{},
		Recommendations: make([]Recommendation, 0, len(cycles)),
	}
	nodes := map[string]bool{}
	flows := map[string]bool{}
	for _, c := range cycles {
		for _, id := range c.Nodes {
			if !nodes[id] {
				nodes[id] = true
				impact.CriticalNodes = append(impact.CriticalNodes, id)
			}
			if g == nil {
				continue
			}
			if n, ok := g.Node(id); ok && n.FlowID != "" && !flows[n.FlowID] {
				flows[n.FlowID] = true
				impact.ImpactedFlows = append(impact.ImpactedFlows, n.FlowID)
			}
		}
		impact.Recommendations = append(impact.Recommendations, Recommend(c))
	}
	return impact
}

// Recommend maps a cycle to its recommendation by severity.
func Recommend(c Cycle) Recommendation {
	r := Recommendation{AffectedNodes: c.Nodes}
	switch c.Severity {
	case SeverityHigh:
		r.Type = RecommendBreakCycle
		if len(c.Path) >= 2 {
			r.Description = fmt.Sprintf("break the connection between %s and %s", c.Path[0], c.Path[1])
		} else {
			r.Description = "break the cycle"
		}
	case SeverityMedium:
		r.Type = RecommendRestructure
		r.Description = fmt.Sprintf("restructure the flow, %d nodes form a cycle", c.Len())
	default:
		r.Type = RecommendWarning
		r.Description = fmt.Sprintf("review the flow logic, %d nodes form a long cycle", c.Len())
	}
	return r
}
