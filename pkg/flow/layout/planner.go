package layout

import (
	"cmp"
	"slices"

	"github.com/matzehuels/flowgraph/pkg/flow"
)

// Options control slot placement.
type Options struct {
	NodeWidth    float64 // nominal node width, used for bounds
	NodeSpacing  float64 // horizontal distance between adjacent slot centers
	LayerSpacing float64 // vertical distance between layers
	MinNodes     int     // graphs smaller than this are not laid out
}

// DefaultOptions returns the default slot geometry.
func DefaultOptions() Options {
	return Options{
		NodeWidth:    120,
		NodeSpacing:  180,
		LayerSpacing: 150,
		MinNodes:     3,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.NodeWidth <= 0 {
		o.NodeWidth = d.NodeWidth
	}
	if o.NodeSpacing <= 0 {
		o.NodeSpacing = d.NodeSpacing
	}
	if o.LayerSpacing <= 0 {
		o.LayerSpacing = d.LayerSpacing
	}
	if o.MinNodes <= 0 {
		o.MinNodes = d.MinNodes
	}
	return o
}

// Position is the center of a node in layout space.
type Position struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Layer int     `json:"layer"`
	Slot  int     `json:"slot"`
}

// Result is the output of [Planner.Plan].
type Result struct {
	// Skipped is true when the graph had fewer than MinNodes nodes. All
	// other fields are empty in that case.
	Skipped bool `json:"skipped"`

	Root      string              `json:"root,omitempty"`
	Layers    Layers              `json:"layers"`
	Order     [][]string          `json:"order"` // node IDs per layer, left to right
	Positions map[string]Position `json:"positions"`

	// Crossings counts edge crossings between adjacent layers.
	Crossings int `json:"crossings"`
}

// Bounds returns the horizontal extent of the layout including node width.
func (r Result) Bounds(nodeWidth float64) (minX, maxX float64) {
	first := true
	for _, p := range r.Positions {
		if first || p.X < minX {
			minX = p.X
		}
		if first || p.X > maxX {
			maxX = p.X
		}
		first = false
	}
	return minX - nodeWidth/2, maxX + nodeWidth/2
}

// Planner lays out flow graphs.
type Planner struct {
	opts Options
}

// NewPlanner creates a planner. Zero option fields take their defaults.
func NewPlanner(opts Options) *Planner {
	return &Planner{opts: opts.withDefaults()}
}

// Options returns the effective options.
func (p *Planner) Options() Options { return p.opts }

// Plan layers g and assigns slot positions.
//
// Within a layer, nodes are grouped by primary parent (the leftmost parent
// in the layer above). Each group is spread symmetrically around its
// parent's x, ordered by the branch port it hangs from. Groups are then
// composed left to right, pushed apart where they would overlap, and the
// layer is shifted back so its mean offset from the ideal anchors is zero.
// Nodes without parents form a trailing group.
func (p *Planner) Plan(g Graph) (Result, error) {
	ids := g.NodeIDs()
	if len(ids) < p.opts.MinNodes {
		return Result{Skipped: true}, nil
	}
	root, err := FindRoot(g)
	if err != nil {
		return Result{}, err
	}
	layers, err := ComputeLayers(g, root)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Root:      root,
		Layers:    layers,
		Order:     layers.Groups(ids),
		Positions: make(map[string]Position, len(ids)),
	}
	index := make(map[string]int, len(ids))
	for i, id := range ids {
		index[id] = i
	}

	for l, row := range res.Order {
		var xs []float64
		if l == 0 {
			row = rootFirst(row, root)
			xs = spread(0, len(row), p.opts.NodeSpacing)
		} else {
			row, xs = p.placeLayer(g, row, res.Positions, index)
		}
		res.Order[l] = row
		for i, id := range row {
			res.Positions[id] = Position{
				X:     xs[i],
				Y:     float64(l) * p.opts.LayerSpacing,
				Layer: l,
				Slot:  i,
			}
		}
	}
	res.Crossings = CountCrossings(g, res.Order)
	return res, nil
}

type group struct {
	anchor   float64
	parent   string
	children []child
}

type child struct {
	id   string
	port int
	seq  int
}

func (p *Planner) placeLayer(g Graph, row []string, placed map[string]Position, index map[string]int) ([]string, []float64) {
	groups := map[string]*group{}
	var orphans []child
	for _, id := range row {
		parent, port, ok := primaryParent(g, id, placed)
		c := child{id: id, port: port, seq: index[id]}
		if !ok {
			orphans = append(orphans, c)
			continue
		}
		gr, exists := groups[parent]
		if !exists {
			gr = &group{anchor: placed[parent].X, parent: parent}
			groups[parent] = gr
		}
		gr.children = append(gr.children, c)
	}

	ordered := make([]*group, 0, len(groups)+1)
	for _, gr := range groups {
		ordered = append(ordered, gr)
	}
	slices.SortFunc(ordered, func(a, b *group) int {
		return cmp.Or(cmp.Compare(a.anchor, b.anchor), cmp.Compare(index[a.parent], index[b.parent]))
	})

	byPort := func(a, b child) int {
		return cmp.Or(cmp.Compare(a.port, b.port), cmp.Compare(a.seq, b.seq))
	}

	var (
		outIDs   []string
		outXs    []float64
		desired  float64
		actual   float64
		right    = 0.0
		hasRight = false
	)
	for _, gr := range ordered {
		slices.SortFunc(gr.children, byPort)
		xs := spread(gr.anchor, len(gr.children), p.opts.NodeSpacing)
		shift := 0.0
		if hasRight && xs[0] < right+p.opts.NodeSpacing {
			shift = right + p.opts.NodeSpacing - xs[0]
		}
		for i, c := range gr.children {
			desired += xs[i]
			actual += xs[i] + shift
			outIDs = append(outIDs, c.id)
			outXs = append(outXs, xs[i]+shift)
		}
		right = outXs[len(outXs)-1]
		hasRight = true
	}
	if n := len(outXs); n > 0 {
		offset := (actual - desired) / float64(n)
		for i := range outXs {
			outXs[i] -= offset
		}
		right = outXs[n-1]
	}

	slices.SortFunc(orphans, byPort)
	for i, c := range orphans {
		outIDs = append(outIDs, c.id)
		if hasRight {
			outXs = append(outXs, right+float64(i+1)*p.opts.NodeSpacing)
		}
	}
	if !hasRight {
		outXs = spread(0, len(orphans), p.opts.NodeSpacing)
	}
	return outIDs, outXs
}

// primaryParent returns the leftmost already-placed parent of id and the
// branch index of the connecting edge (0 for plain "out").
func primaryParent(g Graph, id string, placed map[string]Position) (string, int, bool) {
	var (
		best  string
		bestX float64
		port  int
		found bool
	)
	for _, e := range g.IncomingEdges(id) {
		pos, ok := placed[e.Source]
		if !ok {
			continue
		}
		if !found || pos.X < bestX {
			best, bestX, found = e.Source, pos.X, true
			port, _ = flow.ParseBranchPort(e.SourcePort)
		}
	}
	return best, port, found
}

// spread returns n x positions centered on anchor, step apart.
func spread(anchor float64, n int, step float64) []float64 {
	xs := make([]float64, n)
	mid := float64(n-1) / 2
	for i := range xs {
		xs[i] = anchor + (float64(i)-mid)*step
	}
	return xs
}

func rootFirst(row []string, root string) []string {
	i := slices.Index(row, root)
	if i <= 0 {
		return row
	}
	out := make([]string, 0, len(row))
	out = append(out, root)
	out = append(out, row[:i]...)
	return append(out, row[i+1:]...)
}
