package publish

import (
	"time"

	"github.com/matzehuels/flowgraph/pkg/flow"
	"github.com/matzehuels/flowgraph/pkg/flow/branch"
	"github.com/matzehuels/flowgraph/pkg/flow/layout"
)

// ConfigVersion is the schema version written into every [Config].
const ConfigVersion = "1.0"

// Config is the snapshot of a successfully published flow.
type Config struct {
	Version   string         `json:"version" yaml:"version"`
	Timestamp time.Time      `json:"timestamp" yaml:"timestamp"`
	Nodes     []ConfigNode   `json:"nodes" yaml:"nodes"`
	Edges     []ConfigEdge   `json:"edges" yaml:"edges"`
	Metadata  ConfigMetadata `json:"metadata" yaml:"metadata"`
}

type ConfigNode struct {
	ID            string           `json:"id" yaml:"id"`
	Kind          flow.NodeKind    `json:"kind" yaml:"kind"`
	Label         string           `json:"label,omitempty" yaml:"label,omitempty"`
	Conditions    []flow.Condition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	AutoGenerated bool             `json:"autoGenerated,omitempty" yaml:"autoGenerated,omitempty"`
	Layer         int              `json:"layer" yaml:"layer"`
	Position      *layout.Position `json:"position,omitempty" yaml:"position,omitempty"`
	Meta          flow.Metadata    `json:"meta,omitempty" yaml:"meta,omitempty"`
}

type ConfigEdge struct {
	ID         string `json:"id" yaml:"id"`
	Source     string `json:"source" yaml:"source"`
	SourcePort string `json:"sourcePort" yaml:"sourcePort"`
	Target     string `json:"target" yaml:"target"`
	TargetPort string `json:"targetPort" yaml:"targetPort"`
	BranchID   string `json:"branchId,omitempty" yaml:"branchId,omitempty"`
}

type ConfigMetadata struct {
	NodeCount             int  `json:"nodeCount" yaml:"nodeCount"`
	EdgeCount             int  `json:"edgeCount" yaml:"edgeCount"`
	HasEndNodes           bool `json:"hasEndNodes" yaml:"hasEndNodes"`
	AutoGeneratedEndNodes int  `json:"autoGeneratedEndNodes" yaml:"autoGeneratedEndNodes"`
	Validated             bool `json:"validated" yaml:"validated"`
}

// BuildConfig snapshots g together with its layout. Positions are omitted
// when the layout was skipped.
func BuildConfig(g Graph, lay layout.Result, at time.Time) Config {
	cfg := Config{Version: ConfigVersion, Timestamp: at}
	for _, n := range g.Nodes() {
		cn := ConfigNode{
			ID:            n.ID,
			Kind:          n.Kind,
			Label:         n.Label,
			Conditions:    n.Conditions,
			AutoGenerated: n.AutoGenerated,
			Layer:         lay.Layers[n.ID],
		}
		if len(n.Meta) > 0 {
			cn.Meta = n.Meta
		}
		if p, ok := lay.Positions[n.ID]; ok {
			cn.Position = &p
		}
		cfg.Nodes = append(cfg.Nodes, cn)

		if n.Kind == flow.KindEnd {
			cfg.Metadata.HasEndNodes = true
		}
		if n.IsAutoEnd() {
			cfg.Metadata.AutoGeneratedEndNodes++
		}
	}
	for _, e := range g.Edges() {
		ce := ConfigEdge{
			ID:         e.ID,
			Source:     e.Source,
			SourcePort: e.SourcePort,
			Target:     e.Target,
			TargetPort: e.TargetPort,
		}
		if idx, ok := e.BranchIndex(); ok {
			ce.BranchID = branch.ID(e.Source, idx)
		}
		cfg.Edges = append(cfg.Edges, ce)
	}
	cfg.Metadata.NodeCount = len(cfg.Nodes)
	cfg.Metadata.EdgeCount = len(cfg.Edges)
	cfg.Metadata.Validated = true
	return cfg
}
