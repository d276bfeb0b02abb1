package io

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	ferrors "github.com/matzehuels/flowgraph/pkg/errors"
	"github.com/matzehuels/flowgraph/pkg/flow"
	"github.com/matzehuels/flowgraph/pkg/flow/preview"
)

// DocumentVersion is written into every exported document.
const DocumentVersion = "1"

type document struct {
	Version  string        `json:"version,omitempty" yaml:"version,omitempty" toml:"version,omitempty"`
	Nodes    []node        `json:"nodes" yaml:"nodes" toml:"nodes"`
	Edges    []edge        `json:"edges" yaml:"edges" toml:"edges"`
	Previews []previewLine `json:"previews,omitempty" yaml:"previews,omitempty" toml:"previews,omitempty"`
}

type node struct {
	ID            string           `json:"id" yaml:"id" toml:"id"`
	Kind          string           `json:"kind" yaml:"kind" toml:"kind"`
	Label         string           `json:"label,omitempty" yaml:"label,omitempty" toml:"label,omitempty"`
	Conditions    []flow.Condition `json:"conditions,omitempty" yaml:"conditions,omitempty" toml:"conditions,omitempty"`
	AutoGenerated bool             `json:"autoGenerated,omitempty" yaml:"autoGenerated,omitempty" toml:"auto_generated,omitempty"`
	FlowID        string           `json:"flowId,omitempty" yaml:"flowId,omitempty" toml:"flow_id,omitempty"`
	Meta          map[string]any   `json:"meta,omitempty" yaml:"meta,omitempty" toml:"meta,omitempty"`
}

type edge struct {
	ID         string         `json:"id,omitempty" yaml:"id,omitempty" toml:"id,omitempty"`
	Source     string         `json:"source" yaml:"source" toml:"source"`
	SourcePort string         `json:"sourcePort,omitempty" yaml:"sourcePort,omitempty" toml:"source_port,omitempty"`
	Target     string         `json:"target" yaml:"target" toml:"target"`
	TargetPort string         `json:"targetPort,omitempty" yaml:"targetPort,omitempty" toml:"target_port,omitempty"`
	Meta       map[string]any `json:"meta,omitempty" yaml:"meta,omitempty" toml:"meta,omitempty"`
}

type previewLine struct {
	ID       string `json:"id,omitempty" yaml:"id,omitempty" toml:"id,omitempty"`
	Source   string `json:"source" yaml:"source" toml:"source"`
	BranchID string `json:"branchId" yaml:"branchId" toml:"branch_id"`
	Target   string `json:"target,omitempty" yaml:"target,omitempty" toml:"target,omitempty"`
	Label    string `json:"label,omitempty" yaml:"label,omitempty" toml:"label,omitempty"`
}

func toDocument(f *Flow) document {
	doc := document{
		Version: DocumentVersion,
		Nodes:   []node{},
		Edges:   []edge{},
	}
	for _, n := range f.Graph.Nodes() {
		nd := node{
			ID:            n.ID,
			Kind:          n.Kind.String(),
			Label:         n.Label,
			AutoGenerated: n.AutoGenerated,
			FlowID:        n.FlowID,
			Conditions:    n.Conditions,
		}
		if len(n.Meta) > 0 {
			nd.Meta = n.Meta
		}
		doc.Nodes = append(doc.Nodes, nd)
	}
	for _, e := range f.Graph.Edges() {
		ed := edge{
			ID:         e.ID,
			Source:     e.Source,
			SourcePort: e.SourcePort,
			Target:     e.Target,
			TargetPort: e.TargetPort,
		}
		if len(e.Meta) > 0 {
			ed.Meta = e.Meta
		}
		doc.Edges = append(doc.Edges, ed)
	}
	if f.Previews != nil {
		for _, l := range f.Previews.Lines() {
			doc.Previews = append(doc.Previews, previewLine{
				ID:       l.ID,
				Source:   l.SourceID,
				BranchID: l.BranchID,
				Target:   l.TargetID,
				Label:    l.Label,
			})
		}
	}
	return doc
}

// WriteJSON encodes a flow as indented JSON.
func WriteJSON(f *Flow, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(toDocument(f)); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}

// WriteYAML encodes a flow as YAML.
func WriteYAML(f *Flow, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(toDocument(f)); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return enc.Close()
}

// WriteTOML encodes a flow as TOML.
func WriteTOML(f *Flow, w io.Writer) error {
	if err := toml.NewEncoder(w).Encode(toDocument(f)); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}

// Write encodes a flow in the given format.
func Write(f *Flow, w io.Writer, format Format) error {
	switch format {
	case FormatJSON:
		return WriteJSON(f, w)
	case FormatYAML:
		return WriteYAML(f, w)
	case FormatTOML:
		return WriteTOML(f, w)
	}
	return ferrors.New(ferrors.ErrCodeUnsupported, "unsupported format %q", format)
}

// Export writes a flow to path, choosing the format from the extension.
func Export(f *Flow, path string) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer out.Close()
	return Write(f, out, format)
}

// NewFlow wraps a graph with an empty preview registry.
func NewFlow(g *flow.Graph) *Flow {
	return &Flow{Graph: g, Previews: preview.NewRegistry()}
}
