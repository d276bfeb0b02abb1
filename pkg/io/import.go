package io

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	ferrors "github.com/matzehuels/flowgraph/pkg/errors"
	"github.com/matzehuels/flowgraph/pkg/flow"
	"github.com/matzehuels/flowgraph/pkg/flow/preview"
)

// Flow is a decoded flow document: the graph plus the placeholder lines of
// branches that are not connected yet.
type Flow struct {
	Graph    *flow.Graph
	Previews *preview.Registry
}

// ReadJSON decodes a JSON flow document from r.
//
// Each node needs an "id" and a "kind"; edges need "source" and "target".
// Ports default to "out" and "in" and a missing edge id is generated.
// Node IDs are validated before they reach the graph, and every structural
// rule of [flow.Graph.AddEdge] applies.
//
// ReadJSON does not close r.
func ReadJSON(r io.Reader) (*Flow, error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, ferrors.Wrap(ferrors.ErrCodeInvalidFormat, err, "decode json")
	}
	return fromDocument(doc)
}

// ReadYAML decodes a YAML flow document from r.
func ReadYAML(r io.Reader) (*Flow, error) {
	var doc document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, ferrors.Wrap(ferrors.ErrCodeInvalidFormat, err, "decode yaml")
	}
	return fromDocument(doc)
}

// ReadTOML decodes a TOML flow document from r.
func ReadTOML(r io.Reader) (*Flow, error) {
	var doc document
	if _, err := toml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, ferrors.Wrap(ferrors.ErrCodeInvalidFormat, err, "decode toml")
	}
	return fromDocument(doc)
}

// Read decodes a flow document in the given format.
func Read(r io.Reader, format Format) (*Flow, error) {
	switch format {
	case FormatJSON:
		return ReadJSON(r)
	case FormatYAML:
		return ReadYAML(r)
	case FormatTOML:
		return ReadTOML(r)
	}
	return nil, ferrors.New(ferrors.ErrCodeUnsupported, "unsupported format %q", format)
}

// Import reads the flow document at path. The format is chosen from the
// file extension.
func Import(path string) (*Flow, error) {
	if err := ferrors.ValidatePath(path); err != nil {
		return nil, err
	}
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ferrors.Wrap(ferrors.ErrCodeFileNotFound, err, "flow file %s", path)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return Read(f, format)
}

func fromDocument(doc document) (*Flow, error) {
	g := flow.New(nil)
	for _, n := range doc.Nodes {
		if err := ferrors.ValidateNodeID(n.ID); err != nil {
			return nil, err
		}
		kind, err := flow.ParseKind(n.Kind)
		if err != nil {
			return nil, ferrors.Wrap(ferrors.ErrCodeInvalidFormat, err, "node %s", n.ID)
		}
		nd := flow.Node{
			ID:            n.ID,
			Kind:          kind,
			Label:         n.Label,
			Conditions:    n.Conditions,
			AutoGenerated: n.AutoGenerated,
			FlowID:        n.FlowID,
			Meta:          n.Meta,
		}
		if err := g.AddNode(nd); err != nil {
			return nil, fmt.Errorf("node %s: %w", n.ID, err)
		}
	}
	for _, e := range doc.Edges {
		_, err := g.AddEdge(flow.Edge{
			ID:         e.ID,
			Source:     e.Source,
			SourcePort: e.SourcePort,
			Target:     e.Target,
			TargetPort: e.TargetPort,
			Meta:       e.Meta,
		})
		if err != nil {
			return nil, fmt.Errorf("edge %s->%s: %w", e.Source, e.Target, err)
		}
	}

	previews := preview.NewRegistry()
	for _, l := range doc.Previews {
		if !g.HasNode(l.Source) {
			return nil, ferrors.New(ferrors.ErrCodeInvalidFormat, "preview %s: unknown source %s", l.BranchID, l.Source)
		}
		previews.Put(preview.Line{
			ID:       l.ID,
			SourceID: l.Source,
			BranchID: l.BranchID,
			TargetID: l.Target,
			Label:    l.Label,
		})
	}
	return &Flow{Graph: g, Previews: previews}, nil
}
