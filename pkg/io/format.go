package io

import (
	"path/filepath"
	"strings"

	ferrors "github.com/matzehuels/flowgraph/pkg/errors"
)

// Format is a flow document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// Formats lists the supported formats.
var Formats = []Format{FormatJSON, FormatYAML, FormatTOML}

// ParseFormat parses a format name case-insensitively. "yml" is accepted as
// an alias of yaml.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "toml":
		return FormatTOML, nil
	}
	return "", ferrors.New(ferrors.ErrCodeUnsupported, "unsupported format %q (want json, yaml or toml)", s)
}

// FormatFromPath derives the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	ext := filepath.Ext(path)
	if ext == "" {
		return "", ferrors.New(ferrors.ErrCodeUnsupported, "cannot infer format of %s: no extension", path)
	}
	return ParseFormat(ext)
}
