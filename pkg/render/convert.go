package render

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	ferrors "github.com/matzehuels/flowgraph/pkg/errors"
)

// RSVGConvert is the converter binary looked up on PATH.
var RSVGConvert = "rsvg-convert"

// OutputFormat is a rendered diagram format.
type OutputFormat string

const (
	FormatDOT OutputFormat = "dot"
	FormatSVG OutputFormat = "svg"
	FormatPDF OutputFormat = "pdf"
	FormatPNG OutputFormat = "png"
)

// ParseOutputFormat parses a format name case-insensitively.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case FormatDOT, FormatSVG, FormatPDF, FormatPNG:
		return f, nil
	}
	return "", ferrors.New(ferrors.ErrCodeUnsupported, "unsupported output format %q (want dot, svg, pdf or png)", s)
}

// ToPDF converts SVG bytes to PDF.
func ToPDF(ctx context.Context, svg []byte) ([]byte, error) {
	return rsvgConvert(ctx, svg, "pdf")
}

// ToPNG converts SVG bytes to PNG. A scale of 2.0 doubles the resolution.
func ToPNG(ctx context.Context, svg []byte, scale float64) ([]byte, error) {
	if scale <= 0 {
		scale = 1
	}
	return rsvgConvert(ctx, svg, "png", "-z", fmt.Sprintf("%.2f", scale))
}

func rsvgConvert(ctx context.Context, svg []byte, format string, extraArgs ...string) ([]byte, error) {
	bin, err := exec.LookPath(RSVGConvert)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.ErrCodeUnsupported, err,
			"%s export requires librsvg (macOS: brew install librsvg, Linux: apt install librsvg2-bin)", format)
	}

	cmd := exec.CommandContext(ctx, bin, append([]string{"-f", format}, extraArgs...)...)
	cmd.Stdin = bytes.NewReader(svg)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, ferrors.Wrap(ferrors.ErrCodeInternal, err, "rsvg-convert: %s", strings.TrimSpace(stderr.String()))
	}
	return out.Bytes(), nil
}
