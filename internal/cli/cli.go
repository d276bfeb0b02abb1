// Package cli implements the flowgraph command-line interface.
package cli

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/flowgraph/pkg/buildinfo"
	"github.com/matzehuels/flowgraph/pkg/cache"
	flowio "github.com/matzehuels/flowgraph/pkg/io"
	"github.com/matzehuels/flowgraph/pkg/observability"
)

// appName is the application name used for directories and display.
const appName = "flowgraph"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// ErrBlocked is returned when a command ran to completion but its verdict
// is negative, such as a publish blocked by validation. The details have
// already been printed.
var ErrBlocked = errors.New("blocked")

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	configPath string
	verbose    bool
	cfg        Config
}

// New creates a CLI logging to w at level.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "flowgraph checks, lays out and publishes workflow graphs",
		Long: `flowgraph works on workflow graphs made of start, decision, action, wait
and end nodes. It detects cycles, tracks decision branches, simulates cascade
deletions, computes hierarchical layouts and runs the publish gate.

Flow documents are JSON, YAML or TOML files.`,
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if c.verbose {
				c.SetLogLevel(LogDebug)
			}
			cfg, err := loadConfig(c.configPath)
			if err != nil {
				return err
			}
			c.cfg = cfg
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return nil
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default: $XDG_CONFIG_HOME/flowgraph/flowgraph.toml)")

	root.AddCommand(c.checkCommand())
	root.AddCommand(c.layoutCommand())
	root.AddCommand(c.branchesCommand())
	root.AddCommand(c.deleteCommand())
	root.AddCommand(c.orphansCommand())
	root.AddCommand(c.publishCommand())
	root.AddCommand(c.renderCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Shared helpers
// =============================================================================

// loadFlow imports a flow document and logs its size.
func (c *CLI) loadFlow(path string) (*flowio.Flow, error) {
	f, err := flowio.Import(path)
	if err != nil {
		return nil, fmt.Errorf("load flow %s: %w", path, err)
	}
	c.Logger.Debug("loaded flow", "path", path, "nodes", f.Graph.NodeCount(), "edges", f.Graph.EdgeCount(), "previews", f.Previews.Len())
	return f, nil
}

// sink returns the event sink commands hand to library components. Events
// are logged at debug level.
func (c *CLI) sink(extra ...observability.Sink) observability.Sink {
	return append(observability.Fanout{observability.NewLogSink(c.Logger)}, extra...)
}

func (c *CLI) newCache(disabled bool) (cache.Cache, error) {
	if disabled || !c.cfg.CacheEnabled() {
		return cache.NewNullCache(), nil
	}
	dir, err := cacheDir()
	if err != nil {
		c.Logger.Warn("cache disabled", "err", err)
		return cache.NewNullCache(), nil
	}
	return cache.NewFileCache(dir)
}

// derivedPath returns input with its extension replaced by suffix.
func derivedPath(input, suffix string) string {
	return strings.TrimSuffix(input, filepath.Ext(input)) + suffix
}
