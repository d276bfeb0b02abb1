package cli

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	ferrors "github.com/matzehuels/flowgraph/pkg/errors"
	"github.com/matzehuels/flowgraph/pkg/flow/layout"
	"github.com/matzehuels/flowgraph/pkg/publish"
)

const configFile = appName + ".toml"

// Config is the contents of flowgraph.toml. Zero values fall back to the
// library defaults.
type Config struct {
	Layout  LayoutConfig  `toml:"layout"`
	Publish PublishConfig `toml:"publish"`
	Render  RenderConfig  `toml:"render"`
}

type LayoutConfig struct {
	NodeWidth    float64 `toml:"node_width"`
	NodeSpacing  float64 `toml:"node_spacing"`
	LayerSpacing float64 `toml:"layer_spacing"`
	MinNodes     int     `toml:"min_nodes"`
}

type PublishConfig struct {
	AutoTerminate *bool `toml:"auto_terminate"`
	MaxNodes      int   `toml:"max_nodes"`
}

type RenderConfig struct {
	Detailed bool     `toml:"detailed"`
	Cache    *bool    `toml:"cache"`
	CacheTTL duration `toml:"cache_ttl"`
}

// duration decodes TOML strings such as "24h".
type duration struct{ time.Duration }

func (d *duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d duration) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

const defaultCacheTTL = 7 * 24 * time.Hour

// LayoutOptions merges the [layout] section over the planner defaults.
func (c Config) LayoutOptions() layout.Options {
	o := layout.DefaultOptions()
	if c.Layout.NodeWidth > 0 {
		o.NodeWidth = c.Layout.NodeWidth
	}
	if c.Layout.NodeSpacing > 0 {
		o.NodeSpacing = c.Layout.NodeSpacing
	}
	if c.Layout.LayerSpacing > 0 {
		o.LayerSpacing = c.Layout.LayerSpacing
	}
	if c.Layout.MinNodes > 0 {
		o.MinNodes = c.Layout.MinNodes
	}
	return o
}

// PublishOptions merges the [publish] section over the publish defaults.
func (c Config) PublishOptions() publish.Options {
	o := publish.DefaultOptions()
	if c.Publish.AutoTerminate != nil {
		o.AutoTerminate = *c.Publish.AutoTerminate
	}
	if c.Publish.MaxNodes > 0 {
		o.MaxNodes = c.Publish.MaxNodes
	}
	o.Layout = c.LayoutOptions()
	return o
}

// CacheEnabled reports whether rendered output may be cached.
func (c Config) CacheEnabled() bool {
	return c.Render.Cache == nil || *c.Render.Cache
}

// CacheTTL returns the expiry of cached renders.
func (c Config) CacheTTL() time.Duration {
	if c.Render.CacheTTL.Duration > 0 {
		return c.Render.CacheTTL.Duration
	}
	return defaultCacheTTL
}

// loadConfig reads the config at path. With an empty path the default
// location is tried and a missing file yields the zero Config.
func loadConfig(path string) (Config, error) {
	var cfg Config
	explicit := path != ""
	if !explicit {
		dir, err := configDir()
		if err != nil {
			return cfg, nil
		}
		path = filepath.Join(dir, configFile)
	}

	md, err := toml.DecodeFile(path, &cfg)
	if errors.Is(err, fs.ErrNotExist) {
		if explicit {
			return cfg, ferrors.Wrap(ferrors.ErrCodeFileNotFound, err, "config file %s not found", path)
		}
		return Config{}, nil
	}
	if err != nil {
		return cfg, ferrors.Wrap(ferrors.ErrCodeInvalidFormat, err, "parse config %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return cfg, ferrors.New(ferrors.ErrCodeInvalidFormat, "config %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	return cfg, nil
}

// configDir returns $XDG_CONFIG_HOME/flowgraph, or ~/.config/flowgraph.
func configDir() (string, error) {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

// cacheDir returns $XDG_CACHE_HOME/flowgraph, or ~/.cache/flowgraph.
func cacheDir() (string, error) {
	return xdgDir("XDG_CACHE_HOME", ".cache")
}

func xdgDir(env, fallback string) (string, error) {
	if base := os.Getenv(env); base != "" {
		return filepath.Join(base, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, fallback, appName), nil
}
