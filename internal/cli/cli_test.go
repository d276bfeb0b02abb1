package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	ferrors "github.com/matzehuels/flowgraph/pkg/errors"
	"github.com/matzehuels/flowgraph/pkg/flow/cycles"
	"github.com/matzehuels/flowgraph/pkg/flow/layout"
	flowio "github.com/matzehuels/flowgraph/pkg/io"
	"github.com/matzehuels/flowgraph/pkg/publish"
)

const (
	linearFlow = `{
  "nodes": [
    {"id": "start", "kind": "start"},
    {"id": "a", "kind": "action"},
    {"id": "end", "kind": "end"}
  ],
  "edges": [
    {"source": "start", "target": "a"},
    {"source": "a", "target": "end"}
  ]
}`

	decisionFlow = `{
  "nodes": [
    {"id": "start", "kind": "start"},
    {"id": "d", "kind": "decision", "conditions": [{"expression": "score > 10", "label": "high"}]},
    {"id": "end", "kind": "end"}
  ],
  "edges": [
    {"source": "start", "target": "d"},
    {"source": "d", "sourcePort": "out-0", "target": "end"}
  ]
}`

	cyclicFlow = `{
  "nodes": [
    {"id": "start", "kind": "start"},
    {"id": "a", "kind": "action"},
    {"id": "b", "kind": "action"},
    {"id": "end", "kind": "end"}
  ],
  "edges": [
    {"source": "start", "target": "a"},
    {"source": "a", "target": "b"},
    {"source": "b", "target": "a"},
    {"source": "b", "target": "end"}
  ]
}`

	orphanFlow = `{
  "nodes": [
    {"id": "start", "kind": "start"},
    {"id": "a", "kind": "action"},
    {"id": "x", "kind": "action"},
    {"id": "end", "kind": "end"}
  ],
  "edges": [
    {"source": "start", "target": "a"},
    {"source": "a", "target": "end"},
    {"source": "x", "target": "end"}
  ]
}`
)

// setup isolates config and cache directories and writes doc as flow.json.
func setup(t *testing.T, doc string) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, "cache"))
	path := filepath.Join(dir, "flow.json")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := New(io.Discard, LogInfo).RootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCheck(t *testing.T) {
	out, err := run(t, "check", setup(t, linearFlow))
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !strings.Contains(out, "No cycles") {
		t.Errorf("output = %q", out)
	}
}

func TestCheckHelpSeverityBands(t *testing.T) {
	out, err := run(t, "check", "--help")
	if err != nil {
		t.Fatalf("help: %v", err)
	}
	help := strings.Join(strings.Fields(out), " ")
	if !strings.Contains(help, "three or four is medium, five or more is low") {
		t.Errorf("help = %q", out)
	}
	if cycles.SeverityFor(4) != cycles.SeverityMedium || cycles.SeverityFor(5) != cycles.SeverityLow {
		t.Error("help text disagrees with SeverityFor")
	}
}

func TestCheckCycle(t *testing.T) {
	out, err := run(t, "check", "--json", setup(t, cyclicFlow))
	if !errors.Is(err, ErrBlocked) {
		t.Fatalf("err = %v, want ErrBlocked", err)
	}
	var rep checkReport
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(rep.Cycles.Cycles) != 1 || rep.Cycles.Cycles[0].Severity != "high" {
		t.Errorf("cycles = %+v", rep.Cycles.Cycles)
	}
	if len(rep.Impact.Recommendations) != 1 || rep.Impact.Recommendations[0].Type != "break_cycle" {
		t.Errorf("recommendations = %+v", rep.Impact.Recommendations)
	}
}

func TestLayout(t *testing.T) {
	out, err := run(t, "layout", "--json", setup(t, linearFlow))
	if err != nil {
		t.Fatalf("layout: %v", err)
	}
	var res layout.Result
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if res.Skipped || res.Root != "start" || len(res.Positions) != 3 {
		t.Errorf("result = %+v", res)
	}
	if res.Positions["end"].Layer != 2 {
		t.Errorf("end layer = %d, want 2", res.Positions["end"].Layer)
	}
}

func TestLayoutTable(t *testing.T) {
	path := setup(t, linearFlow)
	out, err := run(t, "layout", path)
	if err != nil {
		t.Fatalf("layout: %v", err)
	}
	for _, want := range []string{"Node", "start", "action"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	out, err = run(t, "layout", "--min-nodes", "10", path)
	if err != nil || !strings.Contains(out, "Layout skipped") {
		t.Errorf("min-nodes: %q, %v", out, err)
	}
}

func TestBranches(t *testing.T) {
	path := setup(t, decisionFlow)
	out, err := run(t, "branches", path, "d")
	if err != nil {
		t.Fatalf("branches: %v", err)
	}
	for _, want := range []string{"d_branch_0", "d_branch_1", "high", "1 of 2 branches unattached"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	if _, err := run(t, "branches", path, "start"); err == nil {
		t.Error("branches of a start node should fail")
	}
}

func TestDelete(t *testing.T) {
	path := setup(t, linearFlow)
	out, err := run(t, "delete", path, "a")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !strings.Contains(out, "end is now an orphan") {
		t.Errorf("output = %q", out)
	}

	f, err := flowio.Import(filepath.Join(filepath.Dir(path), "flow.pruned.json"))
	if err != nil {
		t.Fatalf("import result: %v", err)
	}
	if f.Graph.HasNode("a") || f.Graph.NodeCount() != 2 || f.Graph.EdgeCount() != 0 {
		t.Errorf("result has %v nodes, %d edges", f.Graph.NodeIDs(), f.Graph.EdgeCount())
	}
}

func TestDeleteDryRunMissingNode(t *testing.T) {
	path := setup(t, linearFlow)
	out, err := run(t, "delete", "--dry-run", path, "ghost")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !strings.Contains(out, "ghost not found") || !strings.Contains(out, "Dry run") {
		t.Errorf("output = %q", out)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(path), "flow.pruned.json")); !os.IsNotExist(err) {
		t.Error("dry run wrote output")
	}
}

func TestDeleteRequiresIDWithoutTerminal(t *testing.T) {
	prev := interactive
	interactive = func() bool { return false }
	t.Cleanup(func() { interactive = prev })

	_, err := run(t, "delete", setup(t, linearFlow))
	if !ferrors.Is(err, ferrors.ErrCodeInvalidInput) {
		t.Errorf("err = %v, want INVALID_INPUT", err)
	}
}

func TestOrphans(t *testing.T) {
	path := setup(t, orphanFlow)
	out, err := run(t, "orphans", "--json", path)
	if err != nil {
		t.Fatalf("orphans: %v", err)
	}
	var ids []string
	if err := json.Unmarshal([]byte(out), &ids); err != nil || len(ids) != 1 || ids[0] != "x" {
		t.Errorf("orphans = %v, %v", ids, err)
	}

	clean := filepath.Join(filepath.Dir(path), "clean.yaml")
	if _, err := run(t, "orphans", "--clean", "-o", clean, path); err != nil {
		t.Fatalf("orphans --clean: %v", err)
	}
	f, err := flowio.Import(clean)
	if err != nil {
		t.Fatalf("import result: %v", err)
	}
	if f.Graph.HasNode("x") || f.Graph.NodeCount() != 3 {
		t.Errorf("result nodes = %v", f.Graph.NodeIDs())
	}
}

func TestPublish(t *testing.T) {
	path := setup(t, decisionFlow)
	out, err := run(t, "publish", path)
	if err != nil {
		t.Fatalf("publish: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Closed d_branch_1") {
		t.Errorf("output = %q", out)
	}

	raw, err := os.ReadFile(filepath.Join(filepath.Dir(path), "flow.publish.json"))
	if err != nil {
		t.Fatal(err)
	}
	var cfg publish.Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Metadata.NodeCount != 4 || cfg.Metadata.AutoGeneratedEndNodes != 1 || !cfg.Metadata.Validated {
		t.Errorf("metadata = %+v", cfg.Metadata)
	}
}

func TestPublishYAMLConfig(t *testing.T) {
	path := setup(t, linearFlow)
	target := filepath.Join(filepath.Dir(path), "out.yaml")
	if _, err := run(t, "publish", "-o", target, path); err != nil {
		t.Fatalf("publish: %v", err)
	}
	raw, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	var cfg publish.Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		t.Fatalf("decode: %v\n%s", err, raw)
	}
	if cfg.Version != publish.ConfigVersion || len(cfg.Nodes) != 3 {
		t.Errorf("config = %+v", cfg)
	}
}

func TestPublishBlocked(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		args []string
		want string
	}{
		{"open branch", decisionFlow, []string{"--no-auto-terminate"}, publish.CodeIncompleteBranch},
		{"cycle", cyclicFlow, nil, publish.CodeCycle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := setup(t, tt.doc)
			args := append([]string{"publish", path}, tt.args...)
			out, err := run(t, args...)
			if !errors.Is(err, ErrBlocked) {
				t.Fatalf("err = %v, want ErrBlocked", err)
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("output missing %s:\n%s", tt.want, out)
			}
			if _, err := os.Stat(filepath.Join(filepath.Dir(path), "flow.publish.json")); !os.IsNotExist(err) {
				t.Error("blocked publish wrote a config")
			}
		})
	}
}

func TestPublishConfigFile(t *testing.T) {
	path := setup(t, decisionFlow)
	cfg := filepath.Join(filepath.Dir(path), "flowgraph.toml")
	if err := os.WriteFile(cfg, []byte("[publish]\nauto_terminate = false\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, "--config", cfg, "publish", path); !errors.Is(err, ErrBlocked) {
		t.Errorf("err = %v, want ErrBlocked", err)
	}
}

func TestRenderDOT(t *testing.T) {
	path := setup(t, cyclicFlow)
	if _, err := run(t, "render", "-f", "dot", path); err != nil {
		t.Fatalf("render: %v", err)
	}
	raw, err := os.ReadFile(filepath.Join(filepath.Dir(path), "flow.dot"))
	if err != nil {
		t.Fatal(err)
	}
	dot := string(raw)
	if !strings.HasPrefix(dot, "digraph G") || !strings.Contains(dot, `"a" -> "b" [color=red];`) {
		t.Errorf("dot = %s", dot)
	}
}

func TestRenderUnknownFormat(t *testing.T) {
	_, err := run(t, "render", "-f", "gif", setup(t, linearFlow))
	if !ferrors.Is(err, ferrors.ErrCodeUnsupported) {
		t.Errorf("err = %v, want UNSUPPORTED", err)
	}
}

func TestCachePathAndClear(t *testing.T) {
	setup(t, linearFlow)
	out, err := run(t, "cache", "path")
	if err != nil {
		t.Fatal(err)
	}
	dir := strings.TrimSpace(out)
	if filepath.Base(dir) != appName {
		t.Errorf("cache path = %q", dir)
	}

	if err := os.MkdirAll(filepath.Join(dir, "ab"), 0o750); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"ab/1.json", "ab/2.json"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	out, err = run(t, "cache", "clear")
	if err != nil || !strings.Contains(out, "Cleared 2") {
		t.Errorf("clear = %q, %v", out, err)
	}
	out, err = run(t, "cache", "clear")
	if err != nil || !strings.Contains(out, "Cache is empty") {
		t.Errorf("second clear = %q, %v", out, err)
	}
}

func TestCompletion(t *testing.T) {
	out, err := run(t, "completion", "bash")
	if err != nil || !strings.Contains(out, "flowgraph") {
		t.Errorf("completion bash: %v", err)
	}
	if _, err := run(t, "completion", "tcsh"); err == nil {
		t.Error("unsupported shell should fail")
	}
}
