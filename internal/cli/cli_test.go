package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/specialistvlad/liveresolver/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const totals = `
resolver "sum" "totals" {
  node "a" { input = 1 }
  node "b" { input = [node.a, 2.5] }
}
`

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := Execute(context.Background(), args, Streams{In: strings.NewReader(""), Out: &out, Err: &errOut})
	return out.String(), errOut.String(), err
}

func writeFile(t *testing.T, name, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestExecute_Help(t *testing.T) {
	out, _, err := execute(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "Usage:")
	assert.Contains(t, out, "resolve")
	assert.Contains(t, out, "worker")
}

func TestExecute_UsageErrors(t *testing.T) {
	snapshot := writeFile(t, "totals.hcl", totals)

	testCases := []struct {
		name    string
		args    []string
		wantMsg string
	}{
		{
			name:    "unknown flag",
			args:    []string{"resolve", "--no-such-flag", snapshot},
			wantMsg: "unknown flag: --no-such-flag",
		},
		{
			name:    "resolve without paths",
			args:    []string{"resolve"},
			wantMsg: "requires at least 1 arg",
		},
		{
			name:    "bad format",
			args:    []string{"resolve", "--format", "xml", snapshot},
			wantMsg: `invalid format "xml"`,
		},
		{
			name:    "bad set",
			args:    []string{"resolve", "--set", "a", snapshot},
			wantMsg: "expected NODE=JSON",
		},
		{
			name:    "bad set json",
			args:    []string{"resolve", "--set", "a={", snapshot},
			wantMsg: "failed to decode value",
		},
		{
			name:    "bad log level",
			args:    []string{"resolve", "--log-level", "loud", snapshot},
			wantMsg: `invalid log level "loud"`,
		},
		{
			name:    "worker takes no args",
			args:    []string{"worker", "extra"},
			wantMsg: "unknown command",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := execute(t, tc.args...)
			require.Error(t, err)
			assert.Equal(t, 2, ExitCode(err))
			assert.Contains(t, Message(err), tc.wantMsg)
		})
	}
}

func TestResolve_Text(t *testing.T) {
	snapshot := writeFile(t, "totals.hcl", totals)

	out, _, err := execute(t, "resolve", snapshot)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"RESOLVER", "NODE", "STATUS", "OUTPUT"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"totals", "a", "resolved", "1"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"totals", "b", "resolved", "3.5"}, strings.Fields(lines[2]))
}

func TestResolve_JSONWithEdits(t *testing.T) {
	snapshot := writeFile(t, "totals.hcl", totals)

	out, _, err := execute(t, "resolve", "--format", "json",
		"--set", `a=10`, "--set", `c={"$ref":"b"}`, snapshot)
	require.NoError(t, err)

	var docs []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, "totals", docs[0]["resolverId"])

	nodes := docs[0]["nodes"].([]any)
	got := map[string]any{}
	for _, n := range nodes {
		node := n.(map[string]any)
		got[node["nodeId"].(string)] = node["output"]
	}
	assert.Equal(t, map[string]any{"a": 10.0, "b": 12.5, "c": 12.5}, got)
}

func TestResolve_YAML(t *testing.T) {
	snapshot := writeFile(t, "totals.hcl", totals)

	out, _, err := execute(t, "resolve", "--format", "yaml", "--delete", "a", snapshot)
	require.NoError(t, err)
	assert.Contains(t, out, "output: 2.5")

	var docs []resultDoc
	require.NoError(t, yaml.Unmarshal([]byte(out), &docs))
	require.Len(t, docs, 1)
	require.Len(t, docs[0].Nodes, 1)
	assert.Equal(t, "b", docs[0].Nodes[0].NodeID)
}

func TestResolve_FailedNodesExitNonZero(t *testing.T) {
	snapshot := writeFile(t, "cycle.hcl", `
resolver "sum" "loop" {
  node "a" { input = node.b }
  node "b" { input = node.a }
}
`)

	out, _, err := execute(t, "resolve", snapshot)
	require.Error(t, err)
	assert.Equal(t, 3, ExitCode(err))
	assert.Contains(t, out, "failed")
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	path := writeFile(t, "liveresolver.hcl", `
log_level       = "warn"
max_concurrency = 4
listen          = "0.0.0.0:9000"
`)

	root := NewRootCommand(Streams{})
	cmd, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)
	require.NoError(t, cmd.ParseFlags([]string{"--config", path, "--max-concurrency", "8"}))

	flags := &globalFlags{}
	flags.configPath = path
	flags.maxConcurrency = 8
	cfg, err := loadConfig(cmd, flags, config.TransportSocketIO)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 8, cfg.MaxConcurrency)
	assert.Equal(t, "0.0.0.0:9000", cfg.Listen)
	assert.Equal(t, config.TransportSocketIO, cfg.Transport)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(assert.AnError))
	assert.Equal(t, 2, ExitCode(&ExitError{Code: 2, Message: "usage"}))
	assert.Equal(t, "Error: "+assert.AnError.Error(), Message(assert.AnError))
}
