package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// workspace is a config and data directory pair for one test.
type workspace struct {
	configDir string
	dataDir   string
}

func newWorkspace(t *testing.T) workspace {
	t.Helper()
	root := t.TempDir()
	w := workspace{
		configDir: filepath.Join(root, "config"),
		dataDir:   filepath.Join(root, "data"),
	}
	for _, env := range []string{"DOCMODEL_BACKEND", "DOCMODEL_SYNC", "DOCMODEL_SCHEMA", "DOCMODEL_DATA_DIR", "DOCMODEL_METRICS_FILE"} {
		t.Setenv(env, "")
	}
	return w
}

// docmodel runs the CLI in-process and returns stdout, stderr and the exit
// code.
func (w workspace) docmodel(t *testing.T, args ...string) (string, string, int) {
	t.Helper()
	root := NewRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	all := append([]string{"--config-dir", w.configDir, "--data-dir", w.dataDir}, args...)
	code := run(root, all, &stderr)
	return stdout.String(), stderr.String(), code
}

// ok runs the CLI and requires success.
func (w workspace) ok(t *testing.T, args ...string) string {
	t.Helper()
	out, errOut, code := w.docmodel(t, args...)
	require.Equal(t, exitSuccess, code, "docmodel %v: %s", args, errOut)
	return out
}

func lines(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func TestVersion(t *testing.T) {
	w := newWorkspace(t)
	out := w.ok(t, "version")
	assert.Contains(t, out, "docmodel v"+Version)
	assert.Contains(t, out, modulePath)
}

func TestInitWritesConfigAndSchema(t *testing.T) {
	w := newWorkspace(t)
	out := w.ok(t, "init")
	assert.Contains(t, out, "docmodel initialized")

	for _, name := range []string{"config.yaml", "schema.yaml"} {
		_, err := os.Stat(filepath.Join(w.configDir, name))
		assert.NoError(t, err, name)
	}
	_, err := os.Stat(filepath.Join(w.dataDir, "docmodel.db"))
	assert.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(w.configDir, "schema.yaml"), []byte("documents: []\n"), 0o644))
	w.ok(t, "init")
	data, err := os.ReadFile(filepath.Join(w.configDir, "schema.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "documents: []\n", string(data), "init keeps existing files")
}

func TestModels(t *testing.T) {
	w := newWorkspace(t)
	w.ok(t, "init")
	out := w.ok(t, "models")
	assert.Contains(t, out, "Author (embedded)")
	assert.Contains(t, out, "Post (collection posts)")
	assert.Contains(t, out, "  id: objectid as _id")
	assert.Contains(t, out, "  author: embedded:Author")
}

func TestQueryAndModify(t *testing.T) {
	w := newWorkspace(t)
	w.ok(t, "init")

	w.ok(t, "insert", "Post", `{"title":"hello","tags":["go"]}`)
	w.ok(t, "insert", "Post", `{"title":"world","hits":5,"author":{"name":"ann"}}`)

	assert.Equal(t, "2\n", w.ok(t, "count", "Post"))
	assert.Equal(t, "1\n", w.ok(t, "count", "Post", "--where", "hits>=5"))
	assert.Equal(t, "1\n", w.ok(t, "count", "Post", "--where", "author.name=ann"))

	out := w.ok(t, "inc", "Post", "hits=2")
	assert.Equal(t, "matched 2, modified 2\n", out)

	out = w.ok(t, "find", "Post", "--sort", "hits:desc")
	got := lines(out)
	require.Len(t, got, 2)
	assert.Contains(t, got[0], `"title":"world"`)
	assert.Contains(t, got[0], `"hits":7`)
	assert.Contains(t, got[1], `"hits":2`)

	out = w.ok(t, "find", "Post", "--sort", "title", "--limit", "1", "--offset", "1")
	got = lines(out)
	require.Len(t, got, 1)
	assert.Contains(t, got[0], `"title":"world"`)

	w.ok(t, "push", "Post", "tags=db", "--where", "title=hello")
	w.ok(t, "add-to-set", "Post", "tags=go", "--where", "title=hello")
	assert.Equal(t, "1\n", w.ok(t, "count", "Post", "--where", `tags:in=["db"]`))

	w.ok(t, "shift", "Post", "tags", "--where", "title=hello")
	out = w.ok(t, "find", "Post", "--where", "title=hello")
	assert.Contains(t, out, `"tags":["db"]`)

	w.ok(t, "set", "Post", "title=renamed", "--where", "title=hello")
	assert.Equal(t, "1\n", w.ok(t, "count", "Post", "--where", "title=renamed"))

	w.ok(t, "unset", "Post", "author")
	assert.Equal(t, "0\n", w.ok(t, "count", "Post", "--where", "author:exists=true"))

	_, _, code := w.docmodel(t, "remove", "Post")
	assert.Equal(t, exitUserError, code, "remove needs --where or --all")
	assert.Equal(t, "removed 1\n", w.ok(t, "remove", "Post", "--where", "hits=7"))
	assert.Equal(t, "1\n", w.ok(t, "count", "Post"))
}

func TestWhereTypecastsValues(t *testing.T) {
	w := newWorkspace(t)
	w.ok(t, "init")
	w.ok(t, "insert", "Post", `{"title":"2024","hits":5}`)

	tests := []struct {
		name  string
		where string
		want  string
	}{
		{"number for a string field", "title=2024", "1\n"},
		{"string for an integer field", `hits="5"`, "1\n"},
		{"range with a string bound", `hits>="4"`, "1\n"},
		{"list elements", `title:in=[2024,2025]`, "1\n"},
		{"scalar for in", "hits:in=5", "1\n"},
		{"miss", "title=2025", "0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, w.ok(t, "count", "Post", "--where", tt.where))
		})
	}

	_, _, code := w.docmodel(t, "count", "Post", "--where", `hits:in=["x"]`)
	assert.Equal(t, exitUserError, code)
}

func TestPersistsBetweenRuns(t *testing.T) {
	w := newWorkspace(t)
	w.ok(t, "init")
	w.ok(t, "insert", "Post", `{"title":"kept"}`)

	data, err := os.ReadFile(filepath.Join(w.dataDir, "posts.jsonl"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "kept")
	assert.Equal(t, "1\n", w.ok(t, "count", "Post", "--where", "title=kept"))
}

func TestExitCodes(t *testing.T) {
	w := newWorkspace(t)
	w.ok(t, "init")

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"unknown command", []string{"frobnicate"}, exitUserError},
		{"unknown flag", []string{"count", "Post", "--bogus"}, exitUserError},
		{"missing args", []string{"find"}, exitUserError},
		{"unknown model", []string{"count", "Comment"}, exitUserError},
		{"embedded model", []string{"count", "Author"}, exitUserError},
		{"bad condition", []string{"count", "Post", "--where", "hits"}, exitUserError},
		{"typecast failure", []string{"count", "Post", "--where", "hits=abc"}, exitUserError},
		{"bad modifier payload", []string{"inc", "Post", "hits=abc"}, exitUserError},
		{"bad insert", []string{"insert", "Post", "[1]"}, exitUserError},
		{"unknown backend", []string{"count", "Post", "--backend", "redis"}, exitUserError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errOut, code := w.docmodel(t, tt.args...)
			assert.Equal(t, tt.want, code)
			assert.Contains(t, errOut, "docmodel:")
		})
	}
}

func TestMetricsFile(t *testing.T) {
	w := newWorkspace(t)
	w.ok(t, "init")
	w.ok(t, "insert", "Post", `{"title":"a"}`)

	path := filepath.Join(t.TempDir(), "docmodel.prom")
	w.ok(t, "inc", "Post", "hits=1", "--metrics-file", path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `docmodel_modifier_updates_total{collection="posts",operator="$inc",status="ok"} 1`)
}

func TestConfigFileSettings(t *testing.T) {
	w := newWorkspace(t)
	require.NoError(t, os.MkdirAll(w.configDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(w.configDir, "config.yaml"), []byte("backend: sqlite\nsync: on_close\nschema: models.yaml\nlog:\n  level: error\n"), 0o644))

	cfg, err := loadSettings(w.configDir, w.dataDir, NewRootCmd().PersistentFlags())
	require.NoError(t, err)
	assert.Equal(t, "on_close", cfg.Sync)
	assert.Equal(t, filepath.Join(w.configDir, "models.yaml"), cfg.SchemaPath)
	assert.Equal(t, "error", cfg.LogLevel)
	assert.Equal(t, w.dataDir, cfg.DataDir)

	t.Setenv("DOCMODEL_SYNC", "immediate")
	cfg, err = loadSettings(w.configDir, w.dataDir, NewRootCmd().PersistentFlags())
	require.NoError(t, err)
	assert.Equal(t, "immediate", cfg.Sync, "environment overrides the file")
}
