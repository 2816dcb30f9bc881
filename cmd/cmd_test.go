package cmd

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/inovacc/chatdb/internal/docstore"
	"github.com/sebdah/goldie/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// env is an isolated data directory and config file for CLI runs.
type env struct {
	dir    string
	config string
}

func newEnv(t *testing.T) *env {
	t.Helper()

	dir := t.TempDir()
	cfg := filepath.Join(dir, "config.ini")
	require.NoError(t, os.WriteFile(cfg, []byte("[log]\nlevel = error\n"), 0600))

	return &env{dir: filepath.Join(dir, "data"), config: cfg}
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}

	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)

	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func (e *env) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	root := GetRootCmd()
	resetFlags(root)

	var out bytes.Buffer

	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--config", e.config, "--data-dir", e.dir}, args...))

	err := root.Execute()

	return out.String(), err
}

func (e *env) mustRun(t *testing.T, args ...string) string {
	t.Helper()

	out, err := e.run(t, "", args...)
	require.NoError(t, err)

	return out
}

func golden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestSchema(t *testing.T) {
	e := newEnv(t)

	golden(t).Assert(t, "schema", []byte(e.mustRun(t, "schema")))
}

func TestInsertAndQuery(t *testing.T) {
	for _, backend := range []string{"bolt", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			e := newEnv(t)
			b := "--backend=" + backend

			out := e.mustRun(t, b, "insert", `{"sequenceId":1,"link":"a","messageType":"text"}`)
			assert.JSONEq(t, `{"key":1,"exists":false}`, out)

			out = e.mustRun(t, b, "insert", `{"sequenceId":1,"link":"z","messageType":"text"}`)
			assert.JSONEq(t, `{"key":1,"exists":true}`, out)

			out = e.mustRun(t, b, "insert", `{"link":"b","messageType":"image","body":"hi"}`)
			assert.JSONEq(t, `{"key":2,"exists":false}`, out)

			golden(t).Assert(t, "all", []byte(e.mustRun(t, b, "all")))

			out = e.mustRun(t, b, "get", "2")
			assert.JSONEq(t, `{"sequenceId":2,"link":"b","messageType":"image","body":"hi"}`, out)

			assert.Equal(t, "null\n", e.mustRun(t, b, "get", "3"))

			out = e.mustRun(t, b, "find", "link", "a")
			assert.JSONEq(t, `{"sequenceId":1,"link":"a","messageType":"text"}`, out)

			out = e.mustRun(t, b, "scan", "messageType", "image")
			assert.JSONEq(t, `[{"sequenceId":2,"link":"b","messageType":"image","body":"hi"}]`, out)

			assert.Equal(t, "[]\n", e.mustRun(t, b, "scan", "link", "zzz"))
		})
	}
}

func TestInsertFromStdin(t *testing.T) {
	e := newEnv(t)

	out, err := e.run(t, `[{"link":"x","messageType":"text"},{"link":"y","messageType":"text"}]`, "insert", "-")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"key":1,"exists":false},{"key":2,"exists":false}]`, out)

	_, err = e.run(t, "", "insert")
	assert.ErrorContains(t, err, "no record given")

	_, err = e.run(t, "{not json", "insert")
	assert.Error(t, err)
}

func TestInsertFromFile(t *testing.T) {
	e := newEnv(t)

	path := filepath.Join(t.TempDir(), "msg.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"sequenceId":"abc","link":"l"}`), 0600))

	out := e.mustRun(t, "insert", "--file", path)
	assert.JSONEq(t, `{"key":"abc","exists":false}`, out)

	out = e.mustRun(t, "--string-key", "get", "abc")
	assert.JSONEq(t, `{"sequenceId":"abc","link":"l"}`, out)
}

func TestScanPaged(t *testing.T) {
	e := newEnv(t)

	for n := 0; n < 5; n++ {
		e.mustRun(t, "insert", `{"link":"p","messageType":"text"}`)
	}

	out := e.mustRun(t, "scan", "link", "p", "--page-size", "2", "--page", "3")
	assert.JSONEq(t, `[{"sequenceId":5,"link":"p","messageType":"text"}]`, out)

	out = e.mustRun(t, "scan", "link", "p", "--page-size", "2", "--page", "4")
	assert.Equal(t, "[]\n", out)

	// without --page-size every match is printed
	out = e.mustRun(t, "scan", "link", "p")
	assert.Equal(t, 5, strings.Count(out, `"sequenceId"`))

	_, err := e.run(t, "", "scan", "link", "p", "--page", "2")
	assert.ErrorContains(t, err, "--page requires --page-size")
}

func TestUpdateAndDelete(t *testing.T) {
	e := newEnv(t)

	e.mustRun(t, "insert", `{"sequenceId":1,"link":"a","messageType":"text"}`)

	_, err := e.run(t, `{"link":"c","messageType":"text"}`, "update", "1", "-")
	require.NoError(t, err)

	out := e.mustRun(t, "get", "1")
	assert.JSONEq(t, `{"sequenceId":1,"link":"c","messageType":"text"}`, out)

	_, err = e.run(t, "", "update", "1", `{"sequenceId":2}`)
	require.ErrorIs(t, err, docstore.ErrData)

	e.mustRun(t, "insert", `{"sequenceId":2,"link":"c","messageType":"text"}`)

	out = e.mustRun(t, "delete-by", "link", "c")
	assert.JSONEq(t, `{"deleted":2}`, out)

	e.mustRun(t, "insert", `{"sequenceId":3,"link":"d","messageType":"text"}`)
	e.mustRun(t, "delete", "3")
	e.mustRun(t, "delete", "3")

	assert.Equal(t, "[]\n", e.mustRun(t, "all"))
}

func TestOpenVersionsAndDrop(t *testing.T) {
	e := newEnv(t)

	out := e.mustRun(t, "--db", "history", "--db-version", "2", "open")
	assert.Contains(t, out, `"version": 2`)
	assert.Contains(t, out, `"singleChat"`)

	_, err := e.run(t, "", "--db", "history", "--db-version", "1", "open")
	require.ErrorIs(t, err, docstore.ErrVersion)

	out = e.mustRun(t, "--db", "history", "drop")
	assert.JSONEq(t, `{"dropped":"history"}`, out)

	matches, err := filepath.Glob(filepath.Join(e.dir, "history*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestInfo(t *testing.T) {
	e := newEnv(t)

	out := e.mustRun(t, "info")
	assert.Contains(t, out, "No databases.")

	e.mustRun(t, "insert", `{"link":"a"}`)
	e.mustRun(t, "insert", `{"link":"b"}`)

	out = e.mustRun(t, "info")
	assert.Contains(t, out, "Data directory: "+e.dir)
	assert.Contains(t, out, "NAME")
	assert.Regexp(t, `chat\.db\s+1\s+2\s+\d`, out)
}

func TestVersion(t *testing.T) {
	out, err := (&env{}).run(t, "", "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "chatdb "))
}

func TestParseKey(t *testing.T) {
	t.Cleanup(func() { flagStringKey = false })

	tests := []struct {
		in        string
		stringKey bool
		want      any
	}{
		{"1", false, float64(1)},
		{"-2.5", false, -2.5},
		{"abc", false, "abc"},
		{"NaN", false, "NaN"},
		{"Inf", false, "Inf"},
		{"1", true, "1"},
	}

	for _, tt := range tests {
		flagStringKey = tt.stringKey
		assert.Equal(t, tt.want, parseKey(tt.in), tt.in)
	}
}

func TestConfigInit(t *testing.T) {
	e := newEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "chatdb.ini")

	out := e.mustRun(t, "--backend", "sqlite", "config", "init", path)
	assert.Equal(t, "Wrote "+path+"\n", out)
	assert.FileExists(t, path)

	out = e.mustRun(t, "--config", path, "info")
	assert.Contains(t, out, "Backend:        sqlite")
	assert.Contains(t, out, "Config:         "+path)

	_, err := e.run(t, "", "config", "init", path)
	assert.ErrorContains(t, err, "exists")

	e.mustRun(t, "config", "init", "--force", path)
	out = e.mustRun(t, "--config", path, "info")
	assert.Contains(t, out, "Backend:        bolt")
}
