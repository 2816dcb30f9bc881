package encoding

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSON(t *testing.T) {
	got, err := ParseJSON[map[string]any]([]byte(` {"a": 1, "b": "x"} `))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": float64(1), "b": "x"}, *got)

	_, err = ParseJSON[map[string]any]([]byte(`{"a": 1} {"b": 2}`))
	assert.ErrorContains(t, err, "unexpected data")

	_, err = ParseJSON[map[string]any]([]byte(`[1, 2]`))
	assert.Error(t, err)

	_, err = ParseJSON[map[string]any](nil)
	assert.Error(t, err)
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, WriteJSON(&buf, map[string]int{"b": 2, "a": 1}))
	assert.Equal(t, "{\n  \"a\": 1,\n  \"b\": 2\n}\n", buf.String())

	assert.Error(t, WriteJSON(&buf, func() {}))
}

func TestFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, EnsureDir(dir))
	assert.DirExists(t, dir)

	path := filepath.Join(dir, "f.txt")

	data, err := ReadFile(path)
	require.NoError(t, err)
	assert.Nil(t, data)
	assert.Zero(t, FileSize(path))

	require.NoError(t, os.WriteFile(path, []byte("hello"), 0600))

	data, err = ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
	assert.Equal(t, int64(5), FileSize(path))
}
