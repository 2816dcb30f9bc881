package application

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectories(t *testing.T) {
	dir, err := GetApplicationDirectory()
	require.NoError(t, err)
	assert.Equal(t, AppName, filepath.Base(dir))

	data, err := GetDataDirectory()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "data"), data)

	cfg, err := GetConfigFile()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ConfigFileName), cfg)
}
