package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigShowCmd_PrintsYAMLByDefault(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"config", "show"})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, buf.String(), "data_dir:")
}

func TestConfigShowCmd_JSONFlag(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"config", "show", "--json"})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, buf.String(), `"data_dir"`)
}

func TestConfigPathCmd_PrintsAPath(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"config", "path"})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, buf.String(), "cascade-docs")
}

func TestConfigInitCmd_WritesConfigFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"config", "init"})
	require.NoError(t, cmd.Execute())

	path := filepath.Join(home, ".config", "cascade-docs", "config.yaml")
	_, err := os.Stat(path)
	assert.NoError(t, err)
}
