package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDocJSON = `{
  "name": "react",
  "display_name": "React",
  "version": "18",
  "sections": [
    {
      "title": "useEffect",
      "content": "useEffect lets you synchronize a component with an external system.",
      "priority": 8,
      "keywords": ["useeffect", "hook"],
      "use_cases": ["sync with external system"],
      "tags": ["hooks"]
    }
  ]
}`

func writeSampleDoc(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "react.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleDocJSON), 0o644))
	return path
}

func TestSearchCmd_ShowsHelp(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"search", "--help"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "search")
}

func TestIngestThenSearch_FindsIngestedSection(t *testing.T) {
	dataDir := t.TempDir()
	docsDir := t.TempDir()
	docPath := writeSampleDoc(t, docsDir)

	ingestCmd := NewRootCmd()
	ingestCmd.SetArgs([]string{"--data-dir", dataDir, "ingest", docPath})
	require.NoError(t, ingestCmd.Execute())

	searchCmd := NewRootCmd()
	buf := new(bytes.Buffer)
	searchCmd.SetOut(buf)
	searchCmd.SetArgs([]string{"--data-dir", dataDir, "search", "useEffect"})
	require.NoError(t, searchCmd.Execute())

	assert.Contains(t, buf.String(), "useEffect")
}

func TestSearchCmd_JSONFormat(t *testing.T) {
	dataDir := t.TempDir()
	docsDir := t.TempDir()
	docPath := writeSampleDoc(t, docsDir)

	ingestCmd := NewRootCmd()
	ingestCmd.SetArgs([]string{"--data-dir", dataDir, "ingest", docPath})
	require.NoError(t, ingestCmd.Execute())

	searchCmd := NewRootCmd()
	buf := new(bytes.Buffer)
	searchCmd.SetOut(buf)
	searchCmd.SetArgs([]string{"--data-dir", dataDir, "search", "useEffect", "--format", "json"})
	require.NoError(t, searchCmd.Execute())

	assert.Contains(t, buf.String(), `"found"`)
}
