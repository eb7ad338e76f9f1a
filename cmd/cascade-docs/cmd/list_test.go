package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListCmd_ReflectsIngestedDocuments(t *testing.T) {
	dataDir := t.TempDir()
	docsDir := t.TempDir()
	docPath := writeSampleDoc(t, docsDir)

	ingestCmd := NewRootCmd()
	ingestCmd.SetArgs([]string{"--data-dir", dataDir, "ingest", docPath})
	require.NoError(t, ingestCmd.Execute())

	listCmd := NewRootCmd()
	buf := new(bytes.Buffer)
	listCmd.SetOut(buf)
	listCmd.SetArgs([]string{"--data-dir", dataDir, "list"})
	require.NoError(t, listCmd.Execute())

	assert.Contains(t, buf.String(), "react")
}

func TestListCmd_EmptyStoreReportsNoDocuments(t *testing.T) {
	dataDir := t.TempDir()

	listCmd := NewRootCmd()
	buf := new(bytes.Buffer)
	listCmd.SetOut(buf)
	listCmd.SetArgs([]string{"--data-dir", dataDir, "list"})
	require.NoError(t, listCmd.Execute())

	assert.Contains(t, buf.String(), "No documents")
}
