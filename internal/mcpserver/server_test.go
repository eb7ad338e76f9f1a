package mcpserver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/cascadedocs/cascade/internal/config"
	"github.com/cascadedocs/cascade/pkg/docengine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wireSection struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Priority int      `json:"priority"`
	Keywords []string `json:"keywords"`
	UseCases []string `json:"use_cases"`
	Tags     []string `json:"tags"`
}

type wireDocument struct {
	Name        string        `json:"name"`
	DisplayName string        `json:"display_name"`
	Version     string        `json:"version"`
	Sections    []wireSection `json:"sections"`
}

func newTestEngine(t *testing.T) *docengine.Engine {
	t.Helper()
	cfg := config.NewConfig()
	cfg.DataDir = ""
	cfg.Embeddings.Enabled = false

	e, err := docengine.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func sampleDoc(t *testing.T) string {
	t.Helper()
	doc := wireDocument{
		Name:        "react",
		DisplayName: "React",
		Version:     "18",
		Sections: []wireSection{
			{
				Title:    "useEffect",
				Content:  "useEffect lets you synchronize a component with an external system.",
				Priority: 8,
				Keywords: []string{"useeffect", "hook"},
				UseCases: []string{"sync with external system"},
				Tags:     []string{"hooks"},
			},
		},
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	return string(data)
}

func TestNewServer_RejectsNilEngine(t *testing.T) {
	_, err := NewServer(nil)
	assert.Error(t, err)
}

func TestHandleAddDocumentThenSearchDocs_FindsIngestedSection(t *testing.T) {
	e := newTestEngine(t)
	s, err := NewServer(e)
	require.NoError(t, err)

	_, addOut, err := s.handleAddDocument(context.Background(), nil, AddDocumentInput{DocumentJSON: sampleDoc(t)})
	require.NoError(t, err)
	assert.Equal(t, "react", addOut.Name)
	assert.Equal(t, 1, addOut.SectionsAdded)

	_, searchOut, err := s.handleSearchDocs(context.Background(), nil, SearchDocsInput{Query: "useEffect"})
	require.NoError(t, err)
	assert.True(t, searchOut.Found)
	require.NotEmpty(t, searchOut.Results)
	assert.Equal(t, "useEffect", searchOut.Results[0].Title)
}

func TestHandleSearchDocs_RejectsEmptyQuery(t *testing.T) {
	e := newTestEngine(t)
	s, err := NewServer(e)
	require.NoError(t, err)

	_, _, err = s.handleSearchDocs(context.Background(), nil, SearchDocsInput{})
	assert.Error(t, err)
}

func TestHandleListDocuments_ReflectsIngestedDocuments(t *testing.T) {
	e := newTestEngine(t)
	s, err := NewServer(e)
	require.NoError(t, err)

	_, _, err = s.handleAddDocument(context.Background(), nil, AddDocumentInput{DocumentJSON: sampleDoc(t)})
	require.NoError(t, err)

	_, listOut, err := s.handleListDocuments(context.Background(), nil, ListDocumentsInput{})
	require.NoError(t, err)
	require.Len(t, listOut.Documents, 1)
	assert.Equal(t, "react", listOut.Documents[0].Name)
}

func TestHandleAddDocument_RejectsEmptyPayload(t *testing.T) {
	e := newTestEngine(t)
	s, err := NewServer(e)
	require.NoError(t, err)

	_, _, err = s.handleAddDocument(context.Background(), nil, AddDocumentInput{})
	assert.Error(t, err)
}

func TestHandleShowContext_EstimatesPreviewTokens(t *testing.T) {
	e := newTestEngine(t)
	s, err := NewServer(e)
	require.NoError(t, err)

	_, _, err = s.handleAddDocument(context.Background(), nil, AddDocumentInput{DocumentJSON: sampleDoc(t)})
	require.NoError(t, err)

	_, ctxOut, err := s.handleShowContext(context.Background(), nil, ShowContextInput{Query: "useEffect"})
	require.NoError(t, err)
	require.NotEmpty(t, ctxOut.Results)
	assert.Positive(t, ctxOut.PreviewTokens)
}
