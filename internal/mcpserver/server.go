// Package mcpserver exposes a docengine.Engine over the Model Context
// Protocol as four tools: search_docs, show_context, list_documents, and
// add_document.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/cascadedocs/cascade/pkg/docengine"
	"github.com/cascadedocs/cascade/pkg/version"
)

// Server bridges an MCP client to a docengine.Engine.
type Server struct {
	mcp    *mcp.Server
	engine *docengine.Engine
	logger *slog.Logger
}

// SearchDocsInput is the search_docs tool's input schema.
type SearchDocsInput struct {
	Query      string  `json:"query" jsonschema:"the natural-language query to search for"`
	DocName    string  `json:"doc_name,omitempty" jsonschema:"restrict the search to one document by name"`
	MaxResults int     `json:"max_results,omitempty" jsonschema:"maximum number of sections to return, default 5"`
	Threshold  float64 `json:"threshold,omitempty" jsonschema:"minimum similarity score a hybrid-layer result must clear"`
}

// SearchDocsOutput is the search_docs tool's output schema.
type SearchDocsOutput struct {
	Found      bool            `json:"found"`
	Results    []SectionOutput `json:"results"`
	Method     string          `json:"method" jsonschema:"which cascade layer produced these results"`
	LatencyMS  float64         `json:"latency_ms"`
	SearchPath []string        `json:"search_path" jsonschema:"the sequence of cascade layers tried"`
	FromCache  bool            `json:"from_cache"`
}

// SectionOutput is one retrieved section.
type SectionOutput struct {
	DocName         string   `json:"doc_name"`
	Title           string   `json:"title"`
	Path            string   `json:"path"`
	URL             string   `json:"url,omitempty"`
	Content         string   `json:"content"`
	Priority        int      `json:"priority"`
	SimilarityScore *float64 `json:"similarity_score,omitempty"`
}

// ShowContextInput is the show_context tool's input schema.
type ShowContextInput struct {
	Query   string `json:"query" jsonschema:"the natural-language query to search for"`
	DocName string `json:"doc_name,omitempty" jsonschema:"restrict the search to one document by name"`
}

// ShowContextOutput is the show_context tool's output schema.
type ShowContextOutput struct {
	PreviewTokens int             `json:"preview_tokens" jsonschema:"estimated token count of the returned content"`
	Results       []SectionOutput `json:"results"`
}

// ListDocumentsInput is the list_documents tool's input schema (empty; no
// filters are defined by the Document model).
type ListDocumentsInput struct{}

// ListDocumentsOutput is the list_documents tool's output schema.
type ListDocumentsOutput struct {
	Documents []DocumentOutput `json:"documents"`
}

// DocumentOutput is one ingested document's header.
type DocumentOutput struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Version     string `json:"version"`
	Sections    int    `json:"sections"`
}

// AddDocumentInput is the add_document tool's input schema. DocumentJSON
// carries the bit-exact Document JSON schema as a raw string so the MCP
// input schema does not need to mirror its nested shape.
type AddDocumentInput struct {
	DocumentJSON string `json:"document_json" jsonschema:"the document to ingest, as a JSON object matching the Document schema"`
}

// AddDocumentOutput is the add_document tool's output schema.
type AddDocumentOutput struct {
	Name          string `json:"name"`
	SectionsAdded int    `json:"sections_added"`
}

// NewServer wraps engine as an MCP server. The caller owns engine's
// lifecycle; Close does not close it.
func NewServer(engine *docengine.Engine) (*Server, error) {
	if engine == nil {
		return nil, errors.New("engine is required")
	}

	s := &Server{
		engine: engine,
		logger: slog.Default(),
	}

	s.mcp = mcp.NewServer(&mcp.Implementation{
		Name:    "cascade-docs",
		Version: version.Version,
	}, nil)

	s.registerTools()
	return s, nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_docs",
		Description: "Search ingested documentation by meaning and keyword. Runs the cascade's cache, metadata, full-text, and hybrid-rerank layers in order and stops at the first confident match.",
	}, s.handleSearchDocs)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "show_context",
		Description: "Like search_docs, but also estimates a token budget for the returned content so a caller can decide how much to paste into its own context window.",
	}, s.handleShowContext)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_documents",
		Description: "List every ingested document and its section count.",
	}, s.handleListDocuments)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "add_document",
		Description: "Ingest or replace a document. Re-ingesting a document by name replaces its previous sections entirely.",
	}, s.handleAddDocument)
}

func (s *Server) handleSearchDocs(ctx context.Context, _ *mcp.CallToolRequest, input SearchDocsInput) (*mcp.CallToolResult, SearchDocsOutput, error) {
	if input.Query == "" {
		return nil, SearchDocsOutput{}, errors.New("query is required")
	}

	result, err := s.engine.Search(ctx, input.Query, input.DocName, input.MaxResults, input.Threshold)
	if err != nil {
		return nil, SearchDocsOutput{}, err
	}

	return nil, SearchDocsOutput{
		Found:      result.Found,
		Results:    toSectionOutputs(result.Results),
		Method:     result.Transparency.Method,
		LatencyMS:  result.Transparency.LatencyMS,
		SearchPath: result.Transparency.SearchPath,
		FromCache:  result.Transparency.FromCache,
	}, nil
}

func (s *Server) handleShowContext(ctx context.Context, _ *mcp.CallToolRequest, input ShowContextInput) (*mcp.CallToolResult, ShowContextOutput, error) {
	if input.Query == "" {
		return nil, ShowContextOutput{}, errors.New("query is required")
	}

	result, err := s.engine.ShowContext(ctx, input.Query, input.DocName)
	if err != nil {
		return nil, ShowContextOutput{}, err
	}

	return nil, ShowContextOutput{
		PreviewTokens: result.PreviewTokens,
		Results:       toSectionOutputs(result.Results),
	}, nil
}

func (s *Server) handleListDocuments(ctx context.Context, _ *mcp.CallToolRequest, _ ListDocumentsInput) (*mcp.CallToolResult, ListDocumentsOutput, error) {
	docs, err := s.engine.ListDocuments(ctx)
	if err != nil {
		return nil, ListDocumentsOutput{}, err
	}

	out := make([]DocumentOutput, len(docs))
	for i, d := range docs {
		out[i] = DocumentOutput{
			Name:        d.Name,
			DisplayName: d.DisplayName,
			Version:     d.Version,
			Sections:    d.Sections,
		}
	}
	return nil, ListDocumentsOutput{Documents: out}, nil
}

func (s *Server) handleAddDocument(ctx context.Context, _ *mcp.CallToolRequest, input AddDocumentInput) (*mcp.CallToolResult, AddDocumentOutput, error) {
	if input.DocumentJSON == "" {
		return nil, AddDocumentOutput{}, errors.New("document_json is required")
	}

	result, err := s.engine.AddDocument(ctx, []byte(input.DocumentJSON))
	if err != nil {
		return nil, AddDocumentOutput{}, err
	}

	return nil, AddDocumentOutput{Name: result.Name, SectionsAdded: result.SectionsAdded}, nil
}

func toSectionOutputs(sections []docengine.SearchedSection) []SectionOutput {
	out := make([]SectionOutput, len(sections))
	for i, s := range sections {
		out[i] = SectionOutput{
			DocName:         s.DocName,
			Title:           s.Title,
			Path:            s.Path,
			URL:             s.URL,
			Content:         s.Content,
			Priority:        s.Priority,
			SimilarityScore: s.SimilarityScore,
		}
	}
	return out
}

// Serve runs the server until ctx is canceled. Only the "stdio" transport
// is implemented; any other value is a configuration error, surfaced the
// same way the teacher's MCP server surfaces an unsupported transport.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("starting MCP server", slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("MCP server stopped")
		return nil
	default:
		return fmt.Errorf("unsupported transport: %s (supported: stdio)", transport)
	}
}
