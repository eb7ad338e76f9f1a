// Package docengine exposes the cascade search engine as a single,
// explicitly constructed value: open one with New, use it, and Close it.
// There is no package-level singleton; callers that want multiple engines
// (e.g. one per data_dir in a test suite) just construct more than one.
package docengine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	cerrors "github.com/cascadedocs/cascade/internal/errors"

	"github.com/cascadedocs/cascade/internal/cascade"
	"github.com/cascadedocs/cascade/internal/config"
	"github.com/cascadedocs/cascade/internal/embed"
	"github.com/cascadedocs/cascade/internal/store"
	"github.com/cascadedocs/cascade/internal/vectorindex"
)

// SearchedSection is one retrieved section, enriched with the similarity
// score the hybrid layer assigned it (nil when the section surfaced from
// an earlier, non-hybrid layer).
type SearchedSection struct {
	SectionID       int64
	DocName         string
	Title           string
	Path            string
	URL             string
	Content         string
	Priority        int
	SimilarityScore *float64
}

// Transparency mirrors the cascade's trace record.
type Transparency struct {
	Method     string
	LatencyMS  float64
	SearchPath []string
	FromCache  bool
}

// SearchResult is the Engine.Search response.
type SearchResult struct {
	Found        bool
	Results      []SearchedSection
	Transparency Transparency
}

// ContextResult is the Engine.ShowContext response: the same retrieval as
// Search, plus an estimated token budget for the returned content.
type ContextResult struct {
	PreviewTokens int
	Results       []SearchedSection
}

// DocumentSummary is one entry of Engine.ListDocuments.
type DocumentSummary struct {
	Name        string
	DisplayName string
	Version     string
	Sections    int
}

// IngestResult is the Engine.AddDocument response.
type IngestResult struct {
	Name          string
	SectionsAdded int
}

// wireSection and wireDocument mirror the bit-exact Document JSON schema
// AddDocument accepts. Unknown fields are ignored by encoding/json; missing
// optional fields decode to their Go zero values, which store.UpsertDocument
// then normalizes (ClampPriority, NormalizeFacet/NormalizeUseCases).
type wireSection struct {
	Title    string   `json:"title"`
	Path     string   `json:"path"`
	URL      string   `json:"url"`
	Keywords []string `json:"keywords"`
	UseCases []string `json:"use_cases"`
	Tags     []string `json:"tags"`
	Priority int      `json:"priority"`
	Content  string   `json:"content"`
}

type wireDocument struct {
	Name        string        `json:"name"`
	DisplayName string        `json:"display_name"`
	Version     string        `json:"version"`
	BaseURL     string        `json:"base_url"`
	Sections    []wireSection `json:"sections"`
}

// Engine wires the Store, Embedder, VectorIndex, and Cascade together over
// one data directory.
type Engine struct {
	store    store.Store
	embedder embed.Embedder
	index    *vectorindex.Index
	cascade  *cascade.Cascade
	lock     *store.DataDirLock

	vectorPath                  string
	compactionTombstoneFraction float64
	defaultMaxResults           int
	defaultThreshold            float64
}

// New opens an Engine over cfg.DataDir, acquiring an exclusive process lock
// (skipped for an empty DataDir, e.g. an in-memory test store), opening the
// Store, and loading or rebuilding the VectorIndex.
func New(cfg *config.Config) (*Engine, error) {
	var lock *store.DataDirLock
	if cfg.DataDir != "" {
		l, err := store.AcquireLock(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire data directory lock: %w", err)
		}
		lock = l
	}

	s, err := store.NewStore(cfg.DataDir, cfg.Store.Backend, cfg.Store.SQLiteCacheMB)
	if err != nil {
		releaseLock(lock)
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	var embedder embed.Embedder
	var index *vectorindex.Index
	var vectorPath string

	if cfg.Embeddings.Enabled {
		embedder = embed.NewCachedEmbedder(embed.NewStaticEmbedder(), cfg.Embeddings.CacheCapacity)

		if cfg.DataDir != "" {
			vectorPath = filepath.Join(cfg.DataDir, "vectors")
		}

		index, err = loadOrRebuildIndex(context.Background(), s, embedder, vectorPath)
		if err != nil {
			_ = s.Close()
			releaseLock(lock)
			return nil, fmt.Errorf("failed to initialize vector index: %w", err)
		}
		if err := persistEmbedderIdentity(context.Background(), s, embedder); err != nil {
			slog.Warn("failed to persist embedder identity", slog.String("error", err.Error()))
		}
	}

	c := cascade.New(s, embedder, index, cascade.Config{
		CacheCapacity:   cfg.Cascade.CacheCapacity,
		FtsCandidateCap: cfg.Cascade.FtsCandidateCap,
		HybridAlpha:     cfg.Cascade.HybridAlpha,
		HybridThreshold: cfg.Cascade.HybridThreshold,
		MaxResults:      cfg.Cascade.MaxResults,
	})

	return &Engine{
		store:                       s,
		embedder:                    embedder,
		index:                       index,
		cascade:                     c,
		lock:                        lock,
		vectorPath:                  vectorPath,
		compactionTombstoneFraction: cfg.Store.CompactionTombstoneFraction,
		defaultMaxResults:           cfg.Cascade.MaxResults,
		defaultThreshold:            cfg.Cascade.HybridThreshold,
	}, nil
}

func releaseLock(l *store.DataDirLock) {
	if l != nil {
		_ = l.Release()
	}
}

// loadOrRebuildIndex loads a persisted VectorIndex from vectorPath when one
// exists and matches the active embedder's identity; otherwise it rebuilds
// the index from scratch by embedding every section the Store currently
// holds. A load failure (missing files, or a stale embedder identity) is
// expected on a first run or after an embedder change, so it only logs at
// debug level before rebuilding.
func loadOrRebuildIndex(ctx context.Context, s store.Store, embedder embed.Embedder, vectorPath string) (*vectorindex.Index, error) {
	if vectorPath != "" {
		if idx, err := vectorindex.Load(vectorPath, embedder.Dimensions(), embedder.ModelName()); err == nil {
			return idx, nil
		} else {
			slog.Debug("vector index not loaded, rebuilding from store", slog.String("reason", err.Error()))
		}
	}
	return rebuildIndex(ctx, s, embedder)
}

// rebuildIndex re-embeds every section in s and inserts it into a fresh
// VectorIndex. This is the fallback path after a dimension mismatch, a
// missing persisted index, or an embedder change.
func rebuildIndex(ctx context.Context, s store.Store, embedder embed.Embedder) (*vectorindex.Index, error) {
	idx := vectorindex.New(embedder.Dimensions(), embedder.ModelName())

	const batchSize = 64
	var ids []int64
	var texts []string

	flush := func() error {
		if len(texts) == 0 {
			return nil
		}
		vectors, err := embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to embed sections during rebuild: %w", err)
		}
		for i, id := range ids {
			if err := idx.Add(id, vectors[i]); err != nil {
				return fmt.Errorf("failed to add section %d to vector index: %w", id, err)
			}
		}
		ids = ids[:0]
		texts = texts[:0]
		return nil
	}

	err := s.IterSections(ctx, func(sec store.Section) error {
		ids = append(ids, sec.SectionID)
		texts = append(texts, sec.Content)
		if len(texts) >= batchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}

	return idx, nil
}

func persistEmbedderIdentity(ctx context.Context, s store.Store, embedder embed.Embedder) error {
	if err := s.SetState(ctx, store.StateKeyEmbedModel, embedder.ModelName()); err != nil {
		return err
	}
	return s.SetState(ctx, store.StateKeyEmbedDimension, fmt.Sprintf("%d", embedder.Dimensions()))
}

// Search runs query through the cascade, optionally scoped to docName.
// maxResults and threshold of 0 fall back to the engine's configured
// defaults; a positive threshold is additionally applied as a post-hoc
// similarity floor over hybrid-layer results (sections from layers 1-3
// have no similarity score and are never filtered by it). A hybrid-layer
// section whose full-text score is itself at least threshold survives
// even with a weak or absent similarity, mirroring the reranker's own
// exception so a caller-supplied threshold can't re-drop a section the
// cascade specifically kept for its BM25 strength.
func (e *Engine) Search(ctx context.Context, query string, docName string, maxResults int, threshold float64) (SearchResult, error) {
	result, err := e.cascade.Search(ctx, query, docName)
	if err != nil {
		return SearchResult{}, err
	}

	if maxResults <= 0 {
		maxResults = e.defaultMaxResults
	}
	if threshold <= 0 {
		threshold = e.defaultThreshold
	}

	sections, err := e.hydrate(ctx, result.SectionIDs)
	if err != nil {
		return SearchResult{}, err
	}

	out := filterByThreshold(sections, result.SimilarityScores, threshold)
	if maxResults > 0 && len(out) > maxResults {
		out = out[:maxResults]
	}

	return SearchResult{
		Found:   result.Found && len(out) > 0,
		Results: out,
		Transparency: Transparency{
			Method:     string(result.Method),
			LatencyMS:  result.LatencyMS,
			SearchPath: result.SearchPath,
			FromCache:  result.FromCache,
		},
	}, nil
}

// ShowContext runs the same retrieval as Search with engine defaults and
// additionally estimates a token budget for the returned content (approx
// len(content)/4, a common characters-per-token heuristic for English
// documentation prose).
func (e *Engine) ShowContext(ctx context.Context, query string, docName string) (ContextResult, error) {
	result, err := e.Search(ctx, query, docName, 0, 0)
	if err != nil {
		return ContextResult{}, err
	}

	var chars int
	for _, sec := range result.Results {
		chars += len(sec.Content)
	}

	return ContextResult{
		PreviewTokens: chars / 4,
		Results:       result.Results,
	}, nil
}

// ListDocuments returns every ingested document's headers and section count.
func (e *Engine) ListDocuments(ctx context.Context) ([]DocumentSummary, error) {
	docs, err := e.store.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]DocumentSummary, len(docs))
	for i, d := range docs {
		out[i] = DocumentSummary{
			Name:        d.Name,
			DisplayName: d.DisplayName,
			Version:     d.Version,
			Sections:    d.Sections,
		}
	}
	return out, nil
}

// AddDocument parses docJSON against the Document JSON schema and ingests
// it, replacing any existing document of the same name. When the embedder
// is enabled, new sections are embedded and added to the VectorIndex, and
// the sections the replaced document owned are tombstoned.
func (e *Engine) AddDocument(ctx context.Context, docJSON []byte) (IngestResult, error) {
	var wire wireDocument
	if err := json.Unmarshal(docJSON, &wire); err != nil {
		return IngestResult{}, cerrors.InvalidInput("invalid document JSON", err)
	}
	if wire.Name == "" {
		return IngestResult{}, cerrors.InvalidInput("document name is required", nil)
	}

	doc := store.Document{
		Name:        wire.Name,
		DisplayName: wire.DisplayName,
		Version:     wire.Version,
		BaseURL:     wire.BaseURL,
	}
	sections := make([]store.Section, len(wire.Sections))
	for i, s := range wire.Sections {
		sections[i] = store.Section{
			DocName:  wire.Name,
			Title:    s.Title,
			Path:     s.Path,
			URL:      s.URL,
			Content:  s.Content,
			Priority: s.Priority,
			Keywords: s.Keywords,
			UseCases: s.UseCases,
			Tags:     s.Tags,
		}
	}

	var staleIDs []int64
	if e.index != nil {
		var err error
		staleIDs, err = e.sectionIDsForDocument(ctx, wire.Name)
		if err != nil {
			return IngestResult{}, err
		}
	}

	ids, err := e.store.UpsertDocument(ctx, doc, sections)
	if err != nil {
		return IngestResult{}, cerrors.IngestErr("failed to ingest document", err)
	}

	if e.index != nil && e.embedder != nil {
		e.index.RemoveMany(staleIDs)
		e.embedNewSections(ctx, doc.Name, ids, sections)

		if e.compactionTombstoneFraction > 0 && e.index.TombstoneFraction() >= e.compactionTombstoneFraction {
			e.index.Compact()
		}
		if e.vectorPath != "" {
			if err := e.index.Persist(e.vectorPath); err != nil {
				slog.Warn("failed to persist vector index after ingest", slog.String("error", err.Error()))
			}
		}
	}

	return IngestResult{Name: doc.Name, SectionsAdded: len(ids)}, nil
}

// embedNewSections embeds and adds vectors for a freshly ingested document.
// A failure here never fails the ingest: the sections are already durable
// in the Store, and the hybrid layer simply treats them as if they had no
// embedding (score_hybrid falls back to the FTS term) until a later rebuild.
func (e *Engine) embedNewSections(ctx context.Context, docName string, ids []int64, sections []store.Section) {
	texts := make([]string, len(sections))
	for i, s := range sections {
		texts[i] = s.Content
	}

	vectors, err := e.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		slog.Warn("embedding failed during ingest, hybrid layer degraded for these sections",
			slog.String("doc_name", docName), slog.String("error", err.Error()))
		return
	}
	for i, id := range ids {
		if err := e.index.Add(id, vectors[i]); err != nil {
			slog.Warn("failed to add section vector", slog.Int64("section_id", id), slog.String("error", err.Error()))
		}
	}
}

// sectionIDsForDocument collects the section IDs a document currently owns,
// so AddDocument can tombstone the corresponding VectorIndex rows once the
// Store has replaced them with a fresh set of auto-assigned IDs.
func (e *Engine) sectionIDsForDocument(ctx context.Context, docName string) ([]int64, error) {
	var ids []int64
	err := e.store.IterSections(ctx, func(sec store.Section) error {
		if sec.DocName == docName {
			ids = append(ids, sec.SectionID)
		}
		return nil
	})
	return ids, err
}

func (e *Engine) hydrate(ctx context.Context, ids []int64) ([]store.Section, error) {
	sections := make([]store.Section, 0, len(ids))
	for _, id := range ids {
		sec, err := e.store.GetSection(ctx, id)
		if err != nil {
			var notFound store.ErrSectionNotFound
			if errors.As(err, &notFound) {
				continue // deleted between cascade lookup and hydration
			}
			return nil, err
		}
		sections = append(sections, *sec)
	}
	return sections, nil
}

func toSearchedSection(sec store.Section) SearchedSection {
	return SearchedSection{
		SectionID: sec.SectionID,
		DocName:   sec.DocName,
		Title:     sec.Title,
		Path:      sec.Path,
		URL:       sec.URL,
		Content:   sec.Content,
		Priority:  sec.Priority,
	}
}

// filterByThreshold applies threshold as a post-hoc similarity floor over
// sections carrying a hybrid-layer score, except a section whose full-text
// score (FtsNorm) itself clears threshold survives regardless of its
// similarity, mirroring internal/rerank's own sim-or-fts_norm exception.
// Sections with no score at all (layers 1-3) are never filtered.
func filterByThreshold(sections []store.Section, scores []cascade.SimilarityScore, threshold float64) []SearchedSection {
	simByID := make(map[int64]float64, len(scores))
	ftsNormByID := make(map[int64]float64, len(scores))
	for _, s := range scores {
		simByID[s.SectionID] = s.Score
		ftsNormByID[s.SectionID] = s.FtsNorm
	}

	out := make([]SearchedSection, 0, len(sections))
	for _, sec := range sections {
		sim, hasSim := simByID[sec.SectionID]
		if hasSim && sim < threshold && ftsNormByID[sec.SectionID] < threshold {
			continue
		}
		ss := toSearchedSection(sec)
		if hasSim {
			v := sim
			ss.SimilarityScore = &v
		}
		out = append(out, ss)
	}
	return out
}

// Close persists the VectorIndex (if enabled), closes the Store and
// Embedder, and releases the data directory lock. It is the only lifecycle
// teardown method; there is no package-level singleton to reset.
func (e *Engine) Close() error {
	var errs []error

	if e.index != nil && e.vectorPath != "" {
		if err := e.index.Persist(e.vectorPath); err != nil {
			errs = append(errs, fmt.Errorf("failed to persist vector index: %w", err))
		}
	}
	if err := e.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close store: %w", err))
	}
	if e.embedder != nil {
		if err := e.embedder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close embedder: %w", err))
		}
	}
	if e.lock != nil {
		if err := e.lock.Release(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
