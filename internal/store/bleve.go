package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
)

// BleveStore implements Store on top of a Bleve full-text index, the
// alternate store.bm25_backend for deployments that prefer a pure Go
// search library over SQLite's FTS5 extension. The index mapping selects
// Bleve's BM25 scoring model, matching the cascade's scoring contract.
//
// Bleve indexes sections directly; document headers and the section_id
// counter live in a small sidecar JSON registry next to the index, since
// Bleve itself has no notion of a parent/child relational schema.
type BleveStore struct {
	mu       sync.RWMutex
	index    bleve.Index
	regPath  string
	docs     map[string]Document
	nextID   int64
	sections map[int64]Section // in-memory mirror, needed for GetSection/IterSections without re-querying bleve's stored fields
	state    map[string]string
}

var _ Store = (*BleveStore)(nil)

type bleveSectionDoc struct {
	Title    string `json:"title"`
	Keywords string `json:"keywords"`
	UseCases string `json:"use_cases"`
	Tags     string `json:"tags"`
	Content  string `json:"content"`
	DocName  string `json:"doc_name"`
}

type bleveRegistry struct {
	NextID   int64               `json:"next_id"`
	Docs     map[string]Document `json:"docs"`
	Sections map[int64]Section   `json:"sections"`
	State    map[string]string   `json:"state"`
}

// NewBleveStore opens (or creates) a Bleve-backed store rooted at dir.
func NewBleveStore(dir string) (*BleveStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	indexPath := filepath.Join(dir, "sections.bleve")
	idx, err := bleve.Open(indexPath)
	if err == bleve.ErrorIndexPathDoesNotExist {
		idx, err = bleve.New(indexPath, buildSectionMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open bleve index: %w", err)
	}

	s := &BleveStore{
		index:    idx,
		regPath:  filepath.Join(dir, "registry.json"),
		docs:     make(map[string]Document),
		sections: make(map[int64]Section),
		state:    make(map[string]string),
	}
	if err := s.loadRegistry(); err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("failed to load store registry: %w", err)
	}

	return s, nil
}

func buildSectionMapping() mapping.IndexMapping {
	textField := bleve.NewTextFieldMapping()

	section := bleve.NewDocumentMapping()
	section.AddFieldMappingsAt("title", textField)
	section.AddFieldMappingsAt("keywords", textField)
	section.AddFieldMappingsAt("use_cases", textField)
	section.AddFieldMappingsAt("tags", textField)
	section.AddFieldMappingsAt("content", textField)

	docName := bleve.NewTextFieldMapping()
	docName.Analyzer = "keyword"
	section.AddFieldMappingsAt("doc_name", docName)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = section
	m.ScoringModel = "bm25"
	return m
}

func (s *BleveStore) loadRegistry() error {
	data, err := os.ReadFile(s.regPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var reg bleveRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return fmt.Errorf("corrupt registry file: %w", err)
	}
	s.nextID = reg.NextID
	if reg.Docs != nil {
		s.docs = reg.Docs
	}
	if reg.Sections != nil {
		s.sections = reg.Sections
	}
	if reg.State != nil {
		s.state = reg.State
	}
	return nil
}

// saveRegistry persists via temp-file-then-rename so a crash mid-write
// never leaves a half-written registry on disk.
func (s *BleveStore) saveRegistry() error {
	reg := bleveRegistry{NextID: s.nextID, Docs: s.docs, Sections: s.sections, State: s.state}
	data, err := json.Marshal(reg)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.regPath)
	tmp, err := os.CreateTemp(dir, "registry-*.json.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, s.regPath)
}

func (s *BleveStore) UpsertDocument(ctx context.Context, doc Document, sections []Section) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.deleteDocumentLocked(doc.Name); err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	batch := s.index.NewBatch()
	ids := make([]int64, 0, len(sections))
	for _, sec := range sections {
		sec.DocName = doc.Name
		sec.Keywords = NormalizeFacet(sec.Keywords)
		sec.UseCases = NormalizeUseCases(sec.UseCases)
		sec.Tags = NormalizeFacet(sec.Tags)
		sec.Priority = ClampPriority(sec.Priority)
		sec.CreatedAt = now
		sec.UpdatedAt = now

		s.nextID++
		sectionID := s.nextID
		sec.SectionID = sectionID

		bdoc := bleveSectionDoc{
			Title:    sec.Title,
			Keywords: strings.Join(sec.Keywords, " "),
			UseCases: strings.Join(sec.UseCases, " "),
			Tags:     strings.Join(sec.Tags, " "),
			Content:  sec.Content,
			DocName:  sec.DocName,
		}
		if err := batch.Index(strconv.FormatInt(sectionID, 10), bdoc); err != nil {
			return nil, fmt.Errorf("failed to batch section %d: %w", sectionID, err)
		}

		s.sections[sectionID] = sec
		ids = append(ids, sectionID)
	}

	if err := s.index.Batch(batch); err != nil {
		return nil, fmt.Errorf("failed to index batch: %w", err)
	}

	doc.Sections = len(sections)
	s.docs[doc.Name] = doc

	if err := s.saveRegistry(); err != nil {
		return nil, fmt.Errorf("failed to persist registry: %w", err)
	}

	return ids, nil
}

// deleteDocumentLocked removes a document's sections from both the bleve
// index and the in-memory mirror. Caller must hold s.mu.
func (s *BleveStore) deleteDocumentLocked(name string) error {
	batch := s.index.NewBatch()
	removed := false
	for id, sec := range s.sections {
		if sec.DocName != name {
			continue
		}
		batch.Delete(strconv.FormatInt(id, 10))
		delete(s.sections, id)
		removed = true
	}
	if removed {
		if err := s.index.Batch(batch); err != nil {
			return fmt.Errorf("failed to delete existing sections for %s: %w", name, err)
		}
	}
	delete(s.docs, name)
	return nil
}

func (s *BleveStore) DeleteDocument(ctx context.Context, name string) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []int64
	for id, sec := range s.sections {
		if sec.DocName == name {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	if err := s.deleteDocumentLocked(name); err != nil {
		return nil, err
	}
	if err := s.saveRegistry(); err != nil {
		return nil, fmt.Errorf("failed to persist registry: %w", err)
	}

	return ids, nil
}

func (s *BleveStore) GetSection(ctx context.Context, sectionID int64) (*Section, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sec, ok := s.sections[sectionID]
	if !ok {
		return nil, ErrSectionNotFound{SectionID: sectionID}
	}
	secCopy := sec
	return &secCopy, nil
}

func (s *BleveStore) GetDocument(ctx context.Context, name string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[name]
	if !ok {
		return nil, ErrDocumentNotFound{Name: name}
	}
	docCopy := doc
	return &docCopy, nil
}

func (s *BleveStore) ListDocuments(ctx context.Context) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]Document, 0, len(s.docs))
	for _, d := range s.docs {
		docs = append(docs, d)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })
	return docs, nil
}

func (s *BleveStore) IterSections(ctx context.Context, fn func(Section) error) error {
	s.mu.RLock()
	ids := make([]int64, 0, len(s.sections))
	for id := range s.sections {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := s.sections[ids[i]], s.sections[ids[j]]
		if a.DocName != b.DocName {
			return a.DocName < b.DocName
		}
		return ids[i] < ids[j]
	})
	ordered := make([]Section, len(ids))
	for i, id := range ids {
		ordered[i] = s.sections[id]
	}
	s.mu.RUnlock()

	for _, sec := range ordered {
		if err := fn(sec); err != nil {
			return err
		}
	}
	return nil
}

func (s *BleveStore) SearchFTS(ctx context.Context, q string, docName string, limit int) ([]FtsCandidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trimmed := strings.TrimSpace(q)
	if trimmed == "" {
		return nil, nil
	}

	var textQuery query.Query = bleve.NewQueryStringQuery(trimmed)
	if docName != "" {
		conj := bleve.NewConjunctionQuery(textQuery, bleve.NewTermQuery(docName).SetField("doc_name"))
		textQuery = conj
	}

	req := bleve.NewSearchRequestOptions(textQuery, limit, 0, false)
	result, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bleve search failed: %w", err)
	}

	candidates := make([]FtsCandidate, 0, len(result.Hits))
	for _, hit := range result.Hits {
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			continue
		}
		sec, ok := s.sections[id]
		if !ok {
			continue
		}
		candidates = append(candidates, FtsCandidate{SectionID: id, Score: hit.Score, Priority: sec.Priority})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		return candidates[i].SectionID < candidates[j].SectionID
	})

	return candidates, nil
}

func (s *BleveStore) SectionCount(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sections), nil
}

func (s *BleveStore) GetState(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state[key], nil
}

func (s *BleveStore) SetState(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[key] = value
	return s.saveRegistry()
}

func (s *BleveStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Close()
}
