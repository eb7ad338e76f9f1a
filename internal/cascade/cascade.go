// Package cascade orchestrates the four-layer short-circuit search
// pipeline: QueryCache, MetadataSearcher, FtsSearcher, and HybridReranker.
// It is the one place that knows the layer order and the hit/miss policy
// that decides how far a query travels down the cascade.
package cascade

import (
	"context"
	"sync"
	"time"

	cerrors "github.com/cascadedocs/cascade/internal/errors"
	"github.com/cascadedocs/cascade/internal/fts"
	"github.com/cascadedocs/cascade/internal/metadata"
	"github.com/cascadedocs/cascade/internal/rerank"
	"github.com/cascadedocs/cascade/internal/store"
	"github.com/cascadedocs/cascade/internal/vectorindex"

	"github.com/cascadedocs/cascade/internal/cache"
	"github.com/cascadedocs/cascade/internal/embed"

	"log/slog"
)

// Method identifies which layer produced a result.
type Method string

const (
	MethodCache    Method = "cache"
	MethodMetadata Method = "metadata"
	MethodFTS      Method = "fts"
	MethodHybrid   Method = "hybrid_rerank"
	MethodMiss     Method = "miss"
	MethodTimeout  Method = "timeout"
)

// SimilarityScore pairs a section with the similarity and normalized
// full-text scores the hybrid layer computed for it, exposed for
// transparency and so callers re-applying a threshold can honor the same
// "strong full-text score survives a weak similarity" exception the
// reranker itself applies.
type SimilarityScore struct {
	SectionID int64
	Score     float64
	FtsNorm   float64
}

// Result is what a Search call returns: the ranked section IDs plus a
// transparency record describing how the cascade produced them.
type Result struct {
	Found            bool
	SectionIDs       []int64
	Method           Method
	LatencyMS        float64
	SearchPath       []string
	FromCache        bool
	SimilarityScores []SimilarityScore
}

// Cascade wires the four layers together over a shared Store.
type Cascade struct {
	store    store.Store
	embedder embed.Embedder
	index    *vectorindex.Index
	cache    *cache.Cache
	meta     *metadata.Searcher
	fts      *fts.Searcher
	rerank   *rerank.Reranker

	degradeOnce sync.Once
}

// Config bundles the tunables a Cascade needs, mirroring the cascade.*
// config group.
type Config struct {
	CacheCapacity   int
	FtsCandidateCap int
	HybridAlpha     float64
	HybridThreshold float64
	MaxResults      int
}

// New builds a Cascade over s, optionally backed by an Embedder and
// VectorIndex (either may be nil, in which case the hybrid layer is
// always skipped).
func New(s store.Store, embedder embed.Embedder, index *vectorindex.Index, cfg Config) *Cascade {
	return &Cascade{
		store:    s,
		embedder: embedder,
		index:    index,
		cache:    cache.New(cfg.CacheCapacity),
		meta:     metadata.New(s, cfg.MaxResults),
		fts:      fts.New(s, cfg.FtsCandidateCap),
		rerank:   rerank.New(index, cfg.HybridAlpha, cfg.HybridThreshold, cfg.MaxResults),
	}
}

// cachedResult is what's stored in the QueryCache: enough to reconstruct a
// transparency record without re-running the cascade.
type cachedResult struct {
	sectionIDs       []int64
	similarityScores []SimilarityScore
}

// Search runs query (optionally scoped to docName) through the cascade,
// stopping at the first layer whose result is a hit. ctx's deadline, if
// any, is checked between layers; on expiry Search returns MethodTimeout
// with the trace of layers attempted and discards partial work.
func (c *Cascade) Search(ctx context.Context, query string, docName string) (Result, error) {
	start := time.Now()

	if err := ctx.Err(); err != nil {
		return Result{Method: MethodTimeout, LatencyMS: ms(start)}, nil
	}

	// Layer 1: cache.
	key := cache.Key(query, docName)
	entry, ok := c.cache.Get(key, func(e cache.Entry) bool { return c.sectionsLive(ctx, e.SectionIDs) })
	if ok {
		cached := entry.Value.(cachedResult)
		return Result{
			Found:            true,
			SectionIDs:       cached.sectionIDs,
			Method:           MethodCache,
			LatencyMS:        ms(start),
			SearchPath:       []string{"cache_hit"},
			FromCache:        true,
			SimilarityScores: cached.similarityScores,
		}, nil
	}

	// Layers 2-4 run behind a singleflight group keyed on the normalized
	// query, so a cache stampede of identical concurrent queries runs the
	// pipeline once and shares the result instead of recomputing it N times.
	v, err, _ := c.cache.Do(key, func() (any, error) {
		return c.searchUncached(ctx, query, docName, key)
	})
	if err != nil {
		return Result{}, err
	}
	result := v.(Result)
	result.LatencyMS = ms(start)
	return result, nil
}

func ms(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}

// searchUncached runs layers 2-4 of the cascade (metadata, fts, hybrid
// rerank) for a query that missed the cache. Cache.Do invokes this at most
// once per batch of concurrent callers sharing the same key.
func (c *Cascade) searchUncached(ctx context.Context, query, docName, key string) (Result, error) {
	path := []string{"cache_miss"}

	finish := func(method Method, ids []int64, sims []SimilarityScore) Result {
		return Result{
			Found:            method != MethodMiss && method != MethodTimeout,
			SectionIDs:       ids,
			Method:           method,
			SearchPath:       path,
			SimilarityScores: sims,
		}
	}

	if err := ctx.Err(); err != nil {
		return finish(MethodTimeout, nil, nil), nil
	}

	// Layer 2: metadata.
	metaResult, err := c.meta.Search(ctx, query, docName)
	if err != nil {
		return Result{}, cerrors.StoreErr("metadata search failed", err)
	}
	if metaResult.Hit {
		path = append(path, "metadata_hit")
		ids := candidateIDs(metaResult.Candidates)
		c.cachePut(key, ids, nil)
		return finish(MethodMetadata, ids, nil), nil
	}
	path = append(path, "metadata_miss")

	if err := ctx.Err(); err != nil {
		return finish(MethodTimeout, nil, nil), nil
	}

	// Layer 3: full text.
	ftsResult, err := c.fts.Search(ctx, query, docName)
	if err != nil {
		return Result{}, cerrors.StoreErr("full-text search failed", err)
	}
	if len(ftsResult.Candidates) == 0 {
		path = append(path, "fts_miss")
		c.cachePut(key, nil, nil)
		return finish(MethodMiss, nil, nil), nil
	}

	embedderUp := c.embedder != nil && c.embedder.Available(ctx)
	if ftsResult.Hit && !embedderUp {
		c.degradeOnce.Do(func() {
			slog.Warn("embedder_unavailable_degrading_to_fts_only")
		})
		path = append(path, "embedder_unavailable", "fts_hit")
		ids := ftsCandidateIDs(ftsResult.Candidates)
		c.cachePut(key, ids, nil)
		return finish(MethodFTS, ids, nil), nil
	}

	if err := ctx.Err(); err != nil {
		return finish(MethodTimeout, nil, nil), nil
	}

	// Layer 4: hybrid rerank.
	if !embedderUp {
		path = append(path, "embedder_unavailable", "hybrid_empty")
		c.cachePut(key, nil, nil)
		return finish(MethodMiss, nil, nil), nil
	}

	queryVector, err := c.embedder.Embed(ctx, query)
	if err != nil {
		c.degradeOnce.Do(func() {
			slog.Warn("embedder_invocation_failed_degrading_to_fts_only", slog.String("error", err.Error()))
		})
		path = append(path, "embedder_unavailable", "fts_hit")
		ids := ftsCandidateIDs(ftsResult.Candidates)
		c.cachePut(key, ids, nil)
		return finish(MethodFTS, ids, nil), nil
	}

	outcome, err := c.rerank.Rerank(ctx, queryVector, ftsResult.Candidates)
	if err != nil {
		return Result{}, cerrors.StoreErr("hybrid rerank failed", err)
	}
	if outcome.Miss || len(outcome.Results) == 0 {
		path = append(path, "hybrid_empty")
		c.cachePut(key, nil, nil)
		return finish(MethodMiss, nil, nil), nil
	}

	path = append(path, "hybrid_rerank")
	ids := make([]int64, len(outcome.Results))
	sims := make([]SimilarityScore, len(outcome.Results))
	for i, r := range outcome.Results {
		ids[i] = r.SectionID
		sims[i] = SimilarityScore{SectionID: r.SectionID, Score: r.Sim, FtsNorm: r.FtsNorm}
	}
	c.cachePut(key, ids, sims)

	return finish(MethodHybrid, ids, sims), nil
}

// cachePut caches a non-miss result. A miss (nil ids) is deliberately not
// cached: a subsequent ingest could make the same query a hit, and a
// cached miss would otherwise shadow it until eviction.
func (c *Cascade) cachePut(key string, ids []int64, sims []SimilarityScore) {
	if len(ids) == 0 {
		return
	}
	c.cache.Put(key, cache.Entry{SectionIDs: ids, Value: cachedResult{sectionIDs: ids, similarityScores: sims}})
}

func (c *Cascade) sectionsLive(ctx context.Context, ids []int64) bool {
	for _, id := range ids {
		if _, err := c.store.GetSection(ctx, id); err != nil {
			return false
		}
	}
	return true
}

func candidateIDs(candidates []metadata.Candidate) []int64 {
	ids := make([]int64, len(candidates))
	for i, c := range candidates {
		ids[i] = c.SectionID
	}
	return ids
}

func ftsCandidateIDs(candidates []fts.Candidate) []int64 {
	ids := make([]int64, len(candidates))
	for i, c := range candidates {
		ids[i] = c.SectionID
	}
	return ids
}
