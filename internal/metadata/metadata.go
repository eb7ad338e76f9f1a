// Package metadata implements the cascade's second query layer: a
// token-wise structured match against each section's keyword, use-case,
// and tag facets. It runs before any full-text or vector work and is
// deliberately cheap: a map lookup per query token per section.
package metadata

import (
	"context"
	"sort"

	"github.com/cascadedocs/cascade/internal/store"
)

// DefaultStopWords filters common English function words out of a query
// before facet matching, so "how do I use hooks" is matched on "use" and
// "hooks" only, rather than diluting the hit count with "how", "do", "i".
// Grounded on the teacher's FilterStopWords/BuildStopWordMap shape, with a
// natural-language list substituted for its code-identifier stop words.
var DefaultStopWords = BuildStopWordMap([]string{
	"a", "an", "the", "is", "are", "was", "were", "be", "been", "being",
	"do", "does", "did", "i", "you", "he", "she", "it", "we", "they",
	"how", "what", "when", "where", "why", "which", "who", "to", "of",
	"in", "on", "for", "with", "and", "or", "but", "as", "at", "by",
	"from", "this", "that", "these", "those", "can", "could", "should",
	"would", "will", "shall", "may", "might", "must",
})

// BuildStopWordMap converts a stop-word slice into a set for O(1) lookups.
func BuildStopWordMap(words []string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// FilterStopWords removes tokens present in stopWords.
func FilterStopWords(tokens []string, stopWords map[string]struct{}) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, isStop := stopWords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Scoring weights from the cascade's metadata-layer contract:
// score = 3*|Q ∩ keywords| + 2*|Q ∩ use_cases_tokens| + 1*|Q ∩ tags| + 0.1*priority.
const (
	weightKeyword = 3.0
	weightUseCase = 2.0
	weightTag     = 1.0
	weightPriority = 0.1
)

// Candidate is one scored section from Search.
type Candidate struct {
	SectionID    int64
	Score        float64
	Priority     int
	WeightedHits float64 // keyword+use_case+tag contribution, excluding priority
	KeywordHits  int
}

// Searcher implements the metadata layer over a Store.
type Searcher struct {
	store      store.Store
	stopWords  map[string]struct{}
	maxResults int
}

// New builds a metadata Searcher. maxResults caps the candidate list
// returned by Search (spec default: 5).
func New(s store.Store, maxResults int) *Searcher {
	if maxResults <= 0 {
		maxResults = 5
	}
	return &Searcher{store: s, stopWords: DefaultStopWords, maxResults: maxResults}
}

// Result is the outcome of a metadata search: the ranked candidate list
// and whether the layer declares a "hit" under the cascade's threshold
// policy.
type Result struct {
	Candidates []Candidate
	Hit        bool
}

// Search tokenizes query, scores every section in docName (all documents
// if docName is ""), and returns the top maxResults candidates plus the
// layer's hit/miss verdict.
//
// A hit requires at least one candidate with weighted hit count >= 2, or
// at least one candidate with a keyword hit — this keeps a single
// incidental tag match from short-circuiting the higher-recall layers
// beneath this one.
func (s *Searcher) Search(ctx context.Context, query string, docName string) (Result, error) {
	tokens := FilterStopWords(store.Tokenize(query), s.stopWords)
	if len(tokens) == 0 {
		return Result{}, nil
	}
	queryTokens := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		queryTokens[t] = struct{}{}
	}

	var candidates []Candidate
	err := s.store.IterSections(ctx, func(sec store.Section) error {
		if docName != "" && sec.DocName != docName {
			return nil
		}

		keywordHits := intersectCount(queryTokens, sec.Keywords)
		useCaseHits := intersectCount(queryTokens, useCaseTokens(sec.UseCases))
		tagHits := intersectCount(queryTokens, sec.Tags)

		weighted := weightKeyword*float64(keywordHits) + weightUseCase*float64(useCaseHits) + weightTag*float64(tagHits)
		if weighted < 1 {
			return nil
		}

		candidates = append(candidates, Candidate{
			SectionID:    sec.SectionID,
			Score:        weighted + weightPriority*float64(sec.Priority),
			Priority:     sec.Priority,
			WeightedHits: weighted,
			KeywordHits:  keywordHits,
		})
		return nil
	})
	if err != nil {
		return Result{}, err
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

	hit := false
	for _, c := range candidates {
		if c.WeightedHits >= 2 || c.KeywordHits >= 1 {
			hit = true
			break
		}
	}

	if len(candidates) > s.maxResults {
		candidates = candidates[:s.maxResults]
	}

	return Result{Candidates: candidates, Hit: hit}, nil
}

// useCaseTokens tokenizes and flattens a section's ordered use-case
// phrases into the union of their tokens, per the scoring contract.
func useCaseTokens(useCases []string) []string {
	var tokens []string
	for _, phrase := range useCases {
		tokens = append(tokens, store.Tokenize(phrase)...)
	}
	return tokens
}

func intersectCount(queryTokens map[string]struct{}, facet []string) int {
	count := 0
	for _, f := range facet {
		if _, ok := queryTokens[f]; ok {
			count++
		}
	}
	return count
}
