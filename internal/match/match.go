// Package match scores duplicate candidates for an entity. All matching is
// advisory and read-only; nothing here mutates the graph.
package match

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/tamihq/tami-graph/internal/disambig"
	"github.com/tamihq/tami-graph/internal/embedder"
	"github.com/tamihq/tami-graph/internal/graph"
	"github.com/tamihq/tami-graph/internal/metrics"
	"github.com/tamihq/tami-graph/internal/models"
)

const (
	defaultThreshold  = 0.7
	defaultMaxResults = 5
	maxResultsCeiling = 100

	// ambiguousCeiling bounds the score band [threshold, ambiguousCeiling)
	// in which the disambiguation judge is consulted.
	ambiguousCeiling = 0.9

	// lexicalWeight blends the string score with the embedding score when
	// an embedder is configured.
	lexicalWeight  = 0.6
	semanticWeight = 0.4
)

// Options controls a duplicate scan. Unset fields fall back to the
// matcher's defaults; out-of-range values are clamped rather than
// rejected. Threshold is a pointer so an explicit 0, which is inside the
// valid range, is distinguishable from "not given".
type Options struct {
	Threshold     *float64
	MaxResults    int
	SkipExpensive bool
}

// Float is a convenience for setting Options.Threshold explicitly.
func Float(v float64) *float64 { return &v }

// Defaults are the scan parameters used where a request leaves an option
// unset. The zero value selects the package defaults.
type Defaults struct {
	Threshold     float64
	MaxResults    int
	SkipExpensive bool
}

// scanParams is a fully resolved, clamped set of scan parameters.
type scanParams struct {
	threshold     float64
	maxResults    int
	skipExpensive bool
}

// resolve fills unset options from the defaults and clamps Threshold to
// [0,1] and MaxResults to [1,100]. A request asking to skip expensive
// matching always skips; a default of skip cannot be overridden per
// request, since it exists to cap spend.
func (o Options) resolve(d Defaults) scanParams {
	p := scanParams{
		threshold:     d.Threshold,
		maxResults:    d.MaxResults,
		skipExpensive: d.SkipExpensive || o.SkipExpensive,
	}
	if o.Threshold != nil {
		p.threshold = *o.Threshold
	}
	if o.MaxResults != 0 {
		p.maxResults = o.MaxResults
	}
	if p.threshold < 0 {
		p.threshold = 0
	}
	if p.threshold > 1 {
		p.threshold = 1
	}
	if p.maxResults < 1 {
		p.maxResults = 1
	}
	if p.maxResults > maxResultsCeiling {
		p.maxResults = maxResultsCeiling
	}
	return p
}

// Matcher finds likely duplicates of an entity among same-category,
// same-owner candidates. The embedder and judge are optional; when nil the
// matcher falls back to lexical scoring alone.
type Matcher struct {
	store    graph.Store
	embedder embedder.Embedder
	judge    disambig.Judge
	defaults Defaults
	logger   *slog.Logger
}

// NewMatcher creates a matcher over the given store with the package
// default scan parameters. embed and judge may be nil to disable semantic
// scoring and LLM disambiguation respectively.
func NewMatcher(store graph.Store, embed embedder.Embedder, judge disambig.Judge, logger *slog.Logger) *Matcher {
	return NewMatcherWithDefaults(store, embed, judge, Defaults{}, logger)
}

// NewMatcherWithDefaults creates a matcher whose unset per-request options
// fall back to d, typically loaded from configuration. Zero fields of d
// select the package defaults.
func NewMatcherWithDefaults(store graph.Store, embed embedder.Embedder, judge disambig.Judge, d Defaults, logger *slog.Logger) *Matcher {
	if d.Threshold == 0 {
		d.Threshold = defaultThreshold
	}
	if d.MaxResults == 0 {
		d.MaxResults = defaultMaxResults
	}
	return &Matcher{
		store:    store,
		embedder: embed,
		judge:    judge,
		defaults: d,
		logger:   logger,
	}
}

// FindDuplicates returns ranked duplicate candidates for the entity with the
// given id. Candidates are drawn from the owner's entities of the same
// category, the source itself excluded.
func (m *Matcher) FindDuplicates(ctx context.Context, owner, id string, opts Options) ([]models.MatchCandidate, error) {
	params := opts.resolve(m.defaults)

	source, err := m.store.GetEntity(ctx, owner, id)
	if err != nil {
		return nil, err
	}

	pool, err := m.store.ListCandidates(ctx, owner, source.Category, source.ID)
	if err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		return nil, nil
	}

	sourceVec := m.embedText(ctx, source.DisplayValue)

	candidates := make([]models.MatchCandidate, 0, len(pool))
	for i := range pool {
		cand := pool[i]
		score, method := m.score(ctx, source, &cand, sourceVec)
		if score < params.threshold {
			continue
		}

		reason := fmt.Sprintf("name similarity %.2f", score)

		// Scores in the ambiguous band get a second opinion from the
		// disambiguation judge unless expensive matching is disabled.
		if !params.skipExpensive && m.judge != nil && score < ambiguousCeiling {
			metrics.Inc(metrics.DisambigCalls)
			same, judgeReason, judgeErr := m.judge.SameEntity(ctx, *source, cand)
			if judgeErr != nil {
				m.logger.Warn("disambiguation failed, keeping lexical score",
					"source_id", source.ID, "candidate_id", cand.ID, "error", judgeErr)
			} else if same {
				score = ambiguousCeiling
				if method == models.MethodLexical {
					method = models.MethodLLM
				} else {
					method = models.MethodCombined
				}
				if judgeReason != "" {
					reason = judgeReason
				}
			} else {
				m.logger.Debug("disambiguation rejected candidate",
					"source_id", source.ID, "candidate_id", cand.ID, "reason", judgeReason)
				continue
			}
		}

		candidates = append(candidates, models.MatchCandidate{
			Entity: cand,
			Score:  score,
			Method: method,
			Reason: reason,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > params.maxResults {
		candidates = candidates[:params.maxResults]
	}

	m.logger.Debug("duplicate scan complete",
		"source_id", source.ID, "pool", len(pool), "matches", len(candidates))
	return candidates, nil
}

// score produces a [0,1] similarity for a candidate and the method that
// produced it.
func (m *Matcher) score(ctx context.Context, source *models.Entity, cand *models.Entity, sourceVec []float32) (float64, models.MatchMethod) {
	lex := lexicalScore(source, cand)

	if sourceVec == nil {
		return lex, models.MethodLexical
	}
	candVec := m.embedText(ctx, cand.DisplayValue)
	if candVec == nil {
		return lex, models.MethodLexical
	}

	sem := cosineSimilarity(sourceVec, candVec)
	blended := lexicalWeight*lex + semanticWeight*sem
	return clampUnit(blended), models.MethodCombined
}

// embedText returns nil when no embedder is configured or embedding fails;
// semantic scoring then degrades to lexical-only.
func (m *Matcher) embedText(ctx context.Context, text string) []float32 {
	if m.embedder == nil {
		return nil
	}
	vec, err := m.embedder.Embed(ctx, text)
	if err != nil {
		m.logger.Warn("embedding failed, falling back to lexical scoring", "error", err)
		return nil
	}
	return vec
}

// lexicalScore compares normalized values and aliases. An exact normalized
// match or alias hit scores 1.0; otherwise a bigram Dice coefficient over
// the normalized values is used.
func lexicalScore(a, b *models.Entity) float64 {
	if a.NormalizedValue != "" && a.NormalizedValue == b.NormalizedValue {
		return 1.0
	}
	if aliasHit(a, b.NormalizedValue) || aliasHit(b, a.NormalizedValue) {
		return 1.0
	}
	return diceCoefficient(a.NormalizedValue, b.NormalizedValue)
}

// aliasHit reports whether value matches any of e's aliases after
// normalization.
func aliasHit(e *models.Entity, value string) bool {
	if value == "" {
		return false
	}
	for _, alias := range e.Aliases {
		if models.NormalizeValue(alias) == value {
			return true
		}
	}
	return false
}

// diceCoefficient computes the Sorensen-Dice coefficient over character
// bigrams. Returns a value in [0,1].
func diceCoefficient(a, b string) float64 {
	if a == b {
		if a == "" {
			return 0
		}
		return 1.0
	}
	ba := bigrams(a)
	bb := bigrams(b)
	if len(ba) == 0 || len(bb) == 0 {
		return 0
	}

	var overlap int
	for gram, count := range ba {
		if other, ok := bb[gram]; ok {
			overlap += min(count, other)
		}
	}
	total := 0
	for _, c := range ba {
		total += c
	}
	for _, c := range bb {
		total += c
	}
	return 2.0 * float64(overlap) / float64(total)
}

// bigrams counts the character bigrams of s, whitespace excluded.
func bigrams(s string) map[string]int {
	runes := []rune(strings.Join(strings.Fields(s), " "))
	grams := make(map[string]int)
	for i := 0; i+1 < len(runes); i++ {
		grams[string(runes[i:i+2])]++
	}
	return grams
}

// cosineSimilarity returns the cosine of the angle between two vectors,
// mapped from [-1,1] to [0,1]. Mismatched or zero vectors score 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return clampUnit((cos + 1) / 2)
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
