// Visey Recommender - Hybrid Content Recommendation Service
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package recommend implements hybrid recommendation scoring and the
// request-serving orchestrator on top of it.
//
// The engine blends four signals per candidate resource:
//
//	final = Wc*content + Wl*collab + Wp*popularity + We*embedding
//
// content    cosine similarity of the hashed user and resource vectors; the
//            user vector combines profile attributes with words from the
//            titles and excerpts of past interacted resources
// collab     max Jaccard overlap between the candidate's audience and the
//            audiences of resources the user already interacted with
// popularity interaction count with a rating boost, normalized across the
//            candidate set
// embedding  cosine similarity of semantic embeddings (optional backend)
//
// Every signal degrades to 0 when its inputs are missing, so a cold-start
// user still receives content and popularity driven rankings.
package recommend

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/visey/recommender/internal/config"
	"github.com/visey/recommender/internal/embeddings"
	"github.com/visey/recommender/internal/features"
	"github.com/visey/recommender/internal/feedback"
	"github.com/visey/recommender/internal/logging"
	"github.com/visey/recommender/internal/models"
)

// Engine computes hybrid scores over a candidate set.
type Engine struct {
	cfg        config.ScoringConfig
	vectorizer *features.Vectorizer
	encoder    embeddings.Encoder // nil disables the embedding signal
}

// NewEngine builds a scoring engine. encoder may be nil.
func NewEngine(cfg config.ScoringConfig, encoder embeddings.Encoder) *Engine {
	return &Engine{
		cfg:        cfg,
		vectorizer: features.NewVectorizer(cfg.VectorWidth),
		encoder:    encoder,
	}
}

// ScoreInput carries everything one scoring pass needs. Candidates are
// expected in ascending ID order; the ordering is preserved for equal
// scores.
type ScoreInput struct {
	Profile    *models.UserProfile
	Candidates []models.Resource

	// TermNames resolves taxonomy term IDs to names for tokenization.
	TermNames map[int]string

	// Interactions are the requesting user's own feedback rows.
	Interactions []models.Interaction

	// History holds the resources behind those interactions, where still
	// cached. Their title and excerpt words enrich the user's content
	// vector.
	History []models.Resource

	// UsersByResource maps each resource to the users who interacted with
	// it, across the whole feedback store.
	UsersByResource map[int][]int

	// Popularity holds per-resource interaction aggregates.
	Popularity map[int]feedback.Popularity
}

// Score ranks the candidates and returns the top n recommendations, ordered
// by descending score with ascending resource ID breaking ties.
func (e *Engine) Score(ctx context.Context, in ScoreInput, n int) []models.Recommendation {
	if len(in.Candidates) == 0 {
		return nil
	}

	userTokens := append(features.ProfileTokens(in.Profile), features.HistoryTokens(in.History)...)
	profileVec := e.vectorizer.Vectorize(userTokens)
	popNorm := e.popularityNorm(in.Candidates, in.Popularity)
	embScores := e.embeddingScores(ctx, in)

	recs := make([]models.Recommendation, 0, len(in.Candidates))
	for i := range in.Candidates {
		r := &in.Candidates[i]

		content := clampPositive(features.Cosine(profileVec,
			e.vectorizer.Vectorize(features.ResourceTokens(r, in.TermNames))))
		collab := e.collabScore(r.ID, in)
		popularity := e.normalizedPopularity(r.ID, in.Popularity, popNorm)
		embedding := 0.0
		if embScores != nil {
			embedding = embScores[i]
		}

		weighted := [4]float64{
			e.cfg.ContentWeight * content,
			e.cfg.CollabWeight * collab,
			e.cfg.PopularityWeight * popularity,
			e.cfg.EmbeddingWeight * embedding,
		}
		score := weighted[0] + weighted[1] + weighted[2] + weighted[3]

		recs = append(recs, models.Recommendation{
			ResourceID: r.ID,
			Title:      r.Title,
			Link:       r.Link,
			Score:      score,
			Reason:     candidateReason(in.Profile, r, weighted),
		})
	}

	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		return recs[i].ResourceID < recs[j].ResourceID
	})

	if n > 0 && len(recs) > n {
		recs = recs[:n]
	}
	return recs
}

// collabScore is the maximum Jaccard similarity between the candidate's
// audience and the audience of any resource the user interacted with. A
// user with no interaction history scores 0 everywhere, and a candidate the
// user already interacted with scores 0: its overlap carries no new signal.
func (e *Engine) collabScore(candidateID int, in ScoreInput) float64 {
	if len(in.Interactions) == 0 {
		return 0
	}
	for _, own := range in.Interactions {
		if own.ResourceID == candidateID {
			return 0
		}
	}
	candidateUsers := in.UsersByResource[candidateID]
	if len(candidateUsers) == 0 {
		return 0
	}

	best := 0.0
	for _, own := range in.Interactions {
		if j := jaccard(candidateUsers, in.UsersByResource[own.ResourceID]); j > best {
			best = j
		}
	}
	return best
}

// embeddingScores returns the per-candidate embedding similarity, or nil
// when the signal is disabled or the backend failed. Backend failures only
// degrade the ranking, never the request.
func (e *Engine) embeddingScores(ctx context.Context, in ScoreInput) []float64 {
	if e.encoder == nil || e.cfg.EmbeddingWeight <= 0 {
		return nil
	}

	texts := make([]string, 0, len(in.Candidates)+1)
	texts = append(texts, profileText(in.Profile))
	for i := range in.Candidates {
		texts = append(texts, resourceText(&in.Candidates[i]))
	}

	vecs, err := e.encoder.Encode(ctx, texts)
	if err != nil {
		logging.Warn().Err(err).Msg("embedding backend failed, scoring without embedding signal")
		return nil
	}

	scores := make([]float64, len(in.Candidates))
	for i := range scores {
		scores[i] = clampPositive(features.Cosine(vecs[0], vecs[i+1]))
	}
	return scores
}

// popularityNorm finds the maximum raw popularity across the candidate set,
// for normalization into [0, 1].
func (e *Engine) popularityNorm(candidates []models.Resource, pop map[int]feedback.Popularity) float64 {
	maxRaw := 0.0
	for i := range candidates {
		if raw := e.rawPopularity(candidates[i].ID, pop); raw > maxRaw {
			maxRaw = raw
		}
	}
	return maxRaw
}

func (e *Engine) normalizedPopularity(id int, pop map[int]feedback.Popularity, norm float64) float64 {
	if norm == 0 {
		return 0
	}
	return e.rawPopularity(id, pop) / norm
}

// rawPopularity is the interaction count plus the configured boost times the
// centered average rating, floored at 0. Resources without rated feedback
// get the bare count.
func (e *Engine) rawPopularity(id int, pop map[int]feedback.Popularity) float64 {
	p, ok := pop[id]
	if !ok {
		return 0
	}
	raw := float64(p.Count)
	if p.RatingCount > 0 {
		raw += e.cfg.RatingBoost * (p.AvgRating - 3)
	}
	return clampPositive(raw)
}

// jaccard computes |a∩b| / |a∪b| over two sorted ID slices.
func jaccard(a, b []int) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var inter int
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			inter++
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// candidateReason picks the explanation for one candidate. A categorical
// attribute shared by the profile and the resource outranks every
// signal-derived explanation.
func candidateReason(p *models.UserProfile, r *models.Resource, weighted [4]float64) string {
	if reason, ok := attributeReason(p, r); ok {
		return reason
	}
	return reasonFor(weighted)
}

// attributeReason looks for one of the profile's categorical attributes in
// the resource's metadata or term names.
func attributeReason(p *models.UserProfile, r *models.Resource) (string, bool) {
	if p == nil {
		return "", false
	}
	haystack := strings.ToLower(attributeText(r))
	if haystack == "" {
		return "", false
	}
	match := func(v string) bool {
		v = strings.ToLower(strings.TrimSpace(v))
		return v != "" && strings.Contains(haystack, v)
	}
	switch {
	case match(p.Industry):
		return "Matches your industry", true
	case match(p.Stage):
		return "Relevant to your startup stage", true
	case match(p.Location):
		return "Relevant to your region", true
	}
	return "", false
}

// attributeText flattens the resource's metadata values and term names into
// one searchable string.
func attributeText(r *models.Resource) string {
	var sb strings.Builder
	for _, v := range r.Meta {
		fmt.Fprintf(&sb, "%v ", v)
	}
	for _, n := range r.CategoryNames {
		sb.WriteString(n)
		sb.WriteByte(' ')
	}
	for _, n := range r.TagNames {
		sb.WriteString(n)
		sb.WriteByte(' ')
	}
	return sb.String()
}

// reasonFor picks the explanation of the dominant weighted term. Earlier
// signals win ties so content beats collaboration beats popularity.
func reasonFor(weighted [4]float64) string {
	reasons := [4]string{
		"Matches your profile and interests",
		"Users similar to you engaged with this",
		"Popular with the community",
		"Semantically related to your profile",
	}
	bestIdx := -1
	best := 0.0
	for i, w := range weighted {
		if w > best {
			best = w
			bestIdx = i
		}
	}
	if bestIdx < 0 {
		return "Recommended for you"
	}
	return reasons[bestIdx]
}

func clampPositive(x float64) float64 {
	if x < 0 {
		return 0
	}
	return x
}

// profileText builds the free-text rendering of a profile for the embedding
// backend.
func profileText(p *models.UserProfile) string {
	parts := make([]string, 0, 6)
	for _, s := range []string{p.Industry, p.Stage, p.TeamSize, p.Funding, p.Location, p.Bio} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

func resourceText(r *models.Resource) string {
	parts := make([]string, 0, 2)
	for _, s := range []string{r.Title, r.Excerpt} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}
