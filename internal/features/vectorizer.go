// Visey Recommender - Hybrid Content Recommendation Service
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package features turns profiles and resources into fixed-width numeric
// vectors using the hashing trick, so content similarity needs no vocabulary
// and no training.
//
// Each token is hashed twice with xxHash: one hash picks the bucket, a
// salted second hash picks the sign. The signed accumulation keeps colliding
// tokens from systematically inflating a bucket. Vectorization is
// deterministic and order-independent: the same token multiset always
// produces the same vector.
package features

import (
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"github.com/visey/recommender/internal/models"
)

// signSalt perturbs the second hash so bucket and sign are independent.
const signSalt = "\x00sign"

// Vectorizer hashes token multisets into fixed-width vectors.
type Vectorizer struct {
	width int
}

// NewVectorizer creates a vectorizer with the given vector width.
func NewVectorizer(width int) *Vectorizer {
	return &Vectorizer{width: width}
}

// Width returns the vector width.
func (v *Vectorizer) Width() int { return v.width }

// Vectorize maps a token multiset to a signed bucket-count vector.
func (v *Vectorizer) Vectorize(tokens []string) []float64 {
	vec := make([]float64, v.width)
	for _, tok := range tokens {
		if tok == "" {
			continue
		}
		bucket := xxhash.Sum64String(tok) % uint64(v.width)
		if xxhash.Sum64String(tok+signSalt)&1 == 0 {
			vec[bucket]++
		} else {
			vec[bucket]--
		}
	}
	return vec
}

// Cosine returns the cosine similarity of two vectors, or 0 when either has
// zero norm. Vectors of different lengths compare over the shorter prefix.
func Cosine(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// ProfileTokens extracts the token multiset of a user profile: categorical
// attributes as key=value tokens plus free-text words from the bio.
func ProfileTokens(p *models.UserProfile) []string {
	var tokens []string
	appendAttr := func(key, val string) {
		val = normalize(val)
		if val != "" {
			tokens = append(tokens, key+"="+val)
		}
	}
	appendAttr("industry", p.Industry)
	appendAttr("stage", p.Stage)
	appendAttr("team_size", p.TeamSize)
	appendAttr("funding", p.Funding)
	appendAttr("location", p.Location)
	for _, w := range Tokenize(p.Bio) {
		tokens = append(tokens, "word:"+w)
	}
	return tokens
}

// ResourceTokens extracts the token multiset of a resource: taxonomy terms
// as key=value tokens plus title and excerpt words. termNames resolves term
// IDs to names and may be nil; unresolved IDs still tokenize by ID so two
// resources sharing a term always share a token.
func ResourceTokens(r *models.Resource, termNames map[int]string) []string {
	var tokens []string

	appendTerms := func(key string, ids []int, names []string) {
		seen := map[string]bool{}
		for _, name := range names {
			name = normalize(name)
			if name != "" && !seen[name] {
				seen[name] = true
				tokens = append(tokens, key+"="+name)
			}
		}
		for _, id := range ids {
			name := normalize(termNames[id])
			if name == "" {
				name = "#" + strconv.Itoa(id)
			}
			if !seen[name] {
				seen[name] = true
				tokens = append(tokens, key+"="+name)
			}
		}
	}
	appendTerms("category", r.Categories, r.CategoryNames)
	appendTerms("tag", r.Tags, r.TagNames)

	for _, w := range Tokenize(r.Title) {
		tokens = append(tokens, "word:"+w)
	}
	for _, w := range Tokenize(r.Excerpt) {
		tokens = append(tokens, "word:"+w)
	}
	return tokens
}

// HistoryTokens extracts title and excerpt words from resources the user
// already interacted with, so past reading shapes the user's content vector
// alongside the declared profile attributes.
func HistoryTokens(history []models.Resource) []string {
	var tokens []string
	for i := range history {
		for _, w := range Tokenize(history[i].Title) {
			tokens = append(tokens, "word:"+w)
		}
		for _, w := range Tokenize(history[i].Excerpt) {
			tokens = append(tokens, "word:"+w)
		}
	}
	return tokens
}

// stopwords are high-frequency words that carry no topical signal.
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true,
	"this": true, "from": true, "are": true, "was": true, "you": true,
	"your": true, "have": true, "has": true, "how": true, "what": true,
	"when": true, "why": true, "can": true, "will": true, "not": true,
	"all": true, "our": true, "its": true, "about": true, "into": true,
}

// Tokenize lowercases text and splits it into alphanumeric words of at
// least three characters, dropping stopwords.
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) >= 3 && !stopwords[f] {
			out = append(out, f)
		}
	}
	return out
}

// normalize lowercases and trims an attribute value and collapses inner
// whitespace to single dashes so values hash consistently.
func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	return strings.Join(strings.Fields(s), "-")
}
