// Visey Recommender - Hybrid Content Recommendation Service
// SPDX-License-Identifier: AGPL-3.0-or-later

package platform

import (
	"strings"
	"time"

	"github.com/visey/recommender/internal/models"
)

// wpTimeLayout is the platform's local-time timestamp format. The API also
// emits *_gmt variants; we parse the local form and fall back to RFC 3339.
const wpTimeLayout = "2006-01-02T15:04:05"

func parseWPTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(wpTimeLayout, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}

// rendered is the platform's {"rendered": "..."} wrapper for HTML fields.
type rendered struct {
	Rendered string `json:"rendered"`
}

// wireUser mirrors the platform's user payload. Profile attributes live in
// the meta mapping and are optional.
type wireUser struct {
	ID          int            `json:"id"`
	Name        string         `json:"name"`
	Email       string         `json:"email"`
	Description string         `json:"description"`
	Registered  string         `json:"registered_date"`
	Meta        map[string]any `json:"meta"`
}

func (w *wireUser) toModel(now time.Time) models.UserProfile {
	p := models.UserProfile{
		ID:           w.ID,
		Name:         w.Name,
		Email:        w.Email,
		Bio:          w.Description,
		RegisteredAt: parseWPTime(w.Registered),
		LastUpdated:  now,
	}
	p.Industry = metaString(w.Meta, "industry")
	p.Stage = metaString(w.Meta, "stage")
	p.TeamSize = metaString(w.Meta, "team_size")
	p.Funding = metaString(w.Meta, "funding")
	p.Location = metaString(w.Meta, "location")
	return p
}

func metaString(meta map[string]any, key string) string {
	if meta == nil {
		return ""
	}
	if v, ok := meta[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// wireEmbedded holds term and author data when the response was requested
// with _embed.
type wireEmbedded struct {
	Author []struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"author"`
	Terms [][]struct {
		ID       int    `json:"id"`
		Name     string `json:"name"`
		Taxonomy string `json:"taxonomy"`
	} `json:"wp:term"`
}

// wirePost mirrors the platform's post payload.
type wirePost struct {
	ID         int            `json:"id"`
	Title      rendered       `json:"title"`
	Link       string         `json:"link"`
	Excerpt    rendered       `json:"excerpt"`
	Content    rendered       `json:"content"`
	Date       string         `json:"date"`
	Modified   string         `json:"modified"`
	Author     int            `json:"author"`
	Categories []int          `json:"categories"`
	Tags       []int          `json:"tags"`
	Meta       map[string]any `json:"meta"`
	Embedded   *wireEmbedded  `json:"_embedded"`
}

func (w *wirePost) toModel(now time.Time) models.Resource {
	r := models.Resource{
		ID:          w.ID,
		Title:       w.Title.Rendered,
		Link:        w.Link,
		Excerpt:     stripTags(w.Excerpt.Rendered),
		Content:     stripTags(w.Content.Rendered),
		Categories:  w.Categories,
		Tags:        w.Tags,
		AuthorID:    w.Author,
		Published:   parseWPTime(w.Date),
		Modified:    parseWPTime(w.Modified),
		Meta:        w.Meta,
		LastUpdated: now,
	}
	if w.Embedded != nil {
		if len(w.Embedded.Author) > 0 {
			r.AuthorName = w.Embedded.Author[0].Name
		}
		for _, group := range w.Embedded.Terms {
			for _, term := range group {
				switch term.Taxonomy {
				case "category":
					r.CategoryNames = append(r.CategoryNames, term.Name)
				case "post_tag":
					r.TagNames = append(r.TagNames, term.Name)
				}
			}
		}
	}
	return r
}

// wireTerm mirrors the platform's taxonomy term payload.
type wireTerm struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
	Count       int    `json:"count"`
	Taxonomy    string `json:"taxonomy"`
}

func (w *wireTerm) toModel(taxonomy string) models.Term {
	tax := w.Taxonomy
	if tax == "" || tax == "post_tag" {
		tax = taxonomy
	}
	return models.Term{
		ID:          w.ID,
		Name:        w.Name,
		Slug:        w.Slug,
		Description: w.Description,
		Count:       w.Count,
		Taxonomy:    tax,
	}
}

// wireSearchResult mirrors the platform's search payload.
type wireSearchResult struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
	Type  string `json:"type"`
}

func (w *wireSearchResult) toModel(now time.Time) models.Resource {
	return models.Resource{
		ID:          w.ID,
		Title:       w.Title,
		Link:        w.URL,
		LastUpdated: now,
	}
}

// stripTags removes HTML markup from rendered excerpt/content fields so the
// feature engineer tokenizes plain text. Crude but adequate: the markup the
// platform emits is well-formed.
func stripTags(s string) string {
	if !strings.ContainsRune(s, '<') {
		return strings.TrimSpace(s)
	}
	var b strings.Builder
	b.Grow(len(s))
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
			b.WriteRune(' ')
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(strings.Join(strings.Fields(b.String()), " "))
}
