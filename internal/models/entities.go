// Visey Recommender - Hybrid Content Recommendation Service
// SPDX-License-Identifier: AGPL-3.0-or-later

package models

import "time"

// UserProfile represents a registered platform user with the categorical
// attributes used for content scoring. Profiles are immutable except via
// re-sync: the cache layer owns the stored copy and the scheduler (or an
// on-demand fetch after a cache miss) is the only writer.
type UserProfile struct {
	// ID is the platform user identifier.
	ID int `json:"id"`

	// Name is the display name.
	Name string `json:"name"`

	// Email is the registered email address, if exposed by the platform.
	Email string `json:"email,omitempty"`

	// Industry is the user's industry attribute (e.g. "fintech").
	Industry string `json:"industry,omitempty"`

	// Stage is the growth-stage attribute (e.g. "seed", "series-a").
	Stage string `json:"stage,omitempty"`

	// TeamSize is the team-size bucket (e.g. "1-10").
	TeamSize string `json:"team_size,omitempty"`

	// Funding is the funding-stage attribute.
	Funding string `json:"funding,omitempty"`

	// Location is the free-form location attribute.
	Location string `json:"location,omitempty"`

	// Bio is the free-text profile description.
	Bio string `json:"bio,omitempty"`

	// RegisteredAt is when the user registered on the platform.
	RegisteredAt time.Time `json:"registered_at,omitempty"`

	// LastUpdated is when this cached copy was last refreshed.
	LastUpdated time.Time `json:"last_updated"`
}

// Resource is a content item (article/page) synchronized from the platform.
type Resource struct {
	// ID is the platform resource identifier.
	ID int `json:"id"`

	// Title is the rendered title text.
	Title string `json:"title"`

	// Link is the canonical URL of the resource.
	Link string `json:"link,omitempty"`

	// Excerpt is the rendered excerpt text.
	Excerpt string `json:"excerpt,omitempty"`

	// Content is the rendered body text.
	Content string `json:"content,omitempty"`

	// Categories is the ordered set of category term IDs.
	Categories []int `json:"categories,omitempty"`

	// Tags is the ordered set of tag term IDs.
	Tags []int `json:"tags,omitempty"`

	// CategoryNames holds resolved category names when the platform embeds
	// term data in the response.
	CategoryNames []string `json:"category_names,omitempty"`

	// TagNames holds resolved tag names when embedded.
	TagNames []string `json:"tag_names,omitempty"`

	// AuthorID is the platform user ID of the author.
	AuthorID int `json:"author_id,omitempty"`

	// AuthorName is the author display name when embedded.
	AuthorName string `json:"author_name,omitempty"`

	// Published is the original publish timestamp.
	Published time.Time `json:"published,omitempty"`

	// Modified is the last-modified timestamp reported by the platform.
	// Incremental sync compares this against the cached copy.
	Modified time.Time `json:"modified,omitempty"`

	// Meta is the arbitrary metadata mapping attached by the platform.
	Meta map[string]any `json:"meta,omitempty"`

	// LastUpdated is when this cached copy was last refreshed.
	LastUpdated time.Time `json:"last_updated"`
}

// Term is a taxonomy record (category or tag).
type Term struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug,omitempty"`
	Description string `json:"description,omitempty"`
	Count       int    `json:"count,omitempty"`

	// Taxonomy distinguishes categories from tags ("category" or "tag").
	Taxonomy string `json:"taxonomy"`
}

// Interaction is a (user, resource, rating) feedback event. The feedback
// store keys interactions by (UserID, ResourceID): a new submission for the
// same pair overwrites the prior rating and timestamp.
type Interaction struct {
	UserID     int `json:"user_id"`
	ResourceID int `json:"resource_id"`

	// Rating is an optional 1-5 rating; nil means an implicit interaction
	// (click/view) without an explicit rating.
	Rating *int `json:"rating,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// Recommendation is a single ranked result. Scores are unbounded positive
// reals; higher means more relevant.
type Recommendation struct {
	ResourceID int     `json:"resource_id"`
	Title      string  `json:"title"`
	Link       string  `json:"link,omitempty"`
	Score      float64 `json:"score"`

	// Reason is a human-readable explanation for why this resource was
	// recommended.
	Reason string `json:"reason"`
}
