// Visey Recommender - Hybrid Content Recommendation Service
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package feedback implements the durable interaction store.
//
// Interactions are keyed by (user, resource): submitting feedback for a pair
// that already exists overwrites the stored rating and timestamp
// (last-write-wins). The store backs both the collaborative and popularity
// scoring signals and survives restarts; it is SQLite via the pure-Go
// modernc.org driver, so the binary stays cgo-free.
package feedback

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/visey/recommender/internal/logging"
	"github.com/visey/recommender/internal/metrics"
	"github.com/visey/recommender/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS feedback (
	user_id     INTEGER NOT NULL,
	resource_id INTEGER NOT NULL,
	rating      INTEGER,
	ts          TIMESTAMP NOT NULL,
	PRIMARY KEY (user_id, resource_id)
);
CREATE INDEX IF NOT EXISTS idx_feedback_resource ON feedback (resource_id);
`

// Store is the SQLite-backed feedback store. Safe for concurrent use; SQLite
// serializes writers internally and WAL mode keeps readers unblocked.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the feedback database at path and applies the
// schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open feedback db at %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply feedback schema: %w", err)
	}
	logging.Info().Str("path", path).Msg("feedback store opened")
	return &Store{db: db}, nil
}

// Upsert records an interaction. An existing (user, resource) row is
// overwritten with the new rating and timestamp.
func (s *Store) Upsert(ctx context.Context, in models.Interaction) error {
	ts := in.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	var rating sql.NullInt64
	if in.Rating != nil {
		rating = sql.NullInt64{Int64: int64(*in.Rating), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback (user_id, resource_id, rating, ts)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, resource_id)
		DO UPDATE SET rating = excluded.rating, ts = excluded.ts`,
		in.UserID, in.ResourceID, rating, ts)
	if err != nil {
		return fmt.Errorf("upsert feedback (%d,%d): %w", in.UserID, in.ResourceID, err)
	}
	metrics.FeedbackUpserts.Inc()
	return nil
}

// InteractionsForUser returns all interactions of one user, newest first.
func (s *Store) InteractionsForUser(ctx context.Context, userID int) ([]models.Interaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, resource_id, rating, ts
		FROM feedback WHERE user_id = ? ORDER BY ts DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query interactions for user %d: %w", userID, err)
	}
	defer rows.Close()

	var out []models.Interaction
	for rows.Next() {
		in, err := scanInteraction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// UsersByResource returns, for every resource with feedback, the IDs of the
// users who interacted with it. This is the raw material for the Jaccard
// collaborative signal.
func (s *Store) UsersByResource(ctx context.Context) (map[int][]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT resource_id, user_id FROM feedback ORDER BY resource_id, user_id`)
	if err != nil {
		return nil, fmt.Errorf("query users by resource: %w", err)
	}
	defer rows.Close()

	out := make(map[int][]int)
	for rows.Next() {
		var resourceID, userID int
		if err := rows.Scan(&resourceID, &userID); err != nil {
			return nil, fmt.Errorf("scan users by resource: %w", err)
		}
		out[resourceID] = append(out[resourceID], userID)
	}
	return out, rows.Err()
}

// Popularity aggregates per-resource interaction counts and average ratings.
type Popularity struct {
	Count       int
	RatingCount int
	AvgRating   float64
}

// PopularityStats returns popularity aggregates for every resource with
// feedback.
func (s *Store) PopularityStats(ctx context.Context) (map[int]Popularity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT resource_id, COUNT(*), COUNT(rating), COALESCE(AVG(rating), 0)
		FROM feedback GROUP BY resource_id`)
	if err != nil {
		return nil, fmt.Errorf("query popularity stats: %w", err)
	}
	defer rows.Close()

	out := make(map[int]Popularity)
	for rows.Next() {
		var id int
		var p Popularity
		if err := rows.Scan(&id, &p.Count, &p.RatingCount, &p.AvgRating); err != nil {
			return nil, fmt.Errorf("scan popularity stats: %w", err)
		}
		out[id] = p
	}
	return out, rows.Err()
}

// UserIDs returns the distinct users with stored feedback, ascending. The
// sync scheduler refreshes these users' profiles.
func (s *Store) UserIDs(ctx context.Context) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM feedback ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("query user ids: %w", err)
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Count returns the total number of stored interactions.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM feedback`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count feedback: %w", err)
	}
	return n, nil
}

// Healthy reports whether the database answers a ping.
func (s *Store) Healthy(ctx context.Context) bool {
	return s.db.PingContext(ctx) == nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func scanInteraction(rows *sql.Rows) (models.Interaction, error) {
	var in models.Interaction
	var rating sql.NullInt64
	if err := rows.Scan(&in.UserID, &in.ResourceID, &rating, &in.Timestamp); err != nil {
		return in, fmt.Errorf("scan interaction: %w", err)
	}
	if rating.Valid {
		r := int(rating.Int64)
		in.Rating = &r
	}
	return in, nil
}
