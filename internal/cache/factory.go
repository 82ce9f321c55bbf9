// Visey Recommender - Hybrid Content Recommendation Service
// SPDX-License-Identifier: AGPL-3.0-or-later

package cache

import (
	"fmt"

	"github.com/visey/recommender/internal/config"
	"github.com/visey/recommender/internal/logging"
)

// NewStore builds the configured cache backend.
//
// Backend selection:
//   - "local": embedded BadgerDB at cfg.Path
//   - "distributed": NATS JetStream KV at cfg.NATSURL
//   - "auto": try NATS; on failure fall back to Badger with a warning
func NewStore(cfg *config.CacheConfig) (Store, error) {
	switch cfg.Backend {
	case config.BackendLocal:
		return NewBadgerStore(cfg.Path)

	case config.BackendDistributed:
		return NewNATSStore(cfg.NATSURL, cfg.Bucket)

	case config.BackendAuto:
		store, err := NewNATSStore(cfg.NATSURL, cfg.Bucket)
		if err == nil {
			return store, nil
		}
		logging.Warn().Err(err).
			Str("nats_url", cfg.NATSURL).
			Msg("distributed cache unavailable, falling back to local")
		return NewBadgerStore(cfg.Path)

	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
