// Visey Recommender - Hybrid Content Recommendation Service
// SPDX-License-Identifier: AGPL-3.0-or-later

package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"

	"github.com/visey/recommender/internal/logging"
)

// NATSStore is the distributed cache backend, backed by a JetStream
// key-value bucket shared by all recommender instances.
//
// JetStream KV expires whole buckets, not individual keys, so per-entry TTLs
// are enforced client-side: every value is wrapped in an envelope carrying
// its expiry and Get treats an expired envelope as absent (deleting it
// lazily). Set overwrites via Put, which is atomic per key.
type NATSStore struct {
	conn *nats.Conn
	kv   nats.KeyValue
}

// envelope wraps a cached value with its client-side expiry. A zero
// ExpiresAt means the entry never expires.
type envelope struct {
	ExpiresAt int64           `json:"expires_at,omitempty"` // unix seconds
	Payload   json.RawMessage `json:"payload"`
}

// NewNATSStore connects to NATS and binds (or creates) the KV bucket.
func NewNATSStore(url, bucket string) (*NATSStore, error) {
	conn, err := nats.Connect(url,
		nats.Name("visey-recommender"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", url, err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	kv, err := js.KeyValue(bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:      bucket,
			Description: "visey recommender shared cache",
			History:     1,
		})
	}
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("bind kv bucket %s: %w", bucket, err)
	}

	logging.Info().Str("url", url).Str("bucket", bucket).Msg("distributed cache connected")
	return &NATSStore{conn: conn, kv: kv}, nil
}

func (s *NATSStore) Name() string { return "nats" }

// Get returns the value for key, treating expired envelopes as absent.
func (s *NATSStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	entry, err := s.kv.Get(key)
	if errors.Is(err, nats.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("nats get %s: %w", key, err)
	}

	var env envelope
	if err := json.Unmarshal(entry.Value(), &env); err != nil {
		return nil, false, fmt.Errorf("corrupt nats entry %s: %w", key, err)
	}
	if env.ExpiresAt > 0 && time.Now().Unix() >= env.ExpiresAt {
		// Lazy expiry; a racing reader deleting the same key is harmless.
		_ = s.kv.Delete(key)
		return nil, false, nil
	}
	return env.Payload, true, nil
}

// Set overwrites key with value. A zero ttl stores without expiry.
func (s *NATSStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	env := envelope{Payload: value}
	if ttl > 0 {
		env.ExpiresAt = time.Now().Add(ttl).Unix()
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal nats entry %s: %w", key, err)
	}
	if _, err := s.kv.Put(key, data); err != nil {
		return fmt.Errorf("nats put %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Absent keys are not an error.
func (s *NATSStore) Delete(_ context.Context, key string) error {
	err := s.kv.Delete(key)
	if err != nil && !errors.Is(err, nats.ErrKeyNotFound) {
		return fmt.Errorf("nats delete %s: %w", key, err)
	}
	return nil
}

// DeletePrefix removes every key with the given prefix. JetStream KV has no
// range delete, so the keys are listed and deleted one by one.
func (s *NATSStore) DeletePrefix(_ context.Context, prefix string) error {
	keys, err := s.kv.Keys()
	if errors.Is(err, nats.ErrNoKeysFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("nats list keys: %w", err)
	}
	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if err := s.kv.Delete(key); err != nil && !errors.Is(err, nats.ErrKeyNotFound) {
			return fmt.Errorf("nats delete %s: %w", key, err)
		}
	}
	return nil
}

// Healthy reports whether the NATS connection is up.
func (s *NATSStore) Healthy(_ context.Context) bool {
	return s.conn != nil && s.conn.Status() == nats.CONNECTED
}

// Close drains and closes the connection.
func (s *NATSStore) Close() error {
	if s.conn != nil {
		s.conn.Close()
	}
	return nil
}
