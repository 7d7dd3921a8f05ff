// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL is how long a processed record is remembered in Redis.
	// Upstream providers stop redelivering well inside 24h.
	DefaultTTL = 24 * time.Hour

	// keyPrefix namespaces processed-record keys in Redis.
	keyPrefix = "intake:processed:"
)

// RedisStore is a Store backed by Redis, shared across service replicas.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore creates a processed-record store backed by Redis.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{
		rdb: rdb,
		ttl: DefaultTTL,
	}
}

// Seen reports whether a record exists for the message ID.
func (s *RedisStore) Seen(ctx context.Context, messageID string) (bool, error) {
	n, err := s.rdb.Exists(ctx, keyPrefix+messageID).Result()
	if err != nil {
		return false, fmt.Errorf("dedup EXISTS: %w", err)
	}
	return n > 0, nil
}

// Mark records the outcome for the message ID. SET NX keeps the first
// writer's record when two replicas race.
func (s *RedisStore) Mark(ctx context.Context, messageID, outcome string) error {
	if err := s.rdb.SetNX(ctx, keyPrefix+messageID, outcome, s.ttl).Err(); err != nil {
		return fmt.Errorf("dedup SETNX: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.rdb.Ping(ctx).Err()
}
