// Copyright 2021-2023
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package data

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/goccy/go-json"
	lru "github.com/hashicorp/golang-lru"
	"github.com/penny-vault/pv-allocate/dataframe"
	"github.com/pierrec/lz4/v4"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"github.com/zeebo/blake3"
)

// DefaultLocalCacheSize is the number of series kept in memory when no size is configured
const DefaultLocalCacheSize = 256

// Cache stores downloaded price series. Entries live in an in-process LRU and,
// when a redis URL is configured, in redis so they are shared between
// processes. Values are JSON encoded and lz4 compressed. Redis entries expire
// ttl after they are written; reads do not extend them.
type Cache struct {
	local *lru.Cache
	rdb   *redis.Client
	ttl   time.Duration
}

// NewCache creates a cache holding up to localSize series in memory. An empty
// redisURL disables the shared tier.
func NewCache(localSize int, redisURL string, ttl time.Duration) (*Cache, error) {
	if localSize <= 0 {
		localSize = DefaultLocalCacheSize
	}

	local, err := lru.New(localSize)
	if err != nil {
		return nil, fmt.Errorf("could not create LRU cache: %w", err)
	}

	c := &Cache{
		local: local,
		ttl:   ttl,
	}

	if redisURL != "" {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("could not parse redis URL: %w", err)
		}
		c.rdb = redis.NewClient(opt)
	}

	return c, nil
}

// NewCacheFromConfig builds a cache from the cache.* configuration keys
func NewCacheFromConfig() (*Cache, error) {
	return NewCache(
		viper.GetInt("cache.local_size"),
		viper.GetString("cache.redis_url"),
		viper.GetDuration("cache.ttl"),
	)
}

// CacheKey names the series of symbol returned by provider for [begin, end]
func CacheKey(provider, symbol string, begin, end time.Time) string {
	key := fmt.Sprintf("%s:%s:%d:%d", provider, symbol, begin.Unix(), end.Unix())
	digest := blake3.Sum256([]byte(key))
	return "pvallocate:" + hex.EncodeToString(digest[:])
}

// Get returns the cached series for key or ErrCacheMiss
func (c *Cache) Get(ctx context.Context, key string) (*dataframe.DataFrame, error) {
	var payload []byte

	if val, ok := c.local.Get(key); ok {
		payload = val.([]byte)
	} else if c.rdb != nil {
		val, err := c.rdb.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		if err != nil {
			return nil, err
		}
		payload = val
		c.local.Add(key, payload)
	} else {
		return nil, ErrCacheMiss
	}

	raw, err := decompress(payload)
	if err != nil {
		return nil, err
	}

	df := &dataframe.DataFrame{}
	if err := json.Unmarshal(raw, df); err != nil {
		return nil, err
	}
	return df, nil
}

// Set stores df under key in every configured tier
func (c *Cache) Set(ctx context.Context, key string, df *dataframe.DataFrame) error {
	raw, err := json.Marshal(df)
	if err != nil {
		return err
	}

	payload, err := compress(raw)
	if err != nil {
		return err
	}

	c.local.Add(key, payload)

	if c.rdb != nil {
		return c.rdb.Set(ctx, key, payload, c.ttl).Err()
	}
	return nil
}

// Close releases the redis connection pool
func (c *Cache) Close() error {
	if c.rdb != nil {
		return c.rdb.Close()
	}
	return nil
}

func compress(in []byte) ([]byte, error) {
	w := &bytes.Buffer{}
	zw := lz4.NewWriter(w)
	if _, err := io.Copy(zw, bytes.NewReader(in)); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	log.Trace().Int("RawBytes", len(in)).Int("CompressedBytes", w.Len()).Msg("compressed cache entry")
	return w.Bytes(), nil
}

func decompress(in []byte) ([]byte, error) {
	w := &bytes.Buffer{}
	zr := lz4.NewReader(bytes.NewReader(in))
	if _, err := io.Copy(w, zr); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}
