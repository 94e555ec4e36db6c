/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Get returns cached bytes for uri and marks the row as recently used.
func (s *Store) Get(ctx context.Context, uri string) ([]byte, bool, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM bitmap_cache WHERE uri=?`, uri).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query cache: %w", err)
	}
	_, _ = s.db.ExecContext(ctx, `UPDATE bitmap_cache SET last_access=? WHERE uri=?`, s.now().UnixNano(), uri)
	return blob, true, nil
}

// Put upserts the bytes for uri and enforces the cache cap via LRU eviction.
func (s *Store) Put(ctx context.Context, uri string, data []byte) error {
	if uri == "" {
		return errors.New("cache key is required")
	}
	now := s.now()
	_, err := s.db.ExecContext(ctx, `INSERT INTO bitmap_cache(uri,data,size,updated_at,last_access)
		VALUES(?,?,?,?,?)
		ON CONFLICT(uri) DO UPDATE SET data=excluded.data, size=excluded.size, updated_at=excluded.updated_at, last_access=excluded.last_access`,
		uri, data, len(data), now.UTC().Format(time.RFC3339), now.UnixNano())
	if err != nil {
		return fmt.Errorf("upsert cache: %w", err)
	}
	if s.cacheMax > 0 {
		return s.EvictToFit(ctx, s.cacheMax)
	}
	return nil
}

// Drop removes a single cache row.
func (s *Store) Drop(ctx context.Context, uri string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM bitmap_cache WHERE uri=?`, uri); err != nil {
		return fmt.Errorf("drop cache row: %w", err)
	}
	return nil
}

// EvictToFit deletes least-recently-used rows until the total size is <= capBytes.
func (s *Store) EvictToFit(ctx context.Context, capBytes int64) error {
	total, err := s.CacheBytes(ctx)
	if err != nil {
		return err
	}
	if total <= capBytes {
		return nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT uri, size FROM bitmap_cache ORDER BY last_access ASC, uri ASC`)
	if err != nil {
		return fmt.Errorf("select victims: %w", err)
	}
	victims := make([]string, 0, 16)
	cur := total
	for rows.Next() {
		var uri string
		var sz int64
		if err := rows.Scan(&uri, &sz); err != nil {
			_ = rows.Close()
			return err
		}
		victims = append(victims, uri)
		cur -= sz
		if cur <= capBytes {
			break
		}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	// the single connection must be free before writing
	if err := rows.Close(); err != nil {
		return err
	}
	if len(victims) == 0 {
		return nil
	}
	args := make([]any, len(victims))
	for i, v := range victims {
		args[i] = v
	}
	q := `DELETE FROM bitmap_cache WHERE uri IN (` + placeholders(len(victims)) + `)`
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("evict delete: %w", err)
	}
	return nil
}

// CacheBytes returns the total size tracked by the bitmap cache.
func (s *Store) CacheBytes(ctx context.Context) (int64, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(size),0) FROM bitmap_cache`).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum cache size: %w", err)
	}
	return total, nil
}

// CacheMaxBytesFromEnv reads GST_CACHE_MAX_BYTES, defaulting to 256MB.
func CacheMaxBytesFromEnv() int64 {
	v := os.Getenv("GST_CACHE_MAX_BYTES")
	if v == "" {
		return DefaultCacheMaxBytes
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return DefaultCacheMaxBytes
	}
	return n
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
