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
	"errors"
	"fmt"
	"time"
)

// Layout is the last reported placement of an item.
type Layout struct {
	ItemID    string
	X, Y      float32
	Scale     float32
	UpdatedAt time.Time
}

// SaveLayout upserts the placement for one item.
func (s *Store) SaveLayout(ctx context.Context, l Layout) error {
	if l.ItemID == "" {
		return errors.New("item id is required")
	}
	if l.Scale <= 0 {
		l.Scale = 1
	}
	if l.UpdatedAt.IsZero() {
		l.UpdatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO layouts(item_id,x,y,scale,updated_at) VALUES(?,?,?,?,?)
		ON CONFLICT(item_id) DO UPDATE SET x=excluded.x, y=excluded.y, scale=excluded.scale, updated_at=excluded.updated_at`,
		l.ItemID, float64(l.X), float64(l.Y), float64(l.Scale), l.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert layout: %w", err)
	}
	return nil
}

// SaveLayouts writes several placements in one transaction.
func (s *Store) SaveLayouts(ctx context.Context, ls []Layout) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO layouts(item_id,x,y,scale,updated_at) VALUES(?,?,?,?,?)
		ON CONFLICT(item_id) DO UPDATE SET x=excluded.x, y=excluded.y, scale=excluded.scale, updated_at=excluded.updated_at`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare layout upsert: %w", err)
	}
	defer stmt.Close()
	ts := s.now().UTC().Format(time.RFC3339Nano)
	for _, l := range ls {
		if l.ItemID == "" {
			_ = tx.Rollback()
			return errors.New("item id is required")
		}
		if l.Scale <= 0 {
			l.Scale = 1
		}
		if _, err := stmt.ExecContext(ctx, l.ItemID, float64(l.X), float64(l.Y), float64(l.Scale), ts); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("upsert layout: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit layouts: %w", err)
	}
	return nil
}

// Layouts returns all stored placements keyed by item id.
func (s *Store) Layouts(ctx context.Context) (map[string]Layout, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT item_id, x, y, scale, updated_at FROM layouts`)
	if err != nil {
		return nil, fmt.Errorf("query layouts: %w", err)
	}
	defer rows.Close()
	out := make(map[string]Layout)
	for rows.Next() {
		var (
			id       string
			x, y, sc float64
			ts       string
		)
		if err := rows.Scan(&id, &x, &y, &sc, &ts); err != nil {
			return nil, err
		}
		t, _ := time.Parse(time.RFC3339Nano, ts)
		out[id] = Layout{ItemID: id, X: float32(x), Y: float32(y), Scale: float32(sc), UpdatedAt: t}
	}
	return out, rows.Err()
}

// DeleteLayouts removes placements for the given ids.
func (s *Store) DeleteLayouts(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM layouts WHERE item_id IN (`+placeholders(len(ids))+`)`, args...); err != nil {
		return fmt.Errorf("delete layouts: %w", err)
	}
	return nil
}
