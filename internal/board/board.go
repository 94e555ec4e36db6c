/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package board

import (
	"fmt"

	"genstage/internal/geom"
	"genstage/internal/stage"
)

// CurrentVersion is written into new manifests.
const CurrentVersion = 1

// Board is the manifest stored in board.json.
type Board struct {
	Version int    `json:"version"`
	Name    string `json:"name"`
	Items   []Item `json:"items"`
}

// Item is the persisted form of a stage item.
type Item struct {
	ID        string  `json:"id"`
	Kind      string  `json:"kind"`
	LocalURI  string  `json:"local_uri,omitempty"`
	RemoteURI string  `json:"remote_uri,omitempty"`
	Message   string  `json:"message,omitempty"`
	Position  *Point  `json:"position,omitempty"`
	Scale     float32 `json:"scale,omitempty"`
}

// Point is a scene position.
type Point struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

// New returns an empty board with the current manifest version.
func New(name string) Board {
	return Board{Version: CurrentVersion, Name: name, Items: []Item{}}
}

// StageItems converts the manifest into the list handed to Stage.Reconcile.
func (b Board) StageItems() ([]stage.Item, error) {
	out := make([]stage.Item, 0, len(b.Items))
	for _, it := range b.Items {
		k, err := stage.ParseKind(it.Kind)
		if err != nil {
			return nil, fmt.Errorf("item %s: %w", it.ID, err)
		}
		si := stage.Item{ID: it.ID, Kind: k, LocalURI: it.LocalURI, RemoteURI: it.RemoteURI, Message: it.Message, Scale: it.Scale}
		if it.Position != nil {
			si.Position = &geom.Pt{X: it.Position.X, Y: it.Position.Y}
		}
		out = append(out, si)
	}
	return out, nil
}

// FromStage builds manifest items from stage items, keeping their order.
func FromStage(items []stage.Item) []Item {
	out := make([]Item, 0, len(items))
	for _, si := range items {
		it := Item{ID: si.ID, Kind: si.Kind.String(), LocalURI: si.LocalURI, RemoteURI: si.RemoteURI, Message: si.Message, Scale: si.Scale}
		if si.Position != nil {
			it.Position = &Point{X: si.Position.X, Y: si.Position.Y}
		}
		out = append(out, it)
	}
	return out
}

// SetPosition records a reported position. It returns false for unknown ids.
func (b *Board) SetPosition(id string, p geom.Pt) bool {
	for i := range b.Items {
		if b.Items[i].ID == id {
			b.Items[i].Position = &Point{X: p.X, Y: p.Y}
			return true
		}
	}
	return false
}

// SetScale records the scale of a resized item. Non-positive scales are
// ignored.
func (b *Board) SetScale(id string, scale float32) bool {
	if scale <= 0 {
		return false
	}
	for i := range b.Items {
		if b.Items[i].ID == id {
			b.Items[i].Scale = scale
			return true
		}
	}
	return false
}

// Remove drops the item with the given id.
func (b *Board) Remove(id string) bool {
	for i := range b.Items {
		if b.Items[i].ID == id {
			b.Items = append(b.Items[:i], b.Items[i+1:]...)
			return true
		}
	}
	return false
}

// Find returns the item with the given id.
func (b Board) Find(id string) (Item, bool) {
	for _, it := range b.Items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}
