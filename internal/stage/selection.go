/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package stage

import (
	"slices"

	"genstage/internal/geom"
)

// Shape classifies the current selection.
type Shape uint8

const (
	ShapeNone Shape = iota
	ShapeSingle
	ShapeMultiple
	ShapeError
)

func (s Shape) String() string {
	switch s {
	case ShapeSingle:
		return "single"
	case ShapeMultiple:
		return "multiple"
	case ShapeError:
		return "error"
	}
	return "none"
}

// Selection is the selected node set. Single and Error hold one id; Multiple
// holds two or more success ids.
type Selection struct {
	Shape Shape
	IDs   []string
}

func (s Selection) Contains(id string) bool { return slices.Contains(s.IDs, id) }

// Selection returns a copy of the current selection.
func (s *Stage) Selection() Selection {
	return Selection{Shape: s.sel.Shape, IDs: append([]string(nil), s.sel.IDs...)}
}

// Select selects the node id by click rules: success nodes become a single
// selection, error nodes an error selection, anything else clears.
func (s *Stage) Select(id string) {
	e, ok := s.entries[id]
	if !ok {
		s.ClearSelection()
		return
	}
	switch e.kind {
	case KindSuccess:
		s.setSelection(Selection{Shape: ShapeSingle, IDs: []string{id}})
	case KindError:
		s.setSelection(Selection{Shape: ShapeError, IDs: []string{id}})
	default:
		s.ClearSelection()
		return
	}
	s.raise(id)
	s.changed()
}

// SelectIDs selects the success nodes among ids.
func (s *Stage) SelectIDs(ids []string) {
	var picked []string
	for _, id := range ids {
		if e, ok := s.entries[id]; ok && e.kind == KindSuccess && !slices.Contains(picked, id) {
			picked = append(picked, id)
		}
	}
	s.setSelection(selectionOf(picked))
	s.changed()
}

func (s *Stage) ClearSelection() {
	if s.sel.Shape == ShapeNone {
		return
	}
	s.setSelection(Selection{})
	s.changed()
}

func selectionOf(ids []string) Selection {
	switch len(ids) {
	case 0:
		return Selection{}
	case 1:
		return Selection{Shape: ShapeSingle, IDs: ids}
	default:
		return Selection{Shape: ShapeMultiple, IDs: ids}
	}
}

func (s *Stage) setSelection(sel Selection) {
	s.sel = sel
	if s.cb.OnSelectionChange != nil {
		s.cb.OnSelectionChange(s.Selection())
	}
}

// deselect drops id from the selection, downgrading the shape as needed.
func (s *Stage) deselect(id string) {
	if !s.sel.Contains(id) {
		return
	}
	if s.sel.Shape == ShapeError {
		s.setSelection(Selection{})
		return
	}
	ids := slices.DeleteFunc(append([]string(nil), s.sel.IDs...), func(v string) bool { return v == id })
	s.setSelection(selectionOf(ids))
}

// selectBand selects every success node whose bounds overlap the
// container-space rectangle r.
func (s *Stage) selectBand(r geom.Rect) {
	world := s.vp.WorldRect(r)
	var ids []string
	for _, id := range s.order {
		e := s.entries[id]
		if e.kind != KindSuccess {
			continue
		}
		b, err := e.node.Bounds()
		if err != nil {
			continue
		}
		if world.Intersects(b) {
			ids = append(ids, id)
		}
	}
	s.setSelection(selectionOf(ids))
}

// hitTest returns the topmost node under the container-space point p.
func (s *Stage) hitTest(p geom.Pt) string {
	w := s.vp.ToWorld(p)
	for i := len(s.order) - 1; i >= 0; i-- {
		id := s.order[i]
		b, err := s.entries[id].node.Bounds()
		if err != nil {
			continue
		}
		if b.Contains(w) {
			return id
		}
	}
	return ""
}
