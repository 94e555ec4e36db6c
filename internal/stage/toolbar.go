/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package stage

import "genstage/internal/geom"

// Toolbar is where the action bar for the current selection should sit.
// Anchor is the bottom-center of the bar in container coordinates.
type Toolbar struct {
	Visible bool
	Shape   Shape
	Anchor  geom.Pt
}

// Toolbar returns the last computed toolbar placement. It is recomputed on
// every selection change, drag, resize, zoom and reconcile.
func (s *Stage) Toolbar() Toolbar { return s.toolbar }

func (s *Stage) refreshToolbar() { s.toolbar = s.computeToolbar() }

func (s *Stage) computeToolbar() Toolbar {
	var box geom.Rect
	switch s.sel.Shape {
	case ShapeSingle, ShapeError:
		r, err := s.screenBounds(s.sel.IDs[0])
		if err != nil {
			return Toolbar{}
		}
		box = r
	case ShapeMultiple:
		r, ok := s.selectionBox()
		if !ok {
			return Toolbar{}
		}
		box = r
	default:
		return Toolbar{}
	}
	return Toolbar{
		Visible: true,
		Shape:   s.sel.Shape,
		Anchor:  geom.Pt{X: box.X + box.W/2, Y: box.Y - s.opts.ToolbarMargin},
	}
}

// screenBounds returns the container-space bounds of node id.
func (s *Stage) screenBounds(id string) (geom.Rect, error) {
	e, ok := s.entries[id]
	if !ok {
		return geom.Rect{}, ErrNodeDestroyed
	}
	r, err := e.node.Bounds()
	if err != nil {
		return geom.Rect{}, err
	}
	return s.vp.ScreenRect(r), nil
}

// selectionBox is the container-space union of every live selected node.
func (s *Stage) selectionBox() (geom.Rect, bool) {
	var box geom.Rect
	found := false
	for _, id := range s.sel.IDs {
		r, err := s.screenBounds(id)
		if err != nil {
			continue
		}
		if !found {
			box, found = r, true
			continue
		}
		box = box.Union(r)
	}
	return box, found
}

// CanRegenerate reports whether the regenerate action applies.
func (s *Stage) CanRegenerate() bool { return s.sel.Shape == ShapeSingle }

// Download requests a download of every selected success bitmap.
func (s *Stage) Download() int {
	if s.cb.OnDownload == nil {
		return 0
	}
	n := 0
	for _, uri := range s.selectedURIs() {
		s.cb.OnDownload(uri)
		n++
	}
	return n
}

// Upscale requests an upscale of the single selected bitmap.
func (s *Stage) Upscale() {
	if s.sel.Shape != ShapeSingle || s.cb.OnUpscale == nil {
		return
	}
	if uris := s.selectedURIs(); len(uris) == 1 {
		s.cb.OnUpscale(uris[0])
	}
}

// Regenerate asks the host for a new generation like the selected one.
func (s *Stage) Regenerate() {
	if s.CanRegenerate() && s.cb.OnRegenerate != nil {
		s.cb.OnRegenerate()
	}
}

// DeleteError clears an error selection and asks the host to drop the item.
func (s *Stage) DeleteError() {
	if s.sel.Shape != ShapeError {
		return
	}
	id := s.sel.IDs[0]
	s.setSelection(Selection{})
	s.changed()
	if s.cb.OnDeleteError != nil {
		s.cb.OnDeleteError(id)
	}
}

func (s *Stage) selectedURIs() []string {
	if s.sel.Shape != ShapeSingle && s.sel.Shape != ShapeMultiple {
		return nil
	}
	var out []string
	for _, id := range s.sel.IDs {
		if e, ok := s.entries[id]; ok && e.kind == KindSuccess && e.source != "" {
			out = append(out, e.source)
		}
	}
	return out
}
