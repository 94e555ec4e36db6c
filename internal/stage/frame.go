/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package stage

import (
	"image"
	"time"

	"genstage/internal/geom"
)

// NodeView is a render-ready snapshot of one node in container coordinates.
type NodeView struct {
	ID       string
	Kind     Kind
	Rect     geom.Rect
	Image    image.Image
	Label    string
	Message  string
	Glyph    string
	Overlay  bool
	Alpha    float32
	Selected bool
}

// Frame is everything a renderer needs to draw one frame.
type Frame struct {
	Size    geom.Size
	Zoom    int
	Nodes   []NodeView // bottom to top
	Handles []Handle
	Band    *geom.Rect
	Guides  []geom.Guide // container coordinates
	Toolbar Toolbar
}

// Frame snapshots the scene at now. An unmounted stage yields an empty frame.
func (s *Stage) Frame(now time.Time) Frame {
	if !s.host.ready() {
		return Frame{Zoom: s.vp.Zoom()}
	}
	f := Frame{
		Size:    s.vp.Size(),
		Zoom:    s.vp.Zoom(),
		Nodes:   make([]NodeView, 0, len(s.order)),
		Handles: s.Handles(),
		Toolbar: s.toolbar,
	}
	for _, id := range s.order {
		e := s.entries[id]
		b, err := e.node.Bounds()
		if err != nil {
			continue
		}
		f.Nodes = append(f.Nodes, NodeView{
			ID:       id,
			Kind:     e.kind,
			Rect:     s.vp.ScreenRect(b),
			Image:    e.node.texture.Image(),
			Label:    e.node.label,
			Message:  e.node.message,
			Glyph:    e.node.glyph,
			Overlay:  e.node.overlay,
			Alpha:    e.anim.Alpha(now),
			Selected: s.sel.Contains(id),
		})
	}
	if r, ok := s.Band(); ok {
		f.Band = &r
	}
	for _, g := range s.guides {
		f.Guides = append(f.Guides, s.screenGuide(g))
	}
	return f
}

func (s *Stage) screenGuide(g geom.Guide) geom.Guide {
	out := g
	out.From = s.vp.ToScreen(g.From)
	out.To = s.vp.ToScreen(g.To)
	if g.Orientation == geom.Vertical {
		out.Position = out.From.X
	} else {
		out.Position = out.From.Y
	}
	return out
}

// Placement is the world-space layout of one node, used for persistence and
// export.
type Placement struct {
	ID     string
	Kind   Kind
	Source string
	Rect   geom.Rect
	Scale  float32
	Image  image.Image
}

// Placements lists live nodes bottom to top.
func (s *Stage) Placements() []Placement {
	out := make([]Placement, 0, len(s.order))
	for _, id := range s.order {
		e := s.entries[id]
		b, err := e.node.Bounds()
		if err != nil {
			continue
		}
		out = append(out, Placement{ID: id, Kind: e.kind, Source: e.source, Rect: b, Scale: e.node.scale, Image: e.node.texture.Image()})
	}
	return out
}
