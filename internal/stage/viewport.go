/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package stage

import "genstage/internal/geom"

const (
	MinZoom     = 10
	MaxZoom     = 200
	ZoomStep    = 10
	DefaultZoom = 100
)

// Viewport maps world coordinates to container coordinates:
// screen = world*scale + translation, with scale = zoom/100.
type Viewport struct {
	zoom int
	t    geom.Pt
	size geom.Size
}

func NewViewport() *Viewport { return &Viewport{zoom: DefaultZoom} }

func (v *Viewport) Zoom() int { return v.zoom }

func (v *Viewport) Scale() float32 { return float32(v.zoom) / 100 }

func (v *Viewport) Translation() geom.Pt { return v.t }

func (v *Viewport) Size() geom.Size { return v.size }

func (v *Viewport) SetSize(s geom.Size) { v.size = s }

// Center is the container-space midpoint.
func (v *Viewport) Center() geom.Pt { return geom.Pt{X: v.size.W / 2, Y: v.size.H / 2} }

func (v *Viewport) ToScreen(w geom.Pt) geom.Pt { return w.Mul(v.Scale()).Add(v.t) }

func (v *Viewport) ToWorld(p geom.Pt) geom.Pt { return p.Sub(v.t).Mul(1 / v.Scale()) }

func (v *Viewport) ScreenRect(r geom.Rect) geom.Rect {
	s := v.Scale()
	p := v.ToScreen(r.Min())
	return geom.Rect{X: p.X, Y: p.Y, W: r.W * s, H: r.H * s}
}

func (v *Viewport) WorldRect(r geom.Rect) geom.Rect {
	s := v.Scale()
	p := v.ToWorld(r.Min())
	return geom.Rect{X: p.X, Y: p.Y, W: r.W / s, H: r.H / s}
}

// ZoomAround sets the zoom level, clamped to [MinZoom, MaxZoom], keeping the
// world point under the container-space anchor fixed. It reports whether the
// level changed.
func (v *Viewport) ZoomAround(level int, anchor geom.Pt) bool {
	level = max(MinZoom, min(MaxZoom, level))
	if level == v.zoom {
		return false
	}
	w := v.ToWorld(anchor)
	v.zoom = level
	v.t = anchor.Sub(w.Mul(v.Scale()))
	return true
}

// Pan shifts the view by a container-space delta.
func (v *Viewport) Pan(d geom.Pt) { v.t = v.t.Add(d) }

// Reset restores 100% with no translation.
func (v *Viewport) Reset() {
	v.zoom = DefaultZoom
	v.t = geom.Pt{}
}

// ZoomIn raises the zoom one step around the container center. Selection is
// cleared first.
func (s *Stage) ZoomIn() { s.zoomTo(s.vp.zoom + ZoomStep) }

// ZoomOut lowers the zoom one step around the container center.
func (s *Stage) ZoomOut() { s.zoomTo(s.vp.zoom - ZoomStep) }

// ZoomReset returns to 100% around the container center.
func (s *Stage) ZoomReset() { s.zoomTo(DefaultZoom) }

func (s *Stage) zoomTo(level int) {
	s.setSelection(Selection{})
	s.vp.ZoomAround(level, s.vp.Center())
	s.changed()
}

// Pan scrolls the view by a container-space delta.
func (s *Stage) Pan(dx, dy float32) {
	s.vp.Pan(geom.Pt{X: dx, Y: dy})
	s.changed()
}

func (s *Stage) Zoom() int { return s.vp.Zoom() }
