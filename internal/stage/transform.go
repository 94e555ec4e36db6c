/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package stage

import (
	"math"
	"sort"

	"genstage/internal/geom"
	"genstage/internal/undo"
)

// minResizeFactor bounds how far a single resize gesture can shrink a node.
const minResizeFactor = 0.1

// Corner identifies a resize handle.
type Corner uint8

const (
	CornerNW Corner = iota
	CornerNE
	CornerSW
	CornerSE
)

var corners = [...]Corner{CornerNW, CornerNE, CornerSW, CornerSE}

// signs returns the direction in which a positive pointer delta grows the
// node for this corner.
func (c Corner) signs() (sx, sy float32) {
	switch c {
	case CornerNW:
		return -1, -1
	case CornerNE:
		return 1, -1
	case CornerSW:
		return -1, 1
	default:
		return 1, 1
	}
}

func (c Corner) of(r geom.Rect) geom.Pt {
	switch c {
	case CornerNW:
		return r.Min()
	case CornerNE:
		return geom.Pt{X: r.X + r.W, Y: r.Y}
	case CornerSW:
		return geom.Pt{X: r.X, Y: r.Y + r.H}
	default:
		return r.Max()
	}
}

// resizeFactor is the uniform scale implied by dragging corner c by d
// (world units) on a node of size start: the larger axis ratio, floored.
func resizeFactor(c Corner, start geom.Size, d geom.Pt) float32 {
	if start.IsZero() {
		return 1
	}
	sx, sy := c.signs()
	fw := (start.W + sx*d.X) / start.W
	fh := (start.H + sy*d.Y) / start.H
	return max(fw, fh, minResizeFactor)
}

// anchoredOrigin returns the new top-left so the corner opposite c stays put.
func anchoredOrigin(start geom.Rect, c Corner, size geom.Size) geom.Pt {
	switch c {
	case CornerNW:
		return geom.Pt{X: start.X + start.W - size.W, Y: start.Y + start.H - size.H}
	case CornerNE:
		return geom.Pt{X: start.X, Y: start.Y + start.H - size.H}
	case CornerSW:
		return geom.Pt{X: start.X + start.W - size.W, Y: start.Y}
	default:
		return start.Min()
	}
}

// Handle is a corner marker in container coordinates. Only handles of a
// single selection are Active.
type Handle struct {
	Corner Corner
	Rect   geom.Rect
	Active bool
}

// Handles returns the corner markers for the current selection.
func (s *Stage) Handles() []Handle {
	var box geom.Rect
	active := false
	switch s.sel.Shape {
	case ShapeSingle:
		r, err := s.screenBounds(s.sel.IDs[0])
		if err != nil {
			return nil
		}
		box, active = r, true
	case ShapeMultiple:
		r, ok := s.selectionBox()
		if !ok {
			return nil
		}
		box = r
	default:
		return nil
	}
	hs := s.opts.HandleSize
	out := make([]Handle, 0, len(corners))
	for _, c := range corners {
		p := c.of(box)
		out = append(out, Handle{Corner: c, Rect: geom.Rect{X: p.X - hs/2, Y: p.Y - hs/2, W: hs, H: hs}, Active: active})
	}
	return out
}

func (s *Stage) handleAt(p geom.Pt) (Corner, bool) {
	for _, h := range s.Handles() {
		if h.Active && h.Rect.Contains(p) {
			return h.Corner, true
		}
	}
	return 0, false
}

type gestureKind uint8

const (
	gestureNone gestureKind = iota
	gestureDrag
	gestureBand
	gestureResize
)

type gesture struct {
	kind       gestureKind
	down, last geom.Pt
	moved      bool
	target     string
	corner     Corner
	startPos   geom.Pt
	startSize  geom.Size
	startScale float32
}

// PointerDown starts a gesture at p (container coordinates): resize on an
// active handle, drag on a node, otherwise a rubber band.
func (s *Stage) PointerDown(p geom.Pt) {
	if !s.host.ready() {
		return
	}
	s.gesture = gesture{down: p, last: p}
	if s.sel.Shape == ShapeSingle {
		if c, ok := s.handleAt(p); ok {
			s.beginOn(gestureResize, s.sel.IDs[0])
			s.gesture.corner = c
			return
		}
	}
	if id := s.hitTest(p); id != "" {
		s.beginOn(gestureDrag, id)
		return
	}
	s.gesture.kind = gestureBand
}

func (s *Stage) beginOn(kind gestureKind, id string) {
	n := s.entries[id].node
	s.gesture.kind = kind
	s.gesture.target = id
	s.gesture.startPos = n.pos
	s.gesture.startSize = n.Size()
	s.gesture.startScale = n.scale
}

// PointerMove updates the active gesture. Movement inside the dead zone is
// ignored so a press and release counts as a click.
func (s *Stage) PointerMove(p geom.Pt) {
	g := &s.gesture
	if g.kind == gestureNone {
		return
	}
	g.last = p
	if !g.moved {
		if p.Dist(g.down) < s.opts.DragDeadZone {
			return
		}
		g.moved = true
		if g.kind == gestureDrag {
			s.raise(g.target)
		}
	}
	switch g.kind {
	case gestureDrag:
		s.dragTo(p)
	case gestureResize:
		s.resizeTo(p)
	}
	s.changed()
}

// PointerUp ends the gesture: clicks select, drags and resizes report the
// new position, bands select what they overlap. A press and release on a
// handle leaves everything as it was.
func (s *Stage) PointerUp(p geom.Pt) {
	if s.gesture.kind == gestureNone {
		return
	}
	s.PointerMove(p)
	g := s.gesture
	s.gesture = gesture{}
	s.guides = nil
	if !g.moved {
		if g.kind == gestureResize {
			return
		}
		if id := s.hitTest(g.down); id != "" {
			s.Select(id)
		} else {
			s.ClearSelection()
		}
		s.changed()
		return
	}
	switch g.kind {
	case gestureDrag, gestureResize:
		if e, ok := s.entries[g.target]; ok {
			s.commit([]undo.Move{{
				ID:        g.target,
				From:      g.startPos,
				To:        e.node.pos,
				FromScale: g.startScale,
				ToScale:   e.node.scale,
			}})
		}
	case gestureBand:
		s.selectBand(geom.FromPoints(g.down, g.last))
	}
	s.changed()
}

// PointerCancel abandons the gesture, restoring the target's start state.
func (s *Stage) PointerCancel() {
	g := s.gesture
	s.gesture = gesture{}
	s.guides = nil
	if g.moved && (g.kind == gestureDrag || g.kind == gestureResize) {
		if e, ok := s.entries[g.target]; ok {
			e.node.pos = g.startPos
			e.node.scale = g.startScale
		}
	}
	s.changed()
}

// Band returns the rubber band rectangle while one is being drawn.
func (s *Stage) Band() (geom.Rect, bool) {
	g := s.gesture
	if g.kind != gestureBand || !g.moved {
		return geom.Rect{}, false
	}
	return geom.FromPoints(g.down, g.last), true
}

// Guides returns the smart guides of the current drag in world coordinates.
func (s *Stage) Guides() []geom.Guide { return append([]geom.Guide(nil), s.guides...) }

func (s *Stage) dragTo(p geom.Pt) {
	g := &s.gesture
	e, ok := s.entries[g.target]
	if !ok {
		s.gesture = gesture{}
		return
	}
	scale := s.vp.Scale()
	pos := g.startPos.Add(p.Sub(g.down).Mul(1 / scale))
	r := geom.Rect{X: pos.X, Y: pos.Y, W: g.startSize.W, H: g.startSize.H}
	s.guides = nil
	if s.opts.Snap {
		var anchors []geom.Rect
		for _, id := range s.order {
			if id == g.target {
				continue
			}
			if b, err := s.entries[id].node.Bounds(); err == nil {
				anchors = append(anchors, b)
			}
		}
		r, s.guides = geom.Snap(r, anchors, geom.SnapOptions{Threshold: s.opts.SnapThreshold / scale, Edges: true, Centers: true})
	}
	e.node.pos = r.Min()
}

func (s *Stage) resizeTo(p geom.Pt) {
	g := &s.gesture
	e, ok := s.entries[g.target]
	if !ok {
		s.gesture = gesture{}
		return
	}
	d := p.Sub(g.down).Mul(1 / s.vp.Scale())
	f := resizeFactor(g.corner, g.startSize, d)
	size := g.startSize.Scale(f)
	start := geom.Rect{X: g.startPos.X, Y: g.startPos.Y, W: g.startSize.W, H: g.startSize.H}
	e.node.scale = g.startScale * f
	e.node.pos = anchoredOrigin(start, g.corner, size)
}

// Arrange lays a multiple selection out in a near-square grid anchored at the
// selection's top-left, reports every new position and clears the selection.
func (s *Stage) Arrange() {
	if s.sel.Shape != ShapeMultiple {
		return
	}
	type placed struct {
		id   string
		pos  geom.Pt
		size geom.Size
	}
	var nodes []placed
	for _, id := range s.sel.IDs {
		e, ok := s.entries[id]
		if !ok || e.node.destroyed {
			continue
		}
		nodes = append(nodes, placed{id: id, pos: e.node.pos, size: e.node.Size()})
	}
	if len(nodes) == 0 {
		return
	}
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].pos.Y != nodes[j].pos.Y {
			return nodes[i].pos.Y < nodes[j].pos.Y
		}
		if nodes[i].pos.X != nodes[j].pos.X {
			return nodes[i].pos.X < nodes[j].pos.X
		}
		return nodes[i].id < nodes[j].id
	})
	anchor := nodes[0].pos
	var cell geom.Size
	for _, n := range nodes {
		anchor.X = min(anchor.X, n.pos.X)
		anchor.Y = min(anchor.Y, n.pos.Y)
		cell.W = max(cell.W, n.size.W)
		cell.H = max(cell.H, n.size.H)
	}
	cols := int(math.Ceil(math.Sqrt(float64(len(nodes)))))
	gap := s.opts.ArrangeSpacing
	moves := make([]undo.Move, 0, len(nodes))
	for i, n := range nodes {
		col, row := i%cols, i/cols
		to := geom.Pt{
			X: anchor.X + float32(col)*(cell.W+gap),
			Y: anchor.Y + float32(row)*(cell.H+gap),
		}
		e := s.entries[n.id]
		e.node.pos = to
		moves = append(moves, undo.Move{ID: n.id, From: n.pos, To: to, FromScale: e.node.scale, ToScale: e.node.scale})
	}
	s.commit(moves)
	s.setSelection(Selection{})
	s.changed()
}

// commit reports moves to the host and records them for undo.
func (s *Stage) commit(moves []undo.Move) {
	s.report(moves)
	s.history.Push(undo.Step{Moves: moves, TS: s.now()})
}

func (s *Stage) report(moves []undo.Move) {
	for _, m := range moves {
		e, ok := s.entries[m.ID]
		if !ok {
			continue
		}
		to := m.To
		e.reported = &to
		if s.cb.OnPositionChange != nil {
			s.cb.OnPositionChange(m.ID, to)
		}
	}
}

// Undo reverts the latest drag, resize or arrange. It reports whether
// anything was undone.
func (s *Stage) Undo() bool {
	step, ok := s.history.Undo()
	if !ok {
		return false
	}
	s.apply(step.Inverse().Moves)
	return true
}

// Redo reapplies the latest undone step.
func (s *Stage) Redo() bool {
	step, ok := s.history.Redo()
	if !ok {
		return false
	}
	s.apply(step.Moves)
	return true
}

func (s *Stage) apply(moves []undo.Move) {
	for _, m := range moves {
		if e, ok := s.entries[m.ID]; ok {
			e.node.pos = m.To
			if m.ToScale > 0 {
				e.node.scale = m.ToScale
			}
		}
	}
	s.report(moves)
	s.changed()
}
