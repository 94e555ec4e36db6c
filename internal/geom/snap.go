/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package geom

// Snapping helpers used while dragging nodes on the stage. They are UI-agnostic
// and deterministic so the stage tests can pin exact coordinates.

// Orientation of a guide line.
type Orientation uint8

const (
	Vertical Orientation = iota
	Horizontal
)

// GuideKind tells which features aligned.
type GuideKind uint8

const (
	GuideEdge GuideKind = iota
	GuideCenter
)

// Guide is a line rendered while a snap is active. Position is the x of a
// vertical guide or the y of a horizontal one; From/To span both rects.
type Guide struct {
	Orientation Orientation
	Kind        GuideKind
	Position    float32
	From, To    Pt
}

// SnapOptions controls which candidates are considered and the threshold.
// Threshold is in the same units as the rectangles.
type SnapOptions struct {
	Threshold float32
	Edges     bool
	Centers   bool
}

type axisCandidate struct {
	delta float32
	dist  float32
	guide Guide
	ok    bool
}

func (c *axisCandidate) consider(delta, threshold float32, g Guide) {
	d := abs32(delta)
	if d > threshold {
		return
	}
	if !c.ok || d < c.dist {
		*c = axisCandidate{delta: delta, dist: d, guide: g, ok: true}
	}
}

// Snap aligns moving against the anchors independently on X and Y and returns
// the adjusted rectangle plus the guides to draw.
func Snap(moving Rect, anchors []Rect, opts SnapOptions) (Rect, []Guide) {
	if opts.Threshold <= 0 {
		opts.Threshold = 6
	}
	var bx, by axisCandidate

	mL, mR, mT, mB := moving.X, moving.X+moving.W, moving.Y, moving.Y+moving.H
	mc := moving.Center()

	for _, a := range anchors {
		aL, aR, aT, aB := a.X, a.X+a.W, a.Y, a.Y+a.H
		ac := a.Center()
		if opts.Edges {
			for _, pair := range [][2]float32{{mL, aL}, {mR, aR}, {mL, aR}, {mR, aL}} {
				bx.consider(pair[0]-pair[1], opts.Threshold, verticalGuide(pair[1], moving, a, GuideEdge))
			}
			for _, pair := range [][2]float32{{mT, aT}, {mB, aB}, {mT, aB}, {mB, aT}} {
				by.consider(pair[0]-pair[1], opts.Threshold, horizontalGuide(pair[1], moving, a, GuideEdge))
			}
		}
		if opts.Centers {
			bx.consider(mc.X-ac.X, opts.Threshold, verticalGuide(ac.X, moving, a, GuideCenter))
			by.consider(mc.Y-ac.Y, opts.Threshold, horizontalGuide(ac.Y, moving, a, GuideCenter))
		}
	}

	snapped := moving
	var guides []Guide
	if bx.ok {
		snapped.X = Round(moving.X-bx.delta, 3)
		guides = append(guides, bx.guide)
	}
	if by.ok {
		snapped.Y = Round(moving.Y-by.delta, 3)
		guides = append(guides, by.guide)
	}
	return snapped, guides
}

func verticalGuide(x float32, a, b Rect, kind GuideKind) Guide {
	x = Round(x, 3)
	return Guide{
		Orientation: Vertical,
		Kind:        kind,
		Position:    x,
		From:        Pt{x, min(a.Y, b.Y)},
		To:          Pt{x, max(a.Y+a.H, b.Y+b.H)},
	}
}

func horizontalGuide(y float32, a, b Rect, kind GuideKind) Guide {
	y = Round(y, 3)
	return Guide{
		Orientation: Horizontal,
		Kind:        kind,
		Position:    y,
		From:        Pt{min(a.X, b.X), y},
		To:          Pt{max(a.X+a.W, b.X+b.W), y},
	}
}
