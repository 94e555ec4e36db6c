/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package geom holds the small 2D value types shared by the stage core, the
// renderer and the exporters. Values are float32 to line up with Fyne.
package geom

import "math"

// Pt is a 2D point.
type Pt struct{ X, Y float32 }

// Add returns p translated by q.
func (p Pt) Add(q Pt) Pt { return Pt{p.X + q.X, p.Y + q.Y} }

// Sub returns the vector from q to p.
func (p Pt) Sub(q Pt) Pt { return Pt{p.X - q.X, p.Y - q.Y} }

// Mul scales both components by s.
func (p Pt) Mul(s float32) Pt { return Pt{p.X * s, p.Y * s} }

// Dist returns the euclidean distance between p and q.
func (p Pt) Dist(q Pt) float32 {
	dx := float64(p.X - q.X)
	dy := float64(p.Y - q.Y)
	return float32(math.Hypot(dx, dy))
}

// Near reports whether p and q are within eps on both axes.
func (p Pt) Near(q Pt, eps float32) bool {
	return abs32(p.X-q.X) <= eps && abs32(p.Y-q.Y) <= eps
}

// Size is a width/height pair.
type Size struct{ W, H float32 }

// IsZero reports whether either dimension is not positive.
func (s Size) IsZero() bool { return s.W <= 0 || s.H <= 0 }

// Scale returns s multiplied uniformly by f.
func (s Size) Scale(f float32) Size { return Size{s.W * f, s.H * f} }

// Rect is an axis-aligned rectangle defined by min corner and size.
type Rect struct {
	X, Y float32
	W, H float32
}

func R(x, y, w, h float32) Rect { return Rect{X: x, Y: y, W: w, H: h} }

// FromPoints builds the normalized rectangle spanned by two corners.
func FromPoints(a, b Pt) Rect {
	minX, maxX := a.X, b.X
	if minX > maxX {
		minX, maxX = maxX, minX
	}
	minY, maxY := a.Y, b.Y
	if minY > maxY {
		minY, maxY = maxY, minY
	}
	return Rect{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}
}

func (r Rect) Min() Pt    { return Pt{r.X, r.Y} }
func (r Rect) Max() Pt    { return Pt{r.X + r.W, r.Y + r.H} }
func (r Rect) Size() Size { return Size{r.W, r.H} }

// Center returns the midpoint of the rectangle.
func (r Rect) Center() Pt { return Pt{r.X + r.W/2, r.Y + r.H/2} }

func (r Rect) Contains(p Pt) bool {
	return p.X >= r.X && p.Y >= r.Y && p.X <= r.X+r.W && p.Y <= r.Y+r.H
}

// Intersects reports whether the two rectangles overlap. Touching edges count
// as overlap so a band drawn exactly up to an item still picks it up.
func (r Rect) Intersects(o Rect) bool {
	return r.X <= o.X+o.W && o.X <= r.X+r.W && r.Y <= o.Y+o.H && o.Y <= r.Y+r.H
}

// Inset returns a rectangle inset by dx,dy on all sides (negative grows).
func (r Rect) Inset(dx, dy float32) Rect {
	return Rect{X: r.X + dx, Y: r.Y + dy, W: r.W - 2*dx, H: r.H - 2*dy}
}

// Union returns the minimal rect containing both.
func (r Rect) Union(o Rect) Rect {
	minX := min(r.X, o.X)
	minY := min(r.Y, o.Y)
	maxX := max(r.X+r.W, o.X+o.W)
	maxY := max(r.Y+r.H, o.Y+o.H)
	return Rect{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}
}

// FitWithin returns the uniform factor that scales src to fit inside bound
// without exceeding it in either axis. A zero src yields 1.
func FitWithin(src Size, bound Size) float32 {
	if src.IsZero() || bound.IsZero() {
		return 1
	}
	f := bound.W / src.W
	if g := bound.H / src.H; g < f {
		f = g
	}
	return f
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

// Round rounds v to n decimal places deterministically.
func Round(v float32, places int) float32 {
	if places < 0 {
		return v
	}
	pow := math.Pow(10, float64(places))
	return float32(math.Round(float64(v)*pow) / pow)
}
