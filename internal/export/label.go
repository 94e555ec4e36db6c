/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	labelFace = basicfont.Face7x13
	labelInk  = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	labelBack = color.RGBA{R: 0, G: 0, B: 0, A: 140}
)

// labelWidth is the advance of s in whole pixels.
func labelWidth(s string) int {
	d := &font.Drawer{Face: labelFace}
	return d.MeasureString(s).Ceil()
}

// fitLabel trims s with a trailing ellipsis until it fits maxW pixels.
func fitLabel(s string, maxW int) string {
	if labelWidth(s) <= maxW {
		return s
	}
	r := []rune(s)
	for len(r) > 0 {
		r = r[:len(r)-1]
		t := string(r) + "..."
		if labelWidth(t) <= maxW {
			return t
		}
	}
	return ""
}

// drawLabel writes text on a translucent strip along the bottom edge of the
// box (x0,y0)-(x1,y1). Boxes shorter than one text line get nothing.
func drawLabel(img *image.RGBA, x0, y0, x1, y1 int, text string) {
	m := labelFace.Metrics()
	lineH := m.Height.Ceil() + 4
	if y1-y0+1 < lineH || x1-x0+1 < 16 {
		return
	}
	text = fitLabel(text, x1-x0+1-8)
	if text == "" {
		return
	}
	strip := image.Rect(x0, y1-lineH+1, x1+1, y1+1).Intersect(img.Bounds())
	draw.Draw(img, strip, image.NewUniform(labelBack), image.Point{}, draw.Over)
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(labelInk),
		Face: labelFace,
		Dot:  fixed.P(x0+4, y1-2-m.Descent.Ceil()),
	}
	d.DrawString(text)
}

// drawGlyph centres a single marker string inside the box.
func drawGlyph(img *image.RGBA, x0, y0, x1, y1 int, glyph string, col color.RGBA) {
	w := labelWidth(glyph)
	m := labelFace.Metrics()
	if x1-x0+1 < w || y1-y0+1 < m.Height.Ceil() {
		return
	}
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: labelFace,
		Dot:  fixed.P((x0+x1-w)/2, (y0+y1)/2+m.Ascent.Ceil()/2),
	}
	d.DrawString(glyph)
}
