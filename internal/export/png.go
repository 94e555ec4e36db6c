/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package export writes stage bitmaps out of the application: single PNG
// downloads, board snapshots, zip archives of a selection and PDF contact
// sheets.
package export

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	xdraw "golang.org/x/image/draw"

	"genstage/internal/geom"
	"genstage/internal/stage"
)

// Entry is one bitmap headed for an archive or contact sheet.
type Entry struct {
	Caption string
	Image   image.Image
}

// FileName derives a safe file name for an item's download.
func FileName(itemID string) string {
	var b strings.Builder
	for _, r := range itemID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	name := b.String()
	if name == "" {
		name = "image"
	}
	return "genstage-" + name + ".png"
}

// SavePNG encodes img to path through a temp file in the same directory.
func SavePNG(path string, img image.Image) error {
	if img == nil {
		return fmt.Errorf("no image to save")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%d", filepath.Base(path), rand.Int()))
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create png: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("encode png: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close png: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace png: %w", err)
	}
	return nil
}

// BoardOptions controls RenderBoard.
type BoardOptions struct {
	// Scale is output pixels per scene unit. Defaults to 1.
	Scale float64
	// Margin around the union of all placements, in output pixels.
	Margin     int
	Background color.RGBA
	// MaxSide caps the longer output side; Scale is reduced to fit.
	MaxSide int
	// Captions writes each item id along the bottom of its box.
	Captions bool
}

var (
	placeholderFill   = color.RGBA{R: 226, G: 228, B: 233, A: 255}
	placeholderStroke = color.RGBA{R: 150, G: 155, B: 165, A: 255}
	errorFill         = color.RGBA{R: 253, G: 236, B: 236, A: 255}
	errorStroke       = color.RGBA{R: 200, G: 40, B: 40, A: 255}
)

// RenderBoard draws placements bottom to top into one RGBA image covering
// their union. Placeholders and errors are drawn as tinted boxes.
func RenderBoard(ps []stage.Placement, opt BoardOptions) *image.RGBA {
	if opt.Scale <= 0 {
		opt.Scale = 1
	}
	if opt.Margin < 0 {
		opt.Margin = 0
	}
	if opt.Background == (color.RGBA{}) {
		opt.Background = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	}
	var union geom.Rect
	for i, p := range ps {
		if i == 0 {
			union = p.Rect
			continue
		}
		union = union.Union(p.Rect)
	}
	if opt.MaxSide > 0 {
		longest := math.Max(float64(union.W), float64(union.H)) * opt.Scale
		if longest > float64(opt.MaxSide) {
			opt.Scale *= float64(opt.MaxSide) / longest
		}
	}
	w := int(math.Ceil(float64(union.W)*opt.Scale)) + 2*opt.Margin
	h := int(math.Ceil(float64(union.H)*opt.Scale)) + 2*opt.Margin
	img := image.NewRGBA(image.Rect(0, 0, max(w, 1), max(h, 1)))
	fillRect(img, 0, 0, img.Bounds().Dx()-1, img.Bounds().Dy()-1, opt.Background)

	for _, p := range ps {
		x0 := opt.Margin + int(math.Round(float64(p.Rect.X-union.X)*opt.Scale))
		y0 := opt.Margin + int(math.Round(float64(p.Rect.Y-union.Y)*opt.Scale))
		x1 := x0 + int(math.Round(float64(p.Rect.W)*opt.Scale)) - 1
		y1 := y0 + int(math.Round(float64(p.Rect.H)*opt.Scale)) - 1
		switch {
		case p.Image != nil:
			xdraw.CatmullRom.Scale(img, image.Rect(x0, y0, x1+1, y1+1), p.Image, p.Image.Bounds(), xdraw.Over, nil)
		case p.Kind == stage.KindError:
			fillRect(img, x0, y0, x1, y1, errorFill)
			strokeRect(img, x0, y0, x1, y1, errorStroke)
			drawGlyph(img, x0, y0, x1, y1, "!", errorStroke)
		default:
			fillRect(img, x0, y0, x1, y1, placeholderFill)
			strokeRect(img, x0, y0, x1, y1, placeholderStroke)
		}
		if opt.Captions {
			drawLabel(img, x0, y0, x1, y1, p.ID)
		}
	}
	return img
}

// strokeRect draws a 1px axis-aligned rectangle border inclusive of endpoints.
func strokeRect(img *image.RGBA, x0, y0, x1, y1 int, col color.RGBA) {
	for x := x0; x <= x1; x++ {
		img.SetRGBA(x, y0, col)
		img.SetRGBA(x, y1, col)
	}
	for y := y0; y <= y1; y++ {
		img.SetRGBA(x0, y, col)
		img.SetRGBA(x1, y, col)
	}
}

func fillRect(img *image.RGBA, x0, y0, x1, y1 int, col color.RGBA) {
	if x1 < x0 {
		x0, x1 = x1, x0
	}
	if y1 < y0 {
		y0, y1 = y1, y0
	}
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			img.SetRGBA(x, y, col)
		}
	}
}
