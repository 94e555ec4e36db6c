/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"bytes"
	"fmt"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"github.com/jung-kurt/gofpdf"
)

// PDFOptions controls ContactSheetPDF. Units are points.
type PDFOptions struct {
	Title    string
	PageSize string // see LookupPageSize; default A4
	Columns  int    // default 3
	Margin   float64
	Gap      float64
	Captions bool
}

const captionSize = 9.0

// ContactSheetPDF lays the entries out in a grid, as many rows per page as
// fit, and writes the PDF to outPath.
func ContactSheetPDF(outPath string, entries []Entry, opt PDFOptions) error {
	if len(entries) == 0 {
		return fmt.Errorf("nothing to export")
	}
	size, err := LookupPageSize(opt.PageSize)
	if err != nil {
		return err
	}
	cols := opt.Columns
	if cols <= 0 {
		cols = 3
	}
	margin := opt.Margin
	if margin <= 0 {
		margin = 36
	}
	gap := opt.Gap
	if gap <= 0 {
		gap = 12
	}

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "pt",
		Size:    gofpdf.SizeType{Wd: size.W, Ht: size.H},
	})
	pdf.SetTitle(opt.Title, true)
	pdf.SetCreator("GenStage", false)
	pdf.SetAutoPageBreak(false, 0)

	top := margin
	if opt.Title != "" {
		top += 24
	}
	cellW := (size.W - 2*margin - float64(cols-1)*gap) / float64(cols)
	cellH := cellW
	captionH := 0.0
	if opt.Captions {
		captionH = captionSize * 1.6
	}
	rowH := cellH + captionH
	rows := int(math.Floor((size.H - top - margin + gap) / (rowH + gap)))
	if rows < 1 {
		rows = 1
	}
	perPage := rows * cols

	var buf bytes.Buffer
	for i, e := range entries {
		slot := i % perPage
		if slot == 0 {
			pdf.AddPage()
			if opt.Title != "" {
				pdf.SetFont("Helvetica", "B", 14)
				pdf.Text(margin, margin+14, opt.Title)
			}
		}
		cx := margin + float64(slot%cols)*(cellW+gap)
		cy := top + float64(slot/cols)*(rowH+gap)

		if e.Image != nil {
			buf.Reset()
			if err := png.Encode(&buf, e.Image); err != nil {
				return fmt.Errorf("encode entry %d: %w", i, err)
			}
			name := fmt.Sprintf("entry-%d", i)
			pdf.RegisterImageOptionsReader(name, gofpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(buf.Bytes()))
			b := e.Image.Bounds()
			w, h := fitBox(float64(b.Dx()), float64(b.Dy()), cellW, cellH)
			pdf.ImageOptions(name, cx+(cellW-w)/2, cy+(cellH-h)/2, w, h, false, gofpdf.ImageOptions{ImageType: "PNG"}, 0, "")
		} else {
			pdf.SetDrawColor(150, 155, 165)
			pdf.SetLineWidth(0.5)
			pdf.Rect(cx, cy, cellW, cellH, "D")
		}
		if opt.Captions && e.Caption != "" {
			pdf.SetFont("Helvetica", "", captionSize)
			pdf.Text(cx, cy+cellH+captionSize*1.3, truncate(pdf, e.Caption, cellW))
		}
		if err := pdf.Error(); err != nil {
			return fmt.Errorf("layout entry %d: %w", i, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	if err := pdf.OutputFileAndClose(outPath); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

// fitBox scales (w,h) to fit inside (maxW,maxH) keeping the aspect ratio.
func fitBox(w, h, maxW, maxH float64) (float64, float64) {
	if w <= 0 || h <= 0 {
		return maxW, maxH
	}
	s := math.Min(maxW/w, maxH/h)
	return w * s, h * s
}

func truncate(pdf *gofpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	r := []rune(s)
	for len(r) > 1 && pdf.GetStringWidth(string(r)+"...") > width {
		r = r[:len(r)-1]
	}
	return string(r) + "..."
}
