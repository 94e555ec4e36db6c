/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"archive/zip"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"genstage/internal/geom"
	"genstage/internal/stage"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	fillRect(img, 0, 0, w-1, h-1, c)
	return img
}

func TestFileName(t *testing.T) {
	cases := map[string]string{
		"abc-1":     "genstage-abc-1.png",
		"../../etc": "genstage-______etc.png",
		"":          "genstage-image.png",
	}
	for in, want := range cases {
		if got := FileName(in); got != want {
			t.Errorf("FileName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSavePNGWritesDecodableFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "nested", "a.png")
	if err := SavePNG(out, solid(8, 4, color.RGBA{R: 10, A: 255})); err != nil {
		t.Fatalf("SavePNG: %v", err)
	}
	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 8 || b.Dy() != 4 {
		t.Fatalf("bounds = %v", b)
	}
	if err := SavePNG(out, nil); err == nil {
		t.Fatalf("expected error for nil image")
	}
	ents, _ := os.ReadDir(filepath.Dir(out))
	if len(ents) != 1 {
		t.Fatalf("temp files left behind: %v", ents)
	}
}

func TestRenderBoardComposesPlacements(t *testing.T) {
	red := color.RGBA{R: 255, A: 255}
	ps := []stage.Placement{
		{ID: "a", Kind: stage.KindSuccess, Rect: geom.R(100, 100, 20, 10), Image: solid(20, 10, red)},
		{ID: "b", Kind: stage.KindLoading, Rect: geom.R(140, 100, 20, 20)},
		{ID: "c", Kind: stage.KindError, Rect: geom.R(100, 130, 10, 10)},
	}
	img := RenderBoard(ps, BoardOptions{Margin: 2})
	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 44 {
		t.Fatalf("bounds = %v, want 64x44", b)
	}
	if got := img.RGBAAt(12, 7); got != red {
		t.Fatalf("success pixel = %v", got)
	}
	if got := img.RGBAAt(52, 12); got != placeholderFill {
		t.Fatalf("placeholder pixel = %v", got)
	}
	if got := img.RGBAAt(2, 32); got != errorStroke {
		t.Fatalf("error border pixel = %v", got)
	}
	if got := img.RGBAAt(0, 0); got != (color.RGBA{R: 255, G: 255, B: 255, A: 255}) {
		t.Fatalf("margin pixel = %v", got)
	}
}

func TestRenderBoardMaxSide(t *testing.T) {
	ps := []stage.Placement{{ID: "a", Kind: stage.KindLoading, Rect: geom.R(0, 0, 1000, 500)}}
	img := RenderBoard(ps, BoardOptions{MaxSide: 100})
	if b := img.Bounds(); b.Dx() != 100 || b.Dy() != 50 {
		t.Fatalf("bounds = %v, want 100x50", b)
	}
}

func TestRenderBoardCaptions(t *testing.T) {
	grey := color.RGBA{R: 128, G: 128, B: 128, A: 255}
	ps := []stage.Placement{{ID: "r1", Kind: stage.KindSuccess, Rect: geom.R(0, 0, 120, 60), Image: solid(120, 60, grey)}}

	plain := RenderBoard(ps, BoardOptions{})
	captioned := RenderBoard(ps, BoardOptions{Captions: true})
	if got := plain.RGBAAt(60, 58); got != grey {
		t.Fatalf("plain bottom pixel = %v", got)
	}
	if got := captioned.RGBAAt(60, 58); got == grey {
		t.Fatalf("expected caption strip over the bottom edge")
	}
	if got := captioned.RGBAAt(60, 5); got != grey {
		t.Fatalf("caption must not touch the top of the box, got %v", got)
	}
}

func TestFitLabel(t *testing.T) {
	if got := fitLabel("short", 200); got != "short" {
		t.Fatalf("fitLabel short = %q", got)
	}
	got := fitLabel("a-rather-long-identifier", 60)
	if labelWidth(got) > 60 || len(got) < 4 || got[len(got)-3:] != "..." {
		t.Fatalf("fitLabel long = %q", got)
	}
}

func TestArchivePNGs(t *testing.T) {
	out := filepath.Join(t.TempDir(), "sel.zip")
	entries := []Entry{
		{Caption: "first", Image: solid(4, 4, color.RGBA{G: 255, A: 255})},
		{Caption: "second", Image: solid(2, 6, color.RGBA{B: 255, A: 255})},
	}
	if err := ArchivePNGs(out, entries); err != nil {
		t.Fatalf("ArchivePNGs: %v", err)
	}
	zr, err := zip.OpenReader(out)
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	defer zr.Close()
	names := map[string]*zip.File{}
	for _, f := range zr.File {
		names[f.Name] = f
	}
	for _, n := range []string{"1.png", "2.png", "manifest.json"} {
		if names[n] == nil {
			t.Fatalf("zip missing %s", n)
		}
	}
	rc, _ := names["manifest.json"].Open()
	b, _ := io.ReadAll(rc)
	_ = rc.Close()
	var man archiveManifest
	if err := json.Unmarshal(b, &man); err != nil {
		t.Fatalf("manifest: %v", err)
	}
	if man.Count != 2 || man.Files[1].Caption != "second" {
		t.Fatalf("manifest = %+v", man)
	}
	if err := ArchivePNGs(out, nil); err == nil {
		t.Fatalf("expected error for empty archive")
	}
}

func TestContactSheetPDF(t *testing.T) {
	out := filepath.Join(t.TempDir(), "sheet.pdf")
	var entries []Entry
	for i := 0; i < 14; i++ {
		entries = append(entries, Entry{Caption: strings.Repeat("x", i*4), Image: solid(30+i, 20, color.RGBA{R: uint8(i * 10), A: 255})})
	}
	entries = append(entries, Entry{Caption: "placeholder"})
	if err := ContactSheetPDF(out, entries, PDFOptions{Title: "Session", Captions: true, Columns: 4}); err != nil {
		t.Fatalf("ContactSheetPDF: %v", err)
	}
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.HasPrefix(string(b), "%PDF-") {
		t.Fatalf("not a pdf")
	}
	if err := ContactSheetPDF(out, nil, PDFOptions{}); err == nil {
		t.Fatalf("expected error for empty sheet")
	}
	if err := ContactSheetPDF(out, entries, PDFOptions{PageSize: "tabloid"}); err == nil {
		t.Fatalf("expected error for unknown page size")
	}
}

func TestLookupPageSize(t *testing.T) {
	ps, err := LookupPageSize("Letter-Landscape")
	if err != nil {
		t.Fatalf("LookupPageSize: %v", err)
	}
	if ps.W != 792 || ps.H != 612 {
		t.Fatalf("landscape letter = %+v", ps)
	}
	if ps, _ := LookupPageSize(""); ps.Name != "A4" {
		t.Fatalf("default = %+v", ps)
	}
}

func TestFitBox(t *testing.T) {
	w, h := fitBox(200, 100, 50, 50)
	if w != 50 || h != 25 {
		t.Fatalf("fitBox = %v x %v", w, h)
	}
}
