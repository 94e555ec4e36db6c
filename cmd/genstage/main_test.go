/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"genstage/internal/board"
	"genstage/internal/config"
	"genstage/internal/version"
)

func runCLI(t *testing.T, args ...string) (int, string) {
	t.Helper()
	var buf bytes.Buffer
	var open *board.Handle
	code := run(args, &buf, &open)
	return code, buf.String()
}

func stubConfig(t *testing.T) {
	t.Helper()
	old := loadConfig
	loadConfig = func() (config.AppConfig, string, error) { return config.Defaults(), "", nil }
	t.Cleanup(func() { loadConfig = old })
}

func writeTestPNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	for i := range img.Pix {
		img.Pix[i] = 0xC0
	}
	img.Set(0, 0, color.Black)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
}

func TestVersionAndUsage(t *testing.T) {
	code, out := runCLI(t, "version")
	if code != 0 || strings.TrimSpace(out) != version.String() {
		t.Fatalf("version: code %d out %q", code, out)
	}
	code, out = runCLI(t, "bogus")
	if code != 2 || !strings.Contains(out, "Usage:") {
		t.Fatalf("unknown command: code %d out %q", code, out)
	}
	code, out = runCLI(t, "init", "only-dir")
	if code != 2 || !strings.Contains(out, "init requires <dir> and <name>") {
		t.Fatalf("missing args: code %d out %q", code, out)
	}
}

func TestInitAddValidate(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "board")
	if code, out := runCLI(t, "init", dir, "Night Shots"); code != 0 {
		t.Fatalf("init failed: %s", out)
	}
	if code, out := runCLI(t, "add", dir, "https://img.example.com/a.png"); code != 0 || !strings.Contains(out, "Added r1") {
		t.Fatalf("add failed: %d %s", code, out)
	}
	if code, _ := runCLI(t, "add", dir, "https://img.example.com/b.png", "r1"); code != 1 {
		t.Fatalf("duplicate id must fail")
	}
	if code, out := runCLI(t, "validate", dir); code != 0 || strings.TrimSpace(out) != "OK" {
		t.Fatalf("validate failed: %d %s", code, out)
	}

	// break the manifest: success without a uri
	bad := `{"version":1,"name":"x","items":[{"id":"r1","kind":"success"}]}`
	if err := os.WriteFile(filepath.Join(dir, board.ManifestFileName), []byte(bad), 0o644); err != nil {
		t.Fatal(err)
	}
	if code, out := runCLI(t, "validate", dir); code != 1 || !strings.Contains(out, "Error:") {
		t.Fatalf("expected validation failure, got %d %s", code, out)
	}
}

func TestExports(t *testing.T) {
	stubConfig(t)
	dir := filepath.Join(t.TempDir(), "board")
	if code, out := runCLI(t, "init", dir, "Export"); code != 0 {
		t.Fatalf("init failed: %s", out)
	}
	img := filepath.Join(t.TempDir(), "a.png")
	writeTestPNG(t, img)
	if code, out := runCLI(t, "add", dir, img); code != 0 {
		t.Fatalf("add failed: %s", out)
	}

	outDir := t.TempDir()
	for _, tc := range []struct{ cmd, file string }{
		{"export-pdf", "sheet.pdf"},
		{"export-png", "board.png"},
		{"export-zip", "images.zip"},
	} {
		dst := filepath.Join(outDir, tc.file)
		code, out := runCLI(t, tc.cmd, dir, dst)
		if code != 0 {
			t.Fatalf("%s failed: %s", tc.cmd, out)
		}
		fi, err := os.Stat(dst)
		if err != nil || fi.Size() == 0 {
			t.Fatalf("%s: expected non-empty output, err=%v", tc.cmd, err)
		}
	}
}

func TestExportEmptyBoardFails(t *testing.T) {
	stubConfig(t)
	dir := filepath.Join(t.TempDir(), "board")
	if code, out := runCLI(t, "init", dir, "Empty"); code != 0 {
		t.Fatalf("init failed: %s", out)
	}
	if code, _ := runCLI(t, "export-pdf", dir, filepath.Join(t.TempDir(), "x.pdf")); code != 1 {
		t.Fatalf("exporting an empty board must fail")
	}
}
