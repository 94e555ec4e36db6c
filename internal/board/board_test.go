/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package board

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"genstage/internal/geom"
	"genstage/internal/stage"
)

func sampleBoard() Board {
	b := New("Sample")
	b.Items = []Item{
		{ID: "a", Kind: "loading"},
		{ID: "b", Kind: "success", RemoteURI: "https://img.example/b.png", Position: &Point{X: 10, Y: 20}},
		{ID: "c", Kind: "error", Message: "quota exceeded"},
	}
	return b
}

func TestInitCreatesStructureAndManifest(t *testing.T) {
	root := t.TempDir()
	h, err := Init(root, sampleBoard())
	if err != nil {
		t.Fatalf("Init error: %v", err)
	}
	for _, d := range standardSubDirs {
		if st, err := os.Stat(filepath.Join(root, d)); err != nil || !st.IsDir() {
			t.Fatalf("expected subdir %s: %v", d, err)
		}
	}
	data, err := os.ReadFile(h.ManifestPath)
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	var got Board
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Name != "Sample" || len(got.Items) != 3 || got.Version != CurrentVersion {
		t.Fatalf("manifest = %+v", got)
	}
}

func TestValidateRejectsBadManifests(t *testing.T) {
	cases := map[string]string{
		"missing name":        `{"version":1,"items":[]}`,
		"unknown kind":        `{"version":1,"name":"x","items":[{"id":"a","kind":"done"}]}`,
		"success without uri": `{"version":1,"name":"x","items":[{"id":"a","kind":"success"}]}`,
		"uploading empty uri": `{"version":1,"name":"x","items":[{"id":"a","kind":"uploading","local_uri":""}]}`,
		"empty id":            `{"version":1,"name":"x","items":[{"id":"","kind":"loading"}]}`,
		"zero scale":          `{"version":1,"name":"x","items":[{"id":"a","kind":"loading","scale":0}]}`,
		"not json":            `{ nope`,
	}
	for name, doc := range cases {
		if err := Validate([]byte(doc)); !errors.Is(err, ErrInvalid) {
			t.Errorf("%s: expected ErrInvalid, got %v", name, err)
		}
	}
	ok := `{"version":1,"name":"x","items":[{"id":"a","kind":"uploading","local_uri":"blob:genstage/1","position":{"x":1,"y":2},"scale":0.5}]}`
	if err := Validate([]byte(ok)); err != nil {
		t.Fatalf("valid manifest rejected: %v", err)
	}
}

func TestSaveRejectsInvalidBoard(t *testing.T) {
	h, err := Init(t.TempDir(), New("Valid"))
	if err != nil {
		t.Fatalf("Init error: %v", err)
	}
	h.Board.Items = append(h.Board.Items, Item{ID: "x", Kind: "success"})
	if err := Save(h); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	reopened, err := Open(h.Root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(reopened.Board.Items) != 0 {
		t.Fatalf("invalid board reached disk: %+v", reopened.Board)
	}
}

func TestSaveCreatesTimestampedBackup(t *testing.T) {
	h, err := Init(t.TempDir(), sampleBoard())
	if err != nil {
		t.Fatalf("Init error: %v", err)
	}
	h.Board.Name = "Renamed"
	if err := Save(h); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	backups, err := Backups(h.Root)
	if err != nil {
		t.Fatalf("Backups: %v", err)
	}
	if len(backups) != 1 {
		t.Fatalf("expected 1 backup, got %d", len(backups))
	}
	data, _ := os.ReadFile(backups[0])
	if !strings.Contains(string(data), `"Sample"`) {
		t.Fatalf("backup should hold the previous manifest")
	}
}

func TestOpenFallsBackToLatestBackupOnCorruption(t *testing.T) {
	h, err := Init(t.TempDir(), sampleBoard())
	if err != nil {
		t.Fatalf("Init error: %v", err)
	}
	// force a backup to exist
	if err := Save(h); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if err := os.WriteFile(h.ManifestPath, []byte("{ this is not json"), 0o644); err != nil {
		t.Fatalf("corrupt manifest: %v", err)
	}
	opened, err := Open(h.Root)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if opened.Board.Name != "Sample" {
		t.Fatalf("opened board name = %q", opened.Board.Name)
	}
}

func TestOpenWithoutBackupFails(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, ManifestFileName), []byte(`{"version":1}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Open(root); err == nil {
		t.Fatalf("expected error without backups")
	}
}

func TestAutosaveCrashSnapshotWritesFile(t *testing.T) {
	h, err := Init(t.TempDir(), sampleBoard())
	if err != nil {
		t.Fatalf("Init error: %v", err)
	}
	h.Board.Name = "Unsaved"
	path, err := AutosaveCrashSnapshot(h)
	if err != nil {
		t.Fatalf("AutosaveCrashSnapshot error: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	var got Board
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if got.Name != "Unsaved" {
		t.Fatalf("snapshot name = %q", got.Name)
	}
	onDisk, _ := Open(h.Root)
	if onDisk.Board.Name != "Sample" {
		t.Fatalf("snapshot must not replace board.json")
	}
}

func TestStageItemsRoundTrip(t *testing.T) {
	b := sampleBoard()
	items, err := b.StageItems()
	if err != nil {
		t.Fatalf("StageItems: %v", err)
	}
	if len(items) != 3 || items[1].Kind != stage.KindSuccess || items[1].Position == nil || items[1].Position.X != 10 {
		t.Fatalf("items = %+v", items)
	}
	if items[0].Position != nil {
		t.Fatalf("loading item should have no position")
	}
	back := FromStage(items)
	if back[2].Kind != "error" || back[2].Message != "quota exceeded" || back[1].Position.Y != 20 {
		t.Fatalf("FromStage = %+v", back)
	}
	b.Items[0].Kind = "bogus"
	if _, err := b.StageItems(); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestSetPositionAndRemove(t *testing.T) {
	b := sampleBoard()
	if !b.SetPosition("a", geom.Pt{X: 3, Y: 4}) {
		t.Fatalf("SetPosition on known id returned false")
	}
	if it, _ := b.Find("a"); it.Position == nil || it.Position.X != 3 {
		t.Fatalf("position not recorded: %+v", it)
	}
	if b.SetPosition("zzz", geom.Pt{}) {
		t.Fatalf("SetPosition on unknown id returned true")
	}
	if !b.Remove("c") || len(b.Items) != 2 {
		t.Fatalf("Remove failed: %+v", b.Items)
	}
	if _, ok := b.Find("c"); ok {
		t.Fatalf("c still present")
	}
}

func TestSetScaleFlowsIntoStageItems(t *testing.T) {
	b := sampleBoard()
	if b.SetScale("a", 0) || b.SetScale("zzz", 2) {
		t.Fatalf("SetScale accepted a zero scale or an unknown id")
	}
	if !b.SetScale("a", 1.5) {
		t.Fatalf("SetScale on known id returned false")
	}
	items, err := b.StageItems()
	if err != nil {
		t.Fatal(err)
	}
	if items[0].ID != "a" || items[0].Scale != 1.5 {
		t.Fatalf("scale not carried to stage: %+v", items[0])
	}
	if back := FromStage(items); back[0].Scale != 1.5 {
		t.Fatalf("scale lost converting back: %+v", back[0])
	}
}
