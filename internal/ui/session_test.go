/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package ui

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genstage/internal/backend"
	"genstage/internal/board"
	"genstage/internal/export"
	"genstage/internal/geom"
	"genstage/internal/stage"
	"genstage/internal/storage"
)

func writePNG(t *testing.T, path string, w, h int, c color.Color) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

// newBoard creates a board with two results and one failed slot.
func newBoard(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	a := filepath.Join(t.TempDir(), "a.png")
	b := filepath.Join(t.TempDir(), "b.png")
	writePNG(t, a, 80, 60, color.RGBA{R: 200, A: 255})
	writePNG(t, b, 40, 40, color.RGBA{B: 200, A: 255})
	bd := board.New("moodboard")
	bd.Items = []board.Item{
		{ID: "r1", Kind: "success", RemoteURI: a, Position: &board.Point{X: 100, Y: 100}},
		{ID: "r2", Kind: "success", RemoteURI: b, Position: &board.Point{X: 400, Y: 100}},
		{ID: "e1", Kind: "error", Message: "content policy", Position: &board.Point{X: 100, Y: 400}},
	}
	_, err := board.Init(root, bd)
	require.NoError(t, err)
	return root
}

func openLoaded(t *testing.T, root string, opts SessionOptions) *Headless {
	t.Helper()
	h, err := OpenHeadless(root, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	h.Load()
	return h
}

func TestHeadlessLoadsEveryItem(t *testing.T) {
	h := openLoaded(t, newBoard(t), SessionOptions{})

	assert.Equal(t, 3, h.Stage.Len())
	ps := h.Stage.Placements()
	require.Len(t, ps, 3)
	images := 0
	for _, p := range ps {
		if p.Image != nil {
			images++
		}
	}
	assert.Equal(t, 2, images)
	assert.Positive(t, h.Container.Frames())
}

func TestDragIsPersistedAfterSaveDelay(t *testing.T) {
	root := newBoard(t)
	h := openLoaded(t, root, SessionOptions{})

	n, ok := h.Stage.Node("r2")
	require.True(t, ok)
	b, err := n.Bounds()
	require.NoError(t, err)
	from := h.Stage.Viewport().ToScreen(b.Center())
	to := from.Add(geom.Pt{X: 50, Y: 30})
	h.Stage.PointerDown(from)
	h.Stage.PointerMove(to)
	h.Stage.PointerUp(to)
	h.Loop.Drain()

	onDisk, err := board.Open(root)
	require.NoError(t, err)
	it, _ := onDisk.Board.Find("r2")
	assert.Equal(t, float32(400), it.Position.X, "not written before the save delay")

	h.Loop.Advance(DefaultSaveDelay)
	onDisk, err = board.Open(root)
	require.NoError(t, err)
	it, _ = onDisk.Board.Find("r2")
	assert.InDelta(t, 450, it.Position.X, 0.01)
	assert.InDelta(t, 130, it.Position.Y, 0.01)

	require.NoError(t, h.Session.Close())
	st, err := storage.Open(root)
	require.NoError(t, err)
	defer st.Close()
	ls, err := st.Layouts(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 450, ls["r2"].X, 0.01)
}

func TestStoredLayoutFillsMissingPosition(t *testing.T) {
	root := newBoard(t)
	st, err := storage.Open(root)
	require.NoError(t, err)
	require.NoError(t, st.SaveLayout(context.Background(), storage.Layout{ItemID: "r1", X: 7, Y: 9, Scale: 0.5}))
	require.NoError(t, st.SaveLayout(context.Background(), storage.Layout{ItemID: "gone", X: 1, Y: 1}))
	require.NoError(t, st.Close())

	hd, err := board.Open(root)
	require.NoError(t, err)
	hd.Board.Items[0].Position = nil
	require.NoError(t, board.Save(hd))

	h := openLoaded(t, root, SessionOptions{})
	n, ok := h.Stage.Node("r1")
	require.True(t, ok)
	assert.Equal(t, geom.Pt{X: 7, Y: 9}, n.Position())
	assert.InDelta(t, 0.5, n.Scale(), 1e-6)
}

func TestResizeIsPersistedAndRestored(t *testing.T) {
	root := newBoard(t)
	h := openLoaded(t, root, SessionOptions{})
	n, ok := h.Stage.Node("r2")
	require.True(t, ok)
	before := n.Scale()

	h.Stage.Select("r2")
	b, err := n.Bounds()
	require.NoError(t, err)
	from := h.Stage.Viewport().ToScreen(geom.Pt{X: b.X + b.W, Y: b.Y + b.H})
	to := from.Add(geom.Pt{X: 40, Y: 40})
	h.Stage.PointerDown(from)
	h.Stage.PointerMove(to)
	h.Stage.PointerUp(to)
	h.Loop.Drain()
	after := n.Scale()
	require.Greater(t, after, before)

	h.Loop.Advance(DefaultSaveDelay)
	require.NoError(t, h.Session.Close())
	onDisk, err := board.Open(root)
	require.NoError(t, err)
	it, _ := onDisk.Board.Find("r2")
	assert.InDelta(t, after, it.Scale, 1e-4)

	h2 := openLoaded(t, root, SessionOptions{})
	n2, ok := h2.Stage.Node("r2")
	require.True(t, ok)
	assert.InDelta(t, after, n2.Scale(), 1e-4)
}

func TestDeleteErrorRemovesItem(t *testing.T) {
	root := newBoard(t)
	h := openLoaded(t, root, SessionOptions{})

	h.Stage.Select("e1")
	require.Equal(t, stage.ShapeError, h.Stage.Selection().Shape)
	h.Stage.DeleteError()
	h.Loop.Drain()

	_, ok := h.Stage.Node("e1")
	assert.False(t, ok)
	onDisk, err := board.Open(root)
	require.NoError(t, err)
	_, found := onDisk.Board.Find("e1")
	assert.False(t, found)
}

func TestImportPromotesUploadToSuccess(t *testing.T) {
	root := newBoard(t)
	h := openLoaded(t, root, SessionOptions{})
	src := filepath.Join(t.TempDir(), "mine.png")
	writePNG(t, src, 20, 20, color.White)

	id, err := h.Import(src)
	require.NoError(t, err)
	h.Loop.Drain()
	n, ok := h.Stage.Node(id)
	require.True(t, ok)
	assert.Equal(t, stage.KindUploading, n.Kind())
	assert.Equal(t, 1, h.Blobs.Len())

	h.Wait()
	h.Loop.Drain()

	n, ok = h.Stage.Node(id)
	require.True(t, ok)
	assert.Equal(t, stage.KindSuccess, n.Kind())
	assert.Zero(t, h.Blobs.Len(), "local bitmap revoked once superseded")
	assert.FileExists(t, filepath.Join(root, "assets", id+".png"))

	onDisk, err := board.Open(root)
	require.NoError(t, err)
	it, found := onDisk.Board.Find(id)
	require.True(t, found)
	assert.Equal(t, "success", it.Kind)
}

func TestDownloadWritesPNG(t *testing.T) {
	root := newBoard(t)
	var msgs []string
	h := openLoaded(t, root, SessionOptions{})
	h.OnStatus = func(m string) { msgs = append(msgs, m) }

	h.Stage.Select("r1")
	require.Equal(t, 1, h.Stage.Download())
	h.Wait()
	h.Loop.Drain()

	out := filepath.Join(root, "exports", export.FileName("r1"))
	assert.FileExists(t, out)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], out)
}

func TestReloadPicksUpExternalItems(t *testing.T) {
	root := newBoard(t)
	h := openLoaded(t, root, SessionOptions{})

	changed, err := h.Reload()
	require.NoError(t, err)
	assert.False(t, changed)

	ext, err := board.Open(root)
	require.NoError(t, err)
	ext.Board.Items = append(ext.Board.Items, board.Item{ID: "l1", Kind: "loading"})
	require.NoError(t, board.Save(ext))
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(ext.ManifestPath, later, later))

	changed, err = h.Reload()
	require.NoError(t, err)
	assert.True(t, changed)
	h.Loop.Drain()
	n, ok := h.Stage.Node("l1")
	require.True(t, ok)
	assert.Equal(t, stage.KindLoading, n.Kind())
}

func TestExports(t *testing.T) {
	h := openLoaded(t, newBoard(t), SessionOptions{})
	dir := t.TempDir()

	require.NoError(t, h.ExportContactSheet(filepath.Join(dir, "sheet.pdf"), export.PDFOptions{Captions: true}))
	require.NoError(t, h.ExportArchive(filepath.Join(dir, "board.zip")))
	require.NoError(t, h.ExportBoardPNG(filepath.Join(dir, "board.png"), export.BoardOptions{Margin: 8}))
	for _, name := range []string{"sheet.pdf", "board.zip", "board.png"} {
		fi, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err)
		assert.Positive(t, fi.Size(), name)
	}
}

func TestFlushPushesRemotePositions(t *testing.T) {
	var (
		mu   sync.Mutex
		puts []backend.PositionsEnvelope
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(backend.PositionsEnvelope{Positions: []backend.Position{
				{ItemID: "r1", X: 11, Y: 22, Scale: 1, UpdatedAt: time.Now()},
			}})
			return
		}
		body, _ := io.ReadAll(r.Body)
		var env backend.PositionsEnvelope
		_ = json.Unmarshal(body, &env)
		mu.Lock()
		puts = append(puts, env)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	h := openLoaded(t, newBoard(t), SessionOptions{
		Remote:  backend.NewClient(srv.URL, "tok", time.Second),
		Subject: "tester",
	})
	n, ok := h.Stage.Node("r1")
	require.True(t, ok)
	assert.Equal(t, geom.Pt{X: 11, Y: 22}, n.Position(), "remote position applied on open")

	h.Stage.SelectIDs([]string{"r1", "r2"})
	h.Arrange()
	require.NoError(t, h.Flush())
	h.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, puts, 1)
	assert.Len(t, puts[0].Positions, 2)
	for _, p := range puts[0].Positions {
		assert.Equal(t, "tester", p.UpdatedBy)
	}
}
