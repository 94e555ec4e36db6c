/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package ui hosts a stage for one board directory. Session is the headless
// host shared by the desktop shell and the CLI; the Fyne widgets are only
// compiled with the "fyne" build tag.
package ui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"genstage/internal/backend"
	"genstage/internal/board"
	"genstage/internal/export"
	"genstage/internal/geom"
	"genstage/internal/imageload"
	applog "genstage/internal/log"
	"genstage/internal/stage"
	"genstage/internal/storage"
	"genstage/internal/telemetry"
)

// DefaultSaveDelay coalesces position reports into one manifest write.
const DefaultSaveDelay = 500 * time.Millisecond

// SessionOptions configures OpenSession.
type SessionOptions struct {
	Loop  stage.Loop
	Stage stage.Options
	// Fetch configures the image loader. Blobs and Cache are set by the session.
	Fetch imageload.Options
	// Remote mirrors positions to the layout service when set.
	Remote *backend.Client
	// Subject is recorded as updated_by on remote positions.
	Subject       string
	NoCache       bool
	CacheMaxBytes int64
	SaveDelay     time.Duration
}

// Session owns an open board and the stage showing it. Like the stage it is
// confined to the UI goroutine; background work posts back through the loop.
type Session struct {
	Handle *board.Handle
	Stage  *stage.Stage
	Blobs  *imageload.BlobStore

	loader    *imageload.Loader
	store     *storage.Store
	remote    *backend.Client
	subject   string
	loop      stage.Loop
	log       *slog.Logger
	saveDelay time.Duration

	pending    []stage.Item // uploads not yet in the manifest
	dirty      map[string]geom.Pt
	saveCancel func()
	modTime    time.Time

	bg sync.WaitGroup

	// OnStatus receives short user facing messages.
	OnStatus func(string)
	// OnSelectionChange is forwarded from the stage.
	OnSelectionChange func(stage.Selection)
}

// OpenSession opens the board at root, restores persisted positions and
// creates an unmounted stage for it.
func OpenSession(root string, opts SessionOptions) (*Session, error) {
	if opts.Loop == nil {
		return nil, errors.New("session: loop is required")
	}
	h, err := board.Open(root)
	if err != nil {
		return nil, err
	}
	s := &Session{
		Handle:    h,
		Blobs:     imageload.NewBlobStore(),
		remote:    opts.Remote,
		subject:   opts.Subject,
		loop:      opts.Loop,
		log:       applog.WithComponent("session").With(slog.String("board", h.Board.Name)),
		saveDelay: opts.SaveDelay,
		dirty:     map[string]geom.Pt{},
	}
	if s.saveDelay <= 0 {
		s.saveDelay = DefaultSaveDelay
	}
	if fi, err := os.Stat(h.ManifestPath); err == nil {
		s.modTime = fi.ModTime()
	}

	fetch := opts.Fetch
	fetch.Blobs = s.Blobs
	if !opts.NoCache {
		st, err := storage.Open(h.Root)
		if err != nil {
			// the cache is derived data; run without it
			s.log.Warn("local store unavailable", slog.String("error", err.Error()))
		} else {
			if opts.CacheMaxBytes > 0 {
				st.SetCacheLimit(opts.CacheMaxBytes)
			}
			s.store = st
			fetch.Cache = st
		}
	}
	s.loader = imageload.New(fetch)

	s.Stage = stage.New(opts.Loop, s.loader, opts.Stage, stage.Callbacks{
		OnPositionChange:  s.positionChanged,
		OnDownload:        s.download,
		OnDeleteError:     s.deleteError,
		OnUpscale:         s.upscale,
		OnRegenerate:      s.regenerate,
		OnLoadError:       s.loadError,
		OnSelectionChange: s.selectionChanged,
	})
	s.Stage.SetRevoker(s.Blobs)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.restorePositions(ctx)
	return s, nil
}

// Name returns the board name, used as the remote board key.
func (s *Session) Name() string { return s.Handle.Board.Name }

// Loader returns the image loader backing the stage.
func (s *Session) Loader() *imageload.Loader { return s.loader }

// restorePositions fills items that carry no position from the local layout
// table, then lets newer remote positions win.
func (s *Session) restorePositions(ctx context.Context) {
	stamps := map[string]time.Time{}
	if s.store != nil {
		ls, err := s.store.Layouts(ctx)
		if err != nil {
			s.log.Warn("read layouts", slog.String("error", err.Error()))
		}
		for id, l := range ls {
			it, ok := s.Handle.Board.Find(id)
			if !ok {
				continue
			}
			if it.Position == nil {
				s.Handle.Board.SetPosition(id, geom.Pt{X: l.X, Y: l.Y})
			}
			if it.Scale == 0 {
				s.Handle.Board.SetScale(id, l.Scale)
			}
			stamps[id] = l.UpdatedAt
		}
	}
	if s.remote == nil {
		return
	}
	ps, err := s.remote.Positions(ctx, s.Name())
	if errors.Is(err, backend.ErrNotFound) {
		return
	}
	if err != nil {
		s.log.Warn("fetch remote positions", slog.String("error", err.Error()))
		return
	}
	n := 0
	for _, p := range ps {
		if t, ok := stamps[p.ItemID]; ok && !p.UpdatedAt.After(t) {
			continue
		}
		if s.Handle.Board.SetPosition(p.ItemID, geom.Pt{X: p.X, Y: p.Y}) {
			s.Handle.Board.SetScale(p.ItemID, p.Scale)
			n++
		}
	}
	s.log.Info("remote positions applied", slog.Int("count", n))
}

// Items returns the list handed to the stage: manifest items followed by
// uploads still in flight.
func (s *Session) Items() []stage.Item {
	items, err := s.Handle.Board.StageItems()
	if err != nil {
		s.log.Error("board items", slog.String("error", err.Error()))
		items = nil
	}
	return append(items, s.pending...)
}

// Sync delivers the current item list to the stage.
func (s *Session) Sync() { s.Stage.Reconcile(s.Items()) }

// Reload rereads board.json when it changed on disk, e.g. after an external
// generator appended items. It reports whether anything was reloaded.
func (s *Session) Reload() (bool, error) {
	fi, err := os.Stat(s.Handle.ManifestPath)
	if err != nil {
		return false, err
	}
	if !fi.ModTime().After(s.modTime) {
		return false, nil
	}
	h, err := board.Open(s.Handle.Root)
	if err != nil {
		return false, err
	}
	// positions reported locally but not yet written survive the reload
	for id, p := range s.dirty {
		h.Board.SetPosition(id, p)
	}
	s.Handle.Board = h.Board
	s.modTime = fi.ModTime()
	s.Sync()
	return true, nil
}

func (s *Session) status(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if s.OnStatus != nil {
		s.OnStatus(msg)
	}
}

func (s *Session) positionChanged(id string, pos geom.Pt) {
	for i := range s.pending {
		if s.pending[i].ID == id {
			p := pos
			s.pending[i].Position = &p
			return
		}
	}
	if !s.Handle.Board.SetPosition(id, pos) {
		return
	}
	s.dirty[id] = pos
	s.scheduleSave()
	// echo the report back the way an external host would
	s.loop.Post(s.Sync)
}

func (s *Session) scheduleSave() {
	if s.saveCancel != nil {
		s.saveCancel()
	}
	s.saveCancel = s.loop.After(s.saveDelay, func() {
		s.saveCancel = nil
		if err := s.Flush(); err != nil {
			s.status("Save failed: %v", err)
		}
	})
}

// Flush writes pending position changes to the manifest, the local layout
// table and the layout service.
func (s *Session) Flush() error {
	if s.saveCancel != nil {
		s.saveCancel()
		s.saveCancel = nil
	}
	if len(s.dirty) == 0 {
		return nil
	}
	scales := make(map[string]float32, len(s.dirty))
	for id := range s.dirty {
		scale := float32(1)
		if n, ok := s.Stage.Node(id); ok {
			scale = n.Scale()
			s.Handle.Board.SetScale(id, scale)
		}
		scales[id] = scale
	}
	if err := board.Save(s.Handle); err != nil {
		return err
	}
	if fi, err := os.Stat(s.Handle.ManifestPath); err == nil {
		s.modTime = fi.ModTime()
	}
	layouts := make([]storage.Layout, 0, len(s.dirty))
	remote := make([]backend.Position, 0, len(s.dirty))
	for id, p := range s.dirty {
		scale := scales[id]
		layouts = append(layouts, storage.Layout{ItemID: id, X: p.X, Y: p.Y, Scale: scale})
		remote = append(remote, backend.Position{ItemID: id, X: p.X, Y: p.Y, Scale: scale, UpdatedBy: s.subject})
	}
	s.dirty = map[string]geom.Pt{}
	if s.store != nil {
		if err := s.store.SaveLayouts(context.Background(), layouts); err != nil {
			s.log.Warn("save layouts", slog.String("error", err.Error()))
		}
	}
	s.pushRemote(remote)
	return nil
}

func (s *Session) pushRemote(ps []backend.Position) {
	if s.remote == nil || len(ps) == 0 {
		return
	}
	name := s.Name()
	s.background(func(ctx context.Context) {
		if err := s.remote.PutPositions(ctx, name, ps); err != nil {
			s.log.Warn("push positions", slog.String("error", err.Error()), slog.Int("count", len(ps)))
		}
	})
}

// background runs fn off the UI goroutine with a bounded context.
func (s *Session) background(fn func(ctx context.Context)) {
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		fn(ctx)
	}()
}

// Wait blocks until background downloads, imports and pushes have finished.
func (s *Session) Wait() { s.bg.Wait() }

// Import shows the image at path as an uploading node, copies it into the
// board's assets folder and then promotes it to a success item.
func (s *Session) Import(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	id := "upload-" + uuid.NewString()[:8]
	s.pending = append(s.pending, stage.Uploading(id, s.Blobs.Put(data)))
	s.Sync()

	dst := filepath.Join(s.Handle.Root, "assets", id+strings.ToLower(filepath.Ext(path)))
	s.background(func(context.Context) {
		err := os.WriteFile(dst, data, 0o644)
		s.loop.Post(func() { s.finishImport(id, dst, err) })
	})
	return id, nil
}

func (s *Session) finishImport(id, dst string, err error) {
	var it stage.Item
	idx := -1
	for i, p := range s.pending {
		if p.ID == id {
			it, idx = p, i
			break
		}
	}
	if idx < 0 {
		return
	}
	s.pending = append(s.pending[:idx], s.pending[idx+1:]...)
	if err != nil {
		s.log.Error("import failed", slog.String("id", id), slog.String("error", err.Error()))
		it = stage.Failed(id, "Upload failed")
	} else {
		abs, aerr := filepath.Abs(dst)
		if aerr != nil {
			abs = dst
		}
		pos := it.Position
		it = stage.Success(id, abs)
		it.Position = pos
	}
	s.Handle.Board.Items = append(s.Handle.Board.Items, board.FromStage([]stage.Item{it})...)
	if it.Position != nil {
		s.dirty[id] = *it.Position
	}
	if err := board.Save(s.Handle); err != nil {
		s.status("Save failed: %v", err)
	}
	s.Sync()
}

func (s *Session) itemIDForURI(uri string) string {
	for _, it := range s.Handle.Board.Items {
		if it.RemoteURI == uri || it.LocalURI == uri {
			return it.ID
		}
	}
	return "image"
}

func (s *Session) download(uri string) {
	id := s.itemIDForURI(uri)
	out := filepath.Join(s.Handle.Root, "exports", export.FileName(id))
	telemetry.Event(telemetry.EventDownload, nil)
	s.background(func(ctx context.Context) {
		img, err := s.loader.Load(ctx, uri)
		if err == nil {
			err = export.SavePNG(out, img)
		}
		s.loop.Post(func() {
			if err != nil {
				s.log.Error("download failed", slog.String("id", id), slog.String("error", err.Error()))
				s.status("Download failed: %v", err)
				return
			}
			s.log.Info("downloaded", slog.String("id", id), slog.String("path", out))
			s.status("Saved %s", out)
		})
	})
}

func (s *Session) deleteError(id string) {
	telemetry.Event(telemetry.EventDeleteError, nil)
	removed := false
	for i, p := range s.pending {
		if p.ID == id {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			removed = true
			break
		}
	}
	if !removed {
		if !s.Handle.Board.Remove(id) {
			return
		}
		delete(s.dirty, id)
		if err := board.Save(s.Handle); err != nil {
			s.status("Save failed: %v", err)
		}
		if s.store != nil {
			if err := s.store.DeleteLayouts(context.Background(), id); err != nil {
				s.log.Warn("delete layout", slog.String("error", err.Error()))
			}
		}
		if s.remote != nil {
			name := s.Name()
			s.background(func(ctx context.Context) {
				if err := s.remote.DeletePosition(ctx, name, id); err != nil && !errors.Is(err, backend.ErrNotFound) {
					s.log.Warn("delete remote position", slog.String("error", err.Error()))
				}
			})
		}
	}
	s.loop.Post(s.Sync)
}

// The generator is external; upscale and regenerate only announce intent.
func (s *Session) upscale(uri string) {
	telemetry.Event(telemetry.EventUpscale, nil)
	s.log.Info("upscale requested", slog.String("id", s.itemIDForURI(uri)))
	s.status("Upscale requested for %s", s.itemIDForURI(uri))
}

func (s *Session) regenerate() {
	telemetry.Event(telemetry.EventRegenerate, nil)
	sel := s.Stage.Selection()
	s.log.Info("regenerate requested", slog.Any("ids", sel.IDs))
	s.status("Regenerate requested")
}

func (s *Session) loadError(id string, err error) {
	telemetry.Event(telemetry.EventLoadError, nil)
	s.log.Warn("image load failed", slog.String("id", id), slog.String("error", err.Error()))
	s.status("Could not load %s", id)
}

func (s *Session) selectionChanged(sel stage.Selection) {
	if s.OnSelectionChange != nil {
		s.OnSelectionChange(sel)
	}
}

// Arrange lays out the current multiple selection in a grid.
func (s *Session) Arrange() {
	n := len(s.Stage.Selection().IDs)
	s.Stage.Arrange()
	if n > 1 {
		telemetry.Count(telemetry.EventArrange, n)
	}
}

// entries returns the bitmaps to export: the selection when there is one,
// otherwise every loaded node.
func (s *Session) entries() []export.Entry {
	sel := s.Stage.Selection()
	var out []export.Entry
	for _, p := range s.Stage.Placements() {
		if p.Image == nil {
			continue
		}
		if len(sel.IDs) > 0 && !sel.Contains(p.ID) {
			continue
		}
		out = append(out, export.Entry{Caption: p.ID, Image: p.Image})
	}
	return out
}

// ExportContactSheet writes the loaded bitmaps to a PDF grid.
func (s *Session) ExportContactSheet(out string, opt export.PDFOptions) error {
	if opt.Title == "" {
		opt.Title = s.Name()
	}
	return export.ContactSheetPDF(out, s.entries(), opt)
}

// ExportArchive writes the loaded bitmaps to a zip of PNGs.
func (s *Session) ExportArchive(out string) error {
	return export.ArchivePNGs(out, s.entries())
}

// ExportBoardPNG renders the whole board as laid out on the stage.
func (s *Session) ExportBoardPNG(out string, opt export.BoardOptions) error {
	ps := s.Stage.Placements()
	if len(ps) == 0 {
		return errors.New("board is empty")
	}
	return export.SavePNG(out, export.RenderBoard(ps, opt))
}

// Close flushes pending writes, waits for background work and releases the
// local store. The stage itself is unmounted by its container.
func (s *Session) Close() error {
	err := s.Flush()
	s.bg.Wait()
	s.Blobs.RevokeAll()
	if s.store != nil {
		if cerr := s.store.Close(); err == nil {
			err = cerr
		}
		s.store = nil
	}
	return err
}
