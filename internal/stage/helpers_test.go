/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package stage

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"genstage/internal/geom"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeContainer struct {
	size        geom.Size
	surface     *Surface
	invalidated int
	detached    int
}

func (c *fakeContainer) Size() geom.Size          { return c.size }
func (c *fakeContainer) Surface() *Surface        { return c.surface }
func (c *fakeContainer) AttachSurface(s *Surface) { c.surface = s }
func (c *fakeContainer) DetachSurface()           { c.surface = nil; c.detached++ }
func (c *fakeContainer) Invalidate()              { c.invalidated++ }

// fakeLoader serves solid images whose size is registered per URI.
type fakeLoader struct {
	mu    sync.Mutex
	sizes map[string]image.Point
	fail  map[string]error
	calls map[string]int
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{sizes: map[string]image.Point{}, fail: map[string]error{}, calls: map[string]int{}}
}

func (l *fakeLoader) with(uri string, w, h int) *fakeLoader {
	l.sizes[uri] = image.Pt(w, h)
	return l
}

func (l *fakeLoader) Load(_ context.Context, uri string) (image.Image, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls[uri]++
	if err := l.fail[uri]; err != nil {
		return nil, err
	}
	sz, ok := l.sizes[uri]
	if !ok {
		return nil, errors.New("not found")
	}
	img := image.NewRGBA(image.Rect(0, 0, sz.X, sz.Y))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	return img, nil
}

func (l *fakeLoader) count(uri string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[uri]
}

type fakeRevoker struct{ revoked []string }

func (r *fakeRevoker) Revoke(uri string) { r.revoked = append(r.revoked, uri) }

type recorder struct {
	positions map[string][]geom.Pt
	loadErrs  map[string]error
	downloads []string
	deleted   []string
	upscaled  []string
	regen     int
}

func newRecorder() *recorder {
	return &recorder{positions: map[string][]geom.Pt{}, loadErrs: map[string]error{}}
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnPositionChange: func(id string, p geom.Pt) { r.positions[id] = append(r.positions[id], p) },
		OnLoadError:      func(id string, err error) { r.loadErrs[id] = err },
		OnDownload:       func(uri string) { r.downloads = append(r.downloads, uri) },
		OnDeleteError:    func(id string) { r.deleted = append(r.deleted, id) },
		OnUpscale:        func(uri string) { r.upscaled = append(r.upscaled, uri) },
		OnRegenerate:     func() { r.regen++ },
	}
}

type harness struct {
	t      *testing.T
	loop   *ManualLoop
	loader *fakeLoader
	rec    *recorder
	blobs  *fakeRevoker
	box    *fakeContainer
	st     *Stage
}

// newHarness returns a mounted stage over a 1000x800 container whose loads
// run synchronously and complete on the next Drain.
func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, nil)
}

func newHarnessWith(t *testing.T, tune func(*Options)) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		loop:   NewManualLoop(t0),
		loader: newFakeLoader(),
		rec:    newRecorder(),
		blobs:  &fakeRevoker{},
		box:    &fakeContainer{size: geom.Size{W: 1000, H: 800}},
	}
	opts := DefaultOptions()
	opts.Go = func(fn func()) { fn() }
	if tune != nil {
		tune(&opts)
	}
	h.st = New(h.loop, h.loader, opts, h.rec.callbacks())
	h.st.SetRevoker(h.blobs)
	if err := h.st.Mount(h.box); err != nil {
		t.Fatalf("mount: %v", err)
	}
	return h
}

func (h *harness) reconcile(items ...Item) {
	h.st.Reconcile(items)
	h.loop.Drain()
}

func (h *harness) node(id string) *Node {
	h.t.Helper()
	n, ok := h.st.Node(id)
	if !ok {
		h.t.Fatalf("node %q missing", id)
	}
	return n
}

func (h *harness) drag(from, to geom.Pt) {
	h.st.PointerDown(from)
	h.st.PointerMove(to)
	h.st.PointerUp(to)
}

func (h *harness) click(p geom.Pt) {
	h.st.PointerDown(p)
	h.st.PointerUp(p)
}

func near(a, b float32) bool {
	d := a - b
	return d < 0.001 && d > -0.001
}
