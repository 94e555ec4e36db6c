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
	"image"
	"log/slog"
	"time"

	"genstage/internal/geom"
	applog "genstage/internal/log"
	"genstage/internal/undo"
)

// Loader fetches and decodes the bitmap behind a URI. Load is called off the
// UI goroutine.
type Loader interface {
	Load(ctx context.Context, uri string) (image.Image, error)
}

// Revoker releases locally created bitmap URIs.
type Revoker interface {
	Revoke(uri string)
}

// Options tunes layout constants and behavior. Zero fields take the value
// from DefaultOptions.
type Options struct {
	PlaceholderSize float32
	CascadeBase     geom.Pt
	CascadeStep     geom.Pt
	FitFraction     float32
	ToolbarMargin   float32
	ArrangeSpacing  float32
	HandleSize      float32
	DragDeadZone    float32
	SnapThreshold   float32 // container pixels
	Snap            bool
	RetryAfter      time.Duration
	PulsePeriod     time.Duration
	PulseTick       time.Duration
	UndoDepth       int
	// UndoCoalesce merges transforms of the same nodes committed within
	// this window into one undo step. Zero keeps every step.
	UndoCoalesce time.Duration
	// Go runs a load. Defaults to starting a goroutine.
	Go func(func())
}

func DefaultOptions() Options {
	return Options{
		PlaceholderSize: 300,
		CascadeBase:     geom.Pt{X: 40, Y: 40},
		CascadeStep:     geom.Pt{X: 32, Y: 32},
		FitFraction:     0.4,
		ToolbarMargin:   12,
		ArrangeSpacing:  24,
		HandleSize:      10,
		DragDeadZone:    4,
		SnapThreshold:   6,
		Snap:            true,
		RetryAfter:      5 * time.Second,
		PulsePeriod:     1200 * time.Millisecond,
		PulseTick:       50 * time.Millisecond,
		UndoDepth:       100,
		Go:              func(fn func()) { go fn() },
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.PlaceholderSize <= 0 {
		o.PlaceholderSize = d.PlaceholderSize
	}
	if o.CascadeBase == (geom.Pt{}) {
		o.CascadeBase = d.CascadeBase
	}
	if o.CascadeStep == (geom.Pt{}) {
		o.CascadeStep = d.CascadeStep
	}
	if o.FitFraction <= 0 {
		o.FitFraction = d.FitFraction
	}
	if o.ToolbarMargin <= 0 {
		o.ToolbarMargin = d.ToolbarMargin
	}
	if o.ArrangeSpacing <= 0 {
		o.ArrangeSpacing = d.ArrangeSpacing
	}
	if o.HandleSize <= 0 {
		o.HandleSize = d.HandleSize
	}
	if o.DragDeadZone <= 0 {
		o.DragDeadZone = d.DragDeadZone
	}
	if o.SnapThreshold <= 0 {
		o.SnapThreshold = d.SnapThreshold
	}
	if o.RetryAfter <= 0 {
		o.RetryAfter = d.RetryAfter
	}
	if o.PulsePeriod <= 0 {
		o.PulsePeriod = d.PulsePeriod
	}
	if o.PulseTick <= 0 {
		o.PulseTick = d.PulseTick
	}
	if o.UndoDepth <= 0 {
		o.UndoDepth = d.UndoDepth
	}
	if o.Go == nil {
		o.Go = d.Go
	}
	return o
}

// Callbacks are the host notifications. Any of them may be nil.
type Callbacks struct {
	OnPositionChange func(id string, pos geom.Pt)
	OnDownload       func(uri string)
	OnDeleteError    func(id string)
	OnUpscale        func(uri string)
	OnRegenerate     func()
	OnLoadError      func(id string, err error)
	// OnSelectionChange fires after every selection change.
	OnSelectionChange func(Selection)
}

// entry is the side-table record for one item id.
type entry struct {
	node *Node
	kind Kind
	anim *Pulse
	// source is the URI the node's bitmap came from.
	source string
	// declared is the last position seen from the host.
	declared *geom.Pt
	// reported is a local move sent to the host and not yet echoed back.
	reported *geom.Pt
}

// Stage is the canvas core. It is not safe for concurrent use; every method
// must run on the UI goroutine that drives its Loop.
type Stage struct {
	opts   Options
	cb     Callbacks
	loop   Loop
	loader Loader
	blobs  Revoker
	log    *slog.Logger

	host *host
	vp   *Viewport

	entries map[string]*entry
	order   []string // bottom to top

	latest     []Item
	latestByID map[string]Item

	inflight map[string]bool
	failed   map[string]failure
	local    map[string]string // id -> owned local bitmap URI

	ctx    context.Context
	cancel context.CancelFunc
	epoch  int // bumped on unmount; stale completions are dropped

	sel     Selection
	gesture gesture
	guides  []geom.Guide
	toolbar Toolbar
	history *undo.Manager

	tickCancel func()
}

// New creates an unmounted stage.
func New(loop Loop, loader Loader, opts Options, cb Callbacks) *Stage {
	opts = opts.withDefaults()
	return &Stage{
		opts:       opts,
		cb:         cb,
		loop:       loop,
		loader:     loader,
		log:        applog.WithComponent("stage"),
		host:       &host{loop: loop, log: applog.WithComponent("stage.host")},
		vp:         NewViewport(),
		entries:    map[string]*entry{},
		latestByID: map[string]Item{},
		inflight:   map[string]bool{},
		failed:     map[string]failure{},
		local:      map[string]string{},
		history:    undo.NewManager(undo.Config{MaxDepth: opts.UndoDepth, MinInterval: opts.UndoCoalesce}),
	}
}

// SetRevoker installs the store that owns local bitmap URIs.
func (s *Stage) SetRevoker(r Revoker) { s.blobs = r }

// SetSnap toggles smart-guide snapping while dragging.
func (s *Stage) SetSnap(on bool) { s.opts.Snap = on }

func (s *Stage) Viewport() *Viewport { return s.vp }

// Mounted reports whether a surface is attached.
func (s *Stage) Mounted() bool { return s.host.ready() }

// Surface returns the attached surface or nil.
func (s *Stage) Surface() *Surface {
	if !s.host.ready() {
		return nil
	}
	return s.host.surface
}

// Mount attaches the stage to c. If c has no size yet the attach is retried
// on the loop until it does. Items delivered before the surface exists are
// reconciled as soon as it does.
func (s *Stage) Mount(c Container) error {
	if err := s.host.mount(c, s.onSurfaceReady); err != nil {
		s.log.Warn("mount rejected", slog.String("error", err.Error()))
		return err
	}
	return nil
}

func (s *Stage) onSurfaceReady() {
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.vp.SetSize(s.host.surface.Size())
	s.reconcile()
}

// Resize propagates a new container size to the surface and viewport.
func (s *Stage) Resize(size geom.Size) error {
	if err := s.host.resize(size); err != nil {
		return err
	}
	s.vp.SetSize(size)
	s.refreshToolbar()
	s.host.invalidate()
	return nil
}

// Unmount stops animations, releases local bitmaps and destroys the surface.
// It is safe to call more than once.
func (s *Stage) Unmount() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.stopTicker()
	for id := range s.entries {
		s.destroyEntry(id)
	}
	s.order = nil
	for id := range s.local {
		s.revokeLocal(id)
	}
	s.inflight = map[string]bool{}
	s.epoch++
	s.gesture = gesture{}
	s.guides = nil
	s.history.Clear()
	s.setSelection(Selection{})
	s.host.unmount()
}

// Node returns the live node for id.
func (s *Stage) Node(id string) (*Node, bool) {
	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	return e.node, true
}

// Len reports how many nodes are on the stage.
func (s *Stage) Len() int { return len(s.entries) }

// Order returns ids from bottom to top.
func (s *Stage) Order() []string { return append([]string(nil), s.order...) }

func (s *Stage) raise(id string) {
	for i, v := range s.order {
		if v == id {
			copy(s.order[i:], s.order[i+1:])
			s.order[len(s.order)-1] = id
			return
		}
	}
}

func (s *Stage) now() time.Time { return s.loop.Now() }

// changed refreshes derived state and requests a redraw.
func (s *Stage) changed() {
	s.refreshToolbar()
	s.host.invalidate()
}
