/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package stage

import (
	"image"
	"log/slog"
	"time"

	"genstage/internal/geom"
)

// Reconcile makes the scene match items. It never blocks: bitmap loads are
// started in the background and applied on the loop when they finish. Calling
// it repeatedly with an unchanged list is a no-op.
func (s *Stage) Reconcile(items []Item) {
	s.latest = append(s.latest[:0:0], items...)
	s.latestByID = make(map[string]Item, len(items))
	for _, it := range s.latest {
		if _, dup := s.latestByID[it.ID]; !dup {
			s.latestByID[it.ID] = it
		}
	}
	if !s.host.ready() {
		return
	}
	s.reconcile()
}

// Items returns the most recent list handed to Reconcile.
func (s *Stage) Items() []Item { return append([]Item(nil), s.latest...) }

func (s *Stage) reconcile() {
	present := make(map[string]bool, len(s.latest))
	for i, it := range s.latest {
		if err := it.Validate(); err != nil {
			s.log.Warn("skipping item", slog.String("error", err.Error()))
			continue
		}
		if present[it.ID] {
			s.log.Warn("duplicate item id", slog.String("id", it.ID))
			continue
		}
		present[it.ID] = true
		switch it.Kind {
		case KindLoading:
			s.reconcileLoading(i, it)
		case KindUploading:
			s.reconcileUploading(it)
		case KindSuccess:
			s.reconcileSuccess(it)
		case KindError:
			s.reconcileError(i, it)
		}
	}
	for id := range s.entries {
		if !present[id] {
			s.destroyEntry(id)
			s.history.Forget(id)
			s.revokeLocal(id)
		}
	}
	for id := range s.local {
		if !present[id] {
			s.revokeLocal(id)
		}
	}
	s.ensureTicker()
	s.changed()
}

func (s *Stage) reconcileLoading(i int, it Item) {
	e := s.entries[it.ID]
	if e == nil {
		pos := resolvePosition(nil, it.Position, s.cascade(i))
		e = &entry{node: s.newLoadingNode(it.ID, pos), kind: KindLoading, declared: copyPt(it.Position)}
		e.anim = s.newPulse()
		s.insert(it.ID, e)
		return
	}
	if e.kind == KindLoading && e.anim == nil {
		e.anim = s.newPulse()
	}
	s.reconcilePosition(e, it.Position)
}

func (s *Stage) reconcileUploading(it Item) {
	e := s.entries[it.ID]
	if e != nil && e.kind == KindUploading && e.source == it.LocalURI {
		if e.anim == nil {
			e.anim = s.newPulse()
		}
		s.reconcilePosition(e, it.Position)
		return
	}
	if e != nil && e.kind != KindLoading && e.kind != KindUploading {
		s.reconcilePosition(e, it.Position)
		return
	}
	if prev, ok := s.local[it.ID]; ok && prev != it.LocalURI {
		s.revokeLocal(it.ID)
	}
	s.local[it.ID] = it.LocalURI
	uri := it.LocalURI
	s.load(it.ID, uri, func(img image.Image) bool { return s.completeUploading(it.ID, uri, img) })
}

func (s *Stage) reconcileSuccess(it Item) {
	e := s.entries[it.ID]
	if e != nil && e.kind == KindSuccess && e.source == it.RemoteURI {
		s.reconcilePosition(e, it.Position)
		return
	}
	uri := it.RemoteURI
	s.load(it.ID, uri, func(img image.Image) bool { return s.completeSuccess(it.ID, uri, img) })
}

func (s *Stage) reconcileError(i int, it Item) {
	e := s.entries[it.ID]
	if e != nil && e.kind == KindError {
		if it.Message != "" && e.node.message != it.Message {
			e.node.message = it.Message
		}
		s.reconcilePosition(e, it.Position)
		return
	}
	captured, reported := s.capture(e)
	pos := resolvePosition(captured, it.Position, s.cascade(i))
	ne := &entry{node: s.newErrorNode(it.ID, it.Message, pos), kind: KindError, declared: copyPt(it.Position), reported: reported}
	s.replace(it.ID, ne)
}

// failure records the source that last failed to load for an id. Only a
// retry of that same source waits out the back-off.
type failure struct {
	uri   string
	until time.Time
}

// load fetches uri unless a fetch for id is in flight or the same uri
// failed recently.
func (s *Stage) load(id, uri string, done func(image.Image) bool) {
	if s.inflight[id] {
		return
	}
	if f, ok := s.failed[id]; ok && f.uri == uri && s.now().Before(f.until) {
		return
	}
	s.inflight[id] = true
	ctx := s.ctx
	epoch := s.epoch
	loader := s.loader
	s.log.Debug("load start", slog.String("id", id), slog.String("uri", uri))
	s.opts.Go(func() {
		img, err := loader.Load(ctx, uri)
		s.loop.Post(func() {
			if epoch != s.epoch {
				return
			}
			delete(s.inflight, id)
			if err != nil {
				s.failed[id] = failure{uri: uri, until: s.now().Add(s.opts.RetryAfter)}
				s.log.Warn("load failed", slog.String("id", id), slog.String("uri", uri), slog.String("error", err.Error()))
				if s.cb.OnLoadError != nil {
					s.cb.OnLoadError(id, err)
				}
				if s.latestByID[id].Source() != uri {
					// a newer source arrived while this one was in flight
					s.reconcile()
					return
				}
				s.loop.After(s.opts.RetryAfter, func() {
					if epoch == s.epoch && s.host.ready() {
						s.reconcile()
					}
				})
				return
			}
			delete(s.failed, id)
			if !s.host.ready() {
				return
			}
			if !done(img) {
				// superseded while in flight; pick up the newer item
				s.reconcile()
				return
			}
			s.ensureTicker()
			s.changed()
		})
	})
}

func (s *Stage) completeUploading(id, uri string, img image.Image) bool {
	it, ok := s.latestByID[id]
	if !ok || it.Kind != KindUploading || it.LocalURI != uri {
		return false
	}
	prev := s.entries[id]
	captured, reported := s.capture(prev)
	n := s.newUploadingNode(id, img)
	if it.Scale > 0 {
		n.scale = it.Scale
	}
	n.pos = resolvePosition(captured, it.Position, s.centered(n.Size(), 0))
	e := &entry{node: n, kind: KindUploading, source: uri, declared: copyPt(it.Position), reported: reported}
	e.anim = s.newPulse()
	s.replace(id, e)
	return true
}

func (s *Stage) completeSuccess(id, uri string, img image.Image) bool {
	it, ok := s.latestByID[id]
	if !ok || it.Kind != KindSuccess || it.RemoteURI != uri {
		return false
	}
	prev := s.entries[id]
	captured, reported := s.capture(prev)
	n := s.newSuccessNode(id, img)
	if it.Scale > 0 {
		n.scale = it.Scale
	}
	n.pos = resolvePosition(captured, it.Position, s.centered(n.Size(), s.indexOf(id)))
	e := &entry{node: n, kind: KindSuccess, source: uri, declared: copyPt(it.Position), reported: reported}
	s.replace(id, e)
	s.revokeLocal(id)
	return true
}

// capture returns the predecessor's position and pending report, if any.
func (s *Stage) capture(e *entry) (*geom.Pt, *geom.Pt) {
	if e == nil || e.node == nil || e.node.destroyed {
		return nil, nil
	}
	p := e.node.pos
	return &p, e.reported
}

// reconcilePosition applies a host-declared position unless it is unchanged
// since last seen or a local move is still awaiting its echo.
func (s *Stage) reconcilePosition(e *entry, declared *geom.Pt) {
	if declared == nil {
		return
	}
	if e.reported != nil {
		if declared.Near(*e.reported, positionEpsilon) {
			e.reported = nil
			e.declared = copyPt(declared)
		}
		return
	}
	if e.declared != nil && e.declared.Near(*declared, positionEpsilon) {
		return
	}
	e.declared = copyPt(declared)
	e.node.pos = *declared
}

const positionEpsilon = 0.01

func resolvePosition(captured, declared *geom.Pt, def geom.Pt) geom.Pt {
	if captured != nil {
		return *captured
	}
	if declared != nil {
		return *declared
	}
	return def
}

func copyPt(p *geom.Pt) *geom.Pt {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

// cascade offsets placeholders by list index so they do not stack exactly.
func (s *Stage) cascade(i int) geom.Pt {
	return s.opts.CascadeBase.Add(s.opts.CascadeStep.Mul(float32(i)))
}

// centered places a node of the given size in the middle of the visible area,
// nudged by i cascade steps.
func (s *Stage) centered(size geom.Size, i int) geom.Pt {
	c := s.vp.ToWorld(s.vp.Center())
	return geom.Pt{X: c.X - size.W/2, Y: c.Y - size.H/2}.Add(s.opts.CascadeStep.Mul(float32(i)))
}

func (s *Stage) indexOf(id string) int {
	for i, it := range s.latest {
		if it.ID == id {
			return i
		}
	}
	return 0
}

// insert adds a new entry on top of the stacking order.
func (s *Stage) insert(id string, e *entry) {
	s.entries[id] = e
	s.order = append(s.order, id)
}

// replace swaps the entry for id, keeping its stacking slot.
func (s *Stage) replace(id string, e *entry) {
	if _, ok := s.entries[id]; !ok {
		s.insert(id, e)
		return
	}
	s.teardown(id)
	s.entries[id] = e
}

// destroyEntry removes id from the scene entirely.
func (s *Stage) destroyEntry(id string) {
	if _, ok := s.entries[id]; !ok {
		return
	}
	s.teardown(id)
	delete(s.entries, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// teardown stops the animation before destroying the node and drops id from
// selection and any gesture targeting it.
func (s *Stage) teardown(id string) {
	e := s.entries[id]
	if e.anim != nil {
		e.anim.Stop()
		e.anim = nil
	}
	e.node.destroy()
	if s.gesture.target == id {
		s.gesture = gesture{}
		s.guides = nil
	}
	s.deselect(id)
}

func (s *Stage) revokeLocal(id string) {
	uri, ok := s.local[id]
	if !ok {
		return
	}
	delete(s.local, id)
	if s.blobs != nil && uri != "" {
		s.blobs.Revoke(uri)
	}
}

func (s *Stage) newPulse() *Pulse {
	return startPulse(s.now(), s.opts.PulsePeriod, 0.35, 1)
}

// PauseAnimations stops every placeholder pulse. The next Reconcile restarts
// them in place.
func (s *Stage) PauseAnimations() {
	for _, e := range s.entries {
		if e.anim != nil {
			e.anim.Stop()
			e.anim = nil
		}
	}
	s.stopTicker()
}

// ActiveAnimations reports how many pulses are running.
func (s *Stage) ActiveAnimations() int {
	n := 0
	for _, e := range s.entries {
		if e.anim.Running() {
			n++
		}
	}
	return n
}

// ensureTicker keeps redrawing while any pulse runs.
func (s *Stage) ensureTicker() {
	if s.tickCancel != nil || s.ActiveAnimations() == 0 || !s.host.ready() {
		return
	}
	s.tickCancel = s.loop.After(s.opts.PulseTick, s.tick)
}

func (s *Stage) tick() {
	s.tickCancel = nil
	if s.ActiveAnimations() == 0 || !s.host.ready() {
		return
	}
	s.host.invalidate()
	s.tickCancel = s.loop.After(s.opts.PulseTick, s.tick)
}

func (s *Stage) stopTicker() {
	if s.tickCancel != nil {
		s.tickCancel()
		s.tickCancel = nil
	}
}
