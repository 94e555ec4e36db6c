/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package stage

import (
	"errors"
	"image"
	"log/slog"
	"time"

	"genstage/internal/geom"
)

var (
	// ErrAlreadyMounted is returned when a container already holds a surface.
	ErrAlreadyMounted = errors.New("stage: container already holds a surface")
	// ErrNotMounted is returned by operations that need a live surface.
	ErrNotMounted = errors.New("stage: not mounted")
)

// mountPollInterval is how often Mount re-checks a container that has no
// measurable size yet.
const mountPollInterval = 16 * time.Millisecond

// Container is the UI panel a stage renders into.
type Container interface {
	Size() geom.Size
	Surface() *Surface
	AttachSurface(*Surface)
	DetachSurface()
	// Invalidate asks the renderer to draw a new frame.
	Invalidate()
}

// Surface is the rendering surface attached to a container. It owns every
// texture created on it and releases them when destroyed.
type Surface struct {
	size      geom.Size
	textures  map[*Texture]struct{}
	destroyed bool
}

func newSurface(size geom.Size) *Surface {
	return &Surface{size: size, textures: map[*Texture]struct{}{}}
}

func (s *Surface) Size() geom.Size { return s.size }

func (s *Surface) Destroyed() bool { return s.destroyed }

// Textures reports how many live textures the surface holds.
func (s *Surface) Textures() int { return len(s.textures) }

// NewTexture uploads img to the surface.
func (s *Surface) NewTexture(img image.Image) *Texture {
	var sz geom.Size
	if img != nil {
		b := img.Bounds()
		sz = geom.Size{W: float32(b.Dx()), H: float32(b.Dy())}
	}
	t := &Texture{img: img, size: sz, surface: s}
	if !s.destroyed {
		s.textures[t] = struct{}{}
	}
	return t
}

func (s *Surface) destroy() {
	if s.destroyed {
		return
	}
	for t := range s.textures {
		t.surface = nil
		t.Release()
	}
	s.textures = map[*Texture]struct{}{}
	s.destroyed = true
}

// host manages the surface lifecycle for one container.
type host struct {
	loop      Loop
	log       *slog.Logger
	container Container
	surface   *Surface
	cancel    func()
	onReady   func()
}

func (h *host) mount(c Container, onReady func()) error {
	if h.container != nil {
		return ErrAlreadyMounted
	}
	if c.Surface() != nil {
		return ErrAlreadyMounted
	}
	h.container = c
	h.onReady = onReady
	h.attach()
	return nil
}

// attach creates the surface once the container has a non-zero size,
// polling until it does.
func (h *host) attach() {
	h.cancel = nil
	if h.container == nil {
		return
	}
	size := h.container.Size()
	if size.IsZero() {
		h.cancel = h.loop.After(mountPollInterval, h.attach)
		return
	}
	surf := newSurface(size)
	if h.container.Surface() != nil {
		surf.destroy()
		h.log.Warn("container already holds a surface; dropping new instance")
		h.container = nil
		return
	}
	h.surface = surf
	h.container.AttachSurface(surf)
	h.log.Debug("surface attached", slog.Float64("w", float64(size.W)), slog.Float64("h", float64(size.H)))
	if h.onReady != nil {
		h.onReady()
	}
}

func (h *host) resize(size geom.Size) error {
	if !h.ready() {
		return ErrNotMounted
	}
	h.surface.size = size
	return nil
}

func (h *host) unmount() {
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
	if h.container != nil && h.surface != nil {
		h.container.DetachSurface()
	}
	if h.surface != nil {
		h.surface.destroy()
	}
	h.surface = nil
	h.container = nil
	h.onReady = nil
}

func (h *host) ready() bool { return h.surface != nil && !h.surface.destroyed }

func (h *host) mounting() bool { return h.container != nil }

func (h *host) invalidate() {
	if h.ready() && h.container != nil {
		h.container.Invalidate()
	}
}
