/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package ui

import (
	"time"

	"genstage/internal/geom"
	"genstage/internal/stage"
)

// VirtualContainer is an off-screen stage container with a fixed size.
type VirtualContainer struct {
	size    geom.Size
	surface *stage.Surface
	frames  int
}

func NewVirtualContainer(w, h float32) *VirtualContainer {
	return &VirtualContainer{size: geom.Size{W: w, H: h}}
}

func (c *VirtualContainer) Size() geom.Size                { return c.size }
func (c *VirtualContainer) Surface() *stage.Surface        { return c.surface }
func (c *VirtualContainer) AttachSurface(s *stage.Surface) { c.surface = s }
func (c *VirtualContainer) DetachSurface()                 { c.surface = nil }
func (c *VirtualContainer) Invalidate()                    { c.frames++ }

// Frames reports how many redraws were requested.
func (c *VirtualContainer) Frames() int { return c.frames }

// Headless is a session mounted on a virtual container and driven by a
// manual loop. Loads run inline so Load returns with every bitmap resolved.
type Headless struct {
	*Session
	Loop      *stage.ManualLoop
	Container *VirtualContainer
}

// OpenHeadless opens the board at root for batch work such as exports.
func OpenHeadless(root string, opts SessionOptions) (*Headless, error) {
	loop := stage.NewManualLoop(time.Now())
	opts.Loop = loop
	opts.Stage.Go = func(fn func()) { fn() }
	s, err := OpenSession(root, opts)
	if err != nil {
		return nil, err
	}
	h := &Headless{Session: s, Loop: loop, Container: NewVirtualContainer(1600, 1200)}
	if err := s.Stage.Mount(h.Container); err != nil {
		_ = s.Close()
		return nil, err
	}
	return h, nil
}

// Load reconciles the board and runs every resulting completion.
func (h *Headless) Load() {
	h.Sync()
	h.Loop.Drain()
}

// Close unmounts the stage and closes the session.
func (h *Headless) Close() error {
	h.Loop.Drain()
	err := h.Session.Close()
	h.Stage.Unmount()
	return err
}
