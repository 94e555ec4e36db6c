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

	"genstage/internal/geom"
)

// ErrNodeDestroyed is returned when geometry is requested from a node that
// has already been torn down.
var ErrNodeDestroyed = errors.New("stage: node destroyed")

// Node is the scene object rendering one item. Position is the world-space
// top-left corner; the rendered size is the base size times Scale.
type Node struct {
	id      string
	kind    Kind
	pos     geom.Pt
	base    geom.Size
	scale   float32
	texture *Texture

	label   string
	message string
	glyph   string
	overlay bool // dim layer over the bitmap

	destroyed bool
}

func (n *Node) ID() string        { return n.id }
func (n *Node) Kind() Kind        { return n.kind }
func (n *Node) Position() geom.Pt { return n.pos }
func (n *Node) Scale() float32    { return n.scale }
func (n *Node) Texture() *Texture { return n.texture }
func (n *Node) Label() string     { return n.label }
func (n *Node) Message() string   { return n.message }
func (n *Node) Glyph() string     { return n.glyph }
func (n *Node) HasOverlay() bool  { return n.overlay }
func (n *Node) Destroyed() bool   { return n.destroyed }

// Size returns the rendered world-space size.
func (n *Node) Size() geom.Size { return n.base.Scale(n.scale) }

// Bounds returns the world-space rectangle of the node.
func (n *Node) Bounds() (geom.Rect, error) {
	if n == nil || n.destroyed {
		return geom.Rect{}, ErrNodeDestroyed
	}
	s := n.Size()
	return geom.Rect{X: n.pos.X, Y: n.pos.Y, W: s.W, H: s.H}, nil
}

// Selectable reports whether a click may select the node.
func (n *Node) Selectable() bool { return n.kind == KindSuccess || n.kind == KindError }

func (n *Node) destroy() {
	if n.destroyed {
		return
	}
	n.destroyed = true
	if n.texture != nil {
		n.texture.Release()
		n.texture = nil
	}
}

// Texture is a bitmap uploaded to a Surface. Released textures keep their
// size but drop the pixels.
type Texture struct {
	img      image.Image
	size     geom.Size
	surface  *Surface
	released bool
}

func (t *Texture) Image() image.Image {
	if t == nil || t.released {
		return nil
	}
	return t.img
}

func (t *Texture) Size() geom.Size { return t.size }

func (t *Texture) Released() bool { return t == nil || t.released }

func (t *Texture) Release() {
	if t == nil || t.released {
		return
	}
	t.released = true
	t.img = nil
	if t.surface != nil {
		delete(t.surface.textures, t)
	}
}
