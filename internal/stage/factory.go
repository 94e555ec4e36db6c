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

	"genstage/internal/geom"
)

const (
	loadingLabel   = "Generating…"
	uploadingLabel = "Uploading…"
	errorGlyph     = "!"
	defaultMessage = "Generation failed"
)

func (s *Stage) newLoadingNode(id string, pos geom.Pt) *Node {
	side := s.opts.PlaceholderSize
	return &Node{
		id:    id,
		kind:  KindLoading,
		pos:   pos,
		base:  geom.Size{W: side, H: side},
		scale: 1,
		label: loadingLabel,
	}
}

func (s *Stage) newUploadingNode(id string, img image.Image) *Node {
	tex := s.host.surface.NewTexture(img)
	return &Node{
		id:      id,
		kind:    KindUploading,
		base:    tex.Size(),
		scale:   s.fitScale(tex.Size()),
		texture: tex,
		label:   uploadingLabel,
		overlay: true,
	}
}

func (s *Stage) newSuccessNode(id string, img image.Image) *Node {
	tex := s.host.surface.NewTexture(img)
	return &Node{
		id:      id,
		kind:    KindSuccess,
		base:    tex.Size(),
		scale:   s.fitScale(tex.Size()),
		texture: tex,
	}
}

func (s *Stage) newErrorNode(id, message string, pos geom.Pt) *Node {
	if message == "" {
		message = defaultMessage
	}
	side := s.opts.PlaceholderSize
	return &Node{
		id:      id,
		kind:    KindError,
		pos:     pos,
		base:    geom.Size{W: side, H: side},
		scale:   1,
		glyph:   errorGlyph,
		message: message,
	}
}

// fitScale keeps a bitmap within FitFraction of the shorter viewport side.
// Bitmaps are never scaled up.
func (s *Stage) fitScale(sz geom.Size) float32 {
	view := s.vp.Size()
	side := min(view.W, view.H) * s.opts.FitFraction / s.vp.Scale()
	f := geom.FitWithin(sz, geom.Size{W: side, H: side})
	if f > 1 {
		return 1
	}
	return f
}
