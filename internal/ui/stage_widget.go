//go:build fyne && cgo

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package ui

import (
	"image"
	"image/color"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"genstage/internal/geom"
	"genstage/internal/stage"
)

var (
	stageBackground  = color.RGBA{R: 30, G: 30, B: 34, A: 255}
	placeholderFill  = color.RGBA{R: 70, G: 72, B: 80, A: 255}
	errorFill        = color.RGBA{R: 90, G: 36, B: 40, A: 255}
	errorStroke      = color.RGBA{R: 230, G: 80, B: 80, A: 255}
	selectionStroke  = color.RGBA{R: 0, G: 170, B: 255, A: 255}
	bandFill         = color.RGBA{R: 0, G: 170, B: 255, A: 40}
	guideStroke      = color.RGBA{R: 255, G: 0, B: 170, A: 220}
	staticHandleFill = color.RGBA{R: 160, G: 160, B: 170, A: 255}
	labelColor       = color.RGBA{R: 235, G: 235, B: 240, A: 255}
)

// StageWidget draws a stage frame and feeds pointer input back into it.
type StageWidget struct {
	widget.BaseWidget

	st      *stage.Stage
	surface *stage.Surface
	// drag state: Fyne reports drags without a press event
	dragging bool
	last     fyne.Position

	download, upscale, arrange, deleteErr *widget.Button
	singleBar, multiBar, errorBar         *fyne.Container
}

// NewStageWidget creates the widget. The stage is mounted with Mount once
// the widget is on screen.
func NewStageWidget(st *stage.Stage) *StageWidget {
	w := &StageWidget{st: st}
	w.download = widget.NewButtonWithIcon("Download", theme.DownloadIcon(), func() { st.Download() })
	w.upscale = widget.NewButtonWithIcon("Upscale", theme.ZoomFitIcon(), st.Upscale)
	w.arrange = widget.NewButtonWithIcon("Arrange", theme.GridIcon(), nil)
	w.deleteErr = widget.NewButtonWithIcon("Delete", theme.DeleteIcon(), st.DeleteError)
	multiDownload := widget.NewButtonWithIcon("Download all", theme.DownloadIcon(), func() { st.Download() })
	w.singleBar = container.NewHBox(w.download, w.upscale)
	w.multiBar = container.NewHBox(multiDownload, w.arrange)
	w.errorBar = container.NewHBox(w.deleteErr)
	w.ExtendBaseWidget(w)
	return w
}

// SetArrange installs the handler of the multi-selection Arrange button.
func (w *StageWidget) SetArrange(fn func()) { w.arrange.OnTapped = fn }

// Mount attaches the stage. It waits for the widget to get a size.
func (w *StageWidget) Mount() error { return w.st.Mount(stageContainer{w}) }

// Resize forwards size changes to the mounted stage.
func (w *StageWidget) Resize(size fyne.Size) {
	w.BaseWidget.Resize(size)
	if w.st.Mounted() {
		_ = w.st.Resize(geom.Size{W: size.Width, H: size.Height})
	}
}

// stageContainer adapts the widget to stage.Container; the widget's own
// Size method returns a fyne.Size.
type stageContainer struct{ w *StageWidget }

func (c stageContainer) Size() geom.Size {
	s := c.w.Size()
	return geom.Size{W: s.Width, H: s.Height}
}
func (c stageContainer) Surface() *stage.Surface        { return c.w.surface }
func (c stageContainer) AttachSurface(s *stage.Surface) { c.w.surface = s }
func (c stageContainer) DetachSurface()                 { c.w.surface = nil }
func (c stageContainer) Invalidate()                    { c.w.Refresh() }

func pt(p fyne.Position) geom.Pt { return geom.Pt{X: p.X, Y: p.Y} }

func (w *StageWidget) Tapped(e *fyne.PointEvent) {
	w.st.PointerDown(pt(e.Position))
	w.st.PointerUp(pt(e.Position))
}

func (w *StageWidget) Dragged(e *fyne.DragEvent) {
	if !w.dragging {
		w.dragging = true
		start := e.Position.Subtract(e.Dragged)
		w.st.PointerDown(pt(start))
	}
	w.last = e.Position
	w.st.PointerMove(pt(e.Position))
}

func (w *StageWidget) DragEnd() {
	if !w.dragging {
		return
	}
	w.dragging = false
	w.st.PointerUp(pt(w.last))
}

// Scrolled pans the view.
func (w *StageWidget) Scrolled(e *fyne.ScrollEvent) {
	w.st.Pan(e.Scrolled.DX, e.Scrolled.DY)
}

func (w *StageWidget) MinSize() fyne.Size { return fyne.NewSize(640, 480) }

func (w *StageWidget) CreateRenderer() fyne.WidgetRenderer {
	r := &stageRenderer{
		w:      w,
		bg:     canvas.NewRectangle(stageBackground),
		images: map[string]*nodeImage{},
	}
	r.rebuild()
	return r
}

type nodeImage struct {
	src image.Image
	obj *canvas.Image
}

// stageRenderer rebuilds its object list from a stage frame on every refresh.
// Image objects are cached per node so textures are not re-uploaded.
type stageRenderer struct {
	w       *StageWidget
	bg      *canvas.Rectangle
	images  map[string]*nodeImage
	objects []fyne.CanvasObject
}

func (r *stageRenderer) Destroy()                     {}
func (r *stageRenderer) Objects() []fyne.CanvasObject { return r.objects }
func (r *stageRenderer) MinSize() fyne.Size           { return r.w.MinSize() }

func (r *stageRenderer) Layout(size fyne.Size) {
	r.bg.Resize(size)
	r.bg.Move(fyne.NewPos(0, 0))
}

func (r *stageRenderer) Refresh() {
	r.rebuild()
	r.Layout(r.w.Size())
	canvas.Refresh(r.w)
}

func (r *stageRenderer) rebuild() {
	f := r.w.st.Frame(time.Now())
	objs := []fyne.CanvasObject{r.bg}
	seen := make(map[string]bool, len(f.Nodes))

	for _, nv := range f.Nodes {
		seen[nv.ID] = true
		switch nv.Kind {
		case stage.KindSuccess, stage.KindUploading:
			if nv.Image == nil {
				continue
			}
			objs = append(objs, r.image(nv))
			if nv.Overlay {
				dim := canvas.NewRectangle(color.NRGBA{A: uint8(110 * nv.Alpha)})
				place(dim, nv.Rect)
				objs = append(objs, dim, centeredText(nv.Label, nv.Rect, nv.Alpha, 14))
			}
		case stage.KindLoading:
			box := canvas.NewRectangle(withAlpha(placeholderFill, 0.4+0.6*nv.Alpha))
			box.CornerRadius = 8
			place(box, nv.Rect)
			objs = append(objs, box, centeredText(nv.Label, nv.Rect, 1, 14))
		case stage.KindError:
			box := canvas.NewRectangle(errorFill)
			box.StrokeColor = errorStroke
			box.StrokeWidth = 1
			box.CornerRadius = 8
			place(box, nv.Rect)
			glyph := centeredText(nv.Glyph, geom.Rect{X: nv.Rect.X, Y: nv.Rect.Y, W: nv.Rect.W, H: nv.Rect.H * 0.6}, 1, 36)
			msg := centeredText(nv.Message, geom.Rect{X: nv.Rect.X, Y: nv.Rect.Y + nv.Rect.H*0.5, W: nv.Rect.W, H: nv.Rect.H * 0.3}, 1, 12)
			objs = append(objs, box, glyph, msg)
		}
		if nv.Selected {
			outline := canvas.NewRectangle(color.Transparent)
			outline.StrokeColor = selectionStroke
			outline.StrokeWidth = 2
			place(outline, nv.Rect)
			objs = append(objs, outline)
		}
	}
	for id := range r.images {
		if !seen[id] {
			delete(r.images, id)
		}
	}

	for _, h := range f.Handles {
		hr := canvas.NewRectangle(staticHandleFill)
		if h.Active {
			hr.FillColor = selectionStroke
		}
		place(hr, h.Rect)
		objs = append(objs, hr)
	}
	for _, g := range f.Guides {
		ln := canvas.NewLine(guideStroke)
		ln.StrokeWidth = 1
		ln.Position1 = fyne.NewPos(g.From.X, g.From.Y)
		ln.Position2 = fyne.NewPos(g.To.X, g.To.Y)
		objs = append(objs, ln)
	}
	if f.Band != nil {
		band := canvas.NewRectangle(bandFill)
		band.StrokeColor = selectionStroke
		band.StrokeWidth = 1
		place(band, *f.Band)
		objs = append(objs, band)
	}
	if bar := r.toolbar(f.Toolbar); bar != nil {
		objs = append(objs, bar)
	}
	r.objects = objs
}

func (r *stageRenderer) image(nv stage.NodeView) *canvas.Image {
	ni, ok := r.images[nv.ID]
	if !ok || ni.src != nv.Image {
		obj := canvas.NewImageFromImage(nv.Image)
		obj.FillMode = canvas.ImageFillStretch
		ni = &nodeImage{src: nv.Image, obj: obj}
		r.images[nv.ID] = ni
	}
	place(ni.obj, nv.Rect)
	return ni.obj
}

// toolbar positions the bar for the selection shape with its bottom center
// on the anchor.
func (r *stageRenderer) toolbar(tb stage.Toolbar) fyne.CanvasObject {
	if !tb.Visible {
		return nil
	}
	var bar *fyne.Container
	switch tb.Shape {
	case stage.ShapeSingle:
		bar = r.w.singleBar
	case stage.ShapeMultiple:
		bar = r.w.multiBar
	case stage.ShapeError:
		bar = r.w.errorBar
	default:
		return nil
	}
	sz := bar.MinSize()
	bar.Resize(sz)
	bar.Move(fyne.NewPos(tb.Anchor.X-sz.Width/2, tb.Anchor.Y-sz.Height))
	return bar
}

func place(o fyne.CanvasObject, rc geom.Rect) {
	o.Move(fyne.NewPos(rc.X, rc.Y))
	o.Resize(fyne.NewSize(rc.W, rc.H))
}

func centeredText(s string, rc geom.Rect, alpha float32, size float32) *canvas.Text {
	t := canvas.NewText(s, withAlpha(labelColor, alpha))
	t.TextSize = size
	t.Alignment = fyne.TextAlignCenter
	ms := t.MinSize()
	t.Move(fyne.NewPos(rc.X, rc.Y+rc.H/2-ms.Height/2))
	t.Resize(fyne.NewSize(rc.W, ms.Height))
	return t
}

func withAlpha(c color.RGBA, a float32) color.NRGBA {
	a = max(0, min(1, a))
	return color.NRGBA{R: c.R, G: c.G, B: c.B, A: uint8(float32(c.A) * a)}
}
