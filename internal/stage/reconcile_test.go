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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genstage/internal/geom"
)

func TestReconcileSuccessIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.loader.with("https://cdn/a.png", 64, 64)
	items := []Item{Success("a", "https://cdn/a.png")}

	h.st.Reconcile(items)
	h.st.Reconcile(items) // still in flight
	h.loop.Drain()
	first := h.node("a")

	h.reconcile(items...)
	h.reconcile(items...)

	assert.Equal(t, 1, h.loader.count("https://cdn/a.png"))
	assert.Same(t, first, h.node("a"))
	assert.Equal(t, KindSuccess, first.Kind())
	assert.Equal(t, 1, h.st.Len())
}

func TestLoadingPlaceholderIsReplacedBySuccess(t *testing.T) {
	h := newHarness(t)
	h.loader.with("u", 100, 100)

	h.reconcile(Loading("a"))
	placeholder := h.node("a")
	pulse := h.st.entries["a"].anim
	require.True(t, pulse.Running())
	assert.Equal(t, loadingLabel, placeholder.Label())
	assert.Equal(t, geom.Size{W: 300, H: 300}, placeholder.Size())
	assert.Equal(t, geom.Pt{X: 40, Y: 40}, placeholder.Position())

	h.reconcile(Success("a", "u"))

	n := h.node("a")
	assert.Equal(t, KindSuccess, n.Kind())
	assert.Equal(t, 1, h.st.Len())
	assert.Equal(t, 0, h.st.ActiveAnimations())
	assert.False(t, pulse.Running(), "placeholder pulse must be stopped")
	assert.True(t, placeholder.Destroyed())
	assert.Equal(t, placeholder.Position(), n.Position(), "success inherits the placeholder position")
}

func TestPlaceholdersCascadeByIndex(t *testing.T) {
	h := newHarness(t)
	h.reconcile(Loading("a"), Loading("b"), Failed("c", "nope"))
	assert.Equal(t, geom.Pt{X: 40, Y: 40}, h.node("a").Position())
	assert.Equal(t, geom.Pt{X: 72, Y: 72}, h.node("b").Position())
	assert.Equal(t, geom.Pt{X: 104, Y: 104}, h.node("c").Position())
	assert.Equal(t, "nope", h.node("c").Message())
	assert.Equal(t, errorGlyph, h.node("c").Glyph())
}

func TestDeclaredPositionWinsOverDefault(t *testing.T) {
	h := newHarness(t)
	h.loader.with("u", 100, 100)
	h.reconcile(Success("a", "u").At(10, 20))
	assert.Equal(t, geom.Pt{X: 10, Y: 20}, h.node("a").Position())
}

func TestSuccessWithoutPositionIsCentered(t *testing.T) {
	h := newHarness(t)
	h.loader.with("u", 100, 50)
	h.reconcile(Success("a", "u"))
	assert.Equal(t, geom.Pt{X: 450, Y: 375}, h.node("a").Position())
}

func TestSuccessIsFittedToViewport(t *testing.T) {
	h := newHarness(t)
	h.loader.with("big", 1600, 800)
	h.loader.with("small", 100, 100)
	h.reconcile(Success("big", "big"), Success("small", "small"))

	// 40% of the 800px side bounds the longer edge.
	assert.True(t, near(h.node("big").Scale(), 0.2), "scale=%v", h.node("big").Scale())
	assert.Equal(t, float32(1), h.node("small").Scale(), "small bitmaps are not scaled up")
}

func TestLocalMoveSurvivesStaleHostPosition(t *testing.T) {
	h := newHarness(t)
	h.loader.with("u", 100, 100)
	h.reconcile(Success("a", "u").At(0, 0))

	h.drag(geom.Pt{X: 10, Y: 10}, geom.Pt{X: 60, Y: 60})
	require.Equal(t, geom.Pt{X: 50, Y: 50}, h.node("a").Position())
	assert.Equal(t, []geom.Pt{{X: 50, Y: 50}}, h.rec.positions["a"])

	h.reconcile(Success("a", "u").At(0, 0))
	assert.Equal(t, geom.Pt{X: 50, Y: 50}, h.node("a").Position())

	// Echo acknowledged, later host moves apply again.
	h.reconcile(Success("a", "u").At(50, 50))
	h.reconcile(Success("a", "u").At(120, 80))
	assert.Equal(t, geom.Pt{X: 120, Y: 80}, h.node("a").Position())
}

func TestOrphansAreDestroyed(t *testing.T) {
	h := newHarness(t)
	h.loader.with("ua", 10, 10).with("ub", 10, 10)
	h.reconcile(Success("a", "ua"), Success("b", "ub"))
	b := h.node("b")
	h.st.Select("b")

	h.reconcile(Success("a", "ua"))

	_, ok := h.st.Node("b")
	assert.False(t, ok)
	assert.True(t, b.Destroyed())
	_, err := b.Bounds()
	assert.ErrorIs(t, err, ErrNodeDestroyed)
	assert.Equal(t, ShapeNone, h.st.Selection().Shape)
	assert.Equal(t, []string{"a"}, h.st.Order())
	assert.Equal(t, 1, h.st.Surface().Textures())
}

func TestUploadingShowsOverlayThenRevokesOnSuccess(t *testing.T) {
	h := newHarness(t)
	h.loader.with("blob:genstage/1", 200, 100).with("https://cdn/1.png", 200, 100)

	h.reconcile(Uploading("a", "blob:genstage/1"))
	up := h.node("a")
	assert.Equal(t, KindUploading, up.Kind())
	assert.True(t, up.HasOverlay())
	assert.Equal(t, uploadingLabel, up.Label())
	assert.Equal(t, 1, h.st.ActiveAnimations())
	assert.Equal(t, geom.Pt{X: 400, Y: 350}, up.Position(), "single upload is centered")

	h.reconcile(Success("a", "https://cdn/1.png"))
	assert.Equal(t, KindSuccess, h.node("a").Kind())
	assert.Equal(t, up.Position(), h.node("a").Position())
	assert.Equal(t, []string{"blob:genstage/1"}, h.blobs.revoked)
	assert.Equal(t, 0, h.st.ActiveAnimations())
}

func TestStaleCompletionIsDiscarded(t *testing.T) {
	h := newHarness(t)
	h.loader.with("u1", 10, 10).with("u2", 20, 20)

	h.st.Reconcile([]Item{Success("a", "u1")})
	h.st.Reconcile([]Item{Success("a", "u2")}) // u1 still in flight
	h.loop.Drain()

	n := h.node("a")
	assert.Equal(t, geom.Size{W: 20, H: 20}, n.Texture().Size())
	assert.Equal(t, 1, h.loader.count("u2"))
}

func TestErrorReplacesPlaceholder(t *testing.T) {
	h := newHarness(t)
	h.reconcile(Loading("a").At(5, 6))
	pulse := h.st.entries["a"].anim

	h.reconcile(Failed("a", "content policy"))
	n := h.node("a")
	assert.Equal(t, KindError, n.Kind())
	assert.Equal(t, geom.Pt{X: 5, Y: 6}, n.Position())
	assert.False(t, pulse.Running())
	assert.Equal(t, 0, h.st.ActiveAnimations())
}

func TestFetchFailureKeepsPlaceholderAndBacksOff(t *testing.T) {
	h := newHarness(t)
	boom := errors.New("503")
	h.loader.fail["u"] = boom
	h.reconcile(Loading("a"))
	h.reconcile(Success("a", "u"))

	assert.Equal(t, KindLoading, h.node("a").Kind())
	assert.ErrorIs(t, h.rec.loadErrs["a"], boom)

	h.reconcile(Success("a", "u"))
	assert.Equal(t, 1, h.loader.count("u"), "retry suppressed during back-off")

	delete(h.loader.fail, "u")
	h.loader.with("u", 10, 10)
	h.loop.Advance(6 * time.Second)
	h.reconcile(Success("a", "u"))
	assert.Equal(t, 2, h.loader.count("u"))
	assert.Equal(t, KindSuccess, h.node("a").Kind())
}

func TestCorrectedSourceLoadsDespiteBackOff(t *testing.T) {
	h := newHarness(t)
	h.loader.fail["bad"] = errors.New("404")
	h.loader.with("good", 12, 8)
	h.reconcile(Loading("a"))
	h.reconcile(Success("a", "bad"))
	require.Equal(t, KindLoading, h.node("a").Kind())

	h.reconcile(Success("a", "good"))
	assert.Equal(t, 1, h.loader.count("good"))
	assert.Equal(t, KindSuccess, h.node("a").Kind())

	h.loop.Advance(10 * time.Second)
	assert.Equal(t, 1, h.loader.count("bad"), "stale source is not retried")
}

func TestFailedSourceIsRetriedAfterBackOff(t *testing.T) {
	h := newHarness(t)
	h.loader.fail["u"] = errors.New("503")
	h.reconcile(Loading("a"))
	h.reconcile(Success("a", "u"))
	require.Equal(t, 1, h.loader.count("u"))

	delete(h.loader.fail, "u")
	h.loader.with("u", 10, 10)
	h.loop.Advance(4 * time.Second)
	assert.Equal(t, 1, h.loader.count("u"))
	h.loop.Advance(2 * time.Second)
	assert.Equal(t, 2, h.loader.count("u"))
	assert.Equal(t, KindSuccess, h.node("a").Kind())
}

func TestPauseAnimationsRestartsOnReconcile(t *testing.T) {
	h := newHarness(t)
	items := []Item{Loading("a"), Loading("b")}
	h.reconcile(items...)
	require.Equal(t, 2, h.st.ActiveAnimations())

	h.st.PauseAnimations()
	assert.Equal(t, 0, h.st.ActiveAnimations())

	h.reconcile(items...)
	assert.Equal(t, 2, h.st.ActiveAnimations())
}

func TestPulseTickerInvalidatesWhileAnimating(t *testing.T) {
	h := newHarness(t)
	h.reconcile(Loading("a"))
	before := h.box.invalidated
	h.loop.Advance(200 * time.Millisecond)
	assert.GreaterOrEqual(t, h.box.invalidated-before, 3)

	h.reconcile()
	_, timers := h.loop.Pending()
	h.loop.Advance(time.Second)
	_, after := h.loop.Pending()
	assert.LessOrEqual(t, after, timers)
	assert.Equal(t, 0, after)
}

func TestInvalidItemsAreSkipped(t *testing.T) {
	h := newHarness(t)
	h.reconcile(Item{ID: "", Kind: KindLoading}, Loading("a"), Loading("a"))
	assert.Equal(t, 1, h.st.Len())
}

func TestParseKind(t *testing.T) {
	for _, k := range []Kind{KindLoading, KindUploading, KindSuccess, KindError} {
		got, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseKind("done")
	assert.Error(t, err)
}

func TestPulseAlphaOscillates(t *testing.T) {
	p := startPulse(t0, time.Second, 0.2, 1)
	assert.True(t, near(p.Alpha(t0), 0.6))
	assert.True(t, near(p.Alpha(t0.Add(250*time.Millisecond)), 1))
	assert.True(t, near(p.Alpha(t0.Add(750*time.Millisecond)), 0.2))
	p.Stop()
	assert.Equal(t, float32(1), p.Alpha(t0))
	assert.False(t, p.Running())
}
