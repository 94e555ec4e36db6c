//go:build fyne && cgo

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package ui

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/driver/desktop"
	fstorage "fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"genstage/internal/board"
	"genstage/internal/config"
	"genstage/internal/crash"
	"genstage/internal/export"
	applog "genstage/internal/log"
	"genstage/internal/stage"
	"genstage/internal/telemetry"
	"genstage/internal/version"
)

// reloadInterval is how often board.json is checked for external changes.
const reloadInterval = 2 * time.Second

// Run starts the desktop shell on boardDir. An empty boardDir opens the most
// recent board, or a scratch board in the config directory.
func Run(boardDir string) error {
	cfg, token, cfgErr := config.Load()
	applog.Init(LogOptions(cfg))
	l := applog.WithComponent("ui")
	if cfgErr != nil {
		l.Warn("config load failed; using defaults", slog.String("error", cfgErr.Error()))
	}
	l.Info("starting UI", slog.String("version", version.String()))

	tcfg := telemetry.FromEnv()
	tcfg.OptIn = tcfg.OptIn || cfg.General.TelemetryOptIn
	telemetry.NewDefault(tcfg)
	telemetry.Event(telemetry.EventLaunch, nil)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		telemetry.Flush(ctx)
	}()

	var sess *Session
	defer crash.RecoverWith(func() *board.Handle {
		if sess == nil {
			return nil
		}
		return sess.Handle
	})

	fyneApp := app.NewWithID("genstage")
	switch strings.ToLower(cfg.General.Theme) {
	case "dark":
		fyneApp.Settings().SetTheme(theme.DarkTheme())
	case "light":
		fyneApp.Settings().SetTheme(theme.LightTheme())
	}
	w := fyneApp.NewWindow("GenStage")
	prefs := fyneApp.Preferences()
	winW := max(prefs.IntWithFallback("window.width", 1280), 800)
	winH := max(prefs.IntWithFallback("window.height", 860), 600)
	w.Resize(fyne.NewSize(float32(winW), float32(winH)))

	if boardDir == "" {
		dir, err := defaultBoardDir(prefs)
		if err != nil {
			return err
		}
		boardDir = dir
	}

	status := widget.NewLabel("Ready")
	setStatus := func(msg string) { status.SetText(msg) }

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	remote, err := ConnectRemote(ctx, cfg, Subject())
	cancel()
	if err != nil {
		l.Warn("layout service unavailable; positions stay local", slog.String("error", err.Error()))
		setStatus("Layout service unavailable")
	}

	opts := SessionOptionsFrom(cfg, token, fyneLoop{})
	opts.Remote = remote
	sess, err = OpenSession(boardDir, opts)
	if err != nil {
		return fmt.Errorf("open board: %w", err)
	}
	addRecentBoard(prefs, boardDir)
	sess.OnStatus = setStatus
	w.SetTitle(fmt.Sprintf("GenStage — %s", sess.Name()))

	stageWidget := NewStageWidget(sess.Stage)
	stageWidget.SetArrange(sess.Arrange)
	sess.Stage.Viewport().ZoomAround(cfg.Canvas.InitialZoom(), sess.Stage.Viewport().Center())

	// Zoom controls
	zoomLabel := widget.NewLabel(fmt.Sprintf("%d%%", sess.Stage.Zoom()))
	refreshZoom := func() { zoomLabel.SetText(fmt.Sprintf("%d%%", sess.Stage.Zoom())) }
	zoomOut := widget.NewButtonWithIcon("", theme.ZoomOutIcon(), func() { sess.Stage.ZoomOut(); refreshZoom() })
	zoomIn := widget.NewButtonWithIcon("", theme.ZoomInIcon(), func() { sess.Stage.ZoomIn(); refreshZoom() })
	zoomReset := widget.NewButtonWithIcon("", theme.ViewRestoreIcon(), func() { sess.Stage.ZoomReset(); refreshZoom() })
	zoomBox := container.NewHBox(zoomOut, zoomLabel, zoomIn, zoomReset)

	snapCheck := widget.NewCheck("Snap", func(on bool) {
		sess.Stage.SetSnap(on)
		prefs.SetBool("canvas.snap", on)
	})
	snapCheck.SetChecked(prefs.BoolWithFallback("canvas.snap", cfg.Canvas.Snap()))

	importBtn := widget.NewButtonWithIcon("Import…", theme.FileImageIcon(), func() {
		fd := dialog.NewFileOpen(func(rc fyne.URIReadCloser, err error) {
			if err != nil {
				dialog.ShowError(err, w)
				return
			}
			if rc == nil {
				return
			}
			path := rc.URI().Path()
			_ = rc.Close()
			if _, err := sess.Import(path); err != nil {
				l.Error("import failed", slog.String("error", err.Error()))
				dialog.ShowError(err, w)
			}
		}, w)
		fd.SetFilter(fstorage.NewExtensionFileFilter([]string{".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp"}))
		fd.Show()
	})

	// Bottom action bar: regenerate needs exactly one result selected.
	regenerate := widget.NewButtonWithIcon("Regenerate", theme.ViewRefreshIcon(), sess.Stage.Regenerate)
	regenerate.Disable()
	selLabel := widget.NewLabel("")
	sess.OnSelectionChange = func(sel stage.Selection) {
		if sess.Stage.CanRegenerate() {
			regenerate.Enable()
		} else {
			regenerate.Disable()
		}
		switch sel.Shape {
		case stage.ShapeNone:
			selLabel.SetText("")
		default:
			selLabel.SetText(fmt.Sprintf("%s: %d", sel.Shape, len(sel.IDs)))
		}
		refreshZoom()
	}

	topBar := container.NewBorder(nil, nil, container.NewHBox(importBtn, snapCheck), zoomBox)
	bottomBar := container.NewBorder(nil, nil, status, container.NewHBox(selLabel, regenerate))
	w.SetContent(container.NewBorder(topBar, bottomBar, nil, nil, stageWidget))

	// Menus
	exportPDF := fyne.NewMenuItem("Contact Sheet (PDF)…", func() {
		saveAs(w, "contact-sheet.pdf", func(path string) error {
			return sess.ExportContactSheet(path, export.PDFOptions{Captions: true, PageSize: "a4"})
		}, setStatus)
	})
	exportZip := fyne.NewMenuItem("Images (ZIP)…", func() {
		saveAs(w, "images.zip", sess.ExportArchive, setStatus)
	})
	exportBoard := fyne.NewMenuItem("Board (PNG)…", func() {
		saveAs(w, "board.png", func(path string) error {
			return sess.ExportBoardPNG(path, export.BoardOptions{Margin: 24, MaxSide: 8192})
		}, setStatus)
	})
	reloadItem := fyne.NewMenuItem("Reload Board", func() {
		if _, err := sess.Reload(); err != nil {
			dialog.ShowError(err, w)
		}
	})
	fileMenu := fyne.NewMenu("File", reloadItem, fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Import Image…", importBtn.OnTapped),
		fyne.NewMenuItem("Export", nil))
	fileMenu.Items[len(fileMenu.Items)-1].ChildMenu = fyne.NewMenu("", exportPDF, exportZip, exportBoard)

	undoItem := fyne.NewMenuItem("Undo", func() {
		if !sess.Stage.Undo() {
			setStatus("Nothing to undo")
		}
	})
	redoItem := fyne.NewMenuItem("Redo", func() {
		if !sess.Stage.Redo() {
			setStatus("Nothing to redo")
		}
	})
	arrangeItem := fyne.NewMenuItem("Arrange Selection", sess.Arrange)
	editMenu := fyne.NewMenu("Edit", undoItem, redoItem, fyne.NewMenuItemSeparator(), arrangeItem)
	w.SetMainMenu(fyne.NewMainMenu(fileMenu, editMenu))

	// Shortcuts
	shortcut := func(key fyne.KeyName, mod fyne.KeyModifier, fn func()) {
		w.Canvas().AddShortcut(&desktop.CustomShortcut{KeyName: key, Modifier: mod}, func(fyne.Shortcut) { fn() })
	}
	shortcut(fyne.KeyZ, fyne.KeyModifierShortcutDefault, undoItem.Action)
	shortcut(fyne.KeyZ, fyne.KeyModifierShortcutDefault|fyne.KeyModifierShift, redoItem.Action)
	shortcut(fyne.KeyEqual, fyne.KeyModifierShortcutDefault, zoomIn.OnTapped)
	shortcut(fyne.KeyMinus, fyne.KeyModifierShortcutDefault, zoomOut.OnTapped)
	shortcut(fyne.Key0, fyne.KeyModifierShortcutDefault, zoomReset.OnTapped)
	w.Canvas().SetOnTypedKey(func(ev *fyne.KeyEvent) {
		switch ev.Name {
		case fyne.KeyDelete, fyne.KeyBackspace:
			sess.Stage.DeleteError()
		case fyne.KeyEscape:
			sess.Stage.PointerCancel()
			sess.Stage.ClearSelection()
		}
	})

	// Watch board.json for items written by the generator.
	done := make(chan struct{})
	go func() {
		defer crash.RecoverGoroutine(nil)
		t := time.NewTicker(reloadInterval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				fyne.Do(func() {
					if _, err := sess.Reload(); err != nil {
						l.Warn("reload board", slog.String("error", err.Error()))
					}
				})
			}
		}
	}()

	w.SetCloseIntercept(func() {
		size := w.Canvas().Size()
		prefs.SetInt("window.width", int(size.Width))
		prefs.SetInt("window.height", int(size.Height))
		close(done)
		sess.Stage.Unmount()
		if err := sess.Close(); err != nil {
			l.Error("close session", slog.String("error", err.Error()))
		}
		w.Close()
	})

	sess.Sync()
	if err := stageWidget.Mount(); err != nil {
		return err
	}
	w.ShowAndRun()
	l.Info("UI closed")
	return nil
}

// saveAs asks for a destination and runs write on it.
func saveAs(w fyne.Window, name string, write func(path string) error, setStatus func(string)) {
	fd := dialog.NewFileSave(func(wc fyne.URIWriteCloser, err error) {
		if err != nil {
			dialog.ShowError(err, w)
			return
		}
		if wc == nil {
			return
		}
		path := wc.URI().Path()
		_ = wc.Close()
		if err := write(path); err != nil {
			dialog.ShowError(err, w)
			return
		}
		setStatus("Exported " + path)
	}, w)
	fd.SetFileName(name)
	fd.Show()
}

// defaultBoardDir returns the most recent board, creating a scratch board
// when there is none.
func defaultBoardDir(p fyne.Preferences) (string, error) {
	if rec := loadRecentBoards(p); len(rec) > 0 {
		return rec[0], nil
	}
	cfgPath, err := config.ConfigPath()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(filepath.Dir(cfgPath), "boards", "scratch")
	if _, err := os.Stat(filepath.Join(dir, board.ManifestFileName)); err == nil {
		return dir, nil
	}
	if _, err := board.Init(dir, board.New("Scratch")); err != nil {
		return "", err
	}
	return dir, nil
}

// Recent boards are kept as a JSON list in the app preferences.
const recentPrefsKey = "recent.boards"
const recentMax = 10

func loadRecentBoards(p fyne.Preferences) []string {
	var items []string
	if raw := strings.TrimSpace(p.StringWithFallback(recentPrefsKey, "")); raw != "" {
		_ = json.Unmarshal([]byte(raw), &items)
	}
	out := make([]string, 0, len(items))
	for _, s := range items {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, err := os.Stat(filepath.Join(s, board.ManifestFileName)); err == nil {
			out = append(out, s)
		}
	}
	return out
}

func addRecentBoard(p fyne.Preferences, path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}
	out := []string{abs}
	for _, s := range loadRecentBoards(p) {
		// case-insensitive on Windows
		if !strings.EqualFold(s, abs) {
			out = append(out, s)
		}
	}
	if len(out) > recentMax {
		out = out[:recentMax]
	}
	b, _ := json.Marshal(out)
	p.SetString(recentPrefsKey, string(b))
}
