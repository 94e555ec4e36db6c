/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package crash turns panics in the CLI and UI into a report file, a crash
// snapshot of the open board and an optional telemetry upload.
package crash

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	"genstage/internal/board"
	applog "genstage/internal/log"
	"genstage/internal/telemetry"
	"genstage/internal/version"
)

// exitFn is replaced in tests.
var exitFn = os.Exit

// Recover captures a panic, logs it with a stack trace, writes a report and
// autosaves the board when one is open.
//
// Usage: defer crash.Recover(h)
func Recover(h *board.Handle) {
	if r := recover(); r != nil {
		handle(h, r, debug.Stack())
		exitFn(2)
	}
}

// RecoverWith is Recover for callers whose open board changes while they
// run. current is asked for the handle only after a panic.
//
// Usage: defer crash.RecoverWith(func() *board.Handle { return open })
func RecoverWith(current func() *board.Handle) {
	if r := recover(); r != nil {
		var h *board.Handle
		if current != nil {
			h = current()
		}
		handle(h, r, debug.Stack())
		exitFn(2)
	}
}

// RecoverGoroutine is Recover for background goroutines: it reports the
// panic but does not exit the process.
func RecoverGoroutine(h *board.Handle) {
	if r := recover(); r != nil {
		handle(h, r, debug.Stack())
	}
}

func handle(h *board.Handle, r any, stack []byte) {
	l := applog.WithComponent("crash")
	l.Error("panic recovered", slog.Any("panic", r), slog.String("stack", string(stack)))

	reportPath, err := writeReport(h, r, stack)
	if err != nil {
		l.Error("write crash report failed", slog.Any("err", err))
	}
	if h != nil {
		if path, err := board.AutosaveCrashSnapshot(h); err != nil {
			l.Error("autosave crash snapshot failed", slog.Any("err", err))
		} else {
			l.Info("autosave crash snapshot written", slog.String("path", path))
		}
	}
	if _, err := fmt.Fprintf(os.Stderr, "A fatal error occurred. A crash report was saved to: %s\n", reportPath); err != nil {
		l.Error("failed to write crash message to stderr", slog.Any("err", err))
	}
	if _, err := fmt.Fprintf(os.Stderr, "Version: %s\nOS/Arch: %s/%s\n", version.String(), runtime.GOOS, runtime.GOARCH); err != nil {
		l.Error("failed to write version info to stderr", slog.Any("err", err))
	}
}

func writeReport(h *board.Handle, panicVal any, stack []byte) (string, error) {
	dir := os.TempDir()
	if h != nil && h.Root != "" {
		dir = filepath.Join(h.Root, board.BackupsDirName)
		_ = os.MkdirAll(dir, 0o755)
	}
	path := filepath.Join(dir, fmt.Sprintf("crash-%s.log", time.Now().Format("20060102-150405")))

	var buf bytes.Buffer
	_, _ = fmt.Fprintf(&buf, "GenStage Crash Report\n")
	_, _ = fmt.Fprintf(&buf, "Timestamp: %s\n", time.Now().Format(time.RFC3339))
	_, _ = fmt.Fprintf(&buf, "Version: %s\n", version.String())
	_, _ = fmt.Fprintf(&buf, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if h != nil {
		_, _ = fmt.Fprintf(&buf, "Board: %s\n", h.Board.Name)
		_, _ = fmt.Fprintf(&buf, "BoardRoot: %s\n", h.Root)
		_, _ = fmt.Fprintf(&buf, "Items: %d\n", len(h.Board.Items))
	}
	_, _ = fmt.Fprintf(&buf, "\nPanic: %v\n\n", panicVal)
	_, _ = fmt.Fprintf(&buf, "Stack:\n%s\n", string(stack))

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return path, err
	}
	telemetry.UploadCrash(buf.Bytes())
	return path, nil
}
