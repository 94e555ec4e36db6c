/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package crash

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"genstage/internal/board"
)

func silenceStderr(t *testing.T) {
	t.Helper()
	old := os.Stderr
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stderr = w
	done := make(chan struct{})
	go func() { _, _ = io.Copy(io.Discard, r); close(done) }()
	t.Cleanup(func() {
		_ = w.Close()
		<-done
		os.Stderr = old
	})
}

func TestWriteReportCreatesFileInTemp(t *testing.T) {
	path, err := writeReport(nil, "boom", []byte("stacktrace"))
	if err != nil {
		t.Fatalf("writeReport error: %v", err)
	}
	t.Cleanup(func() { _ = os.Remove(path) })
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	s := string(b)
	if !strings.Contains(s, "GenStage Crash Report") {
		t.Fatalf("report header missing")
	}
	if !strings.Contains(s, "Panic: boom") {
		t.Fatalf("panic content missing: %s", s)
	}
}

func TestRecoverWritesReportAndSnapshot(t *testing.T) {
	silenceStderr(t)
	code := 0
	oldExit := exitFn
	exitFn = func(c int) { code = c }
	defer func() { exitFn = oldExit }()

	h, err := board.Init(t.TempDir(), board.New("Crashy"))
	if err != nil {
		t.Fatalf("board.Init: %v", err)
	}
	func() {
		defer Recover(h)
		panic("boom")
	}()
	if code != 2 {
		t.Fatalf("expected exit code 2, got %d", code)
	}

	bdir := filepath.Join(h.Root, board.BackupsDirName)
	files, _ := os.ReadDir(bdir)
	var report, snapshot bool
	for _, f := range files {
		name := f.Name()
		switch {
		case strings.HasPrefix(name, "crash-") && strings.HasSuffix(name, ".log"):
			b, _ := os.ReadFile(filepath.Join(bdir, name))
			report = strings.Contains(string(b), "Panic: boom") && strings.Contains(string(b), "Board: Crashy")
		case strings.Contains(name, ".crash-"):
			snapshot = true
		}
	}
	if !report {
		t.Fatalf("expected crash report under backups dir")
	}
	if !snapshot {
		t.Fatalf("expected crash snapshot under backups dir")
	}
}

func TestRecoverGoroutineDoesNotExit(t *testing.T) {
	silenceStderr(t)
	oldExit := exitFn
	exited := false
	exitFn = func(int) { exited = true }
	defer func() { exitFn = oldExit }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer RecoverGoroutine(nil)
		panic("background")
	}()
	<-done
	if exited {
		t.Fatalf("exit must not be called")
	}
}

func TestRecoverWithUsesLatestHandle(t *testing.T) {
	silenceStderr(t)
	oldExit := exitFn
	exitFn = func(int) {}
	defer func() { exitFn = oldExit }()

	var open *board.Handle
	func() {
		defer RecoverWith(func() *board.Handle { return open })
		h, err := board.Init(t.TempDir(), board.New("Later"))
		if err != nil {
			t.Fatalf("board.Init: %v", err)
		}
		open = h
		panic("late")
	}()

	files, _ := os.ReadDir(filepath.Join(open.Root, board.BackupsDirName))
	found := false
	for _, f := range files {
		if strings.Contains(f.Name(), ".crash-") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected snapshot for the board opened after defer")
	}
}
