/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"genstage/internal/backend"
	"genstage/internal/board"
	"genstage/internal/config"
	"genstage/internal/crash"
	"genstage/internal/export"
	applog "genstage/internal/log"
	"genstage/internal/stage"
	"genstage/internal/ui"
	"genstage/internal/version"
)

// loadConfig is replaced in tests to keep the keyring out of the way.
var loadConfig = config.Load

func usage(w io.Writer) {
	fmt.Fprintln(w, "GenStage: generation result canvas")
	fmt.Fprintf(w, "Version: %s\n", version.String())
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  genstage version|-v|--version             Show version")
	fmt.Fprintln(w, "  genstage init <dir> <name>                 Create a new board at <dir> named <name>")
	fmt.Fprintln(w, "  genstage validate <dir>                    Check board.json against the schema")
	fmt.Fprintln(w, "  genstage add <dir> <uri> [id]              Append a finished result to the board")
	fmt.Fprintln(w, "  genstage export-pdf <dir> <out.pdf> [size] Contact sheet of every loaded image")
	fmt.Fprintln(w, "  genstage export-png <dir> <out.png>        Render the board as laid out")
	fmt.Fprintln(w, "  genstage export-zip <dir> <out.zip>        Zip of every loaded image")
	fmt.Fprintln(w, "  genstage serve                             Run the layout service (Postgres)")
	fmt.Fprintln(w, "  genstage ui [<dir>]                        Launch desktop UI (build with -tags fyne)")
}

func main() {
	applog.Init(applog.FromEnv())
	var open *board.Handle
	defer crash.RecoverWith(func() *board.Handle { return open })
	os.Exit(run(os.Args[1:], os.Stdout, &open))
}

// run executes one command and returns the process exit code. open receives
// the board handle once a board is loaded so a crash can autosave it.
func run(args []string, out io.Writer, open **board.Handle) int {
	l := applog.WithComponent("cli")
	l.Debug("start", slog.Int("args", len(args)))
	if len(args) == 0 {
		usage(out)
		return 0
	}
	need := func(n int, what string) bool {
		if len(args) < n+1 {
			fmt.Fprintf(out, "%s requires %s\n", args[0], what)
			usage(out)
			return false
		}
		return true
	}
	fail := func(op string, err error) int {
		l.Error(op+" failed", slog.Any("err", err))
		fmt.Fprintln(out, "Error:", err)
		return 1
	}

	switch args[0] {
	case "version", "--version", "-v":
		fmt.Fprintln(out, version.String())
		return 0
	case "init":
		if !need(2, "<dir> and <name>") {
			return 2
		}
		abs, err := filepath.Abs(args[1])
		if err != nil {
			abs = args[1]
		}
		l.Info("init board", slog.String("root", abs), slog.String("name", args[2]))
		h, err := board.Init(abs, board.New(args[2]))
		if err != nil {
			return fail("init", err)
		}
		*open = h
		fmt.Fprintln(out, "Created board at", abs)
		return 0
	case "validate":
		if !need(1, "<dir>") {
			return 2
		}
		data, err := os.ReadFile(filepath.Join(args[1], board.ManifestFileName))
		if err != nil {
			return fail("validate", err)
		}
		if err := board.Validate(data); err != nil {
			return fail("validate", err)
		}
		fmt.Fprintln(out, "OK")
		return 0
	case "add":
		if !need(2, "<dir> and <uri>") {
			return 2
		}
		h, err := board.Open(args[1])
		if err != nil {
			return fail("add", err)
		}
		*open = h
		id := fmt.Sprintf("r%d", len(h.Board.Items)+1)
		if len(args) > 3 {
			id = args[3]
		}
		if _, exists := h.Board.Find(id); exists {
			return fail("add", fmt.Errorf("item %q already exists", id))
		}
		h.Board.Items = append(h.Board.Items, board.FromStage([]stage.Item{stage.Success(id, args[2])})...)
		if err := board.Save(h); err != nil {
			return fail("add", err)
		}
		fmt.Fprintln(out, "Added", id)
		return 0
	case "export-pdf", "export-png", "export-zip":
		if !need(2, "<dir> and <out>") {
			return 2
		}
		return exportBoard(args, out, open, fail)
	case "serve":
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		cfg := backend.LoadConfig()
		l.Info("serving layout service", slog.String("addr", cfg.Addr))
		if err := backend.Start(ctx, cfg); err != nil {
			return fail("serve", err)
		}
		return 0
	case "ui":
		var dir string
		if len(args) >= 2 {
			dir = args[1]
		}
		if err := ui.Run(dir); err != nil {
			return fail("ui", err)
		}
		return 0
	}
	usage(out)
	return 2
}

func exportBoard(args []string, out io.Writer, open **board.Handle, fail func(string, error) int) int {
	cfg, token, err := loadConfig()
	if err != nil {
		applog.WithComponent("cli").Warn("config load failed; using defaults", slog.String("error", err.Error()))
	}
	h, err := ui.OpenHeadless(args[1], ui.SessionOptionsFrom(cfg, token, nil))
	if err != nil {
		return fail(args[0], err)
	}
	defer h.Close()
	*open = h.Handle
	h.Load()

	dst := args[2]
	switch args[0] {
	case "export-pdf":
		opt := export.PDFOptions{Captions: true}
		if len(args) > 3 {
			opt.PageSize = strings.ToLower(args[3])
		}
		err = h.ExportContactSheet(dst, opt)
	case "export-png":
		err = h.ExportBoardPNG(dst, export.BoardOptions{Margin: 24, MaxSide: 8192, Captions: true})
	default:
		err = h.ExportArchive(dst)
	}
	if err != nil {
		return fail(args[0], err)
	}
	fmt.Fprintln(out, "Exported", dst)
	return 0
}
