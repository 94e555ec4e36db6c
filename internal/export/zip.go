/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"time"
)

type archiveManifest struct {
	Created string          `json:"created"`
	Count   int             `json:"count"`
	Files   []archiveMember `json:"files"`
}

type archiveMember struct {
	Name    string `json:"name"`
	Caption string `json:"caption,omitempty"`
}

// ArchivePNGs packages the entries as numbered PNG files plus a
// manifest.json into a zip archive at outPath.
func ArchivePNGs(outPath string, entries []Entry) error {
	if len(entries) == 0 {
		return fmt.Errorf("nothing to export")
	}
	zw, f, err := createZip(outPath)
	if err != nil {
		return err
	}
	defer f.Close()

	pad := len(fmt.Sprint(len(entries)))
	man := archiveManifest{Created: time.Now().UTC().Format(time.RFC3339), Count: len(entries)}
	var buf bytes.Buffer
	for i, e := range entries {
		if e.Image == nil {
			return fmt.Errorf("entry %d has no image", i)
		}
		buf.Reset()
		if err := png.Encode(&buf, e.Image); err != nil {
			return fmt.Errorf("encode png: %w", err)
		}
		name := fmt.Sprintf("%0*d.png", pad, i+1)
		if err := addZipFile(zw, name, buf.Bytes()); err != nil {
			return fmt.Errorf("zip add image: %w", err)
		}
		man.Files = append(man.Files, archiveMember{Name: name, Caption: e.Caption})
	}
	mb, err := json.MarshalIndent(man, "", "  ")
	if err != nil {
		return fmt.Errorf("build manifest: %w", err)
	}
	if err := addZipFile(zw, "manifest.json", mb); err != nil {
		return fmt.Errorf("zip add manifest: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close zip: %w", err)
	}
	return f.Sync()
}

func createZip(outPath string) (*zip.Writer, *os.File, error) {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return nil, nil, fmt.Errorf("ensure out dir: %w", err)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return nil, nil, fmt.Errorf("create zip: %w", err)
	}
	return zip.NewWriter(f), f, nil
}

func addZipFile(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
