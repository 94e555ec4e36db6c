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
	"fmt"
	"strings"

	"genstage/internal/geom"
)

// Kind is the lifecycle state of a generation slot.
type Kind uint8

const (
	KindLoading Kind = iota
	KindUploading
	KindSuccess
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindLoading:
		return "loading"
	case KindUploading:
		return "uploading"
	case KindSuccess:
		return "success"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseKind maps the wire name of a kind back to its value.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "loading":
		return KindLoading, nil
	case "uploading":
		return KindUploading, nil
	case "success":
		return KindSuccess, nil
	case "error":
		return KindError, nil
	}
	return 0, fmt.Errorf("unknown item kind %q", s)
}

// Item is one generation slot as supplied by the host. Only the fields that
// belong to Kind are meaningful: LocalURI for uploading, RemoteURI for success
// and Message for error. Position is the last known scene position, if any.
// Scale, when positive, replaces the fitted scale of a freshly built bitmap
// node.
type Item struct {
	ID        string
	Kind      Kind
	LocalURI  string
	RemoteURI string
	Message   string
	Position  *geom.Pt
	Scale     float32
}

func Loading(id string) Item { return Item{ID: id, Kind: KindLoading} }
func Uploading(id, localURI string) Item {
	return Item{ID: id, Kind: KindUploading, LocalURI: localURI}
}
func Success(id, remoteURI string) Item { return Item{ID: id, Kind: KindSuccess, RemoteURI: remoteURI} }
func Failed(id, message string) Item    { return Item{ID: id, Kind: KindError, Message: message} }

// At returns a copy of the item carrying the given position.
func (it Item) At(x, y float32) Item {
	it.Position = &geom.Pt{X: x, Y: y}
	return it
}

// Scaled returns a copy of the item carrying the given scale.
func (it Item) Scaled(f float32) Item {
	it.Scale = f
	return it
}

// Source returns the URI the item's bitmap is loaded from, or "".
func (it Item) Source() string {
	switch it.Kind {
	case KindUploading:
		return it.LocalURI
	case KindSuccess:
		return it.RemoteURI
	}
	return ""
}

var errEmptyID = errors.New("item id is empty")

// Validate reports structural problems with an item.
func (it Item) Validate() error {
	if strings.TrimSpace(it.ID) == "" {
		return errEmptyID
	}
	if it.Scale < 0 {
		return fmt.Errorf("item %s: negative scale", it.ID)
	}
	switch it.Kind {
	case KindLoading, KindError:
		return nil
	case KindUploading:
		if it.LocalURI == "" {
			return fmt.Errorf("item %s: uploading without local source", it.ID)
		}
	case KindSuccess:
		if it.RemoteURI == "" {
			return fmt.Errorf("item %s: success without uri", it.ID)
		}
	default:
		return fmt.Errorf("item %s: %s", it.ID, it.Kind)
	}
	return nil
}
