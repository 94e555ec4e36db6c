/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package imageload

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// BlobScheme prefixes URIs minted for local, not yet uploaded bitmaps.
const BlobScheme = "blob:genstage/"

// ErrRevoked is returned for blob URIs that were revoked or never minted.
var ErrRevoked = errors.New("imageload: blob revoked")

// BlobStore holds local bitmap bytes behind opaque blob URIs until they are
// revoked. It is safe for concurrent use.
type BlobStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewBlobStore() *BlobStore {
	return &BlobStore{blobs: map[string][]byte{}}
}

// Put stores a copy of data and returns its URI.
func (s *BlobStore) Put(data []byte) string {
	uri := BlobScheme + uuid.NewString()
	buf := append([]byte(nil), data...)
	s.mu.Lock()
	s.blobs[uri] = buf
	s.mu.Unlock()
	return uri
}

func (s *BlobStore) Get(uri string) ([]byte, error) {
	s.mu.RLock()
	b, ok := s.blobs[uri]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrRevoked
	}
	return b, nil
}

// Revoke drops the bytes behind uri. Unknown URIs are ignored.
func (s *BlobStore) Revoke(uri string) {
	s.mu.Lock()
	delete(s.blobs, uri)
	s.mu.Unlock()
}

// RevokeAll drops every blob and reports how many were held.
func (s *BlobStore) RevokeAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.blobs)
	s.blobs = map[string][]byte{}
	return n
}

func (s *BlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// IsBlob reports whether uri was minted by a BlobStore.
func IsBlob(uri string) bool { return strings.HasPrefix(uri, BlobScheme) }
