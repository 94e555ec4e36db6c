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
	"sync/atomic"
	"time"

	"fyne.io/fyne/v2"
)

// fyneLoop runs stage work on the Fyne main goroutine.
type fyneLoop struct{}

func (fyneLoop) Post(fn func()) { fyne.Do(fn) }

// After fires fn on the main goroutine. A cancel that races with an already
// queued call still suppresses it.
func (fyneLoop) After(d time.Duration, fn func()) func() {
	var cancelled atomic.Bool
	t := time.AfterFunc(d, func() {
		fyne.Do(func() {
			if !cancelled.Load() {
				fn()
			}
		})
	})
	return func() {
		cancelled.Store(true)
		t.Stop()
	}
}

func (fyneLoop) Now() time.Time { return time.Now() }
