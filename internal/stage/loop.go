/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package stage

import (
	"sort"
	"sync"
	"time"
)

// Loop schedules work on the UI goroutine. Post and After may be called from
// any goroutine; the functions they schedule always run on the UI goroutine.
type Loop interface {
	Post(fn func())
	After(d time.Duration, fn func()) (cancel func())
	Now() time.Time
}

// ManualLoop is a Loop driven explicitly by the caller. Tests and headless
// tools use it to make scheduling deterministic.
type ManualLoop struct {
	mu     sync.Mutex
	now    time.Time
	queue  []func()
	timers []*manualTimer
	seq    int
}

type manualTimer struct {
	at        time.Time
	seq       int
	fn        func()
	cancelled bool
}

func NewManualLoop(start time.Time) *ManualLoop {
	return &ManualLoop{now: start}
}

func (l *ManualLoop) Post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
}

func (l *ManualLoop) After(d time.Duration, fn func()) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	t := &manualTimer{at: l.now.Add(d), seq: l.seq, fn: fn}
	l.timers = append(l.timers, t)
	return func() {
		l.mu.Lock()
		t.cancelled = true
		l.mu.Unlock()
	}
}

func (l *ManualLoop) Now() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.now
}

// Drain runs queued functions, including ones posted while draining, and
// returns how many ran.
func (l *ManualLoop) Drain() int {
	n := 0
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return n
		}
		fn := l.queue[0]
		l.queue = l.queue[1:]
		l.mu.Unlock()
		fn()
		n++
	}
}

// Advance moves the clock forward by d, firing due timers in deadline order
// and draining the queue after each one.
func (l *ManualLoop) Advance(d time.Duration) {
	l.mu.Lock()
	target := l.now.Add(d)
	l.mu.Unlock()
	l.Drain()
	for {
		l.mu.Lock()
		t := l.nextDue(target)
		if t == nil {
			l.now = target
			l.mu.Unlock()
			l.Drain()
			return
		}
		if t.at.After(l.now) {
			l.now = t.at
		}
		l.mu.Unlock()
		t.fn()
		l.Drain()
	}
}

// nextDue pops the earliest live timer due at or before target. Callers hold mu.
func (l *ManualLoop) nextDue(target time.Time) *manualTimer {
	live := l.timers[:0]
	for _, t := range l.timers {
		if !t.cancelled {
			live = append(live, t)
		}
	}
	l.timers = live
	if len(l.timers) == 0 {
		return nil
	}
	sort.SliceStable(l.timers, func(i, j int) bool {
		if l.timers[i].at.Equal(l.timers[j].at) {
			return l.timers[i].seq < l.timers[j].seq
		}
		return l.timers[i].at.Before(l.timers[j].at)
	})
	t := l.timers[0]
	if t.at.After(target) {
		return nil
	}
	l.timers = l.timers[1:]
	return t
}

// Pending reports queued functions and live timers.
func (l *ManualLoop) Pending() (queued, timers int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, t := range l.timers {
		if !t.cancelled {
			timers++
		}
	}
	return len(l.queue), timers
}
