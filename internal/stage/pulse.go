/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package stage

import (
	"math"
	"time"
)

// Pulse is a sinusoidal opacity oscillator used by placeholder nodes. It has
// no goroutine of its own; the renderer samples Alpha on each frame.
type Pulse struct {
	start   time.Time
	period  time.Duration
	lo, hi  float32
	stopped bool
}

func startPulse(now time.Time, period time.Duration, lo, hi float32) *Pulse {
	if period <= 0 {
		period = time.Second
	}
	return &Pulse{start: now, period: period, lo: lo, hi: hi}
}

// Alpha returns the opacity at now. A stopped pulse reports full opacity.
func (p *Pulse) Alpha(now time.Time) float32 {
	if p == nil || p.stopped {
		return 1
	}
	phase := float64(now.Sub(p.start)) / float64(p.period)
	v := 0.5 + 0.5*math.Sin(2*math.Pi*phase)
	return p.lo + (p.hi-p.lo)*float32(v)
}

func (p *Pulse) Stop() {
	if p != nil {
		p.stopped = true
	}
}

func (p *Pulse) Running() bool { return p != nil && !p.stopped }
