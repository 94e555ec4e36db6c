/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package undo

import (
	"sync"
	"time"

	"genstage/internal/geom"
)

// Move is one node transform: position and scale before and after.
type Move struct {
	ID        string
	From, To  geom.Pt
	FromScale float32
	ToScale   float32
}

// Step groups the moves produced by one gesture or command.
// TS is when the step was recorded.
type Step struct {
	Moves []Move
	TS    time.Time
}

// Inverse returns the step that undoes s.
func (s Step) Inverse() Step {
	out := Step{Moves: make([]Move, len(s.Moves)), TS: s.TS}
	for i, m := range s.Moves {
		out.Moves[i] = Move{ID: m.ID, From: m.To, To: m.From, FromScale: m.ToScale, ToScale: m.FromScale}
	}
	return out
}

func (s Step) sameTargets(o Step) bool {
	if len(s.Moves) != len(o.Moves) {
		return false
	}
	for i := range s.Moves {
		if s.Moves[i].ID != o.Moves[i].ID {
			return false
		}
	}
	return true
}

// Config controls depth caps and coalescing behavior.
type Config struct {
	// MaxDepth limits the number of undo steps kept (0 means 100).
	MaxDepth int
	// MinInterval coalesces steps on the same nodes recorded within the
	// interval, keeping the original starting state.
	MinInterval time.Duration
}

// Manager provides an in-memory undo/redo stack of transform steps.
// It is safe for concurrent use.
type Manager struct {
	cfg  Config
	mu   sync.Mutex
	undo []Step
	redo []Step
}

func NewManager(cfg Config) *Manager {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 100
	}
	if cfg.MinInterval < 0 {
		cfg.MinInterval = 0
	}
	return &Manager{cfg: cfg}
}

// Push records a step. Empty steps are ignored. Any new step clears redo.
func (m *Manager) Push(s Step) {
	if len(s.Moves) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.redo = nil
	if n := len(m.undo); n > 0 && m.cfg.MinInterval > 0 {
		last := m.undo[n-1]
		if s.TS.Sub(last.TS) < m.cfg.MinInterval && last.sameTargets(s) {
			for i := range s.Moves {
				s.Moves[i].From = last.Moves[i].From
				s.Moves[i].FromScale = last.Moves[i].FromScale
			}
			m.undo[n-1] = s
			return
		}
	}
	m.undo = append(m.undo, s)
	if len(m.undo) > m.cfg.MaxDepth {
		m.undo = append([]Step(nil), m.undo[len(m.undo)-m.cfg.MaxDepth:]...)
	}
}

// Undo pops the latest step and moves it to the redo stack.
func (m *Manager) Undo() (Step, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.undo) == 0 {
		return Step{}, false
	}
	s := m.undo[len(m.undo)-1]
	m.undo = m.undo[:len(m.undo)-1]
	m.redo = append(m.redo, s)
	return s, true
}

// Redo pops from redo and pushes back to undo.
func (m *Manager) Redo() (Step, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.redo) == 0 {
		return Step{}, false
	}
	s := m.redo[len(m.redo)-1]
	m.redo = m.redo[:len(m.redo)-1]
	m.undo = append(m.undo, s)
	return s, true
}

// Forget drops every move that targets id. Steps left empty are removed.
func (m *Manager) Forget(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.undo = forget(m.undo, id)
	m.redo = forget(m.redo, id)
}

func forget(stack []Step, id string) []Step {
	out := stack[:0]
	for _, s := range stack {
		moves := s.Moves[:0:0]
		for _, mv := range s.Moves {
			if mv.ID != id {
				moves = append(moves, mv)
			}
		}
		if len(moves) > 0 {
			s.Moves = moves
			out = append(out, s)
		}
	}
	return out
}

// Clear empties both stacks.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.undo = nil
	m.redo = nil
}

// Stats returns current stack depths for diagnostics.
func (m *Manager) Stats() (undo, redo int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.undo), len(m.redo)
}
