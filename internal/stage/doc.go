/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package stage implements the generation-result canvas: a retained scene of
// nodes bound to externally supplied generation items, plus selection, drag,
// resize, arrange, zoom and toolbar placement.
//
// The package is UI-agnostic. A renderer (see internal/ui) implements
// Container, feeds pointer events in container coordinates and draws the
// Frame the stage produces. All Stage methods must be called from the single
// UI goroutine; image loads run elsewhere and post their results back through
// the Loop.
package stage
