/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"fmt"
	"strings"
)

// PageSize is a named contact sheet format in points.
type PageSize struct {
	Name string
	W, H float64
}

var pageSizes = map[string]PageSize{
	"a4":     {Name: "A4", W: 595.28, H: 841.89},
	"a3":     {Name: "A3", W: 841.89, H: 1190.55},
	"letter": {Name: "Letter", W: 612, H: 792},
	"legal":  {Name: "Legal", W: 612, H: 1008},
}

// LookupPageSize resolves a page size name, case-insensitively. An optional
// "-landscape" suffix swaps the sides.
func LookupPageSize(name string) (PageSize, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		n = "a4"
	}
	base, landscape := strings.CutSuffix(n, "-landscape")
	ps, ok := pageSizes[base]
	if !ok {
		return PageSize{}, fmt.Errorf("unknown page size: %s", name)
	}
	if landscape {
		ps.W, ps.H = ps.H, ps.W
		ps.Name += " landscape"
	}
	return ps, nil
}
