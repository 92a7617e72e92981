// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package tui

import (
	"strings"

	"github.com/rivo/uniseg"
)

// splitCells breaks s into grapheme clusters so a multi-byte glyph (e.g. a
// combining emoji used by a sprite) never straddles two cells of the block
// grid, per §4.10's "1 cell = 1 character" requirement.
func splitCells(s string) []string {
	var cells []string
	g := uniseg.NewGraphemes(s)
	for g.Next() {
		cells = append(cells, g.Str())
	}
	return cells
}

// cellWidth returns the terminal display width of a single grapheme
// cluster, accounting for East Asian wide glyphs, so the wrap cache and the
// avatar grid size cells consistently.
func cellWidth(cell string) int {
	return uniseg.StringWidth(cell)
}

// padCells right-pads cells with spaces so the row spans exactly width
// display columns; a row already at or past width is returned unchanged.
// It returns a new slice; no reusable render buffer is kept.
func padCells(cells []string, width int) []string {
	w := 0
	for _, c := range cells {
		w += cellWidth(c)
	}
	if w >= width {
		return cells
	}
	out := make([]string, 0, len(cells)+1)
	out = append(out, cells...)
	out = append(out, strings.Repeat(" ", width-w))
	return out
}
