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
	"fmt"
	"time"

	"github.com/yollayah/conductor/internal/avatar"
)

// AvatarFrameWidth/AvatarFrameHeight bound the block-cell grid every sprite
// is rendered into.
const (
	AvatarFrameWidth  = 12
	AvatarFrameHeight = 6
)

// AnimationFrameInterval is how often the avatar's animation frame index
// advances, per §4.10's dedicated 10 FPS animation tick.
const AnimationFrameInterval = 100 * time.Millisecond

// animation is a sequence of sprite frames, each shown for
// AnimationFrameInterval, looping after the last. Frames carry no
// per-step duration of their own.
type animation []BlockMatrix

// basePoses is the fixed table of base moods, each pinned into the
// SpriteCache at startup with no gesture and no reaction, per §8's "the pinned
// set is bounded at initialization." Activity frames are generated
// on-demand as derived variants since there are many more of them (one per
// animation step) than there are moods.
var basePoses = []avatar.Mood{
	avatar.MoodNeutral, avatar.MoodHappy, avatar.MoodSad,
	avatar.MoodExcited, avatar.MoodConfused, avatar.MoodSleepy,
}

// WarmSpriteCache renders and pins every base mood pose, called once during
// Terminal Surface startup.
func WarmSpriteCache(cache *SpriteCache) {
	for _, m := range basePoses {
		fp := fingerprint(m, avatar.GestureNone, avatar.ReactionNone, 0)
		cache.Pin(fp, renderMoodFace(m))
	}
}

// fingerprint collapses an avatar pose plus an animation frame index into a
// single SpriteFingerprint cache key.
func fingerprint(m avatar.Mood, g avatar.Gesture, r avatar.Reaction, frame int) SpriteFingerprint {
	return SpriteFingerprint(fmt.Sprintf("%s|%s|%s|%d", m, g, r, frame))
}

// faceGlyph is the single character standing in for each mood's
// expression, placed at the grid's center cell.
func faceGlyph(m avatar.Mood) string {
	switch m {
	case avatar.MoodHappy:
		return "^"
	case avatar.MoodSad:
		return "v"
	case avatar.MoodExcited:
		return "*"
	case avatar.MoodConfused:
		return "?"
	case avatar.MoodSleepy:
		return "-"
	default:
		return "o"
	}
}

// renderMoodFace lays a mood's face glyph into an otherwise blank
// AvatarFrameWidth x AvatarFrameHeight block grid.
func renderMoodFace(m avatar.Mood) BlockMatrix {
	rows := make(BlockMatrix, AvatarFrameHeight)
	midRow := AvatarFrameHeight / 2
	midCol := AvatarFrameWidth / 2
	for y := 0; y < AvatarFrameHeight; y++ {
		cells := make([]string, AvatarFrameWidth)
		for x := range cells {
			cells[x] = " "
		}
		if y == midRow {
			cells[midCol] = faceGlyph(m)
		}
		rows[y] = joinCells(cells)
	}
	return rows
}

func joinCells(cells []string) string {
	s := ""
	for _, c := range cells {
		s += c
	}
	return s
}

// activityFrames returns the looping animation steps for a sustained
// Activity, rendered relative to the base face so a derived variant is
// always "the base pose plus an offset", matching the spec's "animations
// are sequences (sprite, duration); frame advance is a pure function of
// elapsed time and animation state."
func activityFrames(m avatar.Mood, a avatar.Activity) animation {
	base := renderMoodFace(m)
	switch a {
	case avatar.ActivityBounce:
		return animation{shiftRows(base, 0), shiftRows(base, -1), shiftRows(base, 0), shiftRows(base, 1)}
	case avatar.ActivityWiggle:
		return animation{shiftCols(base, -1), shiftCols(base, 0), shiftCols(base, 1), shiftCols(base, 0)}
	case avatar.ActivitySwim, avatar.ActivityWander:
		return animation{shiftCols(base, -2), shiftCols(base, -1), shiftCols(base, 1), shiftCols(base, 2)}
	case avatar.ActivityDance:
		return animation{shiftRows(base, -1), shiftCols(base, 1), shiftRows(base, 1), shiftCols(base, -1)}
	case avatar.ActivityPeek:
		return animation{base, shiftCols(base, AvatarFrameWidth / 2)}
	default:
		return animation{base}
	}
}

// FrameForElapsed is the pure function described in §4.10: given an
// animation and how long it has been running, it returns the frame that
// should currently be on screen.
func FrameForElapsed(anim animation, elapsed time.Duration) BlockMatrix {
	if len(anim) == 0 {
		return nil
	}
	steps := int(elapsed / AnimationFrameInterval)
	return anim[steps%len(anim)]
}

func shiftRows(m BlockMatrix, by int) BlockMatrix {
	n := len(m)
	if n == 0 {
		return m
	}
	out := make(BlockMatrix, n)
	for i := range out {
		src := ((i-by)%n + n) % n
		out[i] = m[src]
	}
	return out
}

func shiftCols(m BlockMatrix, by int) BlockMatrix {
	out := make(BlockMatrix, len(m))
	for i, row := range m {
		cells := splitCells(row)
		n := len(cells)
		if n == 0 {
			out[i] = row
			continue
		}
		shifted := make([]string, n)
		for j := range shifted {
			src := ((j-by)%n + n) % n
			shifted[j] = cells[src]
		}
		out[i] = joinCells(shifted)
	}
	return out
}
