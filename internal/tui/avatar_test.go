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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yollayah/conductor/internal/avatar"
)

func TestRenderMoodFaceHasFixedDimensions(t *testing.T) {
	m := renderMoodFace(avatar.MoodHappy)
	require.Len(t, m, AvatarFrameHeight)
	for _, row := range m {
		assert.Equal(t, AvatarFrameWidth, len(splitCells(row)))
	}
}

func TestFrameForElapsedIsPureFunctionOfElapsed(t *testing.T) {
	anim := activityFrames(avatar.MoodNeutral, avatar.ActivityBounce)
	require.NotEmpty(t, anim)

	f1 := FrameForElapsed(anim, 0)
	f2 := FrameForElapsed(anim, AnimationFrameInterval*time.Duration(len(anim)))
	assert.Equal(t, f1, f2, "frame index must wrap modulo animation length")
}

func TestFrameForElapsedAdvancesWithTime(t *testing.T) {
	anim := activityFrames(avatar.MoodNeutral, avatar.ActivityWiggle)
	require.Len(t, anim, 4)

	for i, want := range anim {
		got := FrameForElapsed(anim, time.Duration(i)*AnimationFrameInterval)
		assert.Equal(t, want, got)
	}
}

func TestFrameForElapsedEmptyAnimationReturnsNil(t *testing.T) {
	assert.Nil(t, FrameForElapsed(nil, time.Second))
}

func TestWarmSpriteCachePinsEveryBasePose(t *testing.T) {
	c := NewSpriteCache(4, time.Minute)
	WarmSpriteCache(c)

	assert.Equal(t, len(basePoses), c.Len())
	for _, m := range basePoses {
		fp := fingerprint(m, avatar.GestureNone, avatar.ReactionNone, 0)
		_, ok := c.Get(fp)
		assert.True(t, ok, "expected %s to be pinned", m)
	}
}

func TestShiftRowsWrapsAround(t *testing.T) {
	m := BlockMatrix{"a", "b", "c"}
	assert.Equal(t, BlockMatrix{"c", "a", "b"}, shiftRows(m, 1))
	assert.Equal(t, BlockMatrix{"b", "c", "a"}, shiftRows(m, -1))
}

func TestShiftColsWrapsAround(t *testing.T) {
	m := BlockMatrix{"abc"}
	shifted := shiftCols(m, 1)
	assert.Equal(t, "cab", shifted[0])
}
