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
package avatar

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplySameSequenceConvergesSameState(t *testing.T) {
	apply := func(s State) State {
		s = s.WithMood(MoodHappy)
		s = s.WithGesture(GestureWave)
		s = s.WithActivity(ActivityBounce)
		s = s.WithReaction(ReactionCelebrate)
		return s
	}

	a := apply(Default())
	b := apply(Default())
	assert.Equal(t, a, b)
}

func TestParseMoodRejectsUnknown(t *testing.T) {
	_, ok := ParseMood("grumpy")
	assert.False(t, ok)

	m, ok := ParseMood("happy")
	assert.True(t, ok)
	assert.Equal(t, MoodHappy, m)
}

func TestParseActivityRecognizesAllVerbs(t *testing.T) {
	for _, verb := range []string{"idle", "peek", "swim", "wander", "bounce", "dance", "wiggle"} {
		_, ok := ParseActivity(verb)
		assert.True(t, ok, "verb %q should parse", verb)
	}
}
