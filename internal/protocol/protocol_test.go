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
package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCapabilityHas(t *testing.T) {
	caps := CapPlainText | CapSprite
	assert.True(t, caps.Has(CapPlainText))
	assert.True(t, caps.Has(CapSprite))
	assert.False(t, caps.Has(CapRichText))
	assert.False(t, caps.Has(CapTasks))
}

func TestRequiredCapabilityBucketsByKind(t *testing.T) {
	assert.Equal(t, CapSprite, RequiredCapability(MsgAvatarMood))
	assert.Equal(t, CapTasks, RequiredCapability(MsgTaskStarted))
	assert.Equal(t, CapPlainText, RequiredCapability(MsgToken))
}
