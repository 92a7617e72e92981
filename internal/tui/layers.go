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

import "charm.land/lipgloss/v2"

// layerKind names one of the Render Engine's independently dirty-tracked
// layers (§4.10: "each logical component ... owns a back buffer").
type layerKind int

const (
	layerConversation layerKind = iota
	layerInput
	layerStatus
	layerTasks
	layerAvatar
	layerCount
)

// layer holds one component's last-rendered string plus whether it needs to
// be recomputed. Bubble Tea itself does the final cell-level diff against
// the real terminal, so the compositor's job is purely to avoid re-running
// a component's (potentially non-trivial) render function when nothing it
// depends on changed — e.g. the conversation transcript on every animation
// tick.
type layer struct {
	dirty   bool
	content string
}

// compositor owns every layer's dirty flag and cached content, and performs
// the dirty-tracked composite described by §4.10.
type compositor struct {
	layers [layerCount]layer
}

func newCompositor() *compositor {
	c := &compositor{}
	for i := range c.layers {
		c.layers[i].dirty = true
	}
	return c
}

// markDirty flags kind for recomputation on the next render.
func (c *compositor) markDirty(kind layerKind) {
	c.layers[kind].dirty = true
}

// anyDirty reports whether at least one layer needs recomputing, per
// §4.10's "the composite is called only if any layer is dirty."
func (c *compositor) anyDirty() bool {
	for _, l := range c.layers {
		if l.dirty {
			return true
		}
	}
	return false
}

// render returns kind's cached content, recomputing it via fn first if the
// layer is dirty.
func (c *compositor) render(kind layerKind, fn func() string) string {
	l := &c.layers[kind]
	if l.dirty {
		l.content = fn()
		l.dirty = false
	}
	return l.content
}

// composite places the avatar as a sidebar to the right of the conversation,
// then stacks tasks, status and input below them, top to bottom.
func composite(conversation, input, status, tasks, avatar string) string {
	top := lipgloss.JoinHorizontal(lipgloss.Top, conversation, avatar)
	return lipgloss.JoinVertical(lipgloss.Left, top, tasks, status, input)
}
