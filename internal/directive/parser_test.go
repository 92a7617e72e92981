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
package directive

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func textOf(items []Item) string {
	var b strings.Builder
	for _, it := range items {
		if it.Kind == ItemText {
			b.WriteString(it.Text)
		}
	}
	return b.String()
}

func directivesOf(items []Item) []Directive {
	var ds []Directive
	for _, it := range items {
		if it.Kind == ItemDirective {
			ds = append(ds, it.Directive)
		}
	}
	return ds
}

func TestCommandStrippingExample(t *testing.T) {
	p := New()
	tokens := []string{"Sure ", "[yolla:mood happy] ", "done."}

	var allItems []Item
	for _, tok := range tokens {
		allItems = append(allItems, p.Feed(tok)...)
	}

	assert.Equal(t, "Sure  done.", textOf(allItems))
	ds := directivesOf(allItems)
	assert.Len(t, ds, 1)
	assert.Equal(t, "mood", ds[0].Verb)
	assert.Equal(t, []string{"happy"}, ds[0].Args)
}

func TestDirectiveSpanningTokenBoundaries(t *testing.T) {
	p := New()
	var items []Item
	items = append(items, p.Feed("hi [yolla:")...)
	items = append(items, p.Feed("mood ")...)
	items = append(items, p.Feed("happy] bye")...)

	assert.Equal(t, "hi  bye", textOf(items))
	ds := directivesOf(items)
	assert.Equal(t, []Directive{{Verb: "mood", Args: []string{"happy"}}}, ds)
}

func TestIncrementalEquivalentToWholeStream(t *testing.T) {
	full := `Sure [yolla:mood happy] here you go [yolla:task start coder "write tests"] thanks`

	whole := New()
	wholeItems := whole.Feed(full)
	wholeItems = append(wholeItems, whole.Flush()...)

	incremental := New()
	var incItems []Item
	for _, r := range full {
		incItems = append(incItems, incremental.Feed(string(r))...)
	}
	incItems = append(incItems, incremental.Flush()...)

	assert.Equal(t, textOf(wholeItems), textOf(incItems))
	assert.Equal(t, directivesOf(wholeItems), directivesOf(incItems))
}

func TestUnclosedBracketFlushedAsLiteral(t *testing.T) {
	p := New()
	items := p.Feed("careful [yolla:mood")
	items = append(items, p.Flush()...)
	assert.Equal(t, "careful [yolla:mood", textOf(items))
}

func TestNestedBracketCancelsOuterScan(t *testing.T) {
	p := New()
	items := p.Feed("[yolla:mood [yolla:gesture wave]")

	assert.Equal(t, "[yolla:mood ", textOf(items))
	ds := directivesOf(items)
	assert.Len(t, ds, 1)
	assert.Equal(t, "gesture", ds[0].Verb)
}

func TestUnknownVerbLeftInPlace(t *testing.T) {
	p := New()
	items := p.Feed("[yolla:teleport moon]")
	assert.Equal(t, "[yolla:teleport moon]", textOf(items))
	assert.Empty(t, directivesOf(items))
}

func TestTaskDirectiveWithQuotedDescription(t *testing.T) {
	p := New()
	items := p.Feed(`[yolla:task start researcher "find primes"]`)
	ds := directivesOf(items)
	assert.Len(t, ds, 1)
	assert.Equal(t, "task", ds[0].Verb)
	assert.Equal(t, []string{"start", "researcher", "find primes"}, ds[0].Args)
}
