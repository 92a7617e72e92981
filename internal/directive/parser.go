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

// Package directive implements the Command Parser of spec §4.6: an
// incremental scanner fed token-by-token that extracts bracket-delimited
// directives of the shape "[yolla:<verb> <args...>]" from assistant text,
// stripping recognized directives from the outbound visible text.
package directive

import (
	"strings"

	"go.uber.org/zap"

	"github.com/yollayah/conductor/internal/log"
)

const prefix = "yolla:"

// Directive is one recognized `[yolla:<verb> <args...>]` command.
type Directive struct {
	Verb string
	Args []string
}

// ItemKind discriminates Parser.Feed's output items.
type ItemKind int

const (
	ItemText ItemKind = iota
	ItemDirective
)

// Item is one ordered output of Feed: either a visible text fragment or a
// parsed Directive, in the order they occur in the stream.
type Item struct {
	Kind      ItemKind
	Text      string
	Directive Directive
}

// Parser is fed text token-by-token and holds a small residual buffer for
// directives spanning token boundaries. It is not safe for concurrent use.
type Parser struct {
	log *zap.Logger

	scanning bool   // inside an unclosed '[' right now
	residual string // content of the bracket seen so far, excluding '['
}

// New constructs an empty Parser.
func New() *Parser {
	return &Parser{log: log.With(zap.String("component", "directive.parser"))}
}

// Feed processes one token of assistant text and returns the ordered Items
// derived from it. A directive spanning multiple Feed calls is only
// returned once its closing ']' arrives in a later call.
func (p *Parser) Feed(token string) []Item {
	var items []Item
	var textBuf strings.Builder

	flushText := func() {
		if textBuf.Len() > 0 {
			items = append(items, Item{Kind: ItemText, Text: textBuf.String()})
			textBuf.Reset()
		}
	}

	for _, r := range token {
		switch {
		case p.scanning && r == '[':
			// Nested bracket cancels the outer scan at its position: the
			// original '[' plus everything scanned so far becomes literal
			// text, and scanning restarts at this new '['.
			textBuf.WriteByte('[')
			textBuf.WriteString(p.residual)
			p.residual = ""
			// scanning remains true; we start a fresh residual at the new '['.
		case p.scanning && r == ']':
			p.scanning = false
			body := p.residual
			p.residual = ""
			d, recognized := parseDirective(body)
			if recognized {
				flushText()
				items = append(items, Item{Kind: ItemDirective, Directive: d})
			} else {
				p.log.Info("unrecognized directive left in place", zap.String("body", body))
				textBuf.WriteByte('[')
				textBuf.WriteString(body)
				textBuf.WriteByte(']')
			}
		case p.scanning:
			p.residual += string(r)
		case r == '[':
			p.scanning = true
			p.residual = ""
		default:
			textBuf.WriteRune(r)
		}
	}

	flushText()
	return items
}

// Flush must be called at end-of-stream: an unclosed '[' is emitted as
// literal text per §4.6.
func (p *Parser) Flush() []Item {
	if !p.scanning {
		return nil
	}
	p.scanning = false
	text := "[" + p.residual
	p.residual = ""
	return []Item{{Kind: ItemText, Text: text}}
}

// parseDirective parses bracket body (without the surrounding brackets)
// into a Directive if it begins with the "yolla:" prefix and has a
// recognized verb; recognized is false for anything else, including a
// well-formed "yolla:" body whose verb this parser doesn't know, so the
// caller can leave it in place.
func parseDirective(body string) (Directive, bool) {
	if !strings.HasPrefix(body, prefix) {
		return Directive{}, false
	}
	rest := strings.TrimPrefix(body, prefix)
	fields := tokenize(rest)
	if len(fields) == 0 {
		return Directive{}, false
	}
	verb := fields[0]
	args := fields[1:]
	if !knownVerb(verb) {
		return Directive{}, false
	}
	return Directive{Verb: verb, Args: args}, true
}

var avatarVerbs = map[string]bool{
	"mood": true, "gesture": true, "reaction": true, "move": true,
	"peek": true, "swim": true, "wander": true, "point": true,
	"bounce": true, "dance": true, "wiggle": true, "celebrate": true,
}

func knownVerb(verb string) bool {
	return avatarVerbs[verb] || verb == "task"
}

// tokenize splits s on space characters while keeping double-quoted substrings
// (used by task descriptions/reasons) as single fields, quotes stripped.
func tokenize(s string) []string {
	var fields []string
	var cur strings.Builder
	inQuotes := false
	flush := func() {
		if cur.Len() > 0 {
			fields = append(fields, cur.String())
			cur.Reset()
		}
	}
	for _, r := range s {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == ' ' && !inQuotes:
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return fields
}
