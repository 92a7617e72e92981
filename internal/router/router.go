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

// Package router implements the Router of spec §4.8: picks a backend model
// for a turn from an ordered set of rules, and walks a per-model fallback
// chain past any model a sliding-window health tracker considers unhealthy.
package router

import (
	"strings"
	"time"

	"github.com/yollayah/conductor/internal/yid"
)

// Reason identifies which rule selected a Decision's model.
type Reason int

const (
	ReasonUserRequested Reason = iota
	ReasonSpecialized
	ReasonClassifierQuick
	ReasonClassifierDeep
	ReasonClassifierCreative
	ReasonDefault
	ReasonFallback
)

func (r Reason) String() string {
	switch r {
	case ReasonUserRequested:
		return "user_requested"
	case ReasonSpecialized:
		return "specialized"
	case ReasonClassifierQuick:
		return "classifier_quick"
	case ReasonClassifierDeep:
		return "classifier_deep"
	case ReasonClassifierCreative:
		return "classifier_creative"
	case ReasonDefault:
		return "default"
	case ReasonFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// Decision is the Router's output for one turn.
type Decision struct {
	Model         yid.ModelID
	Reason        Reason
	Confidence    float64
	FallbackChain []yid.ModelID
}

// Config configures model selection. Specializations maps a lowercase
// keyword to the specialized model it should route to; keys are checked in
// the order given, so put more specific keywords first. FallbackChains maps
// a model to the ordered list of models to try if it is unhealthy.
type Config struct {
	Specializations   []KeywordRoute
	QuickModel        yid.ModelID
	DeepModel         yid.ModelID
	CreativeModel     yid.ModelID
	DefaultModel      yid.ModelID
	FallbackChains    map[yid.ModelID][]yid.ModelID
	QuickWordCeiling  int // queries at or below this many words are "Quick"
	DeepWordFloor     int // queries at or above this many words are "Deep"
	HealthWindow      time.Duration
	UnhealthyFraction float64
	MinHealthSamples  int
}

// KeywordRoute binds a keyword to a specialized model.
type KeywordRoute struct {
	Keyword string
	Model   yid.ModelID
}

// Router selects a model for a turn and tracks model health from reported
// call outcomes.
type Router struct {
	cfg    Config
	health *healthTracker
}

// New constructs a Router from cfg.
func New(cfg Config) *Router {
	return &Router{
		cfg:    cfg,
		health: newHealthTracker(cfg.HealthWindow, cfg.UnhealthyFraction, cfg.MinHealthSamples),
	}
}

// RecordOutcome feeds one call result into the health tracker so future
// Route calls can skip an unhealthy model in favor of its fallback chain.
func (r *Router) RecordOutcome(model yid.ModelID, success bool) {
	r.health.Record(model, success)
}

// Route chooses a model for query under the §4.8 rule order, then, if the
// chosen model is unhealthy, walks its fallback chain until a healthy model
// is found or the chain is exhausted (in which case the originally chosen
// model is still returned — the router never refuses to choose).
func (r *Router) Route(query string, requested yid.ModelID) Decision {
	d := r.selectRule(query, requested)
	d.FallbackChain = r.cfg.FallbackChains[d.Model]

	if r.health.Healthy(d.Model) {
		return d
	}
	for _, candidate := range d.FallbackChain {
		if r.health.Healthy(candidate) {
			return Decision{
				Model:         candidate,
				Reason:        ReasonFallback,
				Confidence:    d.Confidence,
				FallbackChain: d.FallbackChain,
			}
		}
	}
	return d
}

func (r *Router) selectRule(query string, requested yid.ModelID) Decision {
	if requested != "" {
		return Decision{Model: requested, Reason: ReasonUserRequested, Confidence: 1.0}
	}

	lower := strings.ToLower(query)
	for _, kr := range r.cfg.Specializations {
		if strings.Contains(lower, kr.Keyword) {
			return Decision{
				Model:      kr.Model,
				Reason:     ReasonSpecialized,
				Confidence: keywordConfidence(lower, kr.Keyword),
			}
		}
	}

	n := len(strings.Fields(query))
	switch classify(n, r.cfg.QuickWordCeiling, r.cfg.DeepWordFloor) {
	case bucketQuick:
		return Decision{Model: r.cfg.QuickModel, Reason: ReasonClassifierQuick, Confidence: bucketConfidence(n, r.cfg.QuickWordCeiling, r.cfg.DeepWordFloor)}
	case bucketDeep:
		return Decision{Model: r.cfg.DeepModel, Reason: ReasonClassifierDeep, Confidence: bucketConfidence(n, r.cfg.QuickWordCeiling, r.cfg.DeepWordFloor)}
	case bucketCreative:
		return Decision{Model: r.cfg.CreativeModel, Reason: ReasonClassifierCreative, Confidence: 0.5}
	default:
		// The classifier couldn't categorize an empty query; rule 4 covers it.
		return Decision{Model: r.cfg.DefaultModel, Reason: ReasonDefault, Confidence: 0.3}
	}
}

type bucket int

const (
	bucketNone bucket = iota
	bucketQuick
	bucketDeep
	bucketCreative
)

// classify buckets a query by word count, per §4.8's three-bucket
// classifier. An empty query carries no length/complexity signal at all,
// so it falls through to bucketNone, letting rule 4's plain default apply.
func classify(words, quickCeiling, deepFloor int) bucket {
	if words == 0 {
		return bucketNone
	}
	if quickCeiling <= 0 {
		quickCeiling = 8
	}
	if deepFloor <= 0 {
		deepFloor = 40
	}
	switch {
	case words <= quickCeiling:
		return bucketQuick
	case words >= deepFloor:
		return bucketDeep
	default:
		return bucketCreative
	}
}

func bucketConfidence(words, quickCeiling, deepFloor int) float64 {
	if quickCeiling <= 0 {
		quickCeiling = 8
	}
	if deepFloor <= 0 {
		deepFloor = 40
	}
	if words <= quickCeiling {
		return 0.4 + 0.5*float64(quickCeiling-words)/float64(quickCeiling+1)
	}
	return 0.4 + 0.5*float64(words-deepFloor)/float64(deepFloor+1)
}

// keywordConfidence scores a specialization match by the keyword's share of
// the query: a query that is mostly the keyword is a stronger signal than
// one where the keyword is an incidental mention.
func keywordConfidence(lowerQuery, keyword string) float64 {
	if len(lowerQuery) == 0 {
		return 0.6
	}
	share := float64(len(keyword)) / float64(len(lowerQuery))
	confidence := 0.6 + 0.4*share
	if confidence > 1.0 {
		confidence = 1.0
	}
	return confidence
}
