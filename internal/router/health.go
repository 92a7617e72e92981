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

package router

import (
	"sync"
	"time"

	"github.com/yollayah/conductor/internal/yid"
)

// DefaultHealthWindow is the span over which a model's recent failure rate
// is measured (§4.8 "recent failure rate over a sliding window").
const DefaultHealthWindow = 5 * time.Minute

// DefaultUnhealthyThreshold is the failure-rate fraction above which a
// model is considered unhealthy.
const DefaultUnhealthyThreshold = 0.5

// DefaultMinSamples is the minimum number of recent results required
// before a failure rate is trusted; below this a model is assumed healthy.
const DefaultMinSamples = 3

type outcome struct {
	at      time.Time
	success bool
}

// healthTracker keeps a per-model sliding window of call outcomes, the same
// timestamped-slice-with-trim shape used for token accounting in the
// backend rate limiter.
type healthTracker struct {
	mu        sync.Mutex
	window    time.Duration
	threshold float64
	minSample int
	results   map[yid.ModelID][]outcome
}

func newHealthTracker(window time.Duration, threshold float64, minSamples int) *healthTracker {
	if window <= 0 {
		window = DefaultHealthWindow
	}
	if threshold <= 0 {
		threshold = DefaultUnhealthyThreshold
	}
	if minSamples <= 0 {
		minSamples = DefaultMinSamples
	}
	return &healthTracker{
		window:    window,
		threshold: threshold,
		minSample: minSamples,
		results:   make(map[yid.ModelID][]outcome),
	}
}

// Record stores the outcome of a single call to model, evicting entries
// that have aged out of the tracking window.
func (h *healthTracker) Record(model yid.ModelID, success bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	entries := append(h.results[model], outcome{at: now, success: success})
	entries = trim(entries, now.Add(-h.window))
	h.results[model] = entries
}

// Healthy reports whether model's recent failure rate is below threshold.
// A model with fewer than minSample recent samples is assumed healthy:
// there is not yet enough evidence to distrust it.
func (h *healthTracker) Healthy(model yid.ModelID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	entries := trim(h.results[model], time.Now().Add(-h.window))
	h.results[model] = entries

	if len(entries) < h.minSample {
		return true
	}
	var failures int
	for _, e := range entries {
		if !e.success {
			failures++
		}
	}
	return float64(failures)/float64(len(entries)) < h.threshold
}

func trim(entries []outcome, cutoff time.Time) []outcome {
	i := 0
	for i < len(entries) && entries[i].at.Before(cutoff) {
		i++
	}
	return entries[i:]
}
