// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tui

import "time"

// HeatDecayDuration is how long a changed row stays highlighted. Heat
// decays linearly from 1.0 to 0.0 over this window.
const HeatDecayDuration = 2 * time.Second

// HeatTracker remembers when rows changed so the view can tint them
// for a moment after a refresh. Keys are row identities.
type HeatTracker[K comparable] struct {
	ignited map[K]time.Time
	seen    map[K]string
	primed  bool
}

// NewHeatTracker creates an empty tracker.
func NewHeatTracker[K comparable]() *HeatTracker[K] {
	return &HeatTracker[K]{
		ignited: make(map[K]time.Time),
		seen:    make(map[K]string),
	}
}

// Ignite marks key as changed at now, restarting its decay.
func (tracker *HeatTracker[K]) Ignite(key K, now time.Time) {
	tracker.ignited[key] = now
}

// Observe compares the current rows against the previous observation
// and ignites every key that is new or whose fingerprint changed. The
// first observation only records state, so an initial load does not
// light up the whole list.
func (tracker *HeatTracker[K]) Observe(fingerprints map[K]string, now time.Time) {
	if tracker.primed {
		for key, fingerprint := range fingerprints {
			if previous, exists := tracker.seen[key]; !exists || previous != fingerprint {
				tracker.Ignite(key, now)
			}
		}
	}
	tracker.seen = fingerprints
	tracker.primed = true
}

// Heat returns 1.0 at ignition, decaying to 0.0 after HeatDecayDuration.
func (tracker *HeatTracker[K]) Heat(key K, now time.Time) float64 {
	ignition, exists := tracker.ignited[key]
	if !exists {
		return 0
	}
	elapsed := now.Sub(ignition)
	if elapsed >= HeatDecayDuration {
		return 0
	}
	return 1 - float64(elapsed)/float64(HeatDecayDuration)
}

// HasHot reports whether any key still has heat, pruning decayed
// entries. Callers keep their animation tick running while it is true.
func (tracker *HeatTracker[K]) HasHot(now time.Time) bool {
	hot := false
	for key, ignition := range tracker.ignited {
		if now.Sub(ignition) < HeatDecayDuration {
			hot = true
			continue
		}
		delete(tracker.ignited, key)
	}
	return hot
}

// Reset forgets every observation, so the next Observe primes again.
func (tracker *HeatTracker[K]) Reset() {
	clear(tracker.ignited)
	tracker.seen = make(map[K]string)
	tracker.primed = false
}
