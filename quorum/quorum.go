// Copyright 2017, Yahoo Holdings Inc.
// Licensed under the terms of the Apache license. See LICENSE file in project root for terms.

// Package quorum counts matching node outcomes until enough independent
// nodes agree to certify a single result.
package quorum

// Tally buckets outcomes by their canonical response key and settles on
// the first key whose count reaches the threshold. A Tally is private
// to one broadcast call; the caller serializes Add.
type Tally struct {
	threshold int
	counts    map[string]int
	settled   string
	done      bool
}

func NewTally(threshold int) *Tally {
	return &Tally{
		threshold: threshold,
		counts:    make(map[string]int),
	}
}

// Add records one vote for key and reports whether this vote settled
// the tally. A key missing from the map counts from zero. Votes keep
// being counted after settlement but can never settle a second time.
func (t *Tally) Add(key string) bool {
	t.counts[key]++
	if !t.done && t.counts[key] >= t.threshold {
		t.done = true
		t.settled = key
		return true
	}
	return false
}

// Settled reports whether some key reached the threshold, and which.
func (t *Tally) Settled() (string, bool) {
	return t.settled, t.done
}

// Count returns the number of votes recorded for key so far.
func (t *Tally) Count(key string) int {
	return t.counts[key]
}

// Total returns the number of votes recorded across all keys.
func (t *Tally) Total() int {
	n := 0
	for _, c := range t.counts {
		n += c
	}
	return n
}
