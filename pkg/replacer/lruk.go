// Package replacer implements the LRU-K eviction policy used by the buffer
// pool to pick a victim frame when it needs to reuse space.
package replacer

import (
	"fmt"
	"sync"

	"github.com/bits-and-blooms/bitset"
)

// node tracks one frame's bounded access history.
type node struct {
	history   []int64 // oldest first, capped at k entries
	evictable bool
}

// kDistance reports the node's backward k-distance given the current
// timestamp and k, and whether it is "infinite" (fewer than k accesses).
func (n *node) kDistance(currentTS int64, k int) (distance int64, infinite bool) {
	if len(n.history) < k {
		return 0, true
	}
	return currentTS - n.history[0], false
}

// Replacer tracks per-frame access history and selects eviction victims
// using the LRU-K rule: the evictable frame with the largest backward
// k-distance, treating frames with fewer than K recorded accesses as having
// infinite distance (and therefore being preferred for eviction).
type Replacer struct {
	mu        sync.Mutex
	k         int
	currentTS int64
	numFrames int
	nodes     map[int]*node
	evictable *bitset.BitSet
}

// New constructs a Replacer that can track up to numFrames distinct frame
// ids (0..numFrames-1), using history length k.
func New(numFrames int, k int) *Replacer {
	if k <= 0 {
		panic("replacer: k must be positive")
	}
	return &Replacer{
		k:         k,
		numFrames: numFrames,
		nodes:     make(map[int]*node),
		evictable: bitset.New(uint(max(numFrames, 1))),
	}
}

// RecordAccess appends a new access timestamp for fid, creating its history
// node if this is the first access, and truncates history to the last K
// timestamps.
func (r *Replacer) RecordAccess(fid int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.currentTS++
	n, ok := r.nodes[fid]
	if !ok {
		n = &node{}
		r.nodes[fid] = n
	}
	n.history = append(n.history, r.currentTS)
	if len(n.history) > r.k {
		n.history = n.history[len(n.history)-r.k:]
	}
}

// SetEvictable marks fid as evictable or not. fid must already have been
// observed by RecordAccess; calling this on an untracked frame is a
// programmer error.
func (r *Replacer) SetEvictable(fid int, evictable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[fid]
	if !ok {
		panic(fmt.Sprintf("replacer: SetEvictable on untracked frame %d", fid))
	}
	if n.evictable == evictable {
		return
	}
	n.evictable = evictable
	if evictable {
		r.evictable.Set(uint(fid))
	} else {
		r.evictable.Clear(uint(fid))
	}
}

// Remove drops fid's history entirely. It panics if fid is tracked but not
// currently evictable, per the replacer's usage contract; removing an
// untracked frame is a no-op.
func (r *Replacer) Remove(fid int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[fid]
	if !ok {
		return
	}
	if !n.evictable {
		panic(fmt.Sprintf("replacer: Remove on non-evictable frame %d", fid))
	}
	delete(r.nodes, fid)
	r.evictable.Clear(uint(fid))
}

// Evict selects and removes the frame with the largest backward k-distance
// among evictable frames, applying the documented tie-break rules. It
// reports ok=false if no frame is evictable.
func (r *Replacer) Evict() (fid int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bestFID := -1
	var bestDistance int64
	bestInfinite := false
	var bestTiebreak int64

	for candidate, n := range r.nodes {
		if !n.evictable {
			continue
		}
		distance, infinite := n.kDistance(r.currentTS, r.k)
		// Tie-break key: for infinite nodes, the most recent timestamp
		// (smaller wins, i.e. least recently used); for finite nodes, the
		// oldest preserved entry (smaller wins, already equal to distance's
		// anchor but kept explicit for clarity).
		tiebreak := n.history[len(n.history)-1]
		if !infinite {
			tiebreak = n.history[0]
		}

		if bestFID == -1 {
			bestFID, bestDistance, bestInfinite, bestTiebreak = candidate, distance, infinite, tiebreak
			continue
		}

		switch {
		case infinite && !bestInfinite:
			bestFID, bestDistance, bestInfinite, bestTiebreak = candidate, distance, infinite, tiebreak
		case infinite == bestInfinite && infinite:
			if tiebreak < bestTiebreak {
				bestFID, bestDistance, bestInfinite, bestTiebreak = candidate, distance, infinite, tiebreak
			}
		case infinite == bestInfinite && !infinite:
			if distance > bestDistance || (distance == bestDistance && tiebreak < bestTiebreak) {
				bestFID, bestDistance, bestInfinite, bestTiebreak = candidate, distance, infinite, tiebreak
			}
		}
	}

	if bestFID == -1 {
		return 0, false
	}
	delete(r.nodes, bestFID)
	r.evictable.Clear(uint(bestFID))
	return bestFID, true
}

// Size returns the number of currently evictable frames.
func (r *Replacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int(r.evictable.Count())
}
