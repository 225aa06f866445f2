package buffer

import (
	"container/list"
	"sync"

	"latchdb/types"
)

// Replacer implements §4.A: a strict-LRU-by-unpin-time victim
// selector. It holds exactly the frames whose pin count has dropped to
// zero and have not since been re-pinned.
//
// No third-party cache library in the example corpus models this
// correctly: every general-purpose LRU cache (hashicorp/golang-lru,
// ristretto, ...) treats "access" as the recency signal and has no notion
// of a pin that makes an entry ineligible for eviction regardless of
// recency. Modelling Pin/Unpin on top of one of those would mean faking
// the semantics around a library built for a different contract, so this
// is a small hand-rolled structure — the same linked-list-plus-position-map
// shape §3 spells out for "Replacer state" — built on the standard
// library's container/list rather than a domain dependency.
type Replacer struct {
	mu       sync.Mutex
	order    *list.List // front = next victim (least-recently-unpinned)
	elements map[types.FrameID]*list.Element
}

// NewReplacer creates an empty replacer.
func NewReplacer() *Replacer {
	return &Replacer{
		order:    list.New(),
		elements: make(map[types.FrameID]*list.Element),
	}
}

// Victim removes and returns the least-recently-unpinned frame, or false
// if the replacer is empty.
func (r *Replacer) Victim() (types.FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	front := r.order.Front()
	if front == nil {
		return 0, false
	}
	frame := front.Value.(types.FrameID)
	r.order.Remove(front)
	delete(r.elements, frame)
	return frame, true
}

// Pin removes frame from the replacer if present; a frame that is about to
// be used again is no longer a victim candidate. No-op if frame is not in
// the replacer.
func (r *Replacer) Pin(frame types.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if el, ok := r.elements[frame]; ok {
		r.order.Remove(el)
		delete(r.elements, frame)
	}
}

// Unpin appends frame at the tail, making it the most-recently-eligible
// victim. No-op if frame is already present.
func (r *Replacer) Unpin(frame types.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.elements[frame]; ok {
		return
	}
	r.elements[frame] = r.order.PushBack(frame)
}

// Size returns the number of frames currently eligible for eviction.
func (r *Replacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.order.Len()
}
