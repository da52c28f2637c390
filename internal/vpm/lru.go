package vpm

import "container/list"

// lruTracker generalizes the usual container/list LRU idiom (and the
// frame-table shape a buffer-pool manager needs) from integer page IDs to
// string page keys: a container/list ordered most-recently-used at the
// front, with a side map for O(1) touch/remove. The VPM's single goroutine
// owns this, so no mutex is needed here (single-threaded, cooperatively
// multitasked).
type lruTracker struct {
	order *list.List
	elems map[string]*list.Element
}

func newLRUTracker() *lruTracker {
	return &lruTracker{
		order: list.New(),
		elems: make(map[string]*list.Element),
	}
}

// touch marks key as most recently used, inserting it if new.
func (l *lruTracker) touch(key string) {
	if elem, ok := l.elems[key]; ok {
		l.order.MoveToFront(elem)
		return
	}
	l.elems[key] = l.order.PushFront(key)
}

func (l *lruTracker) remove(key string) {
	if elem, ok := l.elems[key]; ok {
		l.order.Remove(elem)
		delete(l.elems, key)
	}
}

func (l *lruTracker) len() int { return l.order.Len() }

// evictCandidate returns the least-recently-used key without removing it.
func (l *lruTracker) evictCandidate() (string, bool) {
	back := l.order.Back()
	if back == nil {
		return "", false
	}
	return back.Value.(string), true
}
