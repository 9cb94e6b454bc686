package cache

import "time"

const noSlot = -1

// recencyNode is one arena slot. Links are indices into the arena rather than
// pointers, so node relocation can never leave a dangling reference.
type recencyNode struct {
	key         string
	prev        int
	next        int
	accessCount int64
	lastAccess  time.Time
}

// recencyList is an intrusive doubly-linked list over live cache keys, most
// recently touched at the head. A key -> slot map gives O(1) relocation, and
// freed slots are recycled through a free list.
//
// Invariant: the slot map's key set equals the cache's entry key set.
type recencyList struct {
	arena []recencyNode
	slots map[string]int
	free  []int
	head  int
	tail  int
}

func newRecencyList(capacity int) *recencyList {
	return &recencyList{
		arena: make([]recencyNode, 0, capacity),
		slots: make(map[string]int, capacity),
		head:  noSlot,
		tail:  noSlot,
	}
}

func (l *recencyList) len() int {
	return len(l.slots)
}

// touch moves key to the head, creating its node when absent.
func (l *recencyList) touch(key string, now time.Time) {
	if slot, ok := l.slots[key]; ok {
		l.arena[slot].accessCount++
		l.arena[slot].lastAccess = now
		l.moveToFront(slot)
		return
	}

	slot := l.alloc()
	l.arena[slot] = recencyNode{
		key:         key,
		prev:        noSlot,
		next:        noSlot,
		accessCount: 1,
		lastAccess:  now,
	}
	l.slots[key] = slot
	l.pushFront(slot)
}

// remove unlinks key's node and recycles its slot. Returns false when absent.
func (l *recencyList) remove(key string) bool {
	slot, ok := l.slots[key]
	if !ok {
		return false
	}
	l.unlink(slot)
	delete(l.slots, key)
	l.arena[slot] = recencyNode{prev: noSlot, next: noSlot}
	l.free = append(l.free, slot)
	return true
}

// lru returns the least recently touched key.
func (l *recencyList) lru() (string, bool) {
	if l.tail == noSlot {
		return "", false
	}
	return l.arena[l.tail].key, true
}

// keys returns live keys from most to least recently touched.
func (l *recencyList) keys() []string {
	out := make([]string, 0, len(l.slots))
	for slot := l.head; slot != noSlot; slot = l.arena[slot].next {
		out = append(out, l.arena[slot].key)
	}
	return out
}

func (l *recencyList) alloc() int {
	if n := len(l.free); n > 0 {
		slot := l.free[n-1]
		l.free = l.free[:n-1]
		return slot
	}
	l.arena = append(l.arena, recencyNode{})
	return len(l.arena) - 1
}

func (l *recencyList) pushFront(slot int) {
	l.arena[slot].prev = noSlot
	l.arena[slot].next = l.head
	if l.head != noSlot {
		l.arena[l.head].prev = slot
	}
	l.head = slot
	if l.tail == noSlot {
		l.tail = slot
	}
}

func (l *recencyList) unlink(slot int) {
	prev := l.arena[slot].prev
	next := l.arena[slot].next
	if prev != noSlot {
		l.arena[prev].next = next
	} else {
		l.head = next
	}
	if next != noSlot {
		l.arena[next].prev = prev
	} else {
		l.tail = prev
	}
	l.arena[slot].prev = noSlot
	l.arena[slot].next = noSlot
}

func (l *recencyList) moveToFront(slot int) {
	if l.head == slot {
		return
	}
	l.unlink(slot)
	l.pushFront(slot)
}
