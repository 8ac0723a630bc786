// Package heapstats implements the heap allocation tracker of spec §4.8:
// a fixed-size pool of entries linked most-recent-first via
// next_entry_index, with slot selection preferring never-used slots over
// freed slots, and the central acyclicity invariant the spec calls out
// for randomized testing.
//
// Grounded on the teacher's internal/queue/pool.go bucketed-pool slot
// selection (pick an available slot before falling back to eviction),
// adapted from size-bucketed byte buffers to a single fixed array of
// allocation-tracking entries.
package heapstats

const listEnd = -1

// Entry is one tracked allocation, alive or freed-but-not-yet-reused.
type Entry struct {
	LR        uintptr
	Ptr       uintptr
	Size      uint32
	InUse     bool
	used      bool // true once this slot has ever held an entry
	nextIndex int
}

// Tracker is a fixed-capacity pool of Entry plus a most-recent-first
// linked list over it.
type Tracker struct {
	entries []Entry
	head    int // index of most-recently-added entry, or listEnd

	inUseCount    int
	maxInUseCount int
}

// New returns a Tracker with room for capacity entries.
func New(capacity int) *Tracker {
	return &Tracker{entries: make([]Entry, capacity), head: listEnd}
}

// InUseCount returns the number of entries currently marked in use.
func (t *Tracker) InUseCount() int { return t.inUseCount }

// MaxInUseCount returns the high-water mark of InUseCount.
func (t *Tracker) MaxInUseCount() int { return t.maxInUseCount }

// Add records a new tracked allocation at the head of the list,
// selecting a slot in preference order: a never-used slot, else the
// least-recently-added freed slot, else (pool full of in-use entries)
// the oldest entry in the list regardless of its in-use state.
func (t *Tracker) Add(lr, ptr uintptr, size uint32) {
	slot := t.selectSlot()
	t.unlinkFromList(slot)
	t.entries[slot] = Entry{LR: lr, Ptr: ptr, Size: size, InUse: true, used: true, nextIndex: t.head}
	t.head = slot

	t.inUseCount++
	if t.inUseCount > t.maxInUseCount {
		t.maxInUseCount = t.inUseCount
	}
}

// unlinkFromList removes slot from wherever it currently sits in the
// list (if anywhere) before it is relinked at the head. Needed because
// selectSlot may choose a slot that is already present in the list (the
// oldest-entry-reuse fallback case).
func (t *Tracker) unlinkFromList(slot int) {
	if t.head == slot {
		t.head = t.entries[slot].nextIndex
		return
	}
	for i := t.head; i != listEnd; i = t.entries[i].nextIndex {
		if t.entries[i].nextIndex == slot {
			t.entries[i].nextIndex = t.entries[slot].nextIndex
			return
		}
	}
}

// selectSlot picks an index for a new entry: first a never-used slot
// (index order, stable and simple since capacity is small and fixed),
// then the tail (oldest) freed slot in the list, then — pool full of
// in-use entries — the tail (oldest) entry outright.
func (t *Tracker) selectSlot() int {
	for i := range t.entries {
		if !t.entries[i].used {
			return i
		}
	}

	oldestFreed := listEnd
	oldestAny := listEnd
	for i := t.head; i != listEnd; i = t.entries[i].nextIndex {
		oldestAny = i
		if !t.entries[i].InUse {
			oldestFreed = i
		}
	}
	if oldestFreed != listEnd {
		return oldestFreed
	}
	return oldestAny
}

// Remove locates the most recent entry matching ptr and marks it freed.
// NULL (zero) pointers are ignored. Freeing an untracked pointer still
// decrements InUseCount — the tracker cannot distinguish that case from
// a legitimate free, by design (spec §4.8).
func (t *Tracker) Remove(ptr uintptr) {
	if ptr == 0 {
		return
	}
	for i := t.head; i != listEnd; i = t.entries[i].nextIndex {
		if t.entries[i].Ptr == ptr && t.entries[i].InUse {
			t.entries[i].InUse = false
			t.decrementInUseCount()
			return
		}
	}
	t.decrementInUseCount()
}

// decrementInUseCount decrements inUseCount, saturating at 0. A free of an
// untracked pointer is indistinguishable from a legitimate free, so the
// count can be driven toward zero by untracked frees; it never goes
// negative.
func (t *Tracker) decrementInUseCount() {
	if t.inUseCount > 0 {
		t.inUseCount--
	}
}

// Walk visits entries from most-recent to oldest, for post-mortem
// inspection. The callback sees freed entries too; it does not see
// never-used slots.
func (t *Tracker) Walk(fn func(Entry)) {
	for i := t.head; i != listEnd; i = t.entries[i].nextIndex {
		fn(t.entries[i])
	}
}

// Acyclic reports whether the most-recent-first list terminates at
// listEnd within entries-many hops, the tracker's central invariant
// (spec §4.8, §8 item 8).
func (t *Tracker) Acyclic() bool {
	seen := make(map[int]bool, len(t.entries))
	i := t.head
	for hops := 0; i != listEnd; hops++ {
		if hops > len(t.entries) || seen[i] {
			return false
		}
		seen[i] = true
		i = t.entries[i].nextIndex
	}
	return true
}
