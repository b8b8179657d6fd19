package admission

// dedupSet is a fixed-capacity set of recently seen message IDs. When full,
// the oldest entry is evicted. The bound matters more than eviction order:
// the set exists to absorb webhook redeliveries, which arrive close together.
type dedupSet struct {
	index map[string]struct{}
	ring  []string
	next  int
}

func newDedupSet(capacity int) *dedupSet {
	if capacity <= 0 {
		capacity = 512
	}
	return &dedupSet{
		index: make(map[string]struct{}, capacity),
		ring:  make([]string, capacity),
	}
}

// Add inserts id and reports whether it was new. Evicts the oldest entry when
// the set is at capacity.
func (d *dedupSet) Add(id string) bool {
	if _, seen := d.index[id]; seen {
		return false
	}
	if old := d.ring[d.next]; old != "" {
		delete(d.index, old)
	}
	d.ring[d.next] = id
	d.index[id] = struct{}{}
	d.next = (d.next + 1) % len(d.ring)
	return true
}

// Reset forgets every entry.
func (d *dedupSet) Reset() {
	d.index = make(map[string]struct{}, len(d.ring))
	for i := range d.ring {
		d.ring[i] = ""
	}
	d.next = 0
}

func (d *dedupSet) Len() int { return len(d.index) }
