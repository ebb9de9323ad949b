// Package hashindex implements the Robin Hood open-addressed hash table
// that backs the NubDB storage engine: bytes key -> Record, with
// incremental resize and back-shift deletion. See spec section 4.1.
package hashindex

import "bytes"

// Record is a stored value with an optional absolute expiry timestamp
// (unix seconds; 0 means the record never expires). The Index does not
// interpret expiry itself — that is the Storage Engine's job — it only
// carries the field.
type Record struct {
	Bytes     []byte
	ExpiresAt int64
}

// slot is one array cell: either empty (Occupied == false) or holding an
// owned copy of a key, its Record, its hash, and its probe sequence
// length (distance from its ideal position).
type slot struct {
	Occupied bool
	Key      []byte
	Value    Record
	Hash     uint64
	PSL      uint32
}

// Index is a Robin Hood open-addressed hash table from byte-string keys
// to Records. It is not safe for concurrent use; callers (pkg/engine)
// serialize access with an external reader-writer lock, per spec section
// 5's lock-ordering discipline.
type Index struct {
	slots             []slot
	count             int
	loadFactorPercent int
}

// New creates an Index with the given initial capacity and load factor
// threshold (percent, e.g. 90). Capacity zero is never constructed.
func New(initialCapacity, loadFactorPercent int) *Index {
	if initialCapacity <= 0 {
		initialCapacity = 1024
	}
	if loadFactorPercent <= 0 || loadFactorPercent > 100 {
		loadFactorPercent = 90
	}
	return &Index{
		slots:             make([]slot, initialCapacity),
		loadFactorPercent: loadFactorPercent,
	}
}

// Count returns the number of occupied slots, including any
// logically-expired-but-not-yet-removed entries the caller is tracking
// externally.
func (idx *Index) Count() int { return idx.count }

// Capacity returns the current number of slots in the table.
func (idx *Index) Capacity() int { return len(idx.slots) }

// Put inserts or overwrites key with rec. On overwrite, the existing
// slot's PSL and key are left untouched and only the value is replaced,
// per spec invariant (i).
func (idx *Index) Put(key []byte, rec Record) {
	if idx.wouldExceedLoadFactor(idx.count + 1) {
		idx.resize(len(idx.slots) * 2)
	}

	owned := make([]byte, len(key))
	copy(owned, key)

	entry := slot{
		Occupied: true,
		Key:      owned,
		Value:    rec,
		Hash:     hashKey(key),
		PSL:      0,
	}
	idx.insert(entry)
}

// wouldExceedLoadFactor reports whether a table holding prospectiveCount
// entries meets or exceeds the configured load factor threshold.
func (idx *Index) wouldExceedLoadFactor(prospectiveCount int) bool {
	return prospectiveCount*100 >= len(idx.slots)*idx.loadFactorPercent
}

// insert runs the Robin Hood probing discipline against idx.slots,
// starting from e's ideal position. It assumes the caller has already
// performed any necessary resize.
func (idx *Index) insert(e slot) {
	n := len(idx.slots)
	pos := int(e.Hash % uint64(n))

	for {
		s := &idx.slots[pos]

		if !s.Occupied {
			*s = e
			idx.count++
			return
		}

		if s.Hash == e.Hash && bytes.Equal(s.Key, e.Key) {
			s.Value = e.Value
			return
		}

		if e.PSL > s.PSL {
			e, *s = *s, e
		}

		e.PSL++
		pos = (pos + 1) % n
	}
}

// Get looks up key, applying the Robin Hood early-termination property:
// once the search distance exceeds the psl of the slot under
// examination, the key cannot be present further along the chain.
func (idx *Index) Get(key []byte) (Record, bool) {
	n := len(idx.slots)
	h := hashKey(key)
	pos := int(h % uint64(n))
	d := uint32(0)

	for {
		s := &idx.slots[pos]
		if !s.Occupied {
			return Record{}, false
		}
		if d > s.PSL {
			return Record{}, false
		}
		if s.Hash == h && bytes.Equal(s.Key, key) {
			return s.Value, true
		}
		d++
		pos = (pos + 1) % n
	}
}

// Remove deletes key if present and runs back-shift deletion on the
// probe chain that follows it, returning true if a removal occurred.
func (idx *Index) Remove(key []byte) bool {
	n := len(idx.slots)
	h := hashKey(key)
	pos := int(h % uint64(n))
	d := uint32(0)

	for {
		s := &idx.slots[pos]
		if !s.Occupied {
			return false
		}
		if d > s.PSL {
			return false
		}
		if s.Hash == h && bytes.Equal(s.Key, key) {
			idx.slots[pos] = slot{}
			idx.count--
			idx.backShift(pos)
			return true
		}
		d++
		pos = (pos + 1) % n
	}
}

// backShift walks forward from the just-vacated position emptyPos,
// pulling each subsequent occupied slot with PSL > 0 back one position
// and decrementing its PSL, stopping at an empty slot or one whose PSL
// is already 0 (it is already at its ideal position).
func (idx *Index) backShift(emptyPos int) {
	n := len(idx.slots)
	cur := emptyPos

	for {
		next := (cur + 1) % n
		ns := &idx.slots[next]
		if !ns.Occupied || ns.PSL == 0 {
			return
		}
		idx.slots[cur] = *ns
		idx.slots[cur].PSL--
		idx.slots[next] = slot{}
		cur = next
	}
}

// resize doubles (or grows to newCapacity) the table, reinserting every
// occupied slot with PSL reset to 0. Count is preserved. This performs
// no AOF side effects — it is a pure in-memory reshuffle.
func (idx *Index) resize(newCapacity int) {
	old := idx.slots
	idx.slots = make([]slot, newCapacity)
	preservedCount := idx.count
	idx.count = 0

	for _, s := range old {
		if !s.Occupied {
			continue
		}
		s.PSL = 0
		idx.insert(s)
	}

	// Sanity: reinsertion must preserve count exactly.
	if idx.count != preservedCount {
		panic("hashindex: resize lost or duplicated entries")
	}
}

// Clear frees every entry and resets count to zero. Capacity is not
// shrunk.
func (idx *Index) Clear() {
	for i := range idx.slots {
		idx.slots[i] = slot{}
	}
	idx.count = 0
}

// Entry is one occupied slot as observed by ForEach.
type Entry struct {
	Key   []byte
	Value Record
}

// ForEach yields every occupied slot in array order. The caller must
// hold a lock for the duration of the call (shared is sufficient);
// mutating the index from within fn is forbidden.
func (idx *Index) ForEach(fn func(Entry)) {
	for _, s := range idx.slots {
		if s.Occupied {
			fn(Entry{Key: s.Key, Value: s.Value})
		}
	}
}

// MaxPSL scans the table and returns the largest probe sequence length
// among occupied slots. Used by tests to verify the Robin Hood probe
// bound (spec section 8, scenario 6).
func (idx *Index) MaxPSL() uint32 {
	var max uint32
	for _, s := range idx.slots {
		if s.Occupied && s.PSL > max {
			max = s.PSL
		}
	}
	return max
}
