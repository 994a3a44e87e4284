// Copyright 2025 The SwissTable Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package swisstable implements a hash table that maps keys to values,
// similar to Go's builtin map type. The design borrows the metadata layout
// of Swiss Tables (https://abseil.io/about/design/swisstables): a single
// contiguous open-addressed slot array with a parallel array of one-byte
// control words, 7 bits of which are taken from hash(key). It combines that
// layout with Robin Hood displacement on insertion
// (https://codecapsule.com/2013/11/11/robin-hood-hashing/) over plain
// linear probing.
//
// # Layout
//
// A table has N slots where N is a power of 2 and N control bytes. The
// control byte for a slot is either empty (0xFF), deleted (0x80, a
// tombstone), or full, in which case its high bit is clear and its low 7
// bits carry a fingerprint of the slot's hash. Because N is a power of two,
// i%N is computed as i&(N-1). Each slot additionally caches the full hash
// of its key so that growth and probe-distance arithmetic never rehash.
//
// Probing walks the control bytes linearly from hash(key)&(N-1), one byte
// at a time. The slot array is only touched when a control byte matches
// the probe's fingerprint; the vast majority of mismatching slots are
// rejected on metadata alone.
//
// # Robin Hood displacement
//
// Every entry has a probe distance: how far its slot is from the slot its
// hash points at. Insertion enforces that walking any probe sequence
// encounters occupants with non-decreasing distances. When an insert's
// current distance exceeds an occupant's, the occupant is evicted and
// shifted down the sequence (a cyclic chain of swaps that ends at the
// first empty or deleted slot). The payoff is on lookup: a probe can stop
// as soon as it reaches an occupant richer than itself (if the key were
// present it would have displaced that occupant), which bounds miss costs
// and equalizes probe lengths across entries.
//
// Deletion writes a tombstone so probe chains through the slot stay
// intact. Tombstones are reclaimed by insertions whose probe stops just
// past them, absorbed by displacement chains, and dropped wholesale when
// the table grows. Growth doubles the capacity
// when an insertion would push the table above 7/8 load and reinserts the
// surviving entries using their cached hashes.
package swisstable

import (
	"fmt"
	"math/bits"
	"math/rand/v2"
	"strings"
	"unsafe"
)

const (
	debug = false

	// minCapacity is the smallest slot count a table can have. Capacity
	// hints are rounded up to a power of two no smaller than this.
	minCapacity = 8

	ctrlEmpty   ctrl = 0b11111111
	ctrlDeleted ctrl = 0b10000000
)

// Each slot in the table has a control byte which can have one of three
// states: empty, deleted (a tombstone), and full. They have the following
// bit patterns:
//
//	  empty: 1 1 1 1 1 1 1 1
//	deleted: 1 0 0 0 0 0 0 0
//	   full: 0 h h h h h h h  // h represents the H2 hash bits
//
// H2 is remapped so it is never 0, which keeps full bytes disjoint from
// both the empty and deleted encodings.
type ctrl uint8

// full returns true if the control byte holds an entry's fingerprint.
func (c ctrl) full() bool {
	return c&0x80 == 0
}

// emptyOrDeleted returns true if the control byte's slot holds no entry.
func (c ctrl) emptyOrDeleted() bool {
	return c&0x80 != 0
}

// h2 extracts the fingerprint portion of a hash: 7 bits taken above the
// bits that select the ideal slot, so fingerprint and slot index stay
// decorrelated at small capacities. A fingerprint of 0 is remapped to 1.
func h2(h uintptr) ctrl {
	c := ctrl((h >> 7) & 0x7f)
	if c == 0 {
		c = 1
	}
	return c
}

// Slot holds a key, a value, and the key's cached hash. The hash is cached
// so that growth and probe-distance computation never rehash the key.
type Slot[K comparable, V any] struct {
	key   K
	value V
	hash  uintptr
}

// Pair is a key/value element used for bulk construction of a Map.
type Pair[K comparable, V any] struct {
	Key   K
	Value V
}

// Map is an unordered map from keys to values with Put, Get, Delete, and
// All operations. By default, a Map[K,V] uses the same hash function as
// Go's builtin map[K]V, though a different hash function can be specified
// using the WithHash option.
//
// A Map is NOT goroutine-safe.
type Map[K comparable, V any] struct {
	// The hash function applied to keys of type K. The hash function is
	// extracted from the Go runtime's implementation of map[K]struct{}.
	hash hashFn
	seed uintptr
	// The allocator to use for the ctrls and slots slices.
	allocator Allocator[K, V]
	// ctrls is capacity in length, one control byte per slot. A slot holds
	// an entry iff its control byte is full.
	ctrls unsafeSlice[ctrl]
	// slots is capacity in length. Only slots whose control byte is full
	// are logically initialized.
	slots unsafeSlice[Slot[K, V]]
	// The total number of slots, always a power of two and >= minCapacity.
	capacity uintptr
	// mask is capacity-1, used to compute i%capacity with a bitwise &.
	mask uintptr
	// The number of filled slots (i.e. the number of elements in the map).
	// Tombstones are not counted.
	used int
	// loadLimit is the used count at which the next insertion grows the
	// table: capacity*7/8.
	loadLimit int
}

// New constructs a new Map with the specified initial capacity hint. The
// hint is rounded up to the next power of two, with a minimum of 8; a hint
// of 0 yields a capacity of 8.
func New[K comparable, V any](initialCapacity int, options ...option[K, V]) *Map[K, V] {
	m := &Map[K, V]{
		hash:      getRuntimeHasher[K](),
		seed:      uintptr(rand.Uint64()),
		allocator: defaultAllocator[K, V]{},
	}

	for _, op := range options {
		op.apply(m)
	}

	m.init(normalizeCapacity(initialCapacity))
	m.checkInvariants()
	return m
}

// FromPairs constructs a Map from a sequence of key/value pairs. Later
// pairs overwrite earlier pairs with the same key.
func FromPairs[K comparable, V any](pairs []Pair[K, V], options ...option[K, V]) *Map[K, V] {
	m := New[K, V](len(pairs), options...)
	for i := range pairs {
		m.Put(pairs[i].Key, pairs[i].Value)
	}
	return m
}

// normalizeCapacity rounds a capacity hint up to the next power of two,
// clamping below at minCapacity.
func normalizeCapacity(hint int) uintptr {
	if hint <= minCapacity {
		return minCapacity
	}
	return uintptr(1) << bits.Len(uint(hint-1))
}

// init points the map at freshly allocated ctrl and slot arrays of the
// given capacity. Both arrays are allocated before either is published so
// a failed allocation cannot leave the map half-switched.
func (m *Map[K, V]) init(capacity uintptr) {
	slots := m.allocator.AllocSlots(int(capacity))
	ctrls := m.allocator.AllocControls(int(capacity))
	for i := range ctrls {
		ctrls[i] = uint8(ctrlEmpty)
	}
	m.slots = makeUnsafeSlice(slots)
	m.ctrls = makeUnsafeSlice(unsafeConvertSlice[ctrl](ctrls))
	m.capacity = capacity
	m.mask = capacity - 1
	m.loadLimit = int(capacity * 7 / 8)
}

// Close closes the map, releasing any memory back to its configured
// allocator. It is unnecessary to close a map using the default allocator.
// It is invalid to use a Map after it has been closed, though Close itself
// is idempotent.
func (m *Map[K, V]) Close() {
	if m.capacity > 0 {
		m.allocator.FreeSlots(m.slots.Slice(0, m.capacity))
		m.allocator.FreeControls(unsafeConvertSlice[uint8](m.ctrls.Slice(0, m.capacity)))
		m.capacity = 0
		m.mask = 0
		m.used = 0
		m.loadLimit = 0
	}
	m.ctrls = makeUnsafeSlice([]ctrl(nil))
	m.slots = makeUnsafeSlice([]Slot[K, V](nil))
	m.allocator = nil
}

// distance returns the probe distance of an entry with hash h residing at
// slot i: the number of slots, modulo capacity, between i and the entry's
// ideal slot. The subtraction is performed modulo capacity which handles
// wrap-around.
func (m *Map[K, V]) distance(i, h uintptr) uintptr {
	return (i - (h & m.mask)) & m.mask
}

// Put inserts an entry into the map, overwriting an existing value if an
// entry with the same key already exists.
func (m *Map[K, V]) Put(key K, value V) {
	if m.used >= m.loadLimit {
		m.grow()
	}

	h := m.hash(noescape(unsafe.Pointer(&key)), m.seed)
	fp := h2(h)

	// NB: the walk below is Get's find routine manually inlined, extended
	// with the state the insertion decision needs.
	//
	// A tombstone cannot be taken the moment it is seen: the key may still
	// be live further down the chain, and claiming the tombstone first
	// would leave two live copies of it. Tombstones are instead remembered
	// as a reinsertion candidate while the walk keeps scanning for a
	// match.
	//
	// The candidate is reset whenever the walk passes a full slot, so only
	// a tombstone run that directly abuts the walk's stopping point is
	// ever reused. Any occupant beyond such a run probes through the run's
	// start with a distance no larger than the new entry's there, so
	// filling the run cannot cut that occupant's lookup short. A tombstone
	// with a full slot after it carries no such guarantee and is left for
	// displacement chains or growth to reclaim.
	i := h & m.mask
	if debug {
		fmt.Printf("put(%v): slot=%d fp=%02x\n", key, i, fp)
	}

	candidate := uintptr(0)
	hasCandidate := false
	for d := uintptr(0); d <= m.mask; d++ {
		c := *m.ctrls.At(i)
		if c == ctrlEmpty {
			// The key is absent. Reuse the tombstone run in front of this
			// empty slot if there is one.
			if hasCandidate {
				i = candidate
			}
			m.insertAt(i, key, value, h)
			if debug {
				fmt.Printf("put(inserting): index=%d dist=%d used=%d\n", i, d, m.used)
			}
			m.checkInvariants()
			return
		}
		if c == ctrlDeleted {
			if !hasCandidate {
				candidate, hasCandidate = i, true
			}
			i = (i + 1) & m.mask
			continue
		}
		s := m.slots.At(i)
		if c == fp && s.hash == h && s.key == key {
			s.value = value
			if debug {
				fmt.Printf("put(updating): index=%d key=%v\n", i, key)
			}
			m.checkInvariants()
			return
		}
		if d > m.distance(i, s.hash) {
			// The walker is poorer than the occupant, so the key is known
			// absent. Every occupant past this point is richer still, so a
			// tombstone run ending here is safe to fill; without one, evict
			// the occupant and shift the chain down the probe sequence.
			if hasCandidate {
				m.insertAt(candidate, key, value, h)
				if debug {
					fmt.Printf("put(inserting): index=%d used=%d\n", candidate, m.used)
				}
				m.checkInvariants()
				return
			}
			if debug {
				fmt.Printf("put(displacing): index=%d dist=%d evicted-dist=%d\n",
					i, d, m.distance(i, s.hash))
			}
			m.displace(i, Slot[K, V]{key: key, value: value, hash: h}, fp)
			m.used++
			m.checkInvariants()
			return
		}
		hasCandidate = false
		i = (i + 1) & m.mask
	}

	// The walk covered every slot without a match, an empty slot, or a
	// displacement point, so the key is absent and the table holds no
	// empty slot at all. A tombstone run reaching the end of the walk is
	// still safe to fill; failing that, growing drops the tombstones and
	// the retried insertion is guaranteed to find an empty slot.
	if hasCandidate {
		m.insertAt(candidate, key, value, h)
		m.checkInvariants()
		return
	}
	m.grow()
	m.Put(key, value)
}

// insertAt writes a new entry into slot i, which must not be full, and
// marks it with the hash's fingerprint.
func (m *Map[K, V]) insertAt(i uintptr, key K, value V, h uintptr) {
	s := m.slots.At(i)
	s.key, s.value, s.hash = key, value, h
	*m.ctrls.At(i) = h2(h)
	m.used++
}

// displace writes pending into slot i and shifts the occupants that follow
// down the probe sequence, one slot at a time, until the chain is absorbed
// by an empty or deleted slot. Each evicted occupant re-enters the chain
// one slot further from its ideal slot, so occupant distances along any
// probe sequence remain non-decreasing.
//
// The chain terminates: used < loadLimit < capacity guarantees a non-full
// slot within capacity steps of any starting point.
func (m *Map[K, V]) displace(i uintptr, pending Slot[K, V], fp ctrl) {
	for {
		c := *m.ctrls.At(i)
		s := m.slots.At(i)
		evicted := *s
		*s = pending
		*m.ctrls.At(i) = fp
		if c.emptyOrDeleted() {
			// A tombstone absorbs the chain just like an empty slot, which
			// keeps chains bounded after heavy deletion.
			return
		}
		pending, fp = evicted, c
		i = (i + 1) & m.mask
	}
}

// uncheckedPut inserts an entry known not to be in the table. Used during
// growth: keys in the old table are distinct, so the duplicate check of
// the full insert path is unnecessary, while the displacement discipline
// is kept. The entry's cached hash is used as-is.
func (m *Map[K, V]) uncheckedPut(pending Slot[K, V]) {
	fp := h2(pending.hash)
	i := pending.hash & m.mask
	for d := uintptr(0); ; d++ {
		c := *m.ctrls.At(i)
		if c.emptyOrDeleted() || d > m.distance(i, m.slots.At(i).hash) {
			m.displace(i, pending, fp)
			return
		}
		i = (i + 1) & m.mask
	}
}

// Get retrieves the value from the map for the specified key, returning
// ok=false if the key is not present.
func (m *Map[K, V]) Get(key K) (value V, ok bool) {
	h := m.hash(noescape(unsafe.Pointer(&key)), m.seed)
	fp := h2(h)

	// To find a key we walk the control bytes linearly from the key's
	// ideal slot, carrying the walk's current probe distance d:
	//
	//   - An empty control byte proves the key absent: an insert of this
	//     key could not have probed past it.
	//   - A full byte equal to the key's fingerprint nominates a
	//     candidate; the cached hash is compared before the key itself so
	//     most fingerprint collisions are rejected without a key compare.
	//   - A full byte whose occupant is closer to its own ideal slot than
	//     d also proves the key absent: had the key been present it would
	//     have displaced that occupant (Robin Hood early termination).
	//     Tombstones carry no distance and are walked over.
	//
	// The walk gives up after capacity slots. A table whose every slot is
	// full or deleted has no empty byte to stop at, and under a degenerate
	// hash every occupant can be exactly as poor as the walker; a present
	// key is always found within mask slots of its ideal slot, so the
	// bound only converts a potential infinite walk into a miss.
	i := h & m.mask
	if debug {
		fmt.Printf("get(%v): slot=%d fp=%02x\n", key, i, fp)
	}

	for d := uintptr(0); d <= m.mask; d++ {
		c := *m.ctrls.At(i)
		if c == ctrlEmpty {
			return value, false
		}
		if c == fp {
			s := m.slots.At(i)
			if s.hash == h && s.key == key {
				return s.value, true
			}
		}
		if c.full() && d > m.distance(i, m.slots.At(i).hash) {
			return value, false
		}
		i = (i + 1) & m.mask
	}
	return value, false
}

// GetOrDefault retrieves the value for the specified key, returning def if
// the key is not present.
func (m *Map[K, V]) GetOrDefault(key K, def V) V {
	if v, ok := m.Get(key); ok {
		return v
	}
	return def
}

// Contains reports whether the map contains the specified key.
func (m *Map[K, V]) Contains(key K) bool {
	_, ok := m.Get(key)
	return ok
}

// Delete deletes the entry corresponding to the specified key from the
// map. It is a noop to delete a non-existent key.
func (m *Map[K, V]) Delete(key K) {
	h := m.hash(noescape(unsafe.Pointer(&key)), m.seed)
	fp := h2(h)

	// Delete is find composed with "tombstone at": the walk below mirrors
	// Get, and on a hit the slot's contents are destroyed and its control
	// byte marked deleted. The slot stays part of every probe chain that
	// passes through it; a later insertion or the next growth reclaims it.
	i := h & m.mask
	if debug {
		fmt.Printf("delete(%v): slot=%d fp=%02x\n", key, i, fp)
	}

	for d := uintptr(0); d <= m.mask; d++ {
		c := *m.ctrls.At(i)
		if c == ctrlEmpty {
			return
		}
		if c == fp {
			s := m.slots.At(i)
			if s.hash == h && s.key == key {
				*s = Slot[K, V]{}
				*m.ctrls.At(i) = ctrlDeleted
				m.used--
				if debug {
					fmt.Printf("delete(%v): index=%d used=%d\n", key, i, m.used)
				}
				m.checkInvariants()
				return
			}
		}
		if c.full() && d > m.distance(i, m.slots.At(i).hash) {
			return
		}
		i = (i + 1) & m.mask
	}
}

// Clear removes all entries from the map, retaining its current capacity.
func (m *Map[K, V]) Clear() {
	for i := uintptr(0); i < m.capacity; i++ {
		*m.ctrls.At(i) = ctrlEmpty
		*m.slots.At(i) = Slot[K, V]{}
	}
	m.used = 0
	m.checkInvariants()
}

// grow allocates a table of double the capacity and reinserts every
// surviving entry using its cached hash. Tombstones are discarded by the
// migration, which restores probe chains to their shortest form. The new
// arrays are fully allocated before the old ones are abandoned and the
// used count is carried over unchanged.
func (m *Map[K, V]) grow() {
	oldCtrls, oldSlots, oldCapacity := m.ctrls, m.slots, m.capacity
	m.init(2 * oldCapacity)
	if debug {
		fmt.Printf("grow: capacity=%d->%d used=%d\n", oldCapacity, m.capacity, m.used)
	}

	for i := uintptr(0); i < oldCapacity; i++ {
		if (*oldCtrls.At(i)).full() {
			m.uncheckedPut(*oldSlots.At(i))
		}
	}

	m.allocator.FreeSlots(oldSlots.Slice(0, oldCapacity))
	m.allocator.FreeControls(unsafeConvertSlice[uint8](oldCtrls.Slice(0, oldCapacity)))
	m.checkInvariants()
}

// All calls yield sequentially for each key and value present in the map.
// If yield returns false, iteration stops. Iteration order is the slot
// order of the underlying array and is unspecified; it is stable between
// mutations but not across them.
func (m *Map[K, V]) All(yield func(key K, value V) bool) {
	// Snapshot the capacity, controls, and slots so that iteration remains
	// valid if the map is grown during iteration.
	capacity := m.capacity
	ctrls := m.ctrls
	slots := m.slots

	for i := uintptr(0); i < capacity; i++ {
		if (*ctrls.At(i)).full() {
			s := slots.At(i)
			if !yield(s.key, s.value) {
				return
			}
		}
	}
}

// AllWithIndex calls yield sequentially for each entry in the map along
// with the entry's position in the iteration, starting at 0. If yield
// returns false, iteration stops.
func (m *Map[K, V]) AllWithIndex(yield func(i int, key K, value V) bool) {
	i := 0
	m.All(func(key K, value V) bool {
		ok := yield(i, key, value)
		i++
		return ok
	})
}

// Iterator is an explicit cursor over the entries of a Map. Mutating the
// map invalidates the cursor; the entries visited afterwards are
// unspecified.
type Iterator[K comparable, V any] struct {
	ctrls    unsafeSlice[ctrl]
	slots    unsafeSlice[Slot[K, V]]
	capacity uintptr
	i        uintptr
}

// Iter returns a cursor positioned before the first entry of the map.
func (m *Map[K, V]) Iter() Iterator[K, V] {
	return Iterator[K, V]{
		ctrls:    m.ctrls,
		slots:    m.slots,
		capacity: m.capacity,
	}
}

// Next advances the cursor, returning the next entry and ok=true, or
// ok=false once every entry has been visited. Each live entry is returned
// exactly once, in unspecified order.
func (it *Iterator[K, V]) Next() (key K, value V, ok bool) {
	for it.i < it.capacity {
		c := *it.ctrls.At(it.i)
		i := it.i
		it.i++
		if c.full() {
			s := it.slots.At(i)
			return s.key, s.value, true
		}
	}
	return key, value, false
}

// Len returns the number of entries in the map.
func (m *Map[K, V]) Len() int {
	return m.used
}

// Cap returns the total number of slots in the map's table.
func (m *Map[K, V]) Cap() int {
	return int(m.capacity)
}

// Empty reports whether the map contains no entries.
func (m *Map[K, V]) Empty() bool {
	return m.used == 0
}

// String renders the map as {k1: v1, k2: v2} using the %v formatting of
// keys and values. An empty map renders as {}. The entry order is the
// iteration order and is unspecified.
func (m *Map[K, V]) String() string {
	var buf strings.Builder
	buf.WriteByte('{')
	first := true
	m.All(func(key K, value V) bool {
		if !first {
			buf.WriteString(", ")
		}
		first = false
		fmt.Fprintf(&buf, "%v: %v", key, value)
		return true
	})
	buf.WriteByte('}')
	return buf.String()
}

// Equal reports whether two maps contain the same set of key/value pairs.
// Capacity and internal layout do not affect the result.
func Equal[K, V comparable](a, b *Map[K, V]) bool {
	return EqualFunc(a, b, func(v1, v2 V) bool { return v1 == v2 })
}

// EqualFunc is like Equal but compares values using eq. Keys are still
// matched with ==.
func EqualFunc[K comparable, V1, V2 any](a *Map[K, V1], b *Map[K, V2], eq func(V1, V2) bool) bool {
	if a.used != b.used {
		return false
	}
	equal := true
	a.All(func(key K, v1 V1) bool {
		v2, ok := b.Get(key)
		if !ok || !eq(v1, v2) {
			equal = false
		}
		return equal
	})
	return equal
}

// checkInvariants is called after every mutation when built with
// -tags invariants.
func (m *Map[K, V]) checkInvariants() {
	if invariants {
		m.validateInvariants()
	}
}

// validateInvariants verifies the table's structural invariants, panicking
// with a table dump on the first violation. It is exercised by the tests
// directly and by every mutation under the invariants build tag.
func (m *Map[K, V]) validateInvariants() {
	if m.capacity < minCapacity || m.capacity&(m.capacity-1) != 0 {
		panic(fmt.Sprintf("invariant failed: capacity %d is not a power of two >= %d\n%s",
			m.capacity, minCapacity, m.debugString()))
	}
	if m.mask != m.capacity-1 {
		panic(fmt.Sprintf("invariant failed: mask %d != capacity-1 %d\n%s",
			m.mask, m.capacity-1, m.debugString()))
	}
	if m.loadLimit != int(m.capacity*7/8) || m.used > m.loadLimit {
		panic(fmt.Sprintf("invariant failed: used=%d load-limit=%d capacity=%d\n%s",
			m.used, m.loadLimit, m.capacity, m.debugString()))
	}

	var used int
	keys := make(map[K]uintptr, m.used)
	for i := uintptr(0); i < m.capacity; i++ {
		c := *m.ctrls.At(i)
		if c.emptyOrDeleted() {
			if c != ctrlEmpty && c != ctrlDeleted {
				panic(fmt.Sprintf("invariant failed: ctrl(%d)=%02x is neither empty, deleted, nor full\n%s",
					i, c, m.debugString()))
			}
			continue
		}
		used++
		s := m.slots.At(i)
		if j, ok := keys[s.key]; ok {
			panic(fmt.Sprintf("invariant failed: key %v is live in both slot(%d) and slot(%d)\n%s",
				s.key, j, i, m.debugString()))
		}
		keys[s.key] = i
		if fp := h2(s.hash); fp != c {
			panic(fmt.Sprintf("invariant failed: ctrl(%d)=%02x does not match fingerprint %02x\n%s",
				i, c, fp, m.debugString()))
		}
		// An entry at distance d>0 passed over its predecessor slot, so
		// that slot cannot be empty and any occupant there sits at
		// distance >= d-1.
		if d := m.distance(i, s.hash); d > 0 {
			prev := (i - 1) & m.mask
			pc := *m.ctrls.At(prev)
			if pc == ctrlEmpty {
				panic(fmt.Sprintf("invariant failed: slot(%d) at distance %d follows an empty slot\n%s",
					i, d, m.debugString()))
			}
			if pc.full() {
				if pd := m.distance(prev, m.slots.At(prev).hash); pd+1 < d {
					panic(fmt.Sprintf("invariant failed: slot(%d) distance %d > slot(%d) distance %d + 1\n%s",
						i, d, prev, pd, m.debugString()))
				}
			}
		}
		if _, ok := m.Get(s.key); !ok {
			panic(fmt.Sprintf("invariant failed: slot(%d): %v not found by Get\n%s",
				i, s.key, m.debugString()))
		}
	}

	if used != m.used {
		panic(fmt.Sprintf("invariant failed: found %d used slots, but used count is %d\n%s",
			used, m.used, m.debugString()))
	}
}

func (m *Map[K, V]) debugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "capacity=%d  used=%d  load-limit=%d\n", m.capacity, m.used, m.loadLimit)
	for i := uintptr(0); i < m.capacity; i++ {
		switch c := *m.ctrls.At(i); c {
		case ctrlEmpty:
			fmt.Fprintf(&buf, "  %4d: empty\n", i)
		case ctrlDeleted:
			fmt.Fprintf(&buf, "  %4d: deleted\n", i)
		default:
			s := m.slots.At(i)
			fmt.Fprintf(&buf, "  %4d: %v [ctrl=%02x dist=%d]\n", i, s.key, c, m.distance(i, s.hash))
		}
	}
	return buf.String()
}
