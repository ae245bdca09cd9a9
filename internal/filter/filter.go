// Package filter implements an approximate (Bloom-style) membership filter
// used by the crawl controller to deduplicate URLs. It trades a small false
// positive rate for O(1) space-bounded membership tests; it never produces a
// false negative.
package filter

import (
	"sync/atomic"

	"github.com/bits-and-blooms/bitset"
)

// DefaultGlobalBits sizes the controller's process-wide fetched-URL filter.
const DefaultGlobalBits = 16_000_000

// DefaultPageBits sizes a single page's per-page link filter.
const DefaultPageBits = 100_000

// liveFilters counts filters that have been created but not yet closed, so
// tests can assert the controller leaks none on shutdown.
var liveFilters int64

// hashFunc is one of the eight classic non-cryptographic string hashes the
// filter mixes. Each takes the byte length explicitly, matching the
// reference C signature, even though Go strings already carry their length.
type hashFunc func(str string, length uint32) uint32

// Filter is a fixed-size bit array tested against by a fixed set of hash
// functions. It is not safe for concurrent use; callers in this codebase
// only ever touch a Filter from the single reactor goroutine.
type Filter struct {
	bits *bitset.BitSet
	m    uint32
}

// New creates a filter backed by an m-bit array. m should be sized well
// above the expected number of members to keep the false-positive rate low.
func New(m uint32) *Filter {
	if m == 0 {
		m = DefaultGlobalBits
	}
	atomic.AddInt64(&liveFilters, 1)
	return &Filter{
		bits: bitset.New(uint(m)),
		m:    m,
	}
}

// Close releases the filter. Filters are cheap Go values with no external
// resources, but Close is kept as an explicit lifecycle hook so the
// allocation-tracking invariant in §7 (zero live filters after shutdown) is
// checkable the same way it would be checked in a manually managed
// implementation.
func (f *Filter) Close() {
	if f == nil {
		return
	}
	atomic.AddInt64(&liveFilters, -1)
}

// Add records s as a member.
func (f *Filter) Add(s string) {
	for _, h := range hashFuncs {
		idx := h(s, uint32(len(s))) % f.m
		f.bits.Set(uint(idx))
	}
}

// Test reports whether s may be a member. A false return is certain; a true
// return may be a false positive.
func (f *Filter) Test(s string) bool {
	for _, h := range hashFuncs {
		idx := h(s, uint32(len(s))) % f.m
		if !f.bits.Test(uint(idx)) {
			return false
		}
	}
	return true
}

// LiveCount returns the number of filters created but not yet Close'd. Tests
// use this to assert that a crawl leaves no filter dangling.
func LiveCount() int64 {
	return atomic.LoadInt64(&liveFilters)
}

var hashFuncs = [8]hashFunc{rsHash, jsHash, pjwHash, elfHash, bkdrHash, djbHash, dekHash, apHash}

func rsHash(str string, length uint32) uint32 {
	const b uint32 = 378551
	a := uint32(63689)
	var hash uint32
	for i := uint32(0); i < length; i++ {
		hash = hash*a + uint32(str[i])
		a = a * b
	}
	return hash
}

func jsHash(str string, length uint32) uint32 {
	hash := uint32(1315423911)
	for i := uint32(0); i < length; i++ {
		hash ^= (hash << 5) + uint32(str[i]) + (hash >> 2)
	}
	return hash
}

func pjwHash(str string, length uint32) uint32 {
	const bitsInUnsigned = 32
	const threeQuarters = (bitsInUnsigned * 3) / 4
	const oneEighth = bitsInUnsigned / 8
	const highBits = uint32(0xFFFFFFFF) << (bitsInUnsigned - oneEighth)
	var hash uint32
	for i := uint32(0); i < length; i++ {
		hash = (hash << oneEighth) + uint32(str[i])
		if test := hash & highBits; test != 0 {
			hash = (hash ^ (test >> threeQuarters)) & ^highBits
		}
	}
	return hash
}

func elfHash(str string, length uint32) uint32 {
	var hash, x uint32
	for i := uint32(0); i < length; i++ {
		hash = (hash << 4) + uint32(str[i])
		if x = hash & 0xF0000000; x != 0 {
			hash ^= x >> 24
		}
		hash &= ^x
	}
	return hash
}

func bkdrHash(str string, length uint32) uint32 {
	const seed uint32 = 131
	var hash uint32
	for i := uint32(0); i < length; i++ {
		hash = hash*seed + uint32(str[i])
	}
	return hash
}

func djbHash(str string, length uint32) uint32 {
	hash := uint32(5381)
	for i := uint32(0); i < length; i++ {
		hash = ((hash << 5) + hash) + uint32(str[i])
	}
	return hash
}

func dekHash(str string, length uint32) uint32 {
	hash := length
	for i := uint32(0); i < length; i++ {
		hash = ((hash << 5) ^ (hash >> 27)) ^ uint32(str[i])
	}
	return hash
}

func apHash(str string, length uint32) uint32 {
	hash := uint32(0xAAAAAAAA)
	for i := uint32(0); i < length; i++ {
		if i&1 == 0 {
			hash ^= (hash << 7) ^ uint32(str[i])*(hash>>3)
		} else {
			hash ^= ^((hash << 11) + (uint32(str[i]) ^ (hash >> 5)))
		}
	}
	return hash
}
