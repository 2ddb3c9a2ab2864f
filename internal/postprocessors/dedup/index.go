package dedup

import (
	"sort"

	"github.com/custodia-labs/sercha-ingest/internal/postprocessors/identity"
)

// bands splits a 64-bit fingerprint into 16-bit keys. Two fingerprints
// within three bits of each other share at least one band exactly.
const bands = 4

// Index finds earlier fingerprints within a Hamming distance.
type Index struct {
	maxDistance int
	buckets     [bands]map[uint16][]int
	hashes      []uint64
}

// NewIndex creates an empty index for the given distance.
func NewIndex(maxDistance int) *Index {
	idx := &Index{maxDistance: maxDistance}
	for i := range idx.buckets {
		idx.buckets[i] = make(map[uint16][]int)
	}
	return idx
}

// Add stores a fingerprint and returns its position.
func (idx *Index) Add(h uint64) int {
	pos := len(idx.hashes)
	idx.hashes = append(idx.hashes, h)
	for b := 0; b < bands; b++ {
		key := band(h, b)
		idx.buckets[b][key] = append(idx.buckets[b][key], pos)
	}
	return pos
}

// Matches returns the positions of stored fingerprints within the distance
// of h, in insertion order.
func (idx *Index) Matches(h uint64) []int {
	if idx.maxDistance >= bands {
		return idx.scan(h)
	}
	seen := make(map[int]struct{})
	var out []int
	for b := 0; b < bands; b++ {
		for _, pos := range idx.buckets[b][band(h, b)] {
			if _, ok := seen[pos]; ok {
				continue
			}
			seen[pos] = struct{}{}
			if identity.Distance(h, idx.hashes[pos]) <= idx.maxDistance {
				out = append(out, pos)
			}
		}
	}
	sort.Ints(out)
	return out
}

// scan is the fallback when bands no longer guarantee a shared key.
func (idx *Index) scan(h uint64) []int {
	var out []int
	for pos, other := range idx.hashes {
		if identity.Distance(h, other) <= idx.maxDistance {
			out = append(out, pos)
		}
	}
	return out
}

func band(h uint64, b int) uint16 {
	return uint16(h >> (16 * uint(b)))
}
