package identity

import (
	"hash"
	"math/bits"
	"regexp"
	"strings"
	"sync"

	"github.com/minio/highwayhash"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

// shingleSize is the number of consecutive words hashed as one feature.
const shingleSize = 3

// simhashKey is fixed so fingerprints are comparable across runs.
var simhashKey = []byte("sercha-ingest/simhash/v1/key0000")

var featureWord = regexp.MustCompile(`[\p{L}\p{N}]+`)

// SimHasher computes 64-bit simhash fingerprints over word shingles.
// Each shingle is hashed with HighwayHash-64.
type SimHasher struct {
	mu sync.Mutex
	h  hash.Hash64
}

// NewSimHasher creates a simhash calculator.
func NewSimHasher() (*SimHasher, error) {
	h, err := highwayhash.New64(simhashKey)
	if err != nil {
		return nil, &domain.HashingError{Input: "simhash key", Err: err}
	}
	return &SimHasher{h: h}, nil
}

// Sum returns the fingerprint of text. Empty text yields 0.
func (s *SimHasher) Sum(text string) (uint64, error) {
	words := featureWord.FindAllString(strings.ToLower(text), -1)
	if len(words) == 0 {
		return 0, nil
	}

	var features []string
	if len(words) < shingleSize {
		features = []string{strings.Join(words, " ")}
	} else {
		features = make([]string, 0, len(words)-shingleSize+1)
		for i := 0; i+shingleSize <= len(words); i++ {
			features = append(features, strings.Join(words[i:i+shingleSize], " "))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var weights [64]int
	for _, f := range features {
		s.h.Reset()
		if _, err := s.h.Write([]byte(f)); err != nil {
			return 0, &domain.HashingError{Input: "simhash feature", Err: err}
		}
		v := s.h.Sum64()
		for bit := 0; bit < 64; bit++ {
			if v&(1<<uint(bit)) != 0 {
				weights[bit]++
			} else {
				weights[bit]--
			}
		}
	}

	var fingerprint uint64
	for bit, w := range weights {
		if w > 0 {
			fingerprint |= 1 << uint(bit)
		}
	}
	return fingerprint, nil
}

// Distance returns the number of differing bits between two fingerprints.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}
