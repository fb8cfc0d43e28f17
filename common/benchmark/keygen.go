// Package benchmark adapts the storage engines' load-generation harness to
// a single triekv Engine: synthetic key distributions plus a latency
// histogram, driven by cmd/triekv-bench.
package benchmark

import (
	"fmt"
	mrand "math/rand"
	"sync/atomic"
)

// Distribution selects how KeyGen picks the next key to touch.
type Distribution string

const (
	DistUniform    Distribution = "uniform"    // every key equally likely
	DistZipfian    Distribution = "zipfian"    // hot/cold skew
	DistSequential Distribution = "sequential" // monotonic walk
)

// KeyGen produces keys restricted to the key validator's charset
// (digits and lower-case letters), over a fixed key space.
type KeyGen struct {
	numKeys int
	keySize int
	dist    Distribution
	rng     *mrand.Rand
	zipf    *mrand.Zipf
	seq     atomic.Int64
}

func NewKeyGen(numKeys, keySize int, dist Distribution, seed int64) *KeyGen {
	rng := mrand.New(mrand.NewSource(seed))
	kg := &KeyGen{numKeys: numKeys, keySize: keySize, dist: dist, rng: rng}
	if dist == DistZipfian {
		kg.zipf = mrand.NewZipf(rng, 1.1, 1, uint64(numKeys))
	}
	return kg
}

// Next returns the next key per the configured distribution.
func (kg *KeyGen) Next() string {
	var n int
	switch kg.dist {
	case DistZipfian:
		n = int(kg.zipf.Uint64())
	case DistSequential:
		n = int(kg.seq.Add(1) % int64(kg.numKeys))
	default:
		n = kg.rng.Intn(kg.numKeys)
	}
	return kg.format(n)
}

// Nth returns the key for a specific index, used to preload deterministically.
func (kg *KeyGen) Nth(n int) string { return kg.format(n) }

// format produces a key using only the validator's accepted charset,
// padded to keySize with a deterministic digit tail derived from n.
func (kg *KeyGen) format(n int) string {
	key := fmt.Sprintf("k%012d", n)
	if len(key) >= kg.keySize {
		return key[:kg.keySize]
	}
	pad := make([]byte, kg.keySize-len(key))
	for i := range pad {
		pad[i] = byte('0' + (n+i)%10)
	}
	return key + string(pad)
}
