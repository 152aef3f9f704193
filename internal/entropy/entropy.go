// Package entropy picks the carrier block candidate: the highest-entropy
// block from a small random sample. Entropy does not decide whether the
// candidate passes raw RSA (that depends on its value being below the
// modulus); the encrypt pipeline resamples when it does not.
package entropy

import (
	"crypto/rand"
	"encoding/hex"
	"math"
	"math/big"

	"github.com/vLabayen/giltzarrapo/internal/blockstore"
	"github.com/vLabayen/giltzarrapo/internal/cryptocore"
)

// DefaultTryLimit is the number of random candidates sampled per selection.
const DefaultTryLimit = 5

// HexShannon computes the Shannon entropy of the lowercase hex encoding
// of b, one hex character per symbol. The measure is intentionally taken
// over the 16-symbol hex alphabet, not over raw bytes; changing it would
// change which blocks get selected across implementations.
func HexShannon(b []byte) float64 {
	s := hex.EncodeToString(b)
	if len(s) == 0 {
		return 0
	}
	var counts [16]int
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' {
			counts[c-'a'+10]++
		} else {
			counts[c-'0']++
		}
	}
	total := float64(len(s))
	e := 0.0
	for _, n := range counts {
		if n == 0 {
			continue
		}
		p := float64(n) / total
		e -= p * math.Log2(p)
	}
	return e
}

// SelectCarrier draws tryLimit block indices uniformly at random with
// replacement and returns the one whose block has the highest hex
// entropy. Ties go to the first index drawn.
func SelectCarrier(s *blockstore.Store, tryLimit int) int {
	if tryLimit <= 0 {
		tryLimit = DefaultTryLimit
	}
	best := -1
	bestEntropy := math.Inf(-1)
	for t := 0; t < tryLimit; t++ {
		i := randIndex(s.Len())
		e := HexShannon(s.At(i))
		if e > bestEntropy {
			best = i
			bestEntropy = e
		}
	}
	return best
}

// randIndex returns a uniform index in [0, n) from the cryptocore
// entropy source, so deterministic tests stay deterministic.
func randIndex(n int) int {
	v, err := rand.Int(cryptocore.RandReader, big.NewInt(int64(n)))
	if err != nil {
		panic("entropy: rand failed: " + err.Error())
	}
	return int(v.Int64())
}
