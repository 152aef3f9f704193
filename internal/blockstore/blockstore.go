// Package blockstore owns the in-memory sequence of file blocks that the
// encrypt and decrypt pipelines operate on.
package blockstore

import (
	"fmt"
	"io"
)

// Store is an ordered sequence of byte blocks. During normal operation
// every block has the session chunk size, except the last plaintext block
// (may be shorter) and the carrier block after RSA encryption (may span
// several chunk positions).
type Store struct {
	blocks [][]byte
}

// New returns an empty Store.
func New() *Store {
	return &Store{}
}

// Len returns the number of blocks.
func (s *Store) Len() int {
	return len(s.blocks)
}

// Append adds a block at the end of the sequence.
func (s *Store) Append(b []byte) {
	s.blocks = append(s.blocks, b)
}

// At returns the block at index i.
func (s *Store) At(i int) []byte {
	return s.blocks[i]
}

// Replace swaps the block at index i for b.
func (s *Store) Replace(i int, b []byte) {
	s.blocks[i] = b
}

// MergeRange concatenates the n consecutive blocks starting at i into a
// single block at position i and drops the following n-1 positions.
func (s *Store) MergeRange(i, n int) error {
	if n < 1 || i < 0 || i+n > len(s.blocks) {
		return fmt.Errorf("merge range [%d,%d) out of bounds, have %d blocks", i, i+n, len(s.blocks))
	}
	if n == 1 {
		return nil
	}
	total := 0
	for j := i; j < i+n; j++ {
		total += len(s.blocks[j])
	}
	merged := make([]byte, 0, total)
	for j := i; j < i+n; j++ {
		merged = append(merged, s.blocks[j]...)
	}
	s.blocks[i] = merged
	s.blocks = append(s.blocks[:i+1], s.blocks[i+n:]...)
	return nil
}

// ConcatRange returns the concatenation of the n consecutive blocks
// starting at i without mutating the store. The carrier search uses this
// to try candidate merges cheaply.
func (s *Store) ConcatRange(i, n int) ([]byte, error) {
	if n < 1 || i < 0 || i+n > len(s.blocks) {
		return nil, fmt.Errorf("concat range [%d,%d) out of bounds, have %d blocks", i, i+n, len(s.blocks))
	}
	if n == 1 {
		return s.blocks[i], nil
	}
	total := 0
	for j := i; j < i+n; j++ {
		total += len(s.blocks[j])
	}
	out := make([]byte, 0, total)
	for j := i; j < i+n; j++ {
		out = append(out, s.blocks[j]...)
	}
	return out, nil
}

// WriteTo writes all blocks to w in order.
func (s *Store) WriteTo(w io.Writer) (int64, error) {
	var n int64
	for _, b := range s.blocks {
		written, err := w.Write(b)
		n += int64(written)
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// Reset drops all blocks.
func (s *Store) Reset() {
	s.blocks = nil
}
