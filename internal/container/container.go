// Package container reads and writes the giltzarrapo on-disk format: a
// small header followed by the encrypted blocks, plus the optional
// out-of-band auth sidecar file.
//
// Header layout (little-endian):
//
//	offset 0, 1 byte:   fast flag (0x00 / 0x01)
//	offset 1, 2 bytes:  padding of the last plaintext block
//	offset 3, 20 bytes: SHA-1 challenge
//	offset 23, 64 bytes: SHA-512 auth tag, present iff fast == 1
//
// The body is the plain concatenation of all encrypted blocks. Readers
// slice it into chunk-size pieces without knowing which piece starts the
// carrier; the decrypt pipeline merges as needed.
package container

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/vLabayen/giltzarrapo/internal/blockstore"
	"github.com/vLabayen/giltzarrapo/internal/cryptocore"
	"github.com/vLabayen/giltzarrapo/internal/tlog"
)

const (
	// HeaderLenSlow is the header length without the auth tag.
	HeaderLenSlow = 1 + 2 + cryptocore.ChallengeLen
	// HeaderLenFast is the header length with the auth tag embedded.
	HeaderLenFast = HeaderLenSlow + cryptocore.AuthLen
)

// ErrMalformed means the file is too short for its header or its body is
// not chunk-aligned.
var ErrMalformed = errors.New("malformed container")

// Header is the parsed container header.
type Header struct {
	// Fast is set when the auth tag is embedded in the header.
	Fast bool
	// Padding is the number of random bytes appended to the last
	// plaintext block, in [0, chunkSize).
	Padding uint16
	// Challenge identifies the carrier block: SHA1(SHA256(carrier || password)).
	Challenge [cryptocore.ChallengeLen]byte
	// Auth is the fast-mode tag: SHA512(hex(challenge) + index + password).
	Auth [cryptocore.AuthLen]byte
	// HasAuth reports whether Auth holds a real tag, either embedded or
	// loaded from a sidecar.
	HasAuth bool
}

// ReadFile parses an encrypted container and slices its body into
// chunkSize blocks.
func ReadFile(path string, chunkSize int) (*Header, *blockstore.Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	if len(data) < HeaderLenSlow {
		return nil, nil, fmt.Errorf("%w: %d bytes is shorter than the %d byte header", ErrMalformed, len(data), HeaderLenSlow)
	}
	h := &Header{}
	switch data[0] {
	case 0:
	case 1:
		h.Fast = true
	default:
		return nil, nil, fmt.Errorf("%w: fast flag byte is 0x%02x", ErrMalformed, data[0])
	}
	h.Padding = binary.LittleEndian.Uint16(data[1:3])
	if int(h.Padding) >= chunkSize {
		return nil, nil, fmt.Errorf("%w: padding %d exceeds chunk size %d", ErrMalformed, h.Padding, chunkSize)
	}
	copy(h.Challenge[:], data[3:HeaderLenSlow])
	body := data[HeaderLenSlow:]
	if h.Fast {
		if len(data) < HeaderLenFast {
			return nil, nil, fmt.Errorf("%w: fast container shorter than the %d byte header", ErrMalformed, HeaderLenFast)
		}
		copy(h.Auth[:], data[HeaderLenSlow:HeaderLenFast])
		h.HasAuth = true
		body = data[HeaderLenFast:]
	}
	if len(body)%chunkSize != 0 {
		return nil, nil, fmt.Errorf("%w: body length %d is not a multiple of the chunk size %d", ErrMalformed, len(body), chunkSize)
	}
	store := blockstore.New()
	for off := 0; off < len(body); off += chunkSize {
		block := make([]byte, chunkSize)
		copy(block, body[off:off+chunkSize])
		store.Append(block)
	}
	tlog.Debug.Printf("container.ReadFile: fast=%v padding=%d blocks=%d", h.Fast, h.Padding, store.Len())
	return h, store, nil
}

// ReadPlainFile slices a plaintext file into chunkSize blocks. The last
// block may be shorter than chunkSize.
func ReadPlainFile(path string, chunkSize int) (*blockstore.Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	store := blockstore.New()
	for {
		block := make([]byte, chunkSize)
		n, err := io.ReadFull(f, block)
		if n > 0 {
			store.Append(block[:n])
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	tlog.Debug.Printf("container.ReadPlainFile: blocks=%d", store.Len())
	return store, nil
}

// ReadSidecar loads a 64-byte auth tag from an out-of-band file.
func ReadSidecar(path string) ([cryptocore.AuthLen]byte, error) {
	var auth [cryptocore.AuthLen]byte
	data, err := os.ReadFile(path)
	if err != nil {
		return auth, err
	}
	if len(data) < cryptocore.AuthLen {
		return auth, fmt.Errorf("%w: auth sidecar is %d bytes, want %d", ErrMalformed, len(data), cryptocore.AuthLen)
	}
	copy(auth[:], data[:cryptocore.AuthLen])
	return auth, nil
}

// WriteEncrypted serialises header and blocks to path. The write goes to
// a temporary sibling first and is renamed into place, so a failed write
// never leaves a truncated container behind.
func WriteEncrypted(path string, h *Header, store *blockstore.Store) error {
	return atomicWrite(path, func(w io.Writer) error {
		var hdr [HeaderLenFast]byte
		if h.Fast {
			hdr[0] = 1
		}
		binary.LittleEndian.PutUint16(hdr[1:3], h.Padding)
		copy(hdr[3:HeaderLenSlow], h.Challenge[:])
		n := HeaderLenSlow
		if h.Fast {
			copy(hdr[HeaderLenSlow:], h.Auth[:])
			n = HeaderLenFast
		}
		if _, err := w.Write(hdr[:n]); err != nil {
			return err
		}
		_, err := store.WriteTo(w)
		return err
	})
}

// WritePlain serialises the blocks with no header.
func WritePlain(path string, store *blockstore.Store) error {
	return atomicWrite(path, func(w io.Writer) error {
		_, err := store.WriteTo(w)
		return err
	})
}

// WriteSidecar stores the 64-byte auth tag in its own file.
func WriteSidecar(path string, auth []byte) error {
	return atomicWrite(path, func(w io.Writer) error {
		_, err := w.Write(auth[:cryptocore.AuthLen])
		return err
	})
}

// atomicWrite runs fill against a temp file in the target directory and
// renames it over path on success.
func atomicWrite(path string, fill func(io.Writer) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if err := fill(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
