// Package giltza exposes the giltzarrapo session: a stateful object that
// reads a file into fixed-size blocks, encrypts or decrypts them, and
// writes the result back out.
//
// A session walks the state machine unset -> plain -> encrypted -> plain,
// with Clear returning to unset from anywhere. Sessions are not safe for
// concurrent use; hold one per goroutine.
package giltza

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/vLabayen/giltzarrapo/internal/blockstore"
	"github.com/vLabayen/giltzarrapo/internal/container"
	"github.com/vLabayen/giltzarrapo/internal/contentenc"
	"github.com/vLabayen/giltzarrapo/internal/cryptocore"
	"github.com/vLabayen/giltzarrapo/internal/keyfile"
	"github.com/vLabayen/giltzarrapo/internal/tlog"
)

const (
	// DefaultChunkSize is the default block size in bytes.
	DefaultChunkSize = 512
	// DefaultBits is the default RSA modulus length for key generation.
	DefaultBits = keyfile.DefaultBits
	// AutoCarrier lets the entropy selector pick the carrier block.
	AutoCarrier = contentenc.AutoCarrier
)

// Status is the session lifecycle state.
type Status int

const (
	// StatusUnset - no file loaded.
	StatusUnset Status = iota
	// StatusPlain - plaintext blocks in memory.
	StatusPlain
	// StatusEncrypted - encrypted blocks plus header metadata in memory.
	StatusEncrypted
)

func (s Status) String() string {
	switch s {
	case StatusUnset:
		return "unset"
	case StatusPlain:
		return "plain"
	case StatusEncrypted:
		return "encrypted"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Session holds the block sequence, the header metadata (in encrypted
// state) and the lifecycle status.
type Session struct {
	chunkSize int
	store     *blockstore.Store
	info      *container.Header
	status    Status
}

// New creates an empty session. chunkSize must be a power of two;
// DefaultChunkSize is the usual choice.
func New(chunkSize int) (*Session, error) {
	if !isPowerOfTwo(chunkSize) {
		return nil, fmt.Errorf("%w: chunk size %d is not a power of two", ErrInvalidArg, chunkSize)
	}
	return &Session{
		chunkSize: chunkSize,
		store:     blockstore.New(),
	}, nil
}

// Status returns the lifecycle state.
func (s *Session) Status() Status {
	return s.status
}

// ChunkSize returns the session block size.
func (s *Session) ChunkSize() int {
	return s.chunkSize
}

// NumBlocks returns the number of blocks currently held.
func (s *Session) NumBlocks() int {
	return s.store.Len()
}

// Info returns a copy of the header metadata, or nil outside the
// encrypted state.
func (s *Session) Info() *container.Header {
	if s.info == nil {
		return nil
	}
	cp := *s.info
	return &cp
}

// ReadPlain loads a plaintext file into the session.
func (s *Session) ReadPlain(path string) error {
	if s.status != StatusUnset {
		return fmt.Errorf("%w: read_plain needs an unset session, have %s", ErrBadState, s.status)
	}
	store, err := container.ReadPlainFile(path, s.chunkSize)
	if err != nil {
		return sysErr(err)
	}
	s.store = store
	s.status = StatusPlain
	return nil
}

// ReadEncrypted loads an encrypted container. When authPath names a
// sidecar auth file and the container itself is in slow mode, the
// sidecar tag wins and the session is upgraded to fast mode in memory.
func (s *Session) ReadEncrypted(path, authPath string) error {
	if s.status != StatusUnset {
		return fmt.Errorf("%w: read_encrypted needs an unset session, have %s", ErrBadState, s.status)
	}
	hdr, store, err := container.ReadFile(path, s.chunkSize)
	if err != nil {
		return sysErr(err)
	}
	if authPath != "" && !hdr.Fast {
		auth, err := container.ReadSidecar(authPath)
		if err != nil {
			return sysErr(err)
		}
		hdr.Auth = auth
		hdr.HasAuth = true
		hdr.Fast = true
		tlog.Debug.Printf("session: upgraded to fast mode from sidecar %s", authPath)
	}
	s.store = store
	s.info = hdr
	s.status = StatusEncrypted
	return nil
}

// Encrypt turns the plaintext blocks into an encrypted container in
// memory. carrier is an explicit block index or AutoCarrier; tryMax
// bounds carrier reselection (0 selects the default of 10).
func (s *Session) Encrypt(password, pubKeyPath string, carrier int, fast bool, tryMax int) error {
	if s.status != StatusPlain {
		return fmt.Errorf("%w: encrypt needs a plain session, have %s", ErrBadState, s.status)
	}
	pub, err := keyfile.LoadPublic(pubKeyPath)
	if err != nil {
		return keyErr(err)
	}
	if s.store.Len() == 0 {
		return fmt.Errorf("%w: empty file, no block to use as carrier", ErrInvalidArg)
	}
	if carrier != AutoCarrier && (carrier < 0 || carrier >= s.store.Len()) {
		return fmt.Errorf("%w: the selected block (%d) must satisfy: 0 <= block <= %d", ErrInvalidArg, carrier, s.store.Len()-1)
	}
	if cryptocore.RSACiphertextLen(pub)%s.chunkSize != 0 {
		return fmt.Errorf("%w: RSA modulus of %d bytes is not a multiple of the chunk size %d", ErrInvalidArg, cryptocore.RSACiphertextLen(pub), s.chunkSize)
	}

	info, err := contentenc.Encrypt(s.store, s.chunkSize, password, pub, carrier, fast, tryMax)
	switch {
	case errors.Is(err, contentenc.ErrRetriesExhausted):
		return fmt.Errorf("%w: %v", ErrRetriesExhausted, err)
	case errors.Is(err, cryptocore.ErrInputTooLarge):
		return fmt.Errorf("%w: %v", ErrInvalidArg, err)
	case err != nil:
		return err
	}

	s.info = &container.Header{
		Fast:      info.Fast,
		Padding:   info.Padding,
		Challenge: info.Challenge,
		Auth:      info.Auth,
		HasAuth:   true,
	}
	s.status = StatusEncrypted
	return nil
}

// Decrypt turns the encrypted blocks back into plaintext. passphrase
// unlocks the private key when it is protected; carrier is an explicit
// block index or AutoCarrier.
func (s *Session) Decrypt(password, privKeyPath, passphrase string, carrier int) error {
	if s.status != StatusEncrypted {
		return fmt.Errorf("%w: decrypt needs an encrypted session, have %s", ErrBadState, s.status)
	}
	priv, err := keyfile.LoadPrivate(privKeyPath, passphrase)
	if err != nil {
		return keyErr(err)
	}
	if carrier != AutoCarrier && (carrier < 0 || carrier >= s.store.Len()) {
		return fmt.Errorf("%w: the selected block (%d) must satisfy: 0 <= block <= %d", ErrInvalidArg, carrier, s.store.Len()-1)
	}

	err = contentenc.Decrypt(s.store, s.chunkSize, password, priv, s.info, carrier)
	switch {
	case errors.Is(err, contentenc.ErrCarrierNotFound):
		return fmt.Errorf("%w: wrong password and/or private key", ErrCarrierNotFound)
	case errors.Is(err, contentenc.ErrVerificationFailed):
		return fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	case err != nil:
		return err
	}

	s.info = nil
	s.status = StatusPlain
	return nil
}

// Save writes the session content to outPath: header plus blocks in the
// encrypted state, raw blocks in the plain state. In the encrypted
// state a non-empty authPath additionally writes the 64-byte auth tag
// as a sidecar, also for slow-mode containers.
func (s *Session) Save(outPath, authPath string) error {
	switch s.status {
	case StatusPlain:
		if err := container.WritePlain(outPath, s.store); err != nil {
			return sysErr(err)
		}
		return nil
	case StatusEncrypted:
		if err := container.WriteEncrypted(outPath, s.info, s.store); err != nil {
			return sysErr(err)
		}
		if authPath != "" {
			if err := container.WriteSidecar(authPath, s.info.Auth[:]); err != nil {
				return sysErr(err)
			}
		}
		return nil
	}
	return fmt.Errorf("%w: there is no data to save", ErrBadState)
}

// Clear drops all blocks and metadata and returns the session to the
// unset state.
func (s *Session) Clear() {
	s.store.Reset()
	s.info = nil
	s.status = StatusUnset
}

// GenerateRSAPair creates an RSA key pair and writes it as PEM files
// dir/name and dir/name.pub. An empty dir selects the working
// directory, an empty name the default "giltza_rsa". A non-empty
// passphrase protects the private key.
func GenerateRSAPair(passphrase, dir, name string, bits int) (privPath, pubPath string, err error) {
	if !isPowerOfTwo(bits) {
		return "", "", fmt.Errorf("%w: RSA length %d is not a power of two", ErrInvalidArg, bits)
	}
	if name == "" {
		name = keyfile.DefaultName
	}
	if dir == "" {
		if dir, err = os.Getwd(); err != nil {
			return "", "", err
		}
	}
	key, err := keyfile.Generate(bits)
	if err != nil {
		return "", "", err
	}
	privPath, pubPath, err = keyfile.WritePair(key, dir, name, passphrase)
	if err != nil {
		return "", "", sysErr(err)
	}
	return privPath, pubPath, nil
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// sysErr maps filesystem and codec errors to the session error kinds.
func sysErr(err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %v", ErrPermDenied, err)
	case errors.Is(err, container.ErrMalformed):
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return err
}

// keyErr maps key loading errors to the session error kinds.
func keyErr(err error) error {
	switch {
	case errors.Is(err, keyfile.ErrWrongPassphrase):
		return fmt.Errorf("%w: %v", ErrWrongPassphrase, err)
	case errors.Is(err, keyfile.ErrKeyFormat):
		return fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return sysErr(err)
}
