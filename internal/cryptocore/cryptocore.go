// Package cryptocore wraps the cryptographic primitives giltzarrapo is
// built on: raw RSA block encryption, AES in ECB mode, the SHA digest
// family and the random byte source.
package cryptocore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"io"
	"log"
)

const (
	// KeyLen is the length of the AES session key in bytes. The session
	// key is a SHA-256 digest, so the body cipher is always AES-256.
	KeyLen = 32
	// ChallengeLen is the length of the SHA-1 carrier challenge.
	ChallengeLen = sha1.Size
	// AuthLen is the length of the SHA-512 fast-mode auth tag.
	AuthLen = sha512.Size
)

// RandReader is the process-wide entropy source. It defaults to
// crypto/rand.Reader; tests may swap in a deterministic reader.
var RandReader io.Reader = rand.Reader

// RandBytes gets "n" random bytes from RandReader or panics.
func RandBytes(n int) []byte {
	b := make([]byte, n)
	_, err := io.ReadFull(RandReader, b)
	if err != nil {
		log.Panic("Failed to read random bytes: " + err.Error())
	}
	return b
}

// Sha256Sum returns the SHA-256 digest of the concatenation of the
// arguments.
func Sha256Sum(parts ...[]byte) []byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

// Sha1Sum returns the SHA-1 digest of "data".
func Sha1Sum(data []byte) []byte {
	s := sha1.Sum(data)
	return s[:]
}

// Sha512Sum returns the SHA-512 digest of "data".
func Sha512Sum(data []byte) []byte {
	s := sha512.Sum512(data)
	return s[:]
}

// ECBCipher encrypts and decrypts whole blocks with AES in ECB mode.
// ECB keeps every chunk independently addressable, which the container
// format relies on. It provides no integrity protection.
type ECBCipher struct {
	block cipher.Block
}

// NewECBCipher creates an ECBCipher from a 16- or 32-byte AES key.
func NewECBCipher(key []byte) (*ECBCipher, error) {
	if len(key) != 16 && len(key) != KeyLen {
		return nil, fmt.Errorf("unsupported AES key length %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return &ECBCipher{block: block}, nil
}

// Encrypt returns the ECB encryption of "src", whose length must be a
// multiple of the AES block size.
func (c *ECBCipher) Encrypt(src []byte) ([]byte, error) {
	if len(src)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("plaintext length %d is not a multiple of the AES block size", len(src))
	}
	dst := make([]byte, len(src))
	for i := 0; i < len(src); i += aes.BlockSize {
		c.block.Encrypt(dst[i:i+aes.BlockSize], src[i:i+aes.BlockSize])
	}
	return dst, nil
}

// Decrypt returns the ECB decryption of "src", whose length must be a
// multiple of the AES block size.
func (c *ECBCipher) Decrypt(src []byte) ([]byte, error) {
	if len(src)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ciphertext length %d is not a multiple of the AES block size", len(src))
	}
	dst := make([]byte, len(src))
	for i := 0; i < len(src); i += aes.BlockSize {
		c.block.Decrypt(dst[i:i+aes.BlockSize], src[i:i+aes.BlockSize])
	}
	return dst, nil
}

// Wipe drops the cipher reference. The expanded AES key schedule lives
// inside the cipher.Block and cannot be zeroed from here, but dropping
// the reference makes it collectable.
func (c *ECBCipher) Wipe() {
	c.block = nil
}
