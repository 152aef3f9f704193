package cryptocore

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"math/big"
)

// ErrInputTooLarge is returned by RSAEncryptBlock when the block, read as
// a big-endian integer, is not smaller than the key modulus. The encrypt
// pipeline consumes this error in its carrier retry loop.
var ErrInputTooLarge = errors.New("input block is not smaller than the RSA modulus")

// RSACiphertextLen returns the length in bytes of a raw RSA ciphertext
// under "pub". The ciphertext is always left-padded to the full modulus
// size so that the container stays block-aligned.
func RSACiphertextLen(pub *rsa.PublicKey) int {
	return pub.Size()
}

// RSAEncryptBlock applies textbook RSA to a whole block: c = m^e mod n.
// The block is interpreted as a big-endian integer and must be smaller
// than the modulus; callers retry with another block when it is not.
//
// The result is left-zero-padded to exactly pub.Size() bytes.
func RSAEncryptBlock(pub *rsa.PublicKey, block []byte) ([]byte, error) {
	m := new(big.Int).SetBytes(block)
	if m.Cmp(pub.N) >= 0 {
		return nil, ErrInputTooLarge
	}
	e := big.NewInt(int64(pub.E))
	c := new(big.Int).Exp(m, e, pub.N)
	return leftPad(c.Bytes(), pub.Size()), nil
}

// RSADecryptBlock reverses RSAEncryptBlock: m = c^d mod n. The result is
// left-zero-padded to "outLen" bytes, restoring leading zero bytes the
// integer representation drops.
func RSADecryptBlock(priv *rsa.PrivateKey, ciphertext []byte, outLen int) ([]byte, error) {
	c := new(big.Int).SetBytes(ciphertext)
	if c.Cmp(priv.N) >= 0 {
		return nil, fmt.Errorf("ciphertext is not smaller than the RSA modulus")
	}
	m := new(big.Int).Exp(c, priv.D, priv.N)
	out := m.Bytes()
	if len(out) > outLen {
		return nil, fmt.Errorf("decrypted block is %d bytes, want at most %d", len(out), outLen)
	}
	return leftPad(out, outLen), nil
}

// leftPad prefixes "b" with zero bytes up to length "size".
func leftPad(b []byte, size int) []byte {
	if len(b) == size {
		return b
	}
	out := make([]byte, size)
	copy(out[size-len(b):], b)
	return out
}
