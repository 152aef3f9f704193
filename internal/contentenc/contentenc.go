// Package contentenc implements the encrypt and decrypt pipelines: one
// block is promoted to symmetric key carrier and RSA-encrypted, every
// other block is AES-ECB-encrypted under a key derived from the carrier
// content and the password.
package contentenc

import (
	"crypto/hmac"
	"crypto/rsa"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"github.com/vLabayen/giltzarrapo/internal/blockstore"
	"github.com/vLabayen/giltzarrapo/internal/container"
	"github.com/vLabayen/giltzarrapo/internal/cryptocore"
	"github.com/vLabayen/giltzarrapo/internal/entropy"
	"github.com/vLabayen/giltzarrapo/internal/tlog"
)

const (
	// DefaultTryMax is the default carrier selection retry budget.
	DefaultTryMax = 10
	// AutoCarrier selects the carrier via entropy sampling.
	AutoCarrier = -1
)

var (
	// ErrRetriesExhausted means no sampled block passed RSA encryption
	// within the retry budget.
	ErrRetriesExhausted = errors.New("no candidate carrier block passed RSA encryption")
	// ErrCarrierNotFound means the brute-force search matched no block
	// against the challenge. Wrong password and/or wrong private key.
	ErrCarrierNotFound = errors.New("the carrier block could not be found")
	// ErrVerificationFailed means an explicitly given carrier index did
	// not verify against the challenge.
	ErrVerificationFailed = errors.New("carrier verification failed")
)

// Info is the metadata produced by a successful encryption. It becomes
// the container header.
type Info struct {
	// Fast embeds the auth tag in the container header.
	Fast bool
	// Padding is the number of random bytes appended to the last block.
	Padding uint16
	// Challenge is SHA1(SHA256(carrier || password)).
	Challenge [cryptocore.ChallengeLen]byte
	// Auth is SHA512(hex(challenge) + index + password). Always computed;
	// only serialised into the header in fast mode.
	Auth [cryptocore.AuthLen]byte
	// Carrier is the selected block index. Never persisted.
	Carrier int
}

// MergeCount returns how many chunk positions the carrier ciphertext
// occupies: the RSA ciphertext length divided by the chunk size, rounded
// up.
func MergeCount(rsaLen, chunkSize int) int {
	return (rsaLen + chunkSize - 1) / chunkSize
}

// DeriveKey computes the AES session key: SHA256(block || password).
func DeriveKey(block []byte, password string) []byte {
	return cryptocore.Sha256Sum(block, []byte(password))
}

// ChallengeOf computes the carrier challenge: SHA1 of the session key.
func ChallengeOf(kaes []byte) [cryptocore.ChallengeLen]byte {
	var c [cryptocore.ChallengeLen]byte
	copy(c[:], cryptocore.Sha1Sum(kaes))
	return c
}

// AuthTag computes the fast-mode tag over the ASCII concatenation of the
// hex challenge, the decimal carrier index and the password. The exact
// byte layout of that preimage is part of the file format.
func AuthTag(challenge [cryptocore.ChallengeLen]byte, index int, password string) [cryptocore.AuthLen]byte {
	preimage := hex.EncodeToString(challenge[:]) + strconv.Itoa(index) + password
	var a [cryptocore.AuthLen]byte
	copy(a[:], cryptocore.Sha512Sum([]byte(preimage)))
	return a
}

// Encrypt runs the encrypt pipeline over the store in place. carrier is
// an explicit block index or AutoCarrier. With AutoCarrier, a candidate
// that fails RSA encryption is rolled back (padding included) and
// another is sampled, up to tryMax attempts; an explicit carrier that
// fails is an error.
func Encrypt(store *blockstore.Store, chunkSize int, password string, pub *rsa.PublicKey, carrier int, fast bool, tryMax int) (*Info, error) {
	if tryMax <= 0 {
		tryMax = DefaultTryMax
	}
	last := store.Len() - 1
	origLast := store.At(last)
	padding := chunkSize - len(origLast)

	for attempt := 0; attempt < tryMax; attempt++ {
		idx := carrier
		if idx == AutoCarrier {
			idx = entropy.SelectCarrier(store, entropy.DefaultTryLimit)
		}

		// Pad the last block to a full chunk with fresh random bytes.
		// Rolled back if this attempt fails, so retries never pad an
		// already-padded block.
		padded := make([]byte, chunkSize)
		copy(padded, origLast)
		copy(padded[len(origLast):], cryptocore.RandBytes(padding))
		store.Replace(last, padded)

		rsaCT, err := cryptocore.RSAEncryptBlock(pub, store.At(idx))
		if err != nil {
			store.Replace(last, origLast)
			if carrier != AutoCarrier {
				return nil, fmt.Errorf("RSA encryption failed for block %d: %w", carrier, err)
			}
			tlog.Debug.Printf("contentenc.Encrypt: block %d rejected by RSA, retrying (%d/%d)", idx, attempt+1, tryMax)
			continue
		}

		kaes := DeriveKey(store.At(idx), password)
		info := &Info{
			Fast:      fast,
			Padding:   uint16(padding),
			Challenge: ChallengeOf(kaes),
			Carrier:   idx,
		}
		info.Auth = AuthTag(info.Challenge, idx, password)

		ecb, err := cryptocore.NewECBCipher(kaes)
		wipe(kaes)
		if err != nil {
			return nil, err
		}
		defer ecb.Wipe()

		for i := 0; i < store.Len(); i++ {
			if i == idx {
				store.Replace(i, rsaCT)
				continue
			}
			ct, err := ecb.Encrypt(store.At(i))
			if err != nil {
				return nil, fmt.Errorf("AES encryption failed for block %d: %w", i, err)
			}
			store.Replace(i, ct)
		}
		tlog.Debug.Printf("contentenc.Encrypt: carrier=%d fast=%v padding=%d", idx, fast, padding)
		return info, nil
	}
	return nil, ErrRetriesExhausted
}

// FindCarrier brute-forces the carrier index: for every candidate it
// optionally filters on the auth tag, then RSA-decrypts the candidate
// (merged over as many chunks as the modulus needs) and checks the
// derived key against the challenge. Returns the index and the number of
// candidates examined.
//
// The auth filter runs before the RSA operation; with no auth tag every
// candidate costs one private-key operation.
func FindCarrier(store *blockstore.Store, chunkSize int, password string, priv *rsa.PrivateKey, hdr *container.Header) (int, int, error) {
	numMerge := MergeCount(priv.Size(), chunkSize)
	scanned := 0
	for i := 0; i+numMerge <= store.Len(); i++ {
		scanned++
		if hdr.Fast && hdr.HasAuth {
			want := AuthTag(hdr.Challenge, i, password)
			if !hmac.Equal(want[:], hdr.Auth[:]) {
				continue
			}
		}
		candidate, err := store.ConcatRange(i, numMerge)
		if err != nil {
			return 0, scanned, err
		}
		m, err := cryptocore.RSADecryptBlock(priv, candidate, chunkSize)
		if err != nil {
			continue
		}
		kaes := DeriveKey(m, password)
		sig := ChallengeOf(kaes)
		wipe(kaes)
		if hmac.Equal(sig[:], hdr.Challenge[:]) {
			tlog.Debug.Printf("contentenc.FindCarrier: carrier=%d after %d candidates", i, scanned)
			return i, scanned, nil
		}
	}
	return 0, scanned, ErrCarrierNotFound
}

// Decrypt runs the decrypt pipeline over the store in place. carrier is
// an explicit block index or AutoCarrier. The explicit path verifies the
// challenge and never falls back to brute force.
func Decrypt(store *blockstore.Store, chunkSize int, password string, priv *rsa.PrivateKey, hdr *container.Header, carrier int) error {
	numMerge := MergeCount(priv.Size(), chunkSize)

	// Encrypt leaves the carrier ciphertext as a single block of numMerge
	// chunks. Cut every block back into chunk positions, as the container
	// reader does, so the search sees the on-disk layout either way.
	if numMerge > 1 {
		sliced := blockstore.New()
		for i := 0; i < store.Len(); i++ {
			b := store.At(i)
			for off := 0; off < len(b); off += chunkSize {
				end := off + chunkSize
				if end > len(b) {
					end = len(b)
				}
				sliced.Append(b[off:end])
			}
		}
		*store = *sliced
	}

	idx := carrier
	if idx == AutoCarrier {
		found, _, err := FindCarrier(store, chunkSize, password, priv, hdr)
		if err != nil {
			return err
		}
		idx = found
	} else if idx+numMerge > store.Len() {
		return fmt.Errorf("%w: block %d leaves no room for a %d chunk carrier", ErrVerificationFailed, idx, numMerge)
	}

	candidate, err := store.ConcatRange(idx, numMerge)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
	m, err := cryptocore.RSADecryptBlock(priv, candidate, chunkSize)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
	kaes := DeriveKey(m, password)
	defer wipe(kaes)
	sig := ChallengeOf(kaes)
	if !hmac.Equal(sig[:], hdr.Challenge[:]) {
		return fmt.Errorf("%w: challenge mismatch at block %d", ErrVerificationFailed, idx)
	}

	if err := store.MergeRange(idx, numMerge); err != nil {
		return err
	}
	store.Replace(idx, m)

	ecb, err := cryptocore.NewECBCipher(kaes)
	if err != nil {
		return err
	}
	defer ecb.Wipe()

	for i := 0; i < store.Len(); i++ {
		if i == idx {
			continue
		}
		pt, err := ecb.Decrypt(store.At(i))
		if err != nil {
			return fmt.Errorf("AES decryption failed for block %d: %w", i, err)
		}
		store.Replace(i, pt)
	}

	// Strip the random padding off the final block.
	last := store.Len() - 1
	store.Replace(last, store.At(last)[:chunkSize-int(hdr.Padding)])
	tlog.Debug.Printf("contentenc.Decrypt: carrier=%d blocks=%d", idx, store.Len())
	return nil
}

// wipe zeroes key material.
func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
