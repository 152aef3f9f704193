package giltza

import (
	"bytes"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/binary"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vLabayen/giltzarrapo/internal/container"
	"github.com/vLabayen/giltzarrapo/internal/cryptocore"
)

// Key generation dominates test time, so pairs are generated once per
// modulus length and shared. Keys land in one temp dir per process.
var (
	keyDirOnce sync.Once
	keyDir     string
	keyMu      sync.Mutex
	keyCache   = map[int][2]string{} // bits -> {privPath, pubPath}
)

func keyPair(t *testing.T, bits int) (privPath, pubPath string) {
	t.Helper()
	keyDirOnce.Do(func() {
		var err error
		keyDir, err = os.MkdirTemp("", "giltza-keys")
		if err != nil {
			t.Fatal(err)
		}
	})
	keyMu.Lock()
	defer keyMu.Unlock()
	if paths, ok := keyCache[bits]; ok {
		return paths[0], paths[1]
	}
	priv, pub, err := GenerateRSAPair("", keyDir, "rsa"+strconv.Itoa(bits), bits)
	require.NoError(t, err)
	keyCache[bits] = [2]string{priv, pub}
	return priv, pub
}


// safeRand returns random data whose blocks always pass raw RSA: the
// first byte of every chunk is masked below 0x80, keeping each block
// value under any same-sized modulus. Explicit-carrier and single-block
// tests need this to stay deterministic.
func safeRand(n, chunkSize int) []byte {
	b := cryptocore.RandBytes(n)
	for off := 0; off < n; off += chunkSize {
		b[off] &= 0x7f
	}
	return b
}

func writeTemp(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.bin")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func newSession(t *testing.T, chunkSize int) *Session {
	t.Helper()
	s, err := New(chunkSize)
	require.NoError(t, err)
	return s
}

// encryptFile runs read/encrypt/save and returns the container path.
func encryptFile(t *testing.T, data []byte, chunkSize int, pubPath, password string, carrier int, fast bool) string {
	t.Helper()
	s := newSession(t, chunkSize)
	require.NoError(t, s.ReadPlain(writeTemp(t, data)))
	require.NoError(t, s.Encrypt(password, pubPath, carrier, fast, 0))
	out := filepath.Join(t.TempDir(), "out.enc")
	require.NoError(t, s.Save(out, ""))
	return out
}

// decryptFile runs read/decrypt/save and returns the plaintext.
func decryptFile(t *testing.T, encPath string, chunkSize int, privPath, password string) []byte {
	t.Helper()
	s := newSession(t, chunkSize)
	require.NoError(t, s.ReadEncrypted(encPath, ""))
	require.NoError(t, s.Decrypt(password, privPath, "", AutoCarrier))
	out := filepath.Join(t.TempDir(), "out.bin")
	require.NoError(t, s.Save(out, ""))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	return data
}

func TestChunkSizeGuard(t *testing.T) {
	for _, bad := range []int{0, 3, 6, 513, -512} {
		_, err := New(bad)
		assert.ErrorIs(t, err, ErrInvalidArg, "chunk size %d", bad)
	}
	for _, good := range []int{1, 2, 512, 1024} {
		s, err := New(good)
		require.NoError(t, err, "chunk size %d", good)
		assert.Equal(t, good, s.ChunkSize())
		assert.Equal(t, StatusUnset, s.Status())
	}
}

func TestRoundTripChunkSizes(t *testing.T) {
	// The RSA modulus must be a multiple of 8*chunkSize: pair each
	// chunk size with the smallest practical key.
	cases := []struct {
		chunkSize int
		bits      int
		plainLen  int
	}{
		{128, 1024, 5000},
		{256, 2048, 5000},
		{512, 4096, 70000},
	}
	for _, c := range cases {
		privPath, pubPath := keyPair(t, c.bits)
		plaintext := cryptocore.RandBytes(c.plainLen)
		enc := encryptFile(t, plaintext, c.chunkSize, pubPath, "pw", AutoCarrier, true)
		got := decryptFile(t, enc, c.chunkSize, privPath, "pw")
		assert.True(t, bytes.Equal(plaintext, got), "chunk=%d", c.chunkSize)
	}
}

func TestRoundTripChunk1024(t *testing.T) {
	if testing.Short() {
		t.Skip("8192-bit key generation is slow")
	}
	privPath, pubPath := keyPair(t, 8192)
	plaintext := cryptocore.RandBytes(10000)
	enc := encryptFile(t, plaintext, 1024, pubPath, "pw", AutoCarrier, true)
	got := decryptFile(t, enc, 1024, privPath, "pw")
	assert.True(t, bytes.Equal(plaintext, got))
}

// Scenario S1: 1000 bytes of 0x41, chunk 512, 4096-bit key, carrier 0.
func TestScenarioFixedSizes(t *testing.T) {
	_, pubPath := keyPair(t, 4096)
	plaintext := bytes.Repeat([]byte{0x41}, 1000)

	s := newSession(t, 512)
	require.NoError(t, s.ReadPlain(writeTemp(t, plaintext)))
	require.NoError(t, s.Encrypt("abc", pubPath, 0, true, 0))
	info := s.Info()
	require.NotNil(t, info)
	assert.Equal(t, uint16(24), info.Padding)

	out := filepath.Join(t.TempDir(), "s1.enc")
	require.NoError(t, s.Save(out, ""))
	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	// 87-byte fast header + 512-byte RSA carrier + 512-byte AES block
	assert.Equal(t, container.HeaderLenFast+1024, len(raw))
}

// Scenario S2: all-zero carrier gives a predictable challenge.
func TestScenarioKnownChallenge(t *testing.T) {
	_, pubPath := keyPair(t, 4096)
	plaintext := make([]byte, 512)

	s := newSession(t, 512)
	require.NoError(t, s.ReadPlain(writeTemp(t, plaintext)))
	require.NoError(t, s.Encrypt("abc", pubPath, 0, true, 0))

	h := sha256.New()
	h.Write(make([]byte, 512))
	h.Write([]byte("abc"))
	kaes := h.Sum(nil)
	want := sha1.Sum(kaes)
	assert.Equal(t, want, s.Info().Challenge)
}

// Scenario S3: an empty file has no block to promote to carrier.
func TestScenarioEmptyFile(t *testing.T) {
	_, pubPath := keyPair(t, 1024)
	s := newSession(t, 128)
	require.NoError(t, s.ReadPlain(writeTemp(t, nil)))
	assert.Equal(t, 0, s.NumBlocks())
	err := s.Encrypt("pw", pubPath, AutoCarrier, true, 0)
	assert.ErrorIs(t, err, ErrInvalidArg)
}

// Scenario S4: plaintext of exactly one chunk, zero padding.
func TestScenarioExactChunk(t *testing.T) {
	privPath, pubPath := keyPair(t, 1024)
	plaintext := safeRand(128, 128)

	s := newSession(t, 128)
	require.NoError(t, s.ReadPlain(writeTemp(t, plaintext)))
	require.NoError(t, s.Encrypt("pw", pubPath, AutoCarrier, true, 0))
	assert.Equal(t, uint16(0), s.Info().Padding)

	out := filepath.Join(t.TempDir(), "s4.enc")
	require.NoError(t, s.Save(out, ""))
	got := decryptFile(t, out, 128, privPath, "pw")
	assert.True(t, bytes.Equal(plaintext, got))
}

// Scenario S5: tampering with a non-carrier byte garbles only that
// block. No AEAD by design.
func TestScenarioTamperedBody(t *testing.T) {
	privPath, pubPath := keyPair(t, 1024)
	plaintext := safeRand(1024, 128)
	enc := encryptFile(t, plaintext, 128, pubPath, "pw", 0, true)

	raw, err := os.ReadFile(enc)
	require.NoError(t, err)
	// Block 3 of the body: carrier is block 0, last is block 7.
	raw[container.HeaderLenFast+3*128+5] ^= 0xff
	require.NoError(t, os.WriteFile(enc, raw, 0644))

	got := decryptFile(t, enc, 128, privPath, "pw")
	require.Equal(t, len(plaintext), len(got))
	assert.False(t, bytes.Equal(got[3*128:4*128], plaintext[3*128:4*128]))
	assert.True(t, bytes.Equal(got[:3*128], plaintext[:3*128]))
	assert.True(t, bytes.Equal(got[4*128:], plaintext[4*128:]))
}

func TestCarrierIndexIndependence(t *testing.T) {
	privPath, pubPath := keyPair(t, 1024)
	plaintext := safeRand(1000, 128)

	for _, carrier := range []int{0, 3, 7} {
		enc := encryptFile(t, plaintext, 128, pubPath, "pw", carrier, true)

		// Decrypting with the matching explicit index succeeds.
		s := newSession(t, 128)
		require.NoError(t, s.ReadEncrypted(enc, ""))
		require.NoError(t, s.Decrypt("pw", privPath, "", carrier))
		out := filepath.Join(t.TempDir(), "out.bin")
		require.NoError(t, s.Save(out, ""))
		got, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(plaintext, got), "carrier=%d", carrier)

		// A mismatched explicit index fails verification, with no
		// brute-force fallback.
		s2 := newSession(t, 128)
		require.NoError(t, s2.ReadEncrypted(enc, ""))
		wrong := (carrier + 1) % 8
		err = s2.Decrypt("pw", privPath, "", wrong)
		assert.ErrorIs(t, err, ErrVerificationFailed, "carrier=%d wrong=%d", carrier, wrong)
	}
}

func TestFastSlowEquivalence(t *testing.T) {
	privPath, pubPath := keyPair(t, 1024)
	plaintext := safeRand(3000, 128)

	fastEnc := encryptFile(t, plaintext, 128, pubPath, "pw", 1, true)
	slowEnc := encryptFile(t, plaintext, 128, pubPath, "pw", 1, false)

	fastRaw, err := os.ReadFile(fastEnc)
	require.NoError(t, err)
	slowRaw, err := os.ReadFile(slowEnc)
	require.NoError(t, err)
	// The fast container is exactly the 64-byte auth tag longer.
	assert.Equal(t, len(slowRaw)+cryptocore.AuthLen, len(fastRaw))

	assert.True(t, bytes.Equal(plaintext, decryptFile(t, fastEnc, 128, privPath, "pw")))
	assert.True(t, bytes.Equal(plaintext, decryptFile(t, slowEnc, 128, privPath, "pw")))
}

func TestSidecarUpgrade(t *testing.T) {
	privPath, pubPath := keyPair(t, 1024)
	plaintext := cryptocore.RandBytes(2000)

	// Slow-mode encrypt, but keep the auth tag in a sidecar.
	s := newSession(t, 128)
	require.NoError(t, s.ReadPlain(writeTemp(t, plaintext)))
	require.NoError(t, s.Encrypt("pw", pubPath, AutoCarrier, false, 0))
	dir := t.TempDir()
	encPath := filepath.Join(dir, "slow.enc")
	authPath := filepath.Join(dir, "slow.auth")
	require.NoError(t, s.Save(encPath, authPath))

	info, err := os.Stat(authPath)
	require.NoError(t, err)
	assert.Equal(t, int64(cryptocore.AuthLen), info.Size())

	// Reading with the sidecar upgrades the session to fast mode.
	s2 := newSession(t, 128)
	require.NoError(t, s2.ReadEncrypted(encPath, authPath))
	require.NotNil(t, s2.Info())
	assert.True(t, s2.Info().Fast)
	assert.True(t, s2.Info().HasAuth)

	require.NoError(t, s2.Decrypt("pw", privPath, "", AutoCarrier))
	out := filepath.Join(dir, "out.bin")
	require.NoError(t, s2.Save(out, ""))
	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(plaintext, got))
}

func TestWrongPasswordAndWrongKey(t *testing.T) {
	privPath, pubPath := keyPair(t, 1024)
	otherDir := t.TempDir()
	otherPriv, _, err := GenerateRSAPair("", otherDir, "other", 1024)
	require.NoError(t, err)

	plaintext := cryptocore.RandBytes(1500)
	enc := encryptFile(t, plaintext, 128, pubPath, "pw", AutoCarrier, true)

	s := newSession(t, 128)
	require.NoError(t, s.ReadEncrypted(enc, ""))
	assert.ErrorIs(t, s.Decrypt("nope", privPath, "", AutoCarrier), ErrCarrierNotFound)

	s2 := newSession(t, 128)
	require.NoError(t, s2.ReadEncrypted(enc, ""))
	assert.ErrorIs(t, s2.Decrypt("pw", otherPriv, "", AutoCarrier), ErrCarrierNotFound)
}

func TestHeaderBitExactness(t *testing.T) {
	_, pubPath := keyPair(t, 1024)
	plaintext := cryptocore.RandBytes(300)

	s := newSession(t, 128)
	require.NoError(t, s.ReadPlain(writeTemp(t, plaintext)))
	require.NoError(t, s.Encrypt("pw", pubPath, AutoCarrier, true, 0))
	info := s.Info()
	out := filepath.Join(t.TempDir(), "hdr.enc")
	require.NoError(t, s.Save(out, ""))

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(raw), container.HeaderLenFast)
	assert.Equal(t, byte(1), raw[0])
	assert.Equal(t, info.Padding, binary.LittleEndian.Uint16(raw[1:3]))
	assert.Equal(t, info.Challenge[:], raw[3:23])
	assert.Equal(t, info.Auth[:], raw[23:87])
}

func TestStateMachine(t *testing.T) {
	privPath, pubPath := keyPair(t, 1024)
	plainPath := writeTemp(t, cryptocore.RandBytes(500))

	s := newSession(t, 128)

	// unset: encrypt/decrypt/save are all bad states
	assert.ErrorIs(t, s.Encrypt("pw", pubPath, AutoCarrier, true, 0), ErrBadState)
	assert.ErrorIs(t, s.Decrypt("pw", privPath, "", AutoCarrier), ErrBadState)
	assert.ErrorIs(t, s.Save(filepath.Join(t.TempDir(), "x"), ""), ErrBadState)

	// unset -> plain
	require.NoError(t, s.ReadPlain(plainPath))
	assert.Equal(t, StatusPlain, s.Status())

	// plain: read again and decrypt are bad states
	assert.ErrorIs(t, s.ReadPlain(plainPath), ErrBadState)
	assert.ErrorIs(t, s.Decrypt("pw", privPath, "", AutoCarrier), ErrBadState)

	// plain -> encrypted
	require.NoError(t, s.Encrypt("pw", pubPath, AutoCarrier, true, 0))
	assert.Equal(t, StatusEncrypted, s.Status())
	require.NotNil(t, s.Info())

	// encrypted: encrypt again is a bad state
	assert.ErrorIs(t, s.Encrypt("pw", pubPath, AutoCarrier, true, 0), ErrBadState)

	// encrypted -> plain
	require.NoError(t, s.Decrypt("pw", privPath, "", AutoCarrier))
	assert.Equal(t, StatusPlain, s.Status())
	assert.Nil(t, s.Info())

	// any -> unset
	s.Clear()
	assert.Equal(t, StatusUnset, s.Status())
	assert.Equal(t, 0, s.NumBlocks())
	require.NoError(t, s.ReadPlain(plainPath))
}

func TestReadErrors(t *testing.T) {
	s := newSession(t, 128)
	missing := filepath.Join(t.TempDir(), "missing")
	assert.ErrorIs(t, s.ReadPlain(missing), ErrNotFound)
	assert.ErrorIs(t, s.ReadEncrypted(missing, ""), ErrNotFound)

	short := writeTemp(t, []byte{1, 2})
	assert.ErrorIs(t, s.ReadEncrypted(short, ""), ErrMalformed)
}

func TestEncryptKeyErrors(t *testing.T) {
	privPath, _ := keyPair(t, 1024)
	s := newSession(t, 128)
	require.NoError(t, s.ReadPlain(writeTemp(t, cryptocore.RandBytes(500))))

	// Private key where a public one is required
	assert.ErrorIs(t, s.Encrypt("pw", privPath, AutoCarrier, true, 0), ErrInvalidKey)
	// Garbage key file
	garbage := writeTemp(t, []byte("garbage"))
	assert.ErrorIs(t, s.Encrypt("pw", garbage, AutoCarrier, true, 0), ErrInvalidKey)
	// Carrier out of range
	_, pubPath := keyPair(t, 1024)
	assert.ErrorIs(t, s.Encrypt("pw", pubPath, 99, true, 0), ErrInvalidArg)
	// Modulus not a multiple of the chunk size
	s2 := newSession(t, 256)
	require.NoError(t, s2.ReadPlain(writeTemp(t, cryptocore.RandBytes(500))))
	assert.ErrorIs(t, s2.Encrypt("pw", pubPath, AutoCarrier, true, 0), ErrInvalidArg)
}

func TestDecryptKeyErrors(t *testing.T) {
	_, pubPath := keyPair(t, 1024)
	enc := encryptFile(t, cryptocore.RandBytes(500), 128, pubPath, "pw", AutoCarrier, true)

	protectedDir := t.TempDir()
	protPriv, _, err := GenerateRSAPair("secret", protectedDir, "prot", 1024)
	require.NoError(t, err)

	s := newSession(t, 128)
	require.NoError(t, s.ReadEncrypted(enc, ""))
	assert.ErrorIs(t, s.Decrypt("pw", protPriv, "wrong", AutoCarrier), ErrWrongPassphrase)
	// Public key where a private one is required
	assert.ErrorIs(t, s.Decrypt("pw", pubPath, "", AutoCarrier), ErrInvalidKey)
}

func TestGenerateRSAPairErrors(t *testing.T) {
	_, _, err := GenerateRSAPair("", t.TempDir(), "k", 1000)
	assert.ErrorIs(t, err, ErrInvalidArg)
	_, _, err = GenerateRSAPair("", filepath.Join(t.TempDir(), "missing"), "k", 1024)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGenerateRSAPairPassphraseRoundTrip(t *testing.T) {
	dir := t.TempDir()
	priv, pub, err := GenerateRSAPair("tupelo", dir, "mykey", 1024)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "mykey"), priv)
	assert.Equal(t, filepath.Join(dir, "mykey.pub"), pub)

	plaintext := cryptocore.RandBytes(700)
	enc := encryptFile(t, plaintext, 128, pub, "pw", AutoCarrier, true)

	s := newSession(t, 128)
	require.NoError(t, s.ReadEncrypted(enc, ""))
	require.NoError(t, s.Decrypt("pw", priv, "tupelo", AutoCarrier))
	out := filepath.Join(dir, "out.bin")
	require.NoError(t, s.Save(out, ""))
	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(plaintext, got))
}

// Padding correctness: the decrypted file is byte-identical, no trailing
// random bytes, for lengths around the chunk boundary.
func TestPaddingCorrectness(t *testing.T) {
	privPath, pubPath := keyPair(t, 1024)
	for _, n := range []int{1, 127, 128, 129, 255, 256, 257} {
		plaintext := safeRand(n, 128)
		enc := encryptFile(t, plaintext, 128, pubPath, "pw", AutoCarrier, true)
		got := decryptFile(t, enc, 128, privPath, "pw")
		assert.True(t, bytes.Equal(plaintext, got), "len=%d", n)
	}
}
