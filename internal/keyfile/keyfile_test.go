package keyfile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// 1024-bit keys keep the tests fast. The tool default is 4096.
const testBits = 1024

func TestWritePairPlain(t *testing.T) {
	key, err := Generate(testBits)
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	privPath, pubPath, err := WritePair(key, dir, "testkey", "")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(privPath) != "testkey" || filepath.Base(pubPath) != "testkey.pub" {
		t.Errorf("unexpected paths %s, %s", privPath, pubPath)
	}

	priv, err := LoadPrivate(privPath, "")
	if err != nil {
		t.Fatal(err)
	}
	pub, err := LoadPublic(pubPath)
	if err != nil {
		t.Fatal(err)
	}
	if priv.N.Cmp(pub.N) != 0 {
		t.Error("loaded key pair does not match")
	}
}

func TestWritePairPassphrase(t *testing.T) {
	key, err := Generate(testBits)
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	privPath, _, err := WritePair(key, dir, "testkey", "hunter2")
	if err != nil {
		t.Fatal(err)
	}

	// Correct passphrase
	priv, err := LoadPrivate(privPath, "hunter2")
	if err != nil {
		t.Fatal(err)
	}
	if priv.N.Cmp(key.N) != 0 {
		t.Error("loaded key does not match the generated one")
	}

	// Wrong passphrase
	if _, err := LoadPrivate(privPath, "wrong"); !errors.Is(err, ErrWrongPassphrase) {
		t.Errorf("wrong passphrase: got %v, want ErrWrongPassphrase", err)
	}
	// Missing passphrase
	if _, err := LoadPrivate(privPath, ""); !errors.Is(err, ErrWrongPassphrase) {
		t.Errorf("missing passphrase: got %v, want ErrWrongPassphrase", err)
	}
}

func TestWritePairNoSuchDir(t *testing.T) {
	key, err := Generate(testBits)
	if err != nil {
		t.Fatal(err)
	}
	_, _, err = WritePair(key, filepath.Join(t.TempDir(), "missing"), "k", "")
	if !os.IsNotExist(err) {
		t.Errorf("got %v, want not-exist error", err)
	}
}

func TestLoadPublicRejectsPrivate(t *testing.T) {
	key, err := Generate(testBits)
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	privPath, _, err := WritePair(key, dir, "testkey", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := LoadPublic(privPath); !errors.Is(err, ErrKeyFormat) {
		t.Errorf("got %v, want ErrKeyFormat", err)
	}
}

func TestLoadPrivateRejectsPublic(t *testing.T) {
	key, err := Generate(testBits)
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	_, pubPath, err := WritePair(key, dir, "testkey", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := LoadPrivate(pubPath, ""); !errors.Is(err, ErrKeyFormat) {
		t.Errorf("got %v, want ErrKeyFormat", err)
	}
}

func TestLoadGarbage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "garbage")
	if err := os.WriteFile(path, []byte("not a key"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadPublic(path); !errors.Is(err, ErrKeyFormat) {
		t.Errorf("LoadPublic: got %v, want ErrKeyFormat", err)
	}
	if _, err := LoadPrivate(path, ""); !errors.Is(err, ErrKeyFormat) {
		t.Errorf("LoadPrivate: got %v, want ErrKeyFormat", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope")
	if _, err := LoadPublic(path); !os.IsNotExist(err) {
		t.Errorf("LoadPublic: got %v, want not-exist", err)
	}
	if _, err := LoadPrivate(path, ""); !os.IsNotExist(err) {
		t.Errorf("LoadPrivate: got %v, want not-exist", err)
	}
}
