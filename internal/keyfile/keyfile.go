// Package keyfile generates, exports and imports the RSA key pair used
// to protect the carrier block.
//
// Accepted private key encodings: PKCS#1 PEM (plain or legacy-encrypted),
// PKCS#8 PEM, encrypted PKCS#8 PEM, and OpenSSH PEM so an existing
// ~/.ssh/id_rsa works as well. Exported keys use PKCS#8, encrypted with
// the passphrase when one is given.
package keyfile

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/youmark/pkcs8"
	"golang.org/x/crypto/ssh"

	"github.com/vLabayen/giltzarrapo/internal/cryptocore"
	"github.com/vLabayen/giltzarrapo/internal/tlog"
)

const (
	// DefaultBits is the default RSA modulus length.
	DefaultBits = 4096
	// DefaultName is the default private key file name; the public key
	// gets a ".pub" suffix.
	DefaultName = "giltza_rsa"
)

var (
	// ErrKeyFormat means the file did not contain the expected kind of
	// key: parse failure, a private key where a public one was required,
	// or the other way around.
	ErrKeyFormat = errors.New("wrong key format")
	// ErrWrongPassphrase means the private key is protected and the
	// supplied passphrase did not decrypt it.
	ErrWrongPassphrase = errors.New("wrong or required passphrase")
)

// Generate creates a new RSA key of the given modulus length.
func Generate(bits int) (*rsa.PrivateKey, error) {
	key, err := rsa.GenerateKey(cryptocore.RandReader, bits)
	if err != nil {
		return nil, fmt.Errorf("RSA key generation failed: %w", err)
	}
	return key, nil
}

// WritePair writes the private key to dir/name and the public key to
// dir/name.pub, both PEM. A non-empty passphrase turns the private key
// into an encrypted PKCS#8 block.
func WritePair(key *rsa.PrivateKey, dir, name, passphrase string) (privPath string, pubPath string, err error) {
	if _, err := os.Stat(dir); err != nil {
		return "", "", err
	}
	privPath = filepath.Join(dir, name)
	pubPath = privPath + ".pub"

	privPEM, err := marshalPrivate(key, passphrase)
	if err != nil {
		return "", "", err
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return "", "", err
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	if err := os.WriteFile(privPath, privPEM, 0600); err != nil {
		return "", "", err
	}
	if err := os.WriteFile(pubPath, pubPEM, 0644); err != nil {
		return "", "", err
	}
	tlog.Debug.Printf("keyfile.WritePair: wrote %s and %s", privPath, pubPath)
	return privPath, pubPath, nil
}

func marshalPrivate(key *rsa.PrivateKey, passphrase string) ([]byte, error) {
	if passphrase == "" {
		der, err := x509.MarshalPKCS8PrivateKey(key)
		if err != nil {
			return nil, err
		}
		return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
	}
	der, err := pkcs8.MarshalPrivateKey(key, []byte(passphrase), nil)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "ENCRYPTED PRIVATE KEY", Bytes: der}), nil
}

// LoadPublic reads an RSA public key from a PEM file. Handing it a
// private key is rejected: the encrypt pipeline must never see private
// material.
func LoadPublic(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block in %s", ErrKeyFormat, path)
	}
	switch block.Type {
	case "PUBLIC KEY":
		pub, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrKeyFormat, err)
		}
		rsaPub, ok := pub.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("%w: not an RSA key", ErrKeyFormat)
		}
		return rsaPub, nil
	case "RSA PUBLIC KEY":
		rsaPub, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrKeyFormat, err)
		}
		return rsaPub, nil
	case "RSA PRIVATE KEY", "PRIVATE KEY", "ENCRYPTED PRIVATE KEY", "OPENSSH PRIVATE KEY":
		return nil, fmt.Errorf("%w: %s holds a private key, expected a public key", ErrKeyFormat, path)
	}
	return nil, fmt.Errorf("%w: unsupported PEM type %q", ErrKeyFormat, block.Type)
}

// LoadPrivate reads an RSA private key from a PEM file, decrypting it
// with the passphrase when needed.
func LoadPrivate(path, passphrase string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block in %s", ErrKeyFormat, path)
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		der := block.Bytes
		if x509.IsEncryptedPEMBlock(block) { //nolint:staticcheck // legacy PEM keys exist in the wild
			der, err = x509.DecryptPEMBlock(block, []byte(passphrase)) //nolint:staticcheck
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrWrongPassphrase, err)
			}
		}
		key, err := x509.ParsePKCS1PrivateKey(der)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrKeyFormat, err)
		}
		return key, nil
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrKeyFormat, err)
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: not an RSA key", ErrKeyFormat)
		}
		return rsaKey, nil
	case "ENCRYPTED PRIVATE KEY":
		rsaKey, err := pkcs8.ParsePKCS8PrivateKeyRSA(block.Bytes, []byte(passphrase))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrWrongPassphrase, err)
		}
		return rsaKey, nil
	case "OPENSSH PRIVATE KEY":
		return loadOpenSSH(data, passphrase)
	case "PUBLIC KEY", "RSA PUBLIC KEY":
		return nil, fmt.Errorf("%w: %s holds a public key, expected a private key", ErrKeyFormat, path)
	}
	return nil, fmt.Errorf("%w: unsupported PEM type %q", ErrKeyFormat, block.Type)
}

// loadOpenSSH parses OpenSSH-format private keys (the ssh-keygen
// default since OpenSSH 7.8).
func loadOpenSSH(data []byte, passphrase string) (*rsa.PrivateKey, error) {
	var key interface{}
	var err error
	if passphrase == "" {
		key, err = ssh.ParseRawPrivateKey(data)
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return nil, fmt.Errorf("%w: key is passphrase-protected", ErrWrongPassphrase)
		}
	} else {
		key, err = ssh.ParseRawPrivateKeyWithPassphrase(data, []byte(passphrase))
		if errors.Is(err, x509.IncorrectPasswordError) {
			return nil, fmt.Errorf("%w: %v", ErrWrongPassphrase, err)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyFormat, err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an RSA key", ErrKeyFormat)
	}
	return rsaKey, nil
}
