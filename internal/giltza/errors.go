package giltza

import "errors"

// The error kinds surfaced by session operations. Callers match with
// errors.Is. The failures described below are wrapped in their kind;
// any other error (for example an I/O error that is neither a missing
// file nor a permission problem, or an AES failure) is returned as is.
var (
	// ErrInvalidArg - chunk size or key length not a power of two,
	// carrier index out of range, or nothing to encrypt.
	ErrInvalidArg = errors.New("invalid argument")
	// ErrNotFound - missing input file or directory.
	ErrNotFound = errors.New("no such file or directory")
	// ErrPermDenied - filesystem permission failure.
	ErrPermDenied = errors.New("permission denied")
	// ErrMalformed - container shorter than its header, or body not
	// chunk-aligned.
	ErrMalformed = errors.New("malformed encrypted file")
	// ErrInvalidKey - PEM parse failure, or a private key where a public
	// one was required (or vice versa).
	ErrInvalidKey = errors.New("wrong key format")
	// ErrWrongPassphrase - the private key passphrase did not decrypt
	// the key.
	ErrWrongPassphrase = errors.New("wrong or required passphrase")
	// ErrRetriesExhausted - no candidate carrier passed RSA encryption
	// within the retry budget.
	ErrRetriesExhausted = errors.New("carrier selection retries exhausted")
	// ErrCarrierNotFound - no block matched the challenge during
	// decryption. Wrong password and/or wrong private key.
	ErrCarrierNotFound = errors.New("carrier block not found")
	// ErrVerificationFailed - an explicit carrier index did not verify
	// against the challenge.
	ErrVerificationFailed = errors.New("carrier verification failed")
	// ErrBadState - operation called from an incompatible session state.
	ErrBadState = errors.New("operation not allowed in this session state")
)
