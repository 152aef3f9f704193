// Package exitcodes contains all well-known exit codes that the
// giltzarrapo CLI can return, and the mapping from the session error
// kinds to those codes.
package exitcodes

import (
	"errors"
	"fmt"
	"os"

	"github.com/vLabayen/giltzarrapo/internal/giltza"
)

const (
	// Usage - invalid command line arguments
	Usage = 1
	// ReadFile - an input file could not be read
	ReadFile = 2
	// WriteFile - an output file could not be written
	WriteFile = 3
	// KeyFile - the RSA key file could not be loaded or generated
	KeyFile = 4
	// Passphrase - the private key passphrase was wrong or missing
	Passphrase = 5
	// EncryptError - the encrypt pipeline failed
	EncryptError = 6
	// DecryptError - the decrypt pipeline failed (carrier not found,
	// verification failure)
	DecryptError = 7
	// BadState - a session operation was called in the wrong state
	BadState = 8
	// Other - catch-all for unclassified errors
	Other = 9
)

// Err wraps an error with an exit code.
type Err struct {
	error
	Code int
}

// NewErr returns an error containing "msg" and the exit code "code".
func NewErr(msg string, code int) Err {
	return Err{
		error: fmt.Errorf("%s", msg),
		Code:  code,
	}
}

// FromErr maps a session error to the exit code of its kind.
func FromErr(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, giltza.ErrInvalidArg):
		return Usage
	case errors.Is(err, giltza.ErrNotFound), errors.Is(err, giltza.ErrMalformed):
		return ReadFile
	case errors.Is(err, giltza.ErrPermDenied):
		return WriteFile
	case errors.Is(err, giltza.ErrInvalidKey):
		return KeyFile
	case errors.Is(err, giltza.ErrWrongPassphrase):
		return Passphrase
	case errors.Is(err, giltza.ErrRetriesExhausted):
		return EncryptError
	case errors.Is(err, giltza.ErrCarrierNotFound), errors.Is(err, giltza.ErrVerificationFailed):
		return DecryptError
	case errors.Is(err, giltza.ErrBadState):
		return BadState
	}
	return Other
}

// Exit extracts the exit code (if available) and terminates the process.
func Exit(err error) {
	var e Err
	if errors.As(err, &e) {
		os.Exit(e.Code)
	}
	os.Exit(FromErr(err))
}
