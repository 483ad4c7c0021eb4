// Package errmsg defines the error values exposed by the log, entry and
// hydration packages. The message strings are wire-compatible with the other
// implementations of this log format; do not reword them.
package errmsg

import (
	"errors"
	"fmt"
)

var (
	ErrIPFSNotDefined       = errors.New("Ipfs instance not defined")
	ErrIdentityCreateEntry  = errors.New("Identity is required, cannot create entry")
	ErrIdentityNotDefined   = errors.New("Identity is required")
	ErrEntryIDRequired      = errors.New("Entry requires an id")
	ErrEntryDataRequired    = errors.New("Entry requires data")
	ErrNextNotAnArray       = errors.New("'next' argument is not an array")
	ErrInvalidHashUndefined = errors.New("Invalid hash: undefined")
	ErrInvalidObjectFormat  = errors.New("Invalid object format, cannot generate entry hash")
	ErrLogNotDefined        = errors.New("Log instance not defined")
	ErrNotALogInstance      = errors.New("Given argument is not an instance of Log")
	ErrEntriesNotAnArray    = errors.New("'entries' argument must be an array of Entry instances")
	ErrHeadsNotAnArray      = errors.New("'heads' argument must be an array")
)

// ErrKeyNotAllowed reports an access-controller refusal for the given
// identity id.
func ErrKeyNotAllowed(id string) error {
	return fmt.Errorf("Could not append entry, key %q is not allowed to write to the log", id)
}

// ErrSignatureInvalid reports a failed signature verification over an entry.
func ErrSignatureInvalid(sig, hash, publicKey string) error {
	return fmt.Errorf("Could not validate signature %q for entry %q and key %q", sig, hash, publicKey)
}

// ErrZeroTimeCollision reports two unauthored entries (clock time 0) sharing
// a clock id. This indicates forged or corrupt data and aborts the
// comparison it occurred in.
func ErrZeroTimeCollision(id string) error {
	return fmt.Errorf("Your log contains entries with clock time 0 and clock id %q; entries must be authored before they can be sorted", id)
}
