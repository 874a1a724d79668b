package remote

import "errors"

var (
	// ErrTransactionConflict is returned when a transaction lost every
	// compare-and-swap attempt.
	ErrTransactionConflict = errors.New("transaction conflict: retries exhausted")
	// ErrWriterIneligible is returned when a non-writer attempts a remote
	// mutation. No read or write is performed.
	ErrWriterIneligible = errors.New("device is not an eligible writer")
	// ErrAuthRequired is returned when writer registration needs a signed-in
	// identity.
	ErrAuthRequired = errors.New("sign-in required to write")
	// ErrNotConfigured is returned when no match identifier is set.
	ErrNotConfigured = errors.New("no match configured")
	// ErrNotConnected is returned by operations that need a live connection.
	ErrNotConnected = errors.New("not connected")
	// ErrInvalidPath is returned by TxnField for a path the snapshot does not
	// contain.
	ErrInvalidPath = errors.New("invalid field path")

	// ErrKeyNotFound is returned by a Store when the key has no value.
	ErrKeyNotFound = errors.New("key not found")
	// ErrKeyExists is returned by Store.Create when the key already has a value.
	ErrKeyExists = errors.New("key exists")
	// ErrRevisionMismatch is returned by Store.Update when the key moved past
	// the expected revision.
	ErrRevisionMismatch = errors.New("revision mismatch")
)
