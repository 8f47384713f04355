// Package cacheerr defines the blob cache engine's error taxonomy
// (spec.md §7). Every kind is a sentinel error usable with errors.Is;
// operations that need to carry extra context (the failed key, the codec
// that was attempted) return a *TypedError built by one of the
// constructors below, which unwraps to its sentinel.
package cacheerr

import (
	"errors"
	"fmt"
)

var (
	// ErrDisposed is returned by every operation on a closed store.
	ErrDisposed = errors.New("cacheerr: store is disposed")

	// ErrKeyNotFound is returned when a key is absent or expired.
	ErrKeyNotFound = errors.New("cacheerr: key not found")

	// ErrSerialization is returned on encode/decode failure.
	ErrSerialization = errors.New("cacheerr: serialization failed")

	// ErrCrypto is returned on encrypt/decrypt failure.
	ErrCrypto = errors.New("cacheerr: crypto operation failed")

	// ErrIO is returned on backend I/O (file or SQL) failure. Retriable.
	ErrIO = errors.New("cacheerr: backend io failure")

	// ErrEnumeration is returned by get_all_keys on backend failure; the
	// *_safe variants convert this into an empty result instead.
	ErrEnumeration = errors.New("cacheerr: key enumeration failed")

	// ErrFetch names a user-supplied factory/fetch function failure.
	// Unlike the other sentinels it is never returned directly — the
	// factory's own error is returned verbatim per spec.md §7, and the
	// engine does not attach ErrFetch to it, so errors.Is(err, ErrFetch)
	// is false for the errors the facade returns.
	ErrFetch = errors.New("cacheerr: fetch function failed")

	// ErrArgument is returned for null/empty keys or nil payloads.
	ErrArgument = errors.New("cacheerr: invalid argument")
)

// TypedError carries the sentinel kind plus engine-specific context: the
// key an operation was acting on, and for serialization failures the byte
// length and codec that was attempted.
type TypedError struct {
	Kind   error
	Key    string
	Codec  string
	Length int
	Err    error
}

func (e *TypedError) Error() string {
	msg := e.Kind.Error()
	if e.Key != "" {
		msg += fmt.Sprintf(" (key=%q)", e.Key)
	}
	if e.Codec != "" {
		msg += fmt.Sprintf(" (codec=%s, len=%d)", e.Codec, e.Length)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TypedError) Unwrap() error {
	return e.Kind
}

// KeyNotFound builds a TypedError wrapping ErrKeyNotFound for key.
func KeyNotFound(key string) error {
	return &TypedError{Kind: ErrKeyNotFound, Key: key}
}

// Disposed builds a TypedError wrapping ErrDisposed.
func Disposed() error {
	return &TypedError{Kind: ErrDisposed}
}

// SerializationFailure builds a TypedError wrapping ErrSerialization,
// carrying the attempted codec and raw byte length per spec.md §4.1.
func SerializationFailure(codec string, length int, cause error) error {
	return &TypedError{Kind: ErrSerialization, Codec: codec, Length: length, Err: cause}
}

// Crypto builds a TypedError wrapping ErrCrypto.
func Crypto(cause error) error {
	return &TypedError{Kind: ErrCrypto, Err: cause}
}

// IO builds a TypedError wrapping ErrIO for the given key (key may be empty
// for operations that are not key-scoped, such as Vacuum).
func IO(key string, cause error) error {
	return &TypedError{Kind: ErrIO, Key: key, Err: cause}
}

// Enumeration builds a TypedError wrapping ErrEnumeration.
func Enumeration(cause error) error {
	return &TypedError{Kind: ErrEnumeration, Err: cause}
}

// Argument builds a TypedError wrapping ErrArgument.
func Argument(msg string) error {
	return &TypedError{Kind: ErrArgument, Err: errors.New(msg)}
}

// IsKeyNotFound is a convenience wrapper around errors.Is(err, ErrKeyNotFound).
func IsKeyNotFound(err error) bool {
	return errors.Is(err, ErrKeyNotFound)
}

// IsDisposed is a convenience wrapper around errors.Is(err, ErrDisposed).
func IsDisposed(err error) bool {
	return errors.Is(err, ErrDisposed)
}
