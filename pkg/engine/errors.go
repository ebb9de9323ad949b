package engine

import "errors"

// Sentinel errors returned by the Storage Engine, matching the teacher's
// pkg/engine/errors.go style of pre-declared errors rather than ad-hoc
// error strings. They are returned unwrapped, so callers may compare
// them with == as well as errors.Is.
var (
	// ErrEngineClosed is returned when an operation is attempted after Close.
	ErrEngineClosed = errors.New("engine: closed")
	// ErrKeyEmpty is returned when a key argument is the empty string.
	ErrKeyEmpty = errors.New("engine: key must not be empty")
	// ErrKeyInvalid is returned when a key contains a space, \n, or \r.
	ErrKeyInvalid = errors.New("engine: key must not contain whitespace or newlines")
	// ErrKeyTooLarge is returned when a key exceeds config.KeyMax bytes.
	ErrKeyTooLarge = errors.New("engine: key exceeds maximum length")
	// ErrValueTooLarge is returned when a value exceeds config.ValueMax bytes.
	ErrValueTooLarge = errors.New("engine: value exceeds maximum length")
	// ErrInvalidTTL is returned when a TTL argument is negative.
	ErrInvalidTTL = errors.New("engine: invalid ttl")
)
