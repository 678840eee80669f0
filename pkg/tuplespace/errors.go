package tuplespace

import "errors"

// Sentinel errors returned by tuplespace operations.
//
// Callers should use [errors.Is] to check error types:
//
//	if errors.Is(err, tuplespace.ErrNotReady) {
//	    // another attacher is still bootstrapping the region
//	}
var (
	// ErrNotReady indicates the region's magic tag never appeared within
	// the attach timeout - the creator is still initializing, stalled, or
	// the region is corrupt.
	ErrNotReady = errors.New("tuplespace: not ready")

	// ErrVersionMismatch indicates the region's version byte does not
	// match the version this build expects.
	ErrVersionMismatch = errors.New("tuplespace: version mismatch")

	// ErrSpaceExhausted indicates Put cannot fit the new slot before the
	// region's fixed size. The region is never compacted; recreate it
	// larger if this is hit routinely.
	ErrSpaceExhausted = errors.New("tuplespace: space exhausted")

	// ErrArityOverflow indicates a tuple or template has more than 255
	// positional fields.
	ErrArityOverflow = errors.New("tuplespace: arity overflow")

	// ErrCorruptSlot indicates a slot header is internally inconsistent
	// (e.g. length would overrun the region). Fatal for the operation in
	// progress; no repair is attempted.
	ErrCorruptSlot = errors.New("tuplespace: corrupt slot")

	// ErrIo indicates an underlying shared-memory or lock-file syscall
	// failed. Wraps the underlying errno via %w.
	ErrIo = errors.New("tuplespace: io")

	// ErrClosed indicates the Space has already been closed.
	ErrClosed = errors.New("tuplespace: closed")

	// ErrInvalidInput indicates invalid arguments were supplied (e.g. a
	// zero-length name, or a size below the minimum region size).
	ErrInvalidInput = errors.New("tuplespace: invalid input")
)
