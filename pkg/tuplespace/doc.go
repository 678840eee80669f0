// Package tuplespace implements a Linda-style tuple space over POSIX shared
// memory: an associative, content-addressable bag of tuples that unrelated
// processes on the same host can share by posting ([Space.Put]) and
// consuming ([Space.Get], [Space.Read]) tuples without direct messaging.
//
// # Basic usage
//
//	sp, err := tuplespace.Open(tuplespace.Options{Name: "my-space"})
//	if err != nil {
//	    // handle ErrNotReady/ErrVersionMismatch/ErrIo
//	}
//	defer sp.Close()
//
//	err = sp.Put(tuplespace.Tuple{tuplespace.Str("hello"), tuplespace.Str("world")})
//
//	got, ok, err := sp.Get(tuplespace.Template{tuplespace.Wildcard{}, tuplespace.Wildcard{}})
//
// # Concurrency
//
// [Space.Put] and the claim step of [Space.Get] serialize on a named
// cross-process lock. [Space.Read] never takes that lock and never mutates
// the region. Each posted tuple is consumed by at most one [Space.Get], even
// under racing attachers in separate processes - see the package-level
// tests for the concrete scenarios this guarantees.
//
// # Error handling
//
// Errors are sentinel values ([ErrNotReady], [ErrVersionMismatch],
// [ErrSpaceExhausted], [ErrArityOverflow], [ErrCorruptSlot], [ErrIo]).
// Callers should use [errors.Is] to classify them.
package tuplespace
