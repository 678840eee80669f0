// Package netshim provides a purely in-memory tuple bag with the same
// put/get/read match semantics as [tuplespace.Space], exposed over a
// request/response RPC for non-local clients.
//
// It is independent of shared memory - the spec (§6) describes this as an
// external collaborator, a thin façade for testing and remote use, with
// its wire format an implementation choice. This implementation uses the
// standard library net/rpc with the gob codec; see SPEC_FULL.md §6 for
// why the corpus's only real RPC framework (grpc) isn't a fit here
// without fabricating generated code.
package netshim

import (
	"sync"

	"github.com/disaggr/memspace/pkg/tuplespace"
)

// Bag is an ordered, in-memory sequence of tuples with put/get/read
// semantics matching [tuplespace.Space] (append-only, positional wildcard
// matching, at-most-once consumption on Get). Unlike Space, a Bag holds
// no shared-memory region and is scoped to this process.
type Bag struct {
	mu     sync.Mutex
	tuples []bagSlot
}

type bagSlot struct {
	tuple   tuplespace.Tuple
	invalid bool
}

// NewBag returns an empty Bag.
func NewBag() *Bag {
	return &Bag{}
}

// Put appends t to the bag.
//
// Possible errors: [tuplespace.ErrArityOverflow].
func (b *Bag) Put(t tuplespace.Tuple) error {
	if len(t) > 255 {
		return tuplespace.ErrArityOverflow
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.tuples = append(b.tuples, bagSlot{tuple: append(tuplespace.Tuple(nil), t...)})

	return nil
}

// Get returns the first live tuple matching tmpl and marks it consumed,
// so no later Get or Read observes it again.
func (b *Bag) Get(tmpl tuplespace.Template) (tuplespace.Tuple, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.tuples {
		s := &b.tuples[i]
		if s.invalid {
			continue
		}

		if tupleMatches(tmpl, s.tuple) {
			s.invalid = true
			return s.tuple, true
		}
	}

	return nil, false
}

// Read returns the first live tuple matching tmpl without consuming it.
func (b *Bag) Read(tmpl tuplespace.Template) (tuplespace.Tuple, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.tuples {
		s := &b.tuples[i]
		if s.invalid {
			continue
		}

		if tupleMatches(tmpl, s.tuple) {
			return s.tuple, true
		}
	}

	return nil, false
}

// tupleMatches mirrors the core's matching rule (§4.5): equal arity, and
// every non-wildcard template position equals the corresponding field.
func tupleMatches(tmpl tuplespace.Template, t tuplespace.Tuple) bool {
	if len(tmpl) != len(t) {
		return false
	}

	for i, tf := range tmpl {
		if _, isWildcard := tf.(tuplespace.Wildcard); isWildcard {
			continue
		}

		if !fieldsEqual(tf, t[i]) {
			return false
		}
	}

	return true
}

func fieldsEqual(a, b tuplespace.Field) bool {
	switch av := a.(type) {
	case tuplespace.Int64:
		bv, ok := b.(tuplespace.Int64)
		return ok && av == bv
	case tuplespace.Bytes:
		bv, ok := b.(tuplespace.Bytes)
		return ok && string(av) == string(bv)
	default:
		return false
	}
}
