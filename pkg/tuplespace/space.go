package tuplespace

import (
	"fmt"
	"sync"
)

// Options configures opening, creating, or attaching to a space.
type Options struct {
	// Name identifies the region. The backing shared-memory object lives
	// at /dev/shm/<Name>; the lock file lives alongside it.
	//
	// Required.
	Name string

	// Size is the fixed size in bytes of the region, used only when this
	// call creates the region. Ignored when attaching to an existing one
	// (the on-disk size governs). Zero means [defaultRegionSize].
	Size uint32

	// Logger receives lifecycle events (bootstrap, close, unlink). Nil
	// means no logging.
	Logger Logger
}

// Space is a handle to an open tuple space, backed by a shared-memory
// region and its companion cross-process lock.
//
// Put and the claim step of Get are safe for concurrent use by multiple
// goroutines in this process, and by any number of other processes
// attached to the same region. Read never takes the cross-process lock;
// it does take the handle's in-process mutex briefly to check whether the
// Space is closed, so it can wait behind a Put or claim of this handle
// that is itself waiting for the cross-process lock.
type Space struct {
	mu     sync.Mutex
	closed bool

	name   string
	r      *region
	lk     *lock
	logger Logger
}

// Open opens an existing space or creates it if absent, resolving the
// creator/attacher bootstrap race described in §4.1. This is the unified
// entry point; [CreateSpace] and [AttachSpace] are explicit variants for
// callers that want to assert which side of the race they expect to be
// on.
func Open(opts Options) (*Space, error) {
	if opts.Name == "" {
		return nil, fmt.Errorf("name is required: %w", ErrInvalidInput)
	}

	size := opts.Size
	if size == 0 {
		size = defaultRegionSize
	}

	r, _, err := openOrCreateRegion(opts.Name, size)
	if err != nil {
		return nil, err
	}

	lk, err := openLock(lockPath(opts.Name))
	if err != nil {
		_ = r.close()

		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	logger.Debugf("tuplespace: opened %q (size=%d)", opts.Name, len(r.data))

	return &Space{name: opts.Name, r: r, lk: lk, logger: logger}, nil
}

// CreateSpace creates a new space, failing with an error wrapping
// [ErrInvalidInput] if one already exists at Name.
//
// Most callers should prefer [Open], which handles the bootstrap race
// transparently; use CreateSpace when the caller specifically wants to
// assert it is the sole creator (mirrors the original prototype's
// memspaces.create).
func CreateSpace(opts Options) (*Space, error) {
	sp, created, err := openTracked(opts)
	if err != nil {
		return nil, err
	}

	if !created {
		_ = sp.Close()

		return nil, fmt.Errorf("tuplespace: %q already exists: %w", opts.Name, ErrInvalidInput)
	}

	return sp, nil
}

// AttachSpace attaches to an existing space, failing with [ErrNotReady] if
// none exists yet (mirrors the original prototype's memspaces.attach).
func AttachSpace(opts Options) (*Space, error) {
	sp, created, err := openTracked(opts)
	if err != nil {
		return nil, err
	}

	if created {
		name := sp.name
		_ = sp.Unlink()

		return nil, fmt.Errorf("tuplespace: %q did not exist: %w", name, ErrNotReady)
	}

	return sp, nil
}

func openTracked(opts Options) (*Space, bool, error) {
	if opts.Name == "" {
		return nil, false, fmt.Errorf("name is required: %w", ErrInvalidInput)
	}

	size := opts.Size
	if size == 0 {
		size = defaultRegionSize
	}

	r, created, err := openOrCreateRegion(opts.Name, size)
	if err != nil {
		return nil, false, err
	}

	lk, err := openLock(lockPath(opts.Name))
	if err != nil {
		_ = r.close()

		return nil, false, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	return &Space{name: opts.Name, r: r, lk: lk, logger: logger}, created, nil
}

// Put appends tuple t to the space, per §4.4. On success the slot is
// immediately visible to every other attacher.
//
// sp.mu is held across the whole flock-protected region below: flock
// locks attach to the open file description, not the caller, so two
// goroutines sharing sp.lk.fd would otherwise both acquire it without
// blocking each other. sp.mu supplies the in-process half of the lock;
// sp.lk supplies the cross-process half.
//
// Possible errors: [ErrClosed], [ErrArityOverflow], [ErrInvalidInput],
// [ErrSpaceExhausted], [ErrIo].
func (sp *Space) Put(t Tuple) error {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if sp.closed {
		return ErrClosed
	}

	payload, err := encodeTuple(t)
	if err != nil {
		return err
	}

	need := uint64(slotHeaderSize) + uint64(len(payload))

	if err := sp.lk.acquire(); err != nil {
		return err
	}
	defer sp.lk.release()

	data := sp.r.data
	end := uint64(readEndCursor(data))

	if end+need > uint64(len(data)) {
		return ErrSpaceExhausted
	}

	encodeSlotHeader(data[end:], slotHeader{length: uint32(len(payload)), fields: uint8(len(t)), flags: 0})
	copy(data[end+slotHeaderSize:], payload)
	writeEndCursor(data, uint32(end+need))

	return nil
}

// Get returns a tuple matching tmpl and atomically marks that slot
// INVALID so no other Get returns it, per §4.5. Returns (nil, false, nil)
// if no match exists.
//
// Possible errors: [ErrClosed], [ErrArityOverflow], [ErrCorruptSlot], [ErrIo].
func (sp *Space) Get(tmpl Template) (Tuple, bool, error) {
	return sp.scan(tmpl, true)
}

// Read returns a tuple matching tmpl without modifying the space, per
// §4.6. A concurrent Get may consume the same tuple; Read is a
// best-effort snapshot of some matching tuple present at some instant
// during the call.
//
// Possible errors: [ErrClosed], [ErrArityOverflow], [ErrCorruptSlot].
func (sp *Space) Read(tmpl Template) (Tuple, bool, error) {
	return sp.scan(tmpl, false)
}

// scan implements the shared shape of §4.5 and §4.6: an unlocked linear
// scan from dataStart, re-reading end_cursor every iteration so newly
// appended slots may be observed mid-scan. claim selects Get vs Read
// behavior at the point a candidate match is found.
func (sp *Space) scan(tmpl Template, claim bool) (Tuple, bool, error) {
	sp.mu.Lock()
	closed := sp.closed
	sp.mu.Unlock()

	if closed {
		return nil, false, ErrClosed
	}

	if len(tmpl) > 255 {
		return nil, false, ErrArityOverflow
	}

	data := sp.r.data
	cursor := uint64(dataStart)
	wantArity := uint8(len(tmpl))

	for {
		end := uint64(readEndCursor(data))
		if cursor >= end {
			return nil, false, nil
		}

		if cursor+slotHeaderSize > uint64(len(data)) {
			return nil, false, ErrCorruptSlot
		}

		h := decodeSlotHeader(data[cursor:])
		if cursor+h.totalSize() > uint64(len(data)) || cursor+h.totalSize() > end {
			return nil, false, ErrCorruptSlot
		}

		if h.fields != wantArity || h.invalid() {
			cursor += h.totalSize()
			continue
		}

		payload := data[cursor+slotHeaderSize : cursor+h.totalSize()]

		t, err := decodeTuple(payload, h.fields)
		if err != nil {
			return nil, false, err
		}

		if !matches(tmpl, t) {
			cursor += h.totalSize()
			continue
		}

		if !claim {
			return t, true, nil
		}

		claimed, err := sp.claim(cursor)
		if err != nil {
			return nil, false, err
		}

		if !claimed {
			// Another Get won the race for this slot; keep scanning.
			cursor += h.totalSize()
			continue
		}

		return t, true, nil
	}
}

// claim implements §4.5 step d: acquire the lock, re-read flags to guard
// against a racing consumer, and only then mark the slot INVALID.
//
// sp.mu is held across the flock-protected region for the same reason as
// in Put: flock alone does not serialize two goroutines of this process
// against each other.
func (sp *Space) claim(cursor uint64) (bool, error) {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if sp.closed {
		return false, ErrClosed
	}

	if err := sp.lk.acquire(); err != nil {
		return false, err
	}
	defer sp.lk.release()

	data := sp.r.data
	flagsOff := cursor + 5

	if data[flagsOff]&flagInvalid != 0 {
		return false, nil
	}

	data[flagsOff] |= flagInvalid

	return true, nil
}

// Count returns the number of live (non-INVALID) slots of the given
// arity, without removing anything. A read-only scan variant used by the
// CLI's count command - see SPEC_FULL.md §4.7 (expansion).
func (sp *Space) Count(arity uint8) (int, error) {
	sp.mu.Lock()
	closed := sp.closed
	sp.mu.Unlock()

	if closed {
		return 0, ErrClosed
	}

	data := sp.r.data
	cursor := uint64(dataStart)
	end := uint64(readEndCursor(data))
	count := 0

	for cursor < end {
		h := decodeSlotHeader(data[cursor:])
		if cursor+h.totalSize() > end {
			return 0, ErrCorruptSlot
		}

		if h.fields == arity && !h.invalid() {
			count++
		}

		cursor += h.totalSize()
	}

	return count, nil
}

// Stats describes the current occupancy of a space's region.
type Stats struct {
	Capacity  uint32
	DataStart uint32
	EndCursor uint32
}

// Stats returns diagnostic information about the region, used by the CLI.
func (sp *Space) Stats() (Stats, error) {
	sp.mu.Lock()
	closed := sp.closed
	sp.mu.Unlock()

	if closed {
		return Stats{}, ErrClosed
	}

	data := sp.r.data

	return Stats{
		Capacity:  uint32(len(data)),
		DataStart: dataStart,
		EndCursor: readEndCursor(data),
	}, nil
}

// Close detaches the mapped view and closes the lock handle. The region
// and lock file persist; other attachers are unaffected.
//
// Close is idempotent.
func (sp *Space) Close() error {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if sp.closed {
		return nil
	}

	sp.closed = true

	sp.logger.Debugf("tuplespace: closing %q", sp.name)

	err1 := sp.lk.close()
	err2 := sp.r.close()

	if err1 != nil {
		return err1
	}

	return err2
}

// Unlink closes this handle, then removes the region and lock file from
// the system namespace. The kernel reclaims storage once the last
// attacher unmaps, per usual POSIX semantics.
func (sp *Space) Unlink() error {
	name := sp.name

	if err := sp.Close(); err != nil {
		return err
	}

	if err := unlinkRegion(name); err != nil {
		return err
	}

	return unlinkLock(lockPath(name))
}
