package tuplespace

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSpace(t *testing.T) *Space {
	t.Helper()

	name := fmt.Sprintf("tuplespace-test-%s-%d", t.Name(), rand.Int63())
	name = sanitizeTestName(name)

	sp, err := Open(Options{Name: name, Size: 1 << 16})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = sp.Unlink()
	})

	return sp
}

// sanitizeTestName strips characters that can't appear in a filesystem
// name (t.Name() embeds slashes for subtests).
func sanitizeTestName(s string) string {
	out := make([]byte, 0, len(s))

	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '/' || c == ' ' {
			c = '_'
		}

		out = append(out, c)
	}

	return string(out)
}

// S1: put(("hello","world")); get((*,*)) -> ("hello","world")
func Test_Put_Get_Roundtrips_Single_Tuple(t *testing.T) {
	t.Parallel()

	sp := newTestSpace(t)

	require.NoError(t, sp.Put(Tuple{Str("hello"), Str("world")}))

	got, ok, err := sp.Get(Template{Wildcard{}, Wildcard{}})
	require.NoError(t, err)
	require.True(t, ok)

	diff := cmp.Diff(Tuple{Str("hello"), Str("world")}, got)
	assert.Empty(t, diff, "tuple mismatch")
}

// S4: 100 puts of (i, "test i"), then gets by exact key i in a random
// order - each returns the matching tuple regardless of retrieval order
// (property 4: order-independent match).
func Test_Get_By_Key_Is_Order_Independent(t *testing.T) {
	t.Parallel()

	sp := newTestSpace(t)

	const n = 100

	for i := 0; i < n; i++ {
		require.NoError(t, sp.Put(Tuple{Int64(i), Str(fmt.Sprintf("test %d", i))}))
	}

	order := rand.Perm(n)

	for _, i := range order {
		got, ok, err := sp.Get(Template{Int64(i), Wildcard{}})
		require.NoError(t, err)
		require.True(t, ok, "expected a match for key %d", i)

		diff := cmp.Diff(Tuple{Int64(i), Str(fmt.Sprintf("test %d", i))}, got)
		assert.Empty(t, diff, "tuple mismatch for key %d", i)
	}

	// Every tuple was consumed exactly once.
	_, ok, err := sp.Get(Template{Wildcard{}, Wildcard{}})
	require.NoError(t, err)
	require.False(t, ok)
}

// S5: put((1,2)); read; read; get; get -> (1,2),(1,2),(1,2),NONE.
func Test_Read_Is_Non_Destructive_Then_Get_Consumes_Once(t *testing.T) {
	t.Parallel()

	sp := newTestSpace(t)

	require.NoError(t, sp.Put(Tuple{Int64(1), Int64(2)}))

	tmpl := Template{Wildcard{}, Wildcard{}}

	for i := 0; i < 2; i++ {
		got, ok, err := sp.Read(tmpl)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, Tuple{Int64(1), Int64(2)}, got)
	}

	got, ok, err := sp.Get(tmpl)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, Tuple{Int64(1), Int64(2)}, got)

	_, ok, err = sp.Get(tmpl)
	require.NoError(t, err)
	require.False(t, ok)
}

func Test_Get_Returns_False_On_Empty_Space(t *testing.T) {
	t.Parallel()

	sp := newTestSpace(t)

	_, ok, err := sp.Get(Template{Wildcard{}})
	require.NoError(t, err)
	require.False(t, ok)
}

func Test_Wildcard_Template_Matches_Any_Value_Of_Same_Arity(t *testing.T) {
	t.Parallel()

	sp := newTestSpace(t)

	require.NoError(t, sp.Put(Tuple{Int64(7), Str("x"), Str("y")}))

	_, ok, err := sp.Get(Template{Wildcard{}, Wildcard{}})
	require.NoError(t, err)
	require.False(t, ok, "arity mismatch must not match")

	got, ok, err := sp.Get(Template{Wildcard{}, Wildcard{}, Wildcard{}})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, Tuple{Int64(7), Str("x"), Str("y")}, got)
}

func Test_Get_Skips_Invalidated_Slots(t *testing.T) {
	t.Parallel()

	sp := newTestSpace(t)

	require.NoError(t, sp.Put(Tuple{Int64(1)}))
	require.NoError(t, sp.Put(Tuple{Int64(1)}))

	_, ok, err := sp.Get(Template{Int64(1)})
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = sp.Get(Template{Int64(1)})
	require.NoError(t, err)
	require.True(t, ok, "second tuple with same value must still be retrievable")

	_, ok, err = sp.Get(Template{Int64(1)})
	require.NoError(t, err)
	require.False(t, ok)
}

// Property 2: at-most-once consumption under concurrent Get calls racing
// for the same bag of tuples (after S6: here eight goroutine consumers in
// one process drain tuples that were all put beforehand).
func Test_Concurrent_Get_Consumes_Each_Tuple_At_Most_Once(t *testing.T) {
	t.Parallel()

	sp := newTestSpace(t)

	const n = 1000

	for i := 0; i < n; i++ {
		require.NoError(t, sp.Put(Tuple{Int64(i)}))
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		seen    = make(map[int64]int, n)
		workers = 8
	)

	wg.Add(workers)

	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()

			for {
				got, ok, err := sp.Get(Template{Wildcard{}})
				if err != nil {
					t.Errorf("unexpected error: %v", err)
					return
				}

				if !ok {
					return
				}

				key := int64(got[0].(Int64))

				mu.Lock()
				seen[key]++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	require.Len(t, seen, n)

	for k, count := range seen {
		require.Equalf(t, 1, count, "key %d consumed %d times", k, count)
	}
}

func Test_Put_Returns_ErrSpaceExhausted_When_Region_Full(t *testing.T) {
	t.Parallel()

	// Room for exactly one slot holding a one-field Int64 tuple: a 10-byte
	// payload (count byte, tag byte, 8 value bytes) after the slot header.
	sp, err := Open(Options{Name: sanitizeTestName(fmt.Sprintf("tuplespace-test-tiny-%d", rand.Int63())), Size: dataStart + slotHeaderSize + 10})
	require.NoError(t, err)

	t.Cleanup(func() { _ = sp.Unlink() })

	require.NoError(t, sp.Put(Tuple{Int64(1)}))

	err = sp.Put(Tuple{Int64(2)})
	require.ErrorIs(t, err, ErrSpaceExhausted)
}

func Test_Put_Returns_ErrArityOverflow_When_Tuple_Has_256_Fields(t *testing.T) {
	t.Parallel()

	sp := newTestSpace(t)

	tup := make(Tuple, 256)
	for i := range tup {
		tup[i] = Int64(i)
	}

	err := sp.Put(tup)
	require.ErrorIs(t, err, ErrArityOverflow)
}

func Test_Open_Attach_Rejects_Version_Mismatch(t *testing.T) {
	t.Parallel()

	sp := newTestSpace(t)

	sp.r.data[offsetVersion] = currentVersion + 1

	_, err := Open(Options{Name: sp.name, Size: 1 << 16})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrVersionMismatch))
}

func Test_Closed_Space_Rejects_Operations(t *testing.T) {
	t.Parallel()

	sp := newTestSpace(t)
	require.NoError(t, sp.Close())

	err := sp.Put(Tuple{Int64(1)})
	require.ErrorIs(t, err, ErrClosed)

	_, _, err = sp.Get(Template{Wildcard{}})
	require.ErrorIs(t, err, ErrClosed)

	_, _, err = sp.Read(Template{Wildcard{}})
	require.ErrorIs(t, err, ErrClosed)

	// Closing twice is a no-op.
	require.NoError(t, sp.Close())
}

// Bootstrap race (property 7): N concurrent Open(name) callers with no
// pre-existing region all succeed and observe the same magic/version.
func Test_Bootstrap_Race_Converges_For_Concurrent_Openers(t *testing.T) {
	t.Parallel()

	name := sanitizeTestName(fmt.Sprintf("tuplespace-test-race-%d", rand.Int63()))

	const n = 16

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		spaces  = make([]*Space, 0, n)
		errs    = make([]error, 0, n)
	)

	wg.Add(n)

	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()

			sp, err := Open(Options{Name: name, Size: 1 << 16})

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				errs = append(errs, err)
				return
			}

			spaces = append(spaces, sp)
		}()
	}

	wg.Wait()

	require.Empty(t, errs)
	require.Len(t, spaces, n)

	for _, sp := range spaces {
		require.True(t, readMagic(sp.r.data))
		require.Equal(t, byte(currentVersion), readVersion(sp.r.data))
	}

	for _, sp := range spaces {
		require.NoError(t, sp.Close())
	}

	require.NoError(t, unlinkRegion(name))
	require.NoError(t, unlinkLock(lockPath(name)))
}

func Test_Count_Reports_Live_Slots_Of_Given_Arity(t *testing.T) {
	t.Parallel()

	sp := newTestSpace(t)

	require.NoError(t, sp.Put(Tuple{Int64(1)}))
	require.NoError(t, sp.Put(Tuple{Int64(2)}))
	require.NoError(t, sp.Put(Tuple{Int64(3), Int64(4)}))

	count, err := sp.Count(1)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	_, ok, err := sp.Get(Template{Int64(1)})
	require.NoError(t, err)
	require.True(t, ok)

	count, err = sp.Count(1)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}
