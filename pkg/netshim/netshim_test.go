package netshim

import (
	"testing"

	"github.com/disaggr/memspace/pkg/tuplespace"
	"github.com/stretchr/testify/require"
)

func Test_Bag_Put_Get_Roundtrips(t *testing.T) {
	t.Parallel()

	b := NewBag()
	require.NoError(t, b.Put(tuplespace.Tuple{tuplespace.Str("hello"), tuplespace.Str("world")}))

	got, ok := b.Get(tuplespace.Template{tuplespace.Wildcard{}, tuplespace.Wildcard{}})
	require.True(t, ok)
	require.Equal(t, tuplespace.Tuple{tuplespace.Str("hello"), tuplespace.Str("world")}, got)

	_, ok = b.Get(tuplespace.Template{tuplespace.Wildcard{}, tuplespace.Wildcard{}})
	require.False(t, ok)
}

func Test_Bag_Read_Does_Not_Consume(t *testing.T) {
	t.Parallel()

	b := NewBag()
	require.NoError(t, b.Put(tuplespace.Tuple{tuplespace.Int64(1)}))

	_, ok := b.Read(tuplespace.Template{tuplespace.Wildcard{}})
	require.True(t, ok)

	got, ok := b.Get(tuplespace.Template{tuplespace.Wildcard{}})
	require.True(t, ok)
	require.Equal(t, tuplespace.Tuple{tuplespace.Int64(1)}, got)
}

func Test_Bag_Put_Rejects_Arity_Overflow(t *testing.T) {
	t.Parallel()

	b := NewBag()

	tup := make(tuplespace.Tuple, 256)
	for i := range tup {
		tup[i] = tuplespace.Int64(0)
	}

	require.ErrorIs(t, b.Put(tup), tuplespace.ErrArityOverflow)
}

func Test_Serve_Dial_Put_Get_Over_RPC(t *testing.T) {
	t.Parallel()

	b := NewBag()

	ln, err := Serve(b, "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	client, err := Dial(ln.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Put(tuplespace.Tuple{tuplespace.Int64(42), tuplespace.Str("answer")}))

	got, ok, err := client.Read(tuplespace.Template{tuplespace.Wildcard{}, tuplespace.Wildcard{}})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, tuplespace.Tuple{tuplespace.Int64(42), tuplespace.Str("answer")}, got)

	got, ok, err = client.Get(tuplespace.Template{tuplespace.Int64(42), tuplespace.Wildcard{}})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, tuplespace.Tuple{tuplespace.Int64(42), tuplespace.Str("answer")}, got)

	_, ok, err = client.Get(tuplespace.Template{tuplespace.Wildcard{}, tuplespace.Wildcard{}})
	require.NoError(t, err)
	require.False(t, ok)
}
