package arena

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestArena(t *testing.T) {
	a := New[string]()

	foo := a.Add("foo")
	bar := a.Add("bar")
	require.Equal(t, Node(0), foo)
	require.Equal(t, Node(1), bar)
	require.Equal(t, 2, a.Len())
	require.Equal(t, "bar", a.Get(bar))

	t.Run("take and replace keeps the id", func(t *testing.T) {
		v := a.Take(foo)
		require.Equal(t, "foo", v)
		require.False(t, a.Contains(foo))

		a.Replace(foo, v+"baz")
		require.True(t, a.Contains(foo))
		require.Equal(t, "foobaz", a.Get(foo))
		require.Equal(t, 2, a.Len())
	})

	t.Run("dereferencing a hole panics", func(t *testing.T) {
		a.Take(bar)
		require.Panics(t, func() { a.Get(bar) })
		require.Panics(t, func() { a.Take(bar) })
		a.Replace(bar, "bar")
		require.NotPanics(t, func() { a.Get(bar) })
	})

	t.Run("out of range panics", func(t *testing.T) {
		require.Panics(t, func() { a.Get(Node(42)) })
		require.False(t, a.Contains(Node(42)))
	})
}
