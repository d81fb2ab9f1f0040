package server

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryAddRemove(t *testing.T) {
	r := NewRegistry()
	require.Equal(t, 0, r.Len())

	var a, b bytes.Buffer
	idA := r.Add(&a)
	idB := r.Add(&b)
	require.NotEqual(t, idA, idB, "session ids must be unique")
	require.Equal(t, 2, r.Len())

	r.Remove(idA)
	require.Equal(t, 1, r.Len())

	// Removing twice is a no-op
	r.Remove(idA)
	require.Equal(t, 1, r.Len())

	r.Remove(idB)
	require.Equal(t, 0, r.Len())
}

func TestRegistryBroadcastExcludesOrigin(t *testing.T) {
	r := NewRegistry()

	var a, b, c bytes.Buffer
	idA := r.Add(&a)
	r.Add(&b)
	r.Add(&c)

	n := r.Broadcast(idA, []byte("hello"))
	require.Equal(t, 2, n)

	require.Empty(t, a.String(), "origin session must not receive its own broadcast")
	require.Equal(t, "hello", b.String())
	require.Equal(t, "hello", c.String())
}

func TestRegistryBroadcastEmpty(t *testing.T) {
	r := NewRegistry()
	require.Equal(t, 0, r.Broadcast(0, []byte("nobody home")))
}
