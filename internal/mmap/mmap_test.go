package mmap

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateWriteReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")

	m, err := Create(path, 16)
	require.NoError(t, err)
	copy(m.Bytes(), []byte("hello world12345"))
	require.NoError(t, m.Sync())
	require.NoError(t, m.Close())

	m2, err := Open(path)
	require.NoError(t, err)
	defer m2.Close()
	require.Equal(t, "hello world12345", string(m2.Bytes()))
}

func TestGrowPreservesBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")

	m, err := Create(path, 8)
	require.NoError(t, err)
	defer m.Close()

	copy(m.Bytes(), []byte("abcdefgh"))
	require.NoError(t, m.Grow(32))
	require.Equal(t, 32, m.Size())
	require.Equal(t, "abcdefgh", string(m.Bytes()[:8]))

	for _, b := range m.Bytes()[8:] {
		require.Equal(t, byte(0), b)
	}
}

func TestGrowShrinkRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	m, err := Create(path, 16)
	require.NoError(t, err)
	defer m.Close()

	err = m.Grow(8)
	require.ErrorIs(t, err, ErrInvalidSize)
}
