// Package storetest provides the behaviour checks that every checkpointed
// store implementation must pass.
package storetest

import (
	"testing"

	"github.com/shurinov/fadroma/core/store"
	"github.com/stretchr/testify/require"
)

// Run executes the checks against stores created by the factory.
func Run(t *testing.T, factory store.Factory) {
	t.Run("read your writes", func(t *testing.T) { testReadWrites(t, factory()) })
	t.Run("commit", func(t *testing.T) { testCommit(t, factory()) })
	t.Run("revert", func(t *testing.T) { testRevert(t, factory()) })
	t.Run("owned values", func(t *testing.T) { testOwnedValues(t, factory()) })
	t.Run("nested", func(t *testing.T) { testNested(t, factory()) })
	t.Run("delete", func(t *testing.T) { testDelete(t, factory()) })
	t.Run("scan", func(t *testing.T) { testScan(t, factory()) })
	t.Run("no checkpoint", func(t *testing.T) { testNoCheckpoint(t, factory()) })
}

func testReadWrites(t *testing.T, s store.Checkpointed) {
	value, err := s.Get([]byte("A"))
	require.NoError(t, err)
	require.Nil(t, value)

	require.NoError(t, s.Set([]byte("A"), []byte{1}))

	s.Checkpoint()
	require.NoError(t, s.Set([]byte("B"), []byte{2}))

	value, err = s.Get([]byte("A"))
	require.NoError(t, err)
	require.Equal(t, []byte{1}, value)

	value, err = s.Get([]byte("B"))
	require.NoError(t, err)
	require.Equal(t, []byte{2}, value)

	buffer := []byte{3}
	require.NoError(t, s.Set([]byte("C"), buffer))
	buffer[0] = 4

	value, err = s.Get([]byte("C"))
	require.NoError(t, err)
	require.Equal(t, []byte{3}, value)
}

func testCommit(t *testing.T, s store.Checkpointed) {
	require.NoError(t, s.Set([]byte("A"), []byte{1}))

	s.Checkpoint()
	require.Equal(t, 1, s.Depth())
	require.NoError(t, s.Set([]byte("A"), []byte{2}))
	require.NoError(t, s.Commit())
	require.Equal(t, 0, s.Depth())

	value, err := s.Get([]byte("A"))
	require.NoError(t, err)
	require.Equal(t, []byte{2}, value)
}

func testRevert(t *testing.T, s store.Checkpointed) {
	require.NoError(t, s.Set([]byte("A"), []byte{1}))

	s.Checkpoint()
	require.NoError(t, s.Set([]byte("A"), []byte{2}))
	require.NoError(t, s.Set([]byte("B"), []byte{3}))
	require.NoError(t, s.Revert())

	value, err := s.Get([]byte("A"))
	require.NoError(t, err)
	require.Equal(t, []byte{1}, value)

	value, err = s.Get([]byte("B"))
	require.NoError(t, err)
	require.Nil(t, value)
}

func testOwnedValues(t *testing.T, s store.Checkpointed) {
	s.Checkpoint()

	buffer := []byte{1}
	require.NoError(t, s.Set([]byte("A"), buffer))

	s.Checkpoint()
	buffer[0] = 2
	require.NoError(t, s.Revert())

	value, err := s.Get([]byte("A"))
	require.NoError(t, err)
	require.Equal(t, []byte{1}, value)

	value[0] = 3

	value, err = s.Get([]byte("A"))
	require.NoError(t, err)
	require.Equal(t, []byte{1}, value)
}

func testNested(t *testing.T, s store.Checkpointed) {
	s.Checkpoint()
	require.NoError(t, s.Set([]byte("A"), []byte{1}))

	s.Checkpoint()
	require.NoError(t, s.Set([]byte("B"), []byte{2}))
	require.NoError(t, s.Commit())

	s.Checkpoint()
	require.NoError(t, s.Set([]byte("A"), []byte{3}))
	require.NoError(t, s.Set([]byte("C"), []byte{4}))
	require.Equal(t, 2, s.Depth())
	require.NoError(t, s.Revert())

	// The inner revert keeps the writes committed into the outer checkpoint.
	value, err := s.Get([]byte("A"))
	require.NoError(t, err)
	require.Equal(t, []byte{1}, value)

	value, err = s.Get([]byte("B"))
	require.NoError(t, err)
	require.Equal(t, []byte{2}, value)

	value, err = s.Get([]byte("C"))
	require.NoError(t, err)
	require.Nil(t, value)

	require.NoError(t, s.Revert())

	value, err = s.Get([]byte("B"))
	require.NoError(t, err)
	require.Nil(t, value)
	require.Equal(t, 0, s.Depth())
}

func testDelete(t *testing.T, s store.Checkpointed) {
	require.NoError(t, s.Set([]byte("A"), []byte{1}))

	s.Checkpoint()
	require.NoError(t, s.Delete([]byte("A")))

	value, err := s.Get([]byte("A"))
	require.NoError(t, err)
	require.Nil(t, value)

	require.NoError(t, s.Revert())

	value, err = s.Get([]byte("A"))
	require.NoError(t, err)
	require.Equal(t, []byte{1}, value)

	s.Checkpoint()
	require.NoError(t, s.Delete([]byte("A")))
	require.NoError(t, s.Commit())

	value, err = s.Get([]byte("A"))
	require.NoError(t, err)
	require.Nil(t, value)

	require.NoError(t, s.Delete([]byte("unknown")))
}

func testScan(t *testing.T, s store.Checkpointed) {
	require.NoError(t, s.Set([]byte("b:2"), []byte{2}))
	require.NoError(t, s.Set([]byte("a:1"), []byte{9}))
	require.NoError(t, s.Set([]byte("b:1"), []byte{1}))

	s.Checkpoint()
	require.NoError(t, s.Set([]byte("b:3"), []byte{3}))
	require.NoError(t, s.Delete([]byte("b:2")))

	keys := []string{}
	values := [][]byte{}

	err := s.Scan([]byte("b:"), func(key, value []byte) error {
		keys = append(keys, string(key))
		values = append(values, value)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"b:1", "b:3"}, keys)
	require.Equal(t, [][]byte{{1}, {3}}, values)

	err = s.Scan(nil, func(key, value []byte) error {
		return store.ErrNoCheckpoint
	})
	require.ErrorIs(t, err, store.ErrNoCheckpoint)
}

func testNoCheckpoint(t *testing.T, s store.Checkpointed) {
	require.ErrorIs(t, s.Commit(), store.ErrNoCheckpoint)
	require.ErrorIs(t, s.Revert(), store.ErrNoCheckpoint)
}
