package ringbuf

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_InvalidCapacity(t *testing.T) {
	_, err := New[int](0)
	assert.ErrorIs(t, err, ErrInvalidCapacity)

	_, err = New[int](-5)
	assert.ErrorIs(t, err, ErrInvalidCapacity)
}

func TestBuffer_AppendWithinCapacity(t *testing.T) {
	buf, err := New[int](4)
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		evicted := buf.Append(i)
		assert.False(t, evicted)
	}

	assert.Equal(t, 3, buf.Len())
	assert.Equal(t, []int{1, 2, 3}, buf.Snapshot())
}

func TestBuffer_EvictsOldestFirst(t *testing.T) {
	buf, err := New[int](3)
	require.NoError(t, err)

	buf.Append(1)
	buf.Append(2)
	buf.Append(3)

	evicted := buf.Append(4)
	assert.True(t, evicted)
	assert.Equal(t, 3, buf.Len(), "length never exceeds capacity")
	assert.Equal(t, []int{2, 3, 4}, buf.Snapshot(), "oldest entry is the one dropped")

	buf.Append(5)
	buf.Append(6)
	assert.Equal(t, []int{4, 5, 6}, buf.Snapshot())
}

func TestBuffer_NeverExceedsCapacity(t *testing.T) {
	buf, err := New[int](16)
	require.NoError(t, err)

	for i := 0; i < 1000; i++ {
		buf.Append(i)
		assert.LessOrEqual(t, buf.Len(), 16)
	}

	snap := buf.Snapshot()
	require.Len(t, snap, 16)
	assert.Equal(t, 984, snap[0], "survivors are the newest entries")
	assert.Equal(t, 999, snap[15])
}

func TestBuffer_Last(t *testing.T) {
	buf, err := New[string](4)
	require.NoError(t, err)

	buf.Append("a")
	buf.Append("b")
	buf.Append("c")

	assert.Equal(t, []string{"b", "c"}, buf.Last(2))
	assert.Equal(t, []string{"a", "b", "c"}, buf.Last(10))
}

func TestBuffer_EachMutatesInPlace(t *testing.T) {
	buf, err := New[int](4)
	require.NoError(t, err)

	buf.Append(1)
	buf.Append(2)
	buf.Append(3)

	buf.Each(func(item *int) bool {
		*item *= 10
		return true
	})

	assert.Equal(t, []int{10, 20, 30}, buf.Snapshot())
}

func TestBuffer_EachStopsEarly(t *testing.T) {
	buf, err := New[int](4)
	require.NoError(t, err)

	buf.Append(1)
	buf.Append(2)
	buf.Append(3)

	var visited int
	buf.Each(func(item *int) bool {
		visited++
		return visited < 2
	})

	assert.Equal(t, 2, visited)
}

func TestBuffer_Clear(t *testing.T) {
	buf, err := New[int](4)
	require.NoError(t, err)

	buf.Append(1)
	buf.Append(2)
	buf.Clear()

	assert.Equal(t, 0, buf.Len())
	assert.Empty(t, buf.Snapshot())

	buf.Append(7)
	assert.Equal(t, []int{7}, buf.Snapshot())
}

func TestBuffer_ConcurrentAppend(t *testing.T) {
	buf, err := New[int](64)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				buf.Append(i)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 64, buf.Len())
}
