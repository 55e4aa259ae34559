package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopKOrdering(t *testing.T) {
	q := NewTopK(2)
	q.Offer(0, 5.0)
	q.Offer(1, 1.0)
	q.Offer(2, 3.0)

	got := q.Sorted()
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].RowIndex)
	assert.Equal(t, 2, got[1].RowIndex)
}

func TestTopKTiebreakByRowIndex(t *testing.T) {
	q := NewTopK(2)
	q.Offer(7, 1.0)
	q.Offer(3, 1.0)

	got := q.Sorted()
	require.Len(t, got, 2)
	assert.Equal(t, 3, got[0].RowIndex)
	assert.Equal(t, 7, got[1].RowIndex)
}

func TestTopKMoreThanAvailable(t *testing.T) {
	q := NewTopK(10)
	q.Offer(0, 2.0)
	q.Offer(1, 1.0)

	got := q.Sorted()
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].RowIndex)
	assert.Equal(t, 0, got[1].RowIndex)
}
