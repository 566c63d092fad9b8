package storer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBatches(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	assert.Equal(t, [][]int{{1, 2}, {3, 4}, {5}}, Batches(items, 2))
	assert.Equal(t, [][]int{{1, 2, 3, 4, 5}}, Batches(items, 20))
	assert.Equal(t, [][]int{{1, 2, 3, 4, 5}}, Batches(items, 0))
	assert.Nil(t, Batches([]int{}, 2))
}

func TestCosineDistance(t *testing.T) {
	assert.InDelta(t, 0.0, CosineDistance([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 1.0, CosineDistance([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, 2.0, CosineDistance([]float32{1, 0}, []float32{-1, 0}), 1e-9)

	// mismatched dimensions are never similar
	assert.InDelta(t, 1.0, CosineDistance([]float32{1, 0}, []float32{1, 0, 0}), 1e-9)
}
