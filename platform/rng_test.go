package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewNodeRand_SameIDProducesTheSameStream(t *testing.T) {
	a := NewNodeRand(42)
	b := NewNodeRand(42)
	for i := 0; i < 10; i++ {
		assert.Equal(t, a.Float64(), b.Float64())
	}
}

func TestNewNodeRand_DistinctIDsProduceDistinctStreams(t *testing.T) {
	a := NewNodeRand(1)
	b := NewNodeRand(2)
	assert.NotEqual(t, a.Float64(), b.Float64())
}

func TestRandomFloat_StaysWithinBounds(t *testing.T) {
	r := NewNodeRand(7)
	for i := 0; i < 200; i++ {
		x := RandomFloat(r, 2.0, 5.0)
		assert.GreaterOrEqual(t, x, 2.0)
		assert.LessOrEqual(t, x, 5.0)
	}
}
