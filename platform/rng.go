package platform

import "math/rand"

// NewNodeRand returns a source seeded from a node's identifier, mirroring
// auxiliary.h's getRandomFloat, which seeds from the node's link address
// the first time it is called. Two nodes with distinct ids get independent
// streams; the same id always starts the same stream, which keeps
// simulation runs reproducible.
func NewNodeRand(nodeID uint16) *rand.Rand {
	return rand.New(rand.NewSource(int64(nodeID)))
}

// RandomFloat returns a random float64 x with a <= x < b.
func RandomFloat(r *rand.Rand, a, b float64) float64 {
	return a + (b-a)*r.Float64()
}
