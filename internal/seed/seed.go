// Package seed derives reproducible per-entity random generators.
package seed

import (
	"hash/fnv"
	"math/rand/v2"
)

// For returns the seed for an entity: the base seed XOR the FNV-1a hash of its ID.
// The result does not depend on the order in which entities are created.
func For(base uint64, id string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(id))
	return base ^ h.Sum64()
}

// New returns a PCG-backed generator for seed.
func New(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, 0))
}

// NewFor returns the generator owned by entity id.
func NewFor(base uint64, id string) *rand.Rand {
	return New(For(base, id))
}
