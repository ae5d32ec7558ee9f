package seed

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFor_Deterministic(t *testing.T) {
	assert.Equal(t, For(42, "DC-BKK-01-UPS-01-S1-J01"), For(42, "DC-BKK-01-UPS-01-S1-J01"))
}

func TestFor_DistinctEntities(t *testing.T) {
	assert.NotEqual(t, For(42, "a"), For(42, "b"))
	assert.NotEqual(t, For(42, "a"), For(43, "a"))
}

func TestNewFor_SameSequence(t *testing.T) {
	a := NewFor(7, "jar")
	b := NewFor(7, "jar")
	for i := 0; i < 10; i++ {
		assert.Equal(t, a.Float64(), b.Float64())
	}
}
