package generic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapValues(t *testing.T) {
	mapA := map[string]int{"a": 1, "b": 2}
	mapB := map[string]int{"c": 3}

	values := MapValues(mapA, mapB)
	assert.ElementsMatch(t, []int{1, 2, 3}, values)
}
