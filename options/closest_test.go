package options

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevenshteinDistance(t *testing.T) {
	assert.Equal(t, 0, levenshteinDistance("memory", "memory"))
	assert.Equal(t, 2, levenshteinDistance("memroy", "memory"))
	assert.Equal(t, 3, levenshteinDistance("", "abc"))
}

func TestClosestFlagFindsSingleTypo(t *testing.T) {
	assert.Equal(t, "memory", ClosestFlag("memroy"))
	assert.Equal(t, "verbose", ClosestFlag("verbos"))
}

func TestClosestFlagFindsTransposedWords(t *testing.T) {
	assert.Equal(t, "wall-time", ClosestFlag("time-wall"))
}

func TestPermuteCoversAllOrderings(t *testing.T) {
	var seen []string
	permute([]string{"a", "b", "c"}, func(order []string) {
		cp := make([]string, len(order))
		copy(cp, order)
		seen = append(seen, cp[0]+cp[1]+cp[2])
	})

	assert.Len(t, seen, 6)
	assert.Contains(t, seen, "abc")
	assert.Contains(t, seen, "cba")
}
