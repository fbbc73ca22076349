package set

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	var s Set[string]
	assert.False(t, s.Contains("a"))
	assert.Zero(t, s.Len())

	assert.True(t, s.Insert("b"))
	assert.True(t, s.Insert("a"))
	assert.False(t, s.Insert("b"))

	assert.True(t, s.Contains("a"))
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []string{"b", "a"}, s.Values())
}
