package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"walk", "pt", "bus"}, SplitList(" walk, pt,,bus ,pt"))
	assert.Nil(t, SplitList(""))
}

func TestRemoveDuplicateStrings(t *testing.T) {
	assert.Equal(t, []string{"b", "c"}, RemoveDuplicateStrings([]string{"a", "b", "", "b", "c"}, []string{"a"}))
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "x", FirstNonEmpty("", "  ", "x", "y"))
	assert.Equal(t, "", FirstNonEmpty())
}
