package session

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateFlagLengthAndAlphabet(t *testing.T) {
	for _, length := range []int{1, 16, 64} {
		flag, err := GenerateFlag(length)
		require.NoError(t, err)
		assert.Len(t, flag, length)

		for _, r := range flag {
			assert.True(t, strings.ContainsRune(flagAlphabet, r), "unexpected character %q", r)
		}
	}
}

func TestGenerateFlagRejectsNonPositiveLength(t *testing.T) {
	for _, length := range []int{0, -1} {
		_, err := GenerateFlag(length)
		assert.Error(t, err)
	}
}

func TestGenerateFlagIsNotRepeating(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		flag, err := GenerateFlag(16)
		require.NoError(t, err)
		assert.False(t, seen[flag], "flag %q generated twice", flag)
		seen[flag] = true
	}
}
