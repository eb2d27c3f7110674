package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 3, "hel"},
		{"héllo wörld", 7, "héllo w"},
		{"₹₹₹₹", 2, "₹₹"},
		{"abc", 0, ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Truncate(tt.in, tt.n), "Truncate(%q, %d)", tt.in, tt.n)
	}
}

func TestCollapseSpace(t *testing.T) {
	assert.Equal(t, "a b c", CollapseSpace("  a \n\t b   c  "))
	assert.Equal(t, "", CollapseSpace(" \n "))
}

func TestUniqueUpper(t *testing.T) {
	got := UniqueUpper([]string{"reliance.ns", " TCS.NS "}, []string{"", "RELIANCE.NS", "infy.ns"})
	assert.Equal(t, []string{"RELIANCE.NS", "TCS.NS", "INFY.NS"}, got)
	assert.Empty(t, UniqueUpper())
	assert.NotNil(t, UniqueUpper())
}

func TestHashKey(t *testing.T) {
	assert.Equal(t, HashKey("a", "b"), HashKey("a", "b"))
	assert.NotEqual(t, HashKey("ab"), HashKey("a", "b"))
	assert.Len(t, HashKey("x"), 64)
}
