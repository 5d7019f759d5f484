package crypto

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var groupPattern = regexp.MustCompile(`^[0-9A-F]{4}$`)

func TestGenerateKeyGroup(t *testing.T) {
	seen := make(map[string]int)
	for i := 0; i < 1000; i++ {
		g, err := GenerateKeyGroup(4)
		require.NoError(t, err)
		assert.Regexp(t, groupPattern, g)
		seen[g]++
	}
	// 1000 draws over 65536 values: heavy repetition means a broken seed.
	assert.Greater(t, len(seen), 900)
}

func TestGenerateKeyGroup_InvalidLength(t *testing.T) {
	for _, n := range []int{0, -1, 33} {
		_, err := GenerateKeyGroup(n)
		assert.Error(t, err, "length %d", n)
	}
}

func TestGenerateKeyGroups(t *testing.T) {
	groups, err := GenerateKeyGroups(3, 4)
	require.NoError(t, err)
	require.Len(t, groups, 3)
	for _, g := range groups {
		assert.Regexp(t, groupPattern, g)
	}
}

func TestConstantTimeEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"equal", "secret", "secret", true},
		{"different", "secret", "secreT", false},
		{"prefix", "secret", "secret-longer", false},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ConstantTimeEqual(tt.a, tt.b))
		})
	}
}

func TestComputeMD5(t *testing.T) {
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", ComputeMD5(nil))
}
