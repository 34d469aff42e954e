package helpers_test

import (
	"strings"
	"testing"

	"github.com/isometry/gh-approval-gate/internal/helpers"
	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	testCases := []struct {
		Name     string
		Input    string
		Length   int
		Expected string
	}{
		{
			Name:     "shorter_than_limit",
			Input:    "review comment",
			Length:   1024,
			Expected: "review comment",
		},
		{
			Name:     "exactly_at_limit",
			Input:    "abcde",
			Length:   5,
			Expected: "abcde",
		},
		{
			Name:     "over_limit",
			Input:    strings.Repeat("x", 10),
			Length:   8,
			Expected: strings.Repeat("x", 5) + "...",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			assert.Equal(t, tc.Expected, helpers.Truncate(tc.Input, tc.Length))
		})
	}
}
