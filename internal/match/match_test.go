package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringMatch(t *testing.T) {
	cases := []struct {
		pattern string
		s       string
		want    bool
	}{
		{"*", "", true},
		{"*", "anything", true},
		{"", "", true},
		{"", "x", false},
		{"abc", "abc", true},
		{"abc", "abd", false},
		{"a?c", "abc", true},
		{"a?c", "ac", false},
		{"a*c", "ac", true},
		{"a*c", "abbbbc", true},
		{"a*c", "abbbbd", false},
		{"*c", "abc", true},
		{"a*", "abc", true},
		{"SCAN*", "SCAN_K1", true},
		{"SCAN*", "OTHER", false},
		{"h[ae]llo", "hello", true},
		{"h[ae]llo", "hallo", true},
		{"h[ae]llo", "hillo", false},
		{"h[^e]llo", "hallo", true},
		{"h[^e]llo", "hello", false},
		{"h[a-c]llo", "hbllo", true},
		{"h[a-c]llo", "hdllo", false},
		{"a\\*c", "a*c", true},
		{"a\\*c", "abc", false},
		{"*ll*", "hello", true},
		{"key:?:*", "key:1:value", true},
	}
	for _, tc := range cases {
		assert.Equalf(t, tc.want, StringMatch(tc.pattern, tc.s), "pattern %q against %q", tc.pattern, tc.s)
	}
}
