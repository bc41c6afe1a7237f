package fsutil

import (
	"strings"
	"testing"
)

func TestSafeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"20220602", "20220602"},
		{"2022-06-02", "2022-06-02"},
		{"", "unknown"},
		{"..", "unknown"},
		{"../../etc", "etc"},
		{"a/b\\c", "a_b_c"},
		{"day  one", "day_one"},
		{"__x__", "x"},
		{"wrf_2011", "wrf_2011"},
	}
	for _, tt := range tests {
		if got := SafeName(tt.in); got != tt.want {
			t.Errorf("SafeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSafeNameLength(t *testing.T) {
	got := SafeName(strings.Repeat("a", 500))
	if len(got) != maxNameLen {
		t.Errorf("len = %d, want %d", len(got), maxNameLen)
	}
}
