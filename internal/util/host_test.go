package util

import (
	"strings"
	"testing"
)

func TestNormalizeHost(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"localhost", "localhost"},
		{"LOCALHOST ", "localhost"},
		{"https://Dream-Dictionary.vercel.app/page", "dream-dictionary.vercel.app"},
		{"127.0.0.1:8217", "127.0.0.1"},
		{"[::1]:8080", "::1"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeHost(tt.in); got != tt.want {
			t.Errorf("NormalizeHost(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMaskSensitiveQuery(t *testing.T) {
	masked := MaskSensitiveQuery("providerId=google-123&email=ana%40example.com&page=2")
	if strings.Contains(masked, "google-123") || strings.Contains(masked, "ana") {
		t.Errorf("identity material survived masking: %q", masked)
	}
	if !strings.Contains(masked, "page=2") {
		t.Errorf("non-sensitive parameter was lost: %q", masked)
	}

	if got := MaskSensitiveQuery("q=dreams&page=1"); got != "q=dreams&page=1" {
		t.Errorf("clean query was altered: %q", got)
	}
	if got := MaskSensitiveQuery(""); got != "" {
		t.Errorf("empty query: %q", got)
	}
	if got := MaskSensitiveQuery("%zz=bad"); got != redactedValue {
		t.Errorf("unparsable query must be masked wholesale, got %q", got)
	}
}
