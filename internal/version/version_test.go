package version

import (
	"strings"
	"testing"
)

func TestInfoString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		info Info
		want string
	}{
		{Info{Version: "v0.3.0"}, "v0.3.0"},
		{Info{Version: "v0.3.0", Commit: "abc123"}, "v0.3.0 (abc123)"},
		{Info{Version: "v0.3.0", Commit: "0123456789abcdef0123"}, "v0.3.0 (0123456789ab)"},
	}
	for _, tc := range tests {
		if got := tc.info.String(); got != tc.want {
			t.Errorf("String(): got %q want %q", got, tc.want)
		}
	}
}

func TestResolveNeverEmpty(t *testing.T) {
	t.Parallel()

	if Resolve().Version == "" {
		t.Fatal("resolved version is empty")
	}
	if ua := UserAgent(); !strings.HasPrefix(ua, "llamachat/") || ua == "llamachat/" {
		t.Fatalf("user agent: got %q", ua)
	}
}
