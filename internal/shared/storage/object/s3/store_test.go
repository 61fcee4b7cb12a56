package s3

import "testing"

func TestApplyPrefix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		prefix string
		key    string
		want   string
	}{
		{name: "no prefix", prefix: "", key: "panel/2024/01/a_fuel.jpg", want: "panel/2024/01/a_fuel.jpg"},
		{name: "simple prefix", prefix: "raw", key: "panel/a.jpg", want: "raw/panel/a.jpg"},
		{name: "prefix trailing slash", prefix: "raw/", key: "panel/a.jpg", want: "raw/panel/a.jpg"},
		{name: "prefix and key slashes", prefix: "/raw/", key: "/telegram/a.jpg", want: "raw/telegram/a.jpg"},
		{name: "empty key", prefix: "raw", key: "", want: "raw"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := applyPrefix(tt.prefix, tt.key); got != tt.want {
				t.Fatalf("applyPrefix(%q, %q) = %q, want %q", tt.prefix, tt.key, got, tt.want)
			}
		})
	}
}

func TestNormalizePrefix(t *testing.T) {
	if got := normalizePrefix("  /raw/uploads/ "); got != "raw/uploads" {
		t.Fatalf("unexpected prefix %q", got)
	}
}
