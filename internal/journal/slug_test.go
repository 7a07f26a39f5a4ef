package journal

import "testing"

func TestSlugify(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Hello World", "hello-world"},
		{"  Trim -- me!  ", "trim-me"},
		{"Chapter 12: The Map", "chapter-12-the-map"},
		{"Über Café", "ber-caf"},
		{"", "untitled"},
		{"!!!", "untitled"},
		{"already-a-slug", "already-a-slug"},
	}
	for _, tt := range tests {
		if got := Slugify(tt.in); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
