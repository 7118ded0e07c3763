package util

import "testing"

func TestSafeTruncate(t *testing.T) {
	tests := []struct {
		input  string
		maxLen int
		want   string
	}{
		{input: "1000.8f2c1d.a9b7e6", maxLen: 8, want: "1000.8f2"},
		{input: "short", maxLen: 10, want: "short"},
		{input: "exactly8", maxLen: 8, want: "exactly8"},
		{input: "", maxLen: 5, want: ""},
		{input: "token", maxLen: 0, want: ""},
		{input: "token", maxLen: -1, want: ""},
	}

	for _, tt := range tests {
		if got := SafeTruncate(tt.input, tt.maxLen); got != tt.want {
			t.Errorf("SafeTruncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
		}
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := map[string]string{
		"http://localhost:8000/":    "http://localhost:8000",
		"http://localhost:8000":     "http://localhost:8000",
		"https://crm.example.com//": "https://crm.example.com",
		"https://example.com/api/":  "https://example.com/api",
		"":                          "",
		"///":                       "",
	}

	for input, want := range tests {
		if got := NormalizeURL(input); got != want {
			t.Errorf("NormalizeURL(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestJoinURL(t *testing.T) {
	tests := []struct {
		name string
		base string
		path string
		want string
	}{
		{
			name: "plain join",
			base: "http://localhost:8000",
			path: "/integrations/callback/zoho",
			want: "http://localhost:8000/integrations/callback/zoho",
		},
		{
			name: "trailing and leading slashes",
			base: "https://crm.example.com/",
			path: "/integrations/callback/capsule",
			want: "https://crm.example.com/integrations/callback/capsule",
		},
		{
			name: "path without leading slash",
			base: "https://crm.example.com",
			path: "callback",
			want: "https://crm.example.com/callback",
		},
		{
			name: "empty path",
			base: "https://crm.example.com/",
			path: "",
			want: "https://crm.example.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := JoinURL(tt.base, tt.path); got != tt.want {
				t.Errorf("JoinURL(%q, %q) = %q, want %q", tt.base, tt.path, got, tt.want)
			}
		})
	}
}
