package utils

import "testing"

func TestRegistrableDomain(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"detail.1688.com", "1688.com"},
		{"DETAIL.1688.COM.", "1688.com"},
		{"img.alicdn.com", "alicdn.com"},
		{"shop.example.co.uk", "example.co.uk"},
		{"localhost", "localhost"},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			if got := RegistrableDomain(tt.host); got != tt.want {
				t.Errorf("RegistrableDomain(%q) = %q, want %q", tt.host, got, tt.want)
			}
		})
	}
}

func TestHostMatches(t *testing.T) {
	domains := []string{"alicdn.com", ".example-cdn.com"}

	tests := []struct {
		host string
		want bool
	}{
		{"alicdn.com", true},
		{"cbu01.alicdn.com", true},
		{"IMG.EXAMPLE-CDN.COM", true},
		{"notalicdn.com", false},
		{"alicdn.com.evil.org", false},
		{"example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			if got := HostMatches(tt.host, domains); got != tt.want {
				t.Errorf("HostMatches(%q) = %v, want %v", tt.host, got, tt.want)
			}
		})
	}
}

func TestHashURLIsStable(t *testing.T) {
	a := HashURL("https://detail.1688.com/offer/1.html")
	b := HashURL("https://detail.1688.com/offer/1.html")
	if a != b {
		t.Fatalf("hash differs for identical input: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
	if a == HashURL("https://detail.1688.com/offer/2.html") {
		t.Error("different URLs hashed to the same key")
	}
}
