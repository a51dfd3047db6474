package utils

import (
	"net/http/httptest"
	"testing"
)

func TestHashIP(t *testing.T) {
	h1 := HashIP("203.0.113.7", "salt-a")
	h2 := HashIP("203.0.113.7", "salt-a")
	if h1 != h2 {
		t.Error("same IP and salt should produce the same hash")
	}

	if len(h1) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(h1))
	}

	if HashIP("203.0.113.7", "salt-b") == h1 {
		t.Error("different salts should produce different hashes")
	}

	if HashIP("203.0.113.8", "salt-a") == h1 {
		t.Error("different IPs should produce different hashes")
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xRealIP    string
		expected   string
	}{
		{
			name:       "remote addr only",
			remoteAddr: "192.168.1.10:54321",
			expected:   "192.168.1.10",
		},
		{
			name:       "x-forwarded-for single",
			remoteAddr: "10.0.0.1:1234",
			xff:        "203.0.113.7",
			expected:   "203.0.113.7",
		},
		{
			name:       "x-forwarded-for chain takes first",
			remoteAddr: "10.0.0.1:1234",
			xff:        "203.0.113.7, 10.0.0.2, 10.0.0.3",
			expected:   "203.0.113.7",
		},
		{
			name:       "x-real-ip fallback",
			remoteAddr: "10.0.0.1:1234",
			xRealIP:    "203.0.113.9",
			expected:   "203.0.113.9",
		},
		{
			name:       "ipv6 remote addr",
			remoteAddr: "[::1]:8080",
			expected:   "::1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xRealIP != "" {
				req.Header.Set("X-Real-IP", tt.xRealIP)
			}

			if got := GetClientIP(req); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestSanitizePathComponent(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"BMA01", "BMA01"},
		{"2024-1", "2024-1"},
		{"parcial", "parcial"},
		{"../etc/passwd", "___etc_passwd"},
		{"a b/c", "a_b_c"},
		{"cálculo", "c_lculo"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := SanitizePathComponent(tt.input); got != tt.expected {
			t.Errorf("SanitizePathComponent(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestDownloadFilename(t *testing.T) {
	got := DownloadFilename("BMA01", "parcial", "2024-1")
	if got != "BMA01-parcial-2024-1.pdf" {
		t.Errorf("unexpected filename: %q", got)
	}

	got = DownloadFilename("BMA01", "examen final", "2024/1")
	if got != "BMA01-examen_final-2024_1.pdf" {
		t.Errorf("unexpected filename: %q", got)
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct-horse")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	if !VerifyPassword("correct-horse", hash) {
		t.Error("correct password should verify")
	}

	if VerifyPassword("wrong", hash) {
		t.Error("wrong password should not verify")
	}
}
