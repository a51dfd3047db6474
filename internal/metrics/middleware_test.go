package metrics

import "testing"

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"/api/search", "/api/search"},
		{"/api/exams/42/rate", "/api/exams/:id/rate"},
		{"/api/courses/BMA01", "/api/courses/:code"},
		{"/api/teachers/7", "/api/teachers/:id"},
		{"/admin/api/ratings/15", "/admin/api/ratings/:id"},
		{"/", "/"},
	}
	for _, tt := range tests {
		if got := normalizePath(tt.in); got != tt.want {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
