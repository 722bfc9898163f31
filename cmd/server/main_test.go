package main

import "testing"

func TestBrowseURL(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{":5299", "http://localhost:5299/"},
		{"0.0.0.0:8080", "http://localhost:8080/"},
		{"[::]:8080", "http://localhost:8080/"},
		{"127.0.0.1:5299", "http://127.0.0.1:5299/"},
		{"[::1]:5299", "http://[::1]:5299/"},
		{"files.lan", "http://files.lan/"},
	}
	for _, tt := range tests {
		if got := browseURL(tt.addr); got != tt.want {
			t.Errorf("browseURL(%q) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}
