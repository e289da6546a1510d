package server

import "testing"

func TestShouldSkipJWT(t *testing.T) {
	t.Parallel()

	cases := []struct {
		path string
		want bool
	}{
		{path: "/ping", want: true},
		{path: "/health", want: true},
		{path: "/auth/login", want: true},
		{path: "/links/tenants", want: false},
		{path: "/sync/tenants/tenant-1", want: false},
		{path: "/events/failed", want: false},
		{path: "/", want: false},
	}

	for _, tc := range cases {
		if got := shouldSkipJWT(tc.path); got != tc.want {
			t.Fatalf("shouldSkipJWT(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}
