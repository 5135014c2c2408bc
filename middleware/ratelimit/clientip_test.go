package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientIdentity_UsesFirstForwardedFor(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "10.0.0.9:5555"
	r.Header.Set("X-Forwarded-For", "1.2.3.4, 5.6.7.8")

	if got := ClientIdentity(r); got != "1.2.3.4" {
		t.Fatalf("expected first XFF ip, got %q", got)
	}
}

func TestClientIdentity_FallsBackToUnknown(t *testing.T) {
	cases := map[string]string{
		"absent":      "",
		"blank":       "   ",
		"empty first": " , 5.6.7.8",
	}
	for name, xff := range cases {
		t.Run(name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
			r.RemoteAddr = "10.0.0.9:5555"
			if xff != "" {
				r.Header.Set("X-Forwarded-For", xff)
			}
			if got := ClientIdentity(r); got != "unknown" {
				t.Fatalf("expected unknown, got %q", got)
			}
		})
	}
}

func TestRouteClass_Matches(t *testing.T) {
	c := RouteClass{Name: "auth", Limit: 1, Window: time.Minute,
		Paths:    []string{"/api/auth/register"},
		Prefixes: []string{"/api/auth/signin"},
	}

	cases := map[string]bool{
		"/api/auth/register":       true,
		"/api/auth/register/extra": false,
		"/api/auth/signin":         true,
		"/api/auth/signin/github":  true,
		"/api/auth/session":        false,
		"/":                        false,
	}
	for path, want := range cases {
		if got := c.Matches(path); got != want {
			t.Fatalf("Matches(%q) = %v, want %v", path, got, want)
		}
	}
}
