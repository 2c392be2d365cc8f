package server

import "testing"

func TestSanitizeBase(t *testing.T) {
	cases := map[string]string{
		"":       "",
		"/":      "",
		"api":    "/api",
		"/api":   "/api",
		"/api/":  "/api",
		" /v1 ":  "/v1",
		"/a/b//": "/a/b",
	}
	for in, want := range cases {
		if got := sanitizeBase(in); got != want {
			t.Fatalf("sanitizeBase(%q): got %q want %q", in, got, want)
		}
	}
}

func TestIsSafeName(t *testing.T) {
	good := []string{"worker-a", "Worker_1", "svc.v2"}
	for _, s := range good {
		if !isSafeName(s) {
			t.Fatalf("%q should be safe", s)
		}
	}
	bad := []string{"", "..", "a/b", `a\b`, "a b", "x..y", "naïve"}
	for _, s := range bad {
		if isSafeName(s) {
			t.Fatalf("%q should be rejected", s)
		}
	}
}

func TestIsSafeAbsPath(t *testing.T) {
	if !isSafeAbsPath("") {
		t.Fatal("empty path is allowed (unset)")
	}
	if !isSafeAbsPath("/var/log/warden") {
		t.Fatal("absolute path rejected")
	}
	bad := []string{"relative/path", "/a/../b", "./x"}
	for _, p := range bad {
		if isSafeAbsPath(p) {
			t.Fatalf("%q should be rejected", p)
		}
	}
}
