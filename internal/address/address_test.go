package address

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIdentify_TCPHostPort(t *testing.T) {
	cases := []string{"0.0.0.0:4200", "localhost:9090", ":4200"}
	for _, id := range cases {
		if got := Identify(id); got != TCP {
			t.Errorf("Identify(%q) = %v, want TCP", id, got)
		}
	}
}

func TestIdentify_LocalPath(t *testing.T) {
	cases := []string{"/tmp/build.sock", "relative.sock", "/tmp/weird:name"}
	for _, id := range cases {
		if got := Identify(id); got != Local {
			t.Errorf("Identify(%q) = %v, want Local", id, got)
		}
	}
}

func TestBind_LocalSocketCreatesAndUnlinksFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broker.sock")

	ep, err := Bind(path, 4)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if ep.Family != Local {
		t.Errorf("Family = %v, want Local", ep.Family)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("socket file after Bind: %v", err)
	}

	if err := ep.Unlink(); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("socket file still present after Unlink (stat err = %v)", err)
	}
	ep.Close()

	// Unlinking a second time (e.g. a repeat shutdown call) is not an error.
	if err := ep.Unlink(); err != nil {
		t.Errorf("second Unlink: %v", err)
	}
}

func TestBind_TCPEndpointHasNoLocalPath(t *testing.T) {
	ep, err := Bind("127.0.0.1:0", 4)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer ep.Close()

	if ep.Family != TCP {
		t.Errorf("Family = %v, want TCP", ep.Family)
	}
	if ep.LocalPath != "" {
		t.Errorf("LocalPath = %q, want empty for a TCP endpoint", ep.LocalPath)
	}
	if err := ep.Unlink(); err != nil {
		t.Errorf("Unlink on TCP endpoint should be a no-op, got %v", err)
	}
}
