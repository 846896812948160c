package cache

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPutGetRoundTrip(t *testing.T) {
	c, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if c.Has("fp1") {
		t.Fatal("fresh cache reports a hit before any Put")
	}
	if err := c.Put("fp1", []byte("payload")); err != nil {
		t.Fatal(err)
	}
	if !c.Has("fp1") {
		t.Fatal("Has does not see a value just Put")
	}
	got, err := c.Get("fp1")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "payload" {
		t.Fatalf("got %q, want %q", got, "payload")
	}
}

func TestPutIsANoOpOnExistingFingerprint(t *testing.T) {
	c, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Put("fp1", []byte("first")); err != nil {
		t.Fatal(err)
	}
	if err := c.Put("fp1", []byte("second")); err != nil {
		t.Fatal(err)
	}
	got, err := c.Get("fp1")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "first" {
		t.Fatalf("second Put overwrote the cached payload: got %q", got)
	}
}

func TestGetMissingFingerprintErrors(t *testing.T) {
	c, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get("nope"); err == nil {
		t.Fatal("expected an error reading a fingerprint that was never Put")
	}
}

func TestPutLeavesNoTempFilesBehind(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Put("fp1", []byte("payload")); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(filepath.Join(dir, ".desipipe", "cache"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one file in the cache dir, found %d", len(entries))
	}
}
