package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunNoArgs(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := Run([]string{"oplog"}, &stdout, &stderr); code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
	if !strings.Contains(stderr.String(), "usage:") {
		t.Fatalf("expected usage on stderr, got %q", stderr.String())
	}
}

func TestRunUnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := Run([]string{"oplog", "bogus"}, &stdout, &stderr); code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
}

func TestRunDemo(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := Run([]string{"oplog", "demo"}, &stdout, &stderr); code != 0 {
		t.Fatalf("demo failed with %d: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "replicas converged: true (5 entries)") {
		t.Fatalf("unexpected demo output: %q", stdout.String())
	}
}

func TestRunAppendAndShow(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "blocks.db")

	var stdout, stderr bytes.Buffer
	code := Run([]string{"oplog", "append", "-store", storePath, "-log", "notes", "alpha", "beta"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("append failed with %d: %s", code, stderr.String())
	}
	manifest := strings.TrimSpace(stdout.String())
	if !strings.HasPrefix(manifest, "zdpu") {
		t.Fatalf("expected a manifest hash, got %q", manifest)
	}

	stdout.Reset()
	stderr.Reset()
	code = Run([]string{"oplog", "show", "-store", storePath, manifest}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("show failed with %d: %s", code, stderr.String())
	}
	for _, payload := range []string{"alpha", "beta"} {
		if !strings.Contains(stdout.String(), payload) {
			t.Fatalf("expected %q in output, got %q", payload, stdout.String())
		}
	}
}

func TestRunAppendRequiresStore(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := Run([]string{"oplog", "append", "x"}, &stdout, &stderr); code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
}
