package fsutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveTargetsLiteralPaths(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "main.go")
	if err := os.WriteFile(file, []byte("package main"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	targets, err := ResolveTargets([]string{file, root})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(targets) != 2 {
		t.Fatalf("expected 2 targets, got %d", len(targets))
	}
	if targets[0].Path != file || targets[0].IsDir {
		t.Fatalf("expected file target, got %+v", targets[0])
	}
	if targets[1].Path != filepath.Clean(root) || !targets[1].IsDir {
		t.Fatalf("expected dir target, got %+v", targets[1])
	}
}

func TestResolveTargetsExpandsGlobs(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"a.go", "b.go", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(root, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	targets, err := ResolveTargets([]string{filepath.Join(root, "*.go")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(targets) != 2 {
		t.Fatalf("expected 2 targets, got %d", len(targets))
	}
	if filepath.Base(targets[0].Path) != "a.go" || filepath.Base(targets[1].Path) != "b.go" {
		t.Fatalf("unexpected glob expansion: %+v", targets)
	}
}

func TestResolveTargetsDeduplicates(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "main.go")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	targets, err := ResolveTargets([]string{file, file, filepath.Join(root, "*.go")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(targets) != 1 {
		t.Fatalf("expected 1 target after dedupe, got %d", len(targets))
	}
}

func TestResolveTargetsErrors(t *testing.T) {
	root := t.TempDir()

	cases := []struct {
		name     string
		patterns []string
	}{
		{name: "none", patterns: nil},
		{name: "blank", patterns: []string{"  "}},
		{name: "missing", patterns: []string{filepath.Join(root, "absent")}},
		{name: "empty glob", patterns: []string{filepath.Join(root, "*.rs")}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ResolveTargets(tc.patterns); err == nil {
				t.Fatalf("expected error for %v", tc.patterns)
			}
		})
	}
}

func TestWithin(t *testing.T) {
	cases := []struct {
		parent string
		child  string
		want   bool
	}{
		{"/src", "/src", true},
		{"/src", "/src/pkg/main.go", true},
		{"/src", "/srcdir/main.go", false},
		{"/src", "/other", false},
		{"/src/pkg", "/src", false},
	}
	for _, tc := range cases {
		if got := Within(filepath.FromSlash(tc.parent), filepath.FromSlash(tc.child)); got != tc.want {
			t.Fatalf("Within(%q, %q) = %v, expected %v", tc.parent, tc.child, got, tc.want)
		}
	}
}
