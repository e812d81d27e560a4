package watch

import (
	"path/filepath"
	"testing"

	"fswatch/internal/fsutil"
)

func TestFilterExcludePattern(t *testing.T) {
	filter, err := NewFilter(`dist/.*`, nil)
	if err != nil {
		t.Fatalf("new filter: %v", err)
	}

	if filter.Relevant(filepath.FromSlash("/work/dist/a.js")) {
		t.Fatal("excluded path must not be relevant")
	}
	if !filter.Relevant(filepath.FromSlash("/work/src/a.js")) {
		t.Fatal("non-excluded path must be relevant")
	}
}

func TestFilterInvalidExclude(t *testing.T) {
	if _, err := NewFilter(`dist/(`, nil); err == nil {
		t.Fatal("expected error for invalid pattern")
	}
}

func TestFilterTargetContainment(t *testing.T) {
	targets := []fsutil.Target{
		{Path: filepath.FromSlash("/work/src"), IsDir: true},
		{Path: filepath.FromSlash("/work/Makefile"), IsDir: false},
	}
	filter, err := NewFilter("", targets)
	if err != nil {
		t.Fatalf("new filter: %v", err)
	}

	cases := []struct {
		path string
		want bool
	}{
		{"/work/src/a.go", true},
		{"/work/src/deep/b.go", true},
		{"/work/Makefile", true},
		{"/work/other/c.go", false},
		{"/work/srcfoo/d.go", false},
		{"/work/Makefile.bak", false},
	}
	for _, tc := range cases {
		if got := filter.Relevant(filepath.FromSlash(tc.path)); got != tc.want {
			t.Fatalf("Relevant(%q) = %v, expected %v", tc.path, got, tc.want)
		}
	}
}

func TestFilterExcludeWinsOverContainment(t *testing.T) {
	targets := []fsutil.Target{{Path: filepath.FromSlash("/work"), IsDir: true}}
	filter, err := NewFilter(`\.tmp$`, targets)
	if err != nil {
		t.Fatalf("new filter: %v", err)
	}

	if filter.Relevant(filepath.FromSlash("/work/build.tmp")) {
		t.Fatal("exclude must win over containment")
	}
	if !filter.Relevant(filepath.FromSlash("/work/main.go")) {
		t.Fatal("contained non-excluded path must be relevant")
	}
}

func TestFilterEmptyPath(t *testing.T) {
	filter, err := NewFilter("", nil)
	if err != nil {
		t.Fatalf("new filter: %v", err)
	}
	if filter.Relevant("") {
		t.Fatal("empty path must not be relevant")
	}
}
