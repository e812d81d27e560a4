package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Target is a resolved watch target.
type Target struct {
	Path  string
	IsDir bool
}

// ResolveTargets expands glob patterns, absolutizes paths and verifies
// every target exists. Resolution is strict so a typo fails at startup
// instead of silently watching nothing.
func ResolveTargets(patterns []string) ([]Target, error) {
	if len(patterns) == 0 {
		return nil, errors.New("at least one watch target is required")
	}

	seen := make(map[string]struct{})
	var targets []Target
	for _, pattern := range patterns {
		trimmed := strings.TrimSpace(pattern)
		if trimmed == "" {
			continue
		}
		matches, err := expandPattern(trimmed)
		if err != nil {
			return nil, err
		}
		for _, match := range matches {
			abs, err := filepath.Abs(match)
			if err != nil {
				return nil, fmt.Errorf("resolve %q: %w", match, err)
			}
			abs = filepath.Clean(abs)
			if _, ok := seen[abs]; ok {
				continue
			}
			info, err := os.Stat(abs)
			if err != nil {
				return nil, fmt.Errorf("stat %q: %w", match, err)
			}
			seen[abs] = struct{}{}
			targets = append(targets, Target{Path: abs, IsDir: info.IsDir()})
		}
	}

	if len(targets) == 0 {
		return nil, errors.New("no watch targets resolved")
	}
	return targets, nil
}

func expandPattern(pattern string) ([]string, error) {
	if !hasGlobMeta(pattern) {
		return []string{pattern}, nil
	}
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("glob %q matched nothing", pattern)
	}
	sort.Strings(matches)
	return matches, nil
}

func hasGlobMeta(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[")
}

// Within reports whether child is parent itself or inside it.
func Within(parent, child string) bool {
	parentPath := filepath.Clean(parent)
	childPath := filepath.Clean(child)
	rel, err := filepath.Rel(parentPath, childPath)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return false
	}
	return true
}
