package watch

import (
	"fmt"
	"regexp"

	"fswatch/internal/fsutil"
)

// Filter decides which paths represent watch-relevant changes. It holds
// the compiled exclude rule and the resolved target set, both immutable
// for the process lifetime.
type Filter struct {
	exclude *regexp.Regexp
	targets []fsutil.Target
}

func NewFilter(exclude string, targets []fsutil.Target) (*Filter, error) {
	filter := &Filter{targets: targets}
	if exclude != "" {
		compiled, err := regexp.Compile(exclude)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", exclude, err)
		}
		filter.exclude = compiled
	}
	return filter, nil
}

// Relevant reports whether a change to path should feed the debouncer.
// Excluded paths and paths outside every watch target are dropped, the
// latter guards against notifier over-delivery.
func (f *Filter) Relevant(path string) bool {
	if f == nil || path == "" {
		return false
	}
	if f.exclude != nil && f.exclude.MatchString(path) {
		return false
	}
	if len(f.targets) == 0 {
		return true
	}
	for _, target := range f.targets {
		if target.IsDir {
			if fsutil.Within(target.Path, path) {
				return true
			}
			continue
		}
		if target.Path == path {
			return true
		}
	}
	return false
}
