// Folder listings can be narrowed with a glob pattern on the file name; the following module implements glob matching.

package scan

import (
	"errors"
	"fmt"
	"iter"
	"strings"

	"v.io/v23/glob"
)

var ErrInvalidPattern = errors.New("invalid glob pattern")

// MatchGlob filters `items` down to those whose name matches the `pattern`. An empty pattern matches everything.
// Patterns apply to a single path element, so a pattern containing a separator is rejected.
func MatchGlob[T any](pattern string, items iter.Seq[T], name func(T) string) (iter.Seq[T], error) {
	if pattern == "" {
		return items, nil
	}
	if strings.Contains(pattern, "/") {
		return nil, fmt.Errorf("%w: %q must not contain '/'", ErrInvalidPattern, pattern)
	}
	parsedPattern, err := glob.Parse(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidPattern, pattern, err)
	}
	return func(yield func(T) bool) {
		for item := range items {
			if parsedPattern.Head().Match(name(item)) {
				if !yield(item) {
					return
				}
			}
		}
	}, nil
}
