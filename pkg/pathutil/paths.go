package pathutil

import (
	"path"
	"sort"
	"strings"
)

// Root is the canonical representation of the repository root.
const Root = "."

// Clean normalizes a repository-relative path. Leading and trailing slashes
// are removed and the empty path becomes Root.
func Clean(p string) string {
	p = strings.TrimSpace(p)
	p = strings.Trim(p, "/")
	if p == "" {
		return Root
	}
	return path.Clean(p)
}

// Dir returns the directory containing p.
func Dir(p string) string {
	return path.Dir(Clean(p))
}

// Contains reports whether child equals parent or lies below it.
func Contains(parent, child string) bool {
	parent, child = Clean(parent), Clean(child)
	if parent == Root || parent == child {
		return true
	}
	return strings.HasPrefix(child, parent+"/")
}

// IsUnderAny reports whether p is contained in at least one of dirs.
func IsUnderAny(p string, dirs []string) bool {
	for _, d := range dirs {
		if Contains(d, p) {
			return true
		}
	}
	return false
}

// Intersection returns the paths of a that lie under some path of b together
// with the paths of b that lie under some path of a. The result is the most
// specific description of the space covered by both sets, sorted and free of
// duplicates.
func Intersection(a, b []string) []string {
	seen := make(map[string]struct{})
	for _, p := range a {
		if IsUnderAny(p, b) {
			seen[Clean(p)] = struct{}{}
		}
	}
	for _, p := range b {
		if IsUnderAny(p, a) {
			seen[Clean(p)] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

// NonIntersecting reduces paths to the minimal set in which no element
// contains another, keeping the outermost directories.
func NonIntersecting(paths []string) []string {
	cleaned := Unique(paths)
	// Shorter paths first so ancestors are kept before descendants are seen.
	sort.SliceStable(cleaned, func(i, j int) bool {
		return depth(cleaned[i]) < depth(cleaned[j])
	})

	var kept []string
	for _, p := range cleaned {
		if !IsUnderAny(p, kept) {
			kept = append(kept, p)
		}
	}
	sort.Strings(kept)
	return kept
}

// Unique cleans paths and removes duplicates, preserving first-seen order.
func Unique(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		c := Clean(p)
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// Parents returns every ancestor directory of p, nearest first, ending with
// Root. Root itself has no parents.
func Parents(p string) []string {
	p = Clean(p)
	var out []string
	for p != Root {
		p = path.Dir(p)
		out = append(out, p)
	}
	return out
}

func depth(p string) int {
	if p == Root {
		return 0
	}
	return strings.Count(p, "/") + 1
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
