// Package pathutil provides set algebra over repository-relative directory
// paths.
//
// Paths are slash-separated and relative to the repository root. The root
// itself is represented by ".". A path contains another when the two are
// equal or the second lies below the first.
//
//	pathutil.Contains("policies", "policies/rbac")          // true
//	pathutil.NonIntersecting([]string{"a", "a/b", "c"})     // [a c]
//	pathutil.Intersection([]string{"a"}, []string{"a/b"})   // [a/b]
package pathutil
