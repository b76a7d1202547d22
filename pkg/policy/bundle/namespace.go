package bundle

import "regexp"

var packagePattern = regexp.MustCompile(`(?m)^\s*package\s+([^\s#;]+)`)

// PackageName returns the package declared by a rego module, or "" when none
// can be found.
func PackageName(source string) string {
	m := packagePattern.FindStringSubmatch(source)
	if m == nil {
		return ""
	}
	return m[1]
}
