package store

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"

	jsonpatch "github.com/evanphx/json-patch"
)

// Root is the path of the whole document.
const Root = "/"

// SplitPath splits a store path into its segments. Leading, trailing and
// repeated slashes are ignored, so "", "/" and "//" all name the root.
func SplitPath(p string) []string {
	return strings.FieldsFunc(p, func(r rune) bool { return r == '/' })
}

// JoinPath is the inverse of SplitPath.
func JoinPath(segs ...string) string {
	return "/" + strings.Join(segs, "/")
}

// normalize converts v to plain JSON values (maps, slices, strings,
// float64, bool, nil) by round-tripping it through encoding/json.
func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func getIn(node any, segs []string) (any, bool) {
	for _, s := range segs {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		node, ok = m[s]
		if !ok {
			return nil, false
		}
	}
	return node, true
}

// setIn returns a copy of node with value stored at segs. Only the maps on
// the path are copied; node itself is not modified.
func setIn(node any, segs []string, value any) (any, error) {
	if len(segs) == 0 {
		return value, nil
	}

	var m map[string]any
	switch n := node.(type) {
	case nil:
		m = make(map[string]any, 1)
	case map[string]any:
		m = maps.Clone(n)
	default:
		return nil, fmt.Errorf("cannot descend into %T at %q: %w", node, segs[0], ErrNotObject)
	}

	child, err := setIn(m[segs[0]], segs[1:], value)
	if err != nil {
		return nil, err
	}
	m[segs[0]] = child
	return m, nil
}

// mergePatch applies patch to current as a JSON merge patch (RFC 7386).
func mergePatch(current, patch any) (any, error) {
	if _, ok := patch.(map[string]any); !ok {
		return patch, nil
	}
	if current == nil {
		current = map[string]any{}
	}

	doc, err := json.Marshal(current)
	if err != nil {
		return nil, err
	}
	p, err := json.Marshal(patch)
	if err != nil {
		return nil, err
	}
	merged, err := jsonpatch.MergePatch(doc, p)
	if err != nil {
		return nil, fmt.Errorf("merge patch: %w", err)
	}

	var out any
	if err := json.Unmarshal(merged, &out); err != nil {
		return nil, err
	}
	return out, nil
}
