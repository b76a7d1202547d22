package bundle

// SortByExplicitOrder reorders paths so that the entries named by explicit
// come first, in explicit's order, followed by the remaining paths in their
// original order.
//
// The result is always a permutation of paths: explicit entries missing from
// paths are ignored, and an entry listed more times in explicit than it
// occurs in paths is only placed as often as it occurs.
func SortByExplicitOrder(paths, explicit []string) []string {
	available := make(map[string]int, len(paths))
	for _, p := range paths {
		available[p]++
	}

	out := make([]string, 0, len(paths))
	placed := make(map[string]int, len(explicit))
	for _, e := range explicit {
		if available[e] == 0 {
			continue
		}
		available[e]--
		placed[e]++
		out = append(out, e)
	}

	for _, p := range paths {
		if placed[p] > 0 {
			placed[p]--
			continue
		}
		out = append(out, p)
	}
	return out
}

func reversed(s []string) []string {
	out := make([]string, len(s))
	for i, v := range s {
		out[len(s)-1-i] = v
	}
	return out
}
