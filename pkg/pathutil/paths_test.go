package pathutil

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestClean(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "."},
		{"/", "."},
		{"a/b/", "a/b"},
		{"/a//b", "a/b"},
		{"a/./b", "a/b"},
		{" a ", "a"},
	}

	for _, tt := range tests {
		if got := Clean(tt.in); got != tt.want {
			t.Errorf("Clean(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestContains(t *testing.T) {
	tests := []struct {
		parent, child string
		want          bool
	}{
		{".", "a/b", true},
		{"a", "a", true},
		{"a", "a/b", true},
		{"a", "ab", false},
		{"a/b", "a", false},
		{"a/b", "a/c", false},
	}

	for _, tt := range tests {
		if got := Contains(tt.parent, tt.child); got != tt.want {
			t.Errorf("Contains(%q, %q) = %v, want %v", tt.parent, tt.child, got, tt.want)
		}
	}
}

func TestIntersection(t *testing.T) {
	got := Intersection(
		[]string{"policies", "data/users", "other"},
		[]string{"policies/rbac", "data", "unrelated"},
	)
	want := []string{"data/users", "policies/rbac"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Intersection() mismatch (-want +got):\n%s", diff)
	}

	if got := Intersection([]string{"."}, []string{"x/y"}); !cmp.Equal(got, []string{"x/y"}) {
		t.Errorf("Intersection(root) = %v", got)
	}
}

func TestNonIntersecting(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"empty", nil, []string{}},
		{"disjoint", []string{"b", "a"}, []string{"a", "b"}},
		{"nested", []string{"a/b/c", "a", "a/b", "c"}, []string{"a", "c"}},
		{"root swallows all", []string{"x", ".", "y/z"}, []string{"."}},
		{"prefix is not parent", []string{"ab", "a"}, []string{"a", "ab"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NonIntersecting(tt.in)
			if got == nil {
				got = []string{}
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("NonIntersecting() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParents(t *testing.T) {
	want := []string{"a/b", "a", "."}
	if diff := cmp.Diff(want, Parents("a/b/c.rego")); diff != "" {
		t.Errorf("Parents() mismatch (-want +got):\n%s", diff)
	}
	if got := Parents("."); len(got) != 0 {
		t.Errorf("Parents(root) = %v, want empty", got)
	}
}

func TestUnique(t *testing.T) {
	got := Unique([]string{"a/", "b", "a", "/b"})
	if diff := cmp.Diff([]string{"a", "b"}, got); diff != "" {
		t.Errorf("Unique() mismatch (-want +got):\n%s", diff)
	}
}
