package git

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"mercator-hq/policysync/internal/gittest"
)

func newTestViewer(t *testing.T) *CommitViewer {
	t.Helper()

	repo := gittest.New(t)
	commit := repo.WriteFiles(map[string]string{
		"a.rego":         "package a",
		"lib/x.rego":     "package lib.x",
		"lib/sub/y.rego": "package lib.sub.y",
		"z.rego":         "package z",
	}).Commit("initial commit")

	viewer, err := NewCommitViewer(commit)
	if err != nil {
		t.Fatalf("NewCommitViewer() error = %v", err)
	}
	return viewer
}

func TestCommitViewer_NodesDepthFirst(t *testing.T) {
	viewer := newTestViewer(t)

	var got []string
	for n := range viewer.Nodes(nil) {
		got = append(got, n.Path())
	}

	want := []string{".", "a.rego", "lib", "lib/sub", "lib/sub/y.rego", "lib/x.rego", "z.rego"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Nodes() mismatch (-want +got):\n%s", diff)
	}
}

func TestCommitViewer_NodesRestartable(t *testing.T) {
	viewer := newTestViewer(t)
	seq := viewer.Nodes(nil)

	count := func() int {
		n := 0
		for range seq {
			n++
		}
		return n
	}
	if first, second := count(), count(); first != second || first == 0 {
		t.Errorf("expected identical non-empty walks, got %d and %d", first, second)
	}

	// Stopping early must not panic or leak.
	for n := range seq {
		if n.Path() == "lib" {
			break
		}
	}
}

func TestCommitViewer_FilesAndDirectories(t *testing.T) {
	viewer := newTestViewer(t)

	underLib := func(n VersionedNode) bool { return strings.HasPrefix(n.Path(), "lib/") }

	var files []string
	for f := range viewer.Files(underLib) {
		files = append(files, f.Path())
	}
	if diff := cmp.Diff([]string{"lib/sub/y.rego", "lib/x.rego"}, files); diff != "" {
		t.Errorf("Files() mismatch (-want +got):\n%s", diff)
	}

	var dirs []string
	for d := range viewer.Directories(nil) {
		dirs = append(dirs, d.Path())
	}
	if diff := cmp.Diff([]string{".", "lib", "lib/sub"}, dirs); diff != "" {
		t.Errorf("Directories() mismatch (-want +got):\n%s", diff)
	}
}

func TestCommitViewer_Lookups(t *testing.T) {
	viewer := newTestViewer(t)

	f, err := viewer.GetFile("lib/x.rego")
	if err != nil {
		t.Fatalf("GetFile() error = %v", err)
	}
	data, err := f.Contents()
	if err != nil {
		t.Fatalf("Contents() error = %v", err)
	}
	if string(data) != "package lib.x" {
		t.Errorf("Contents() = %q", data)
	}
	if f.Commit() != viewer.Hash() {
		t.Errorf("Commit() = %s, want %s", f.Commit(), viewer.Hash())
	}

	d, err := viewer.GetDirectory("lib")
	if err != nil {
		t.Fatalf("GetDirectory() error = %v", err)
	}
	children, err := d.Children()
	if err != nil {
		t.Fatalf("Children() error = %v", err)
	}
	if len(children) != 2 {
		t.Errorf("expected 2 children of lib, got %d", len(children))
	}

	if _, err := viewer.GetFile("lib"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetFile(dir) error = %v, want ErrNotFound", err)
	}
	if _, err := viewer.GetDirectory("a.rego"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetDirectory(file) error = %v, want ErrNotFound", err)
	}
	if _, err := viewer.GetNode("missing/file.rego"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetNode(missing) error = %v, want ErrNotFound", err)
	}

	if !viewer.Exists(".") || !viewer.Exists("lib/sub") || viewer.Exists("nope") {
		t.Error("Exists() returned unexpected results")
	}
}
