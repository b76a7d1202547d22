// Package gittest builds throwaway git repositories for tests.
package gittest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Repo is a repository in a temporary directory whose worktree changes are
// staged as they are made.
type Repo struct {
	t        testing.TB
	Dir      string
	Git      *gogit.Repository
	worktree *gogit.Worktree
	when     time.Time
}

// New initializes an empty repository under t.TempDir().
func New(t testing.TB) *Repo {
	t.Helper()

	dir := t.TempDir()
	repo, err := gogit.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("failed to init repo: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("failed to get worktree: %v", err)
	}

	return &Repo{
		t:        t,
		Dir:      dir,
		Git:      repo,
		worktree: wt,
		when:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Write creates or replaces a file and stages it.
func (r *Repo) Write(path, content string) *Repo {
	r.t.Helper()

	full := filepath.Join(r.Dir, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		r.t.Fatalf("failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		r.t.Fatalf("failed to write %s: %v", path, err)
	}
	if _, err := r.worktree.Add(path); err != nil {
		r.t.Fatalf("failed to add %s: %v", path, err)
	}
	return r
}

// WriteFiles writes every path/content pair.
func (r *Repo) WriteFiles(files map[string]string) *Repo {
	r.t.Helper()
	for path, content := range files {
		r.Write(path, content)
	}
	return r
}

// Remove deletes a file and stages the removal.
func (r *Repo) Remove(path string) *Repo {
	r.t.Helper()
	if _, err := r.worktree.Remove(path); err != nil {
		r.t.Fatalf("failed to remove %s: %v", path, err)
	}
	return r
}

// Rename moves a file, keeping its contents.
func (r *Repo) Rename(from, to string) *Repo {
	r.t.Helper()

	data, err := os.ReadFile(filepath.Join(r.Dir, filepath.FromSlash(from)))
	if err != nil {
		r.t.Fatalf("failed to read %s: %v", from, err)
	}
	r.Remove(from)
	return r.Write(to, string(data))
}

// Commit records the staged changes and returns the new commit.
func (r *Repo) Commit(msg string) *object.Commit {
	r.t.Helper()

	r.when = r.when.Add(time.Minute)
	hash, err := r.worktree.Commit(msg, &gogit.CommitOptions{
		Author: &object.Signature{
			Name:  "Test User",
			Email: "test@example.com",
			When:  r.when,
		},
	})
	if err != nil {
		r.t.Fatalf("failed to commit: %v", err)
	}

	commit, err := r.Git.CommitObject(hash)
	if err != nil {
		r.t.Fatalf("failed to read commit: %v", err)
	}
	return commit
}
