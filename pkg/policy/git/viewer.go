package git

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"path"

	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"

	"mercator-hq/policysync/pkg/pathutil"
)

// ErrNotFound is returned by exact-path lookups that match nothing, or that
// match a node of the wrong type.
var ErrNotFound = errors.New("path not found in commit")

// VersionedNode is a file or directory as of one commit.
type VersionedNode interface {
	// Path is the repository-relative path. The root directory is ".".
	Path() string
	// Commit is the hash of the commit the node was read from.
	Commit() string
	IsDir() bool
}

// Predicate selects nodes. A nil Predicate selects everything.
type Predicate func(VersionedNode) bool

func (p Predicate) match(n VersionedNode) bool {
	return p == nil || p(n)
}

// VersionedFile is a blob at a path in a commit.
type VersionedFile struct {
	path   string
	commit string
	file   *object.File
}

func (f *VersionedFile) Path() string   { return f.path }
func (f *VersionedFile) Commit() string { return f.commit }
func (f *VersionedFile) IsDir() bool    { return false }

// Size returns the blob size in bytes.
func (f *VersionedFile) Size() int64 { return f.file.Size }

// BlobHash returns the hash of the file contents.
func (f *VersionedFile) BlobHash() string { return f.file.Hash.String() }

// Reader opens the blob for reading. The caller must close it.
func (f *VersionedFile) Reader() (io.ReadCloser, error) {
	return f.file.Reader()
}

// Contents reads the whole blob.
func (f *VersionedFile) Contents() ([]byte, error) {
	rc, err := f.file.Reader()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s@%s: %w", f.path, shortSHA(f.commit), err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s@%s: %w", f.path, shortSHA(f.commit), err)
	}
	return data, nil
}

// VersionedDirectory is a tree at a path in a commit.
type VersionedDirectory struct {
	path   string
	commit string
	tree   *object.Tree
}

func (d *VersionedDirectory) Path() string   { return d.path }
func (d *VersionedDirectory) Commit() string { return d.commit }
func (d *VersionedDirectory) IsDir() bool    { return true }

// Children returns the direct children of the directory in tree order.
// Submodule entries are skipped.
func (d *VersionedDirectory) Children() ([]VersionedNode, error) {
	children := make([]VersionedNode, 0, len(d.tree.Entries))
	for i := range d.tree.Entries {
		entry := &d.tree.Entries[i]
		if entry.Mode == filemode.Submodule {
			continue
		}
		child, err := d.child(entry)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return children, nil
}

func (d *VersionedDirectory) child(entry *object.TreeEntry) (VersionedNode, error) {
	p := entry.Name
	if d.path != pathutil.Root {
		p = path.Join(d.path, entry.Name)
	}

	if entry.Mode == filemode.Dir {
		sub, err := d.tree.Tree(entry.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to read directory %s: %w", p, err)
		}
		return &VersionedDirectory{path: p, commit: d.commit, tree: sub}, nil
	}

	file, err := d.tree.TreeEntryFile(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", p, err)
	}
	return &VersionedFile{path: p, commit: d.commit, file: file}, nil
}

// CommitViewer is a read-only view over the tree of one commit.
type CommitViewer struct {
	commit *object.Commit
	root   *VersionedDirectory
	logger *slog.Logger
}

// NewCommitViewer creates a viewer over commit's tree.
func NewCommitViewer(commit *object.Commit) (*CommitViewer, error) {
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to get tree of commit %s: %w", commit.Hash, err)
	}
	sha := commit.Hash.String()
	return &CommitViewer{
		commit: commit,
		root:   &VersionedDirectory{path: pathutil.Root, commit: sha, tree: tree},
		logger: slog.Default().With("component", "git.viewer", "commit", shortSHA(sha)),
	}, nil
}

// Hash returns the viewed commit's hash.
func (v *CommitViewer) Hash() string { return v.commit.Hash.String() }

// Root returns the root directory of the commit.
func (v *CommitViewer) Root() *VersionedDirectory { return v.root }

// Nodes walks the tree depth-first, yielding every directory before its
// children, starting with the root. Each call starts a fresh walk.
// Unreadable subtrees are logged and skipped.
func (v *CommitViewer) Nodes(pred Predicate) iter.Seq[VersionedNode] {
	return func(yield func(VersionedNode) bool) {
		v.walk(v.root, pred, yield)
	}
}

func (v *CommitViewer) walk(dir *VersionedDirectory, pred Predicate, yield func(VersionedNode) bool) bool {
	if pred.match(dir) && !yield(dir) {
		return false
	}

	children, err := dir.Children()
	if err != nil {
		v.logger.Warn("skipping unreadable directory", "path", dir.path, "error", err)
		return true
	}

	for _, child := range children {
		if sub, ok := child.(*VersionedDirectory); ok {
			if !v.walk(sub, pred, yield) {
				return false
			}
			continue
		}
		if pred.match(child) && !yield(child) {
			return false
		}
	}
	return true
}

// Files yields the files selected by pred in walk order.
func (v *CommitViewer) Files(pred Predicate) iter.Seq[*VersionedFile] {
	return func(yield func(*VersionedFile) bool) {
		for n := range v.Nodes(pred) {
			if f, ok := n.(*VersionedFile); ok {
				if !yield(f) {
					return
				}
			}
		}
	}
}

// Directories yields the directories selected by pred in walk order.
func (v *CommitViewer) Directories(pred Predicate) iter.Seq[*VersionedDirectory] {
	return func(yield func(*VersionedDirectory) bool) {
		for n := range v.Nodes(pred) {
			if d, ok := n.(*VersionedDirectory); ok {
				if !yield(d) {
					return
				}
			}
		}
	}
}

// GetNode looks up the node at exactly p.
func (v *CommitViewer) GetNode(p string) (VersionedNode, error) {
	p = pathutil.Clean(p)
	if p == pathutil.Root {
		return v.root, nil
	}

	entry, err := v.root.tree.FindEntry(p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, ErrNotFound)
	}
	if entry.Mode == filemode.Submodule {
		return nil, fmt.Errorf("%s: %w", p, ErrNotFound)
	}

	if entry.Mode == filemode.Dir {
		sub, err := v.root.tree.Tree(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read directory %s: %w", p, err)
		}
		return &VersionedDirectory{path: p, commit: v.root.commit, tree: sub}, nil
	}

	file, err := v.root.tree.TreeEntryFile(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", p, err)
	}
	return &VersionedFile{path: p, commit: v.root.commit, file: file}, nil
}

// GetFile returns the file at exactly p.
func (v *CommitViewer) GetFile(p string) (*VersionedFile, error) {
	n, err := v.GetNode(p)
	if err != nil {
		return nil, err
	}
	f, ok := n.(*VersionedFile)
	if !ok {
		return nil, fmt.Errorf("%s is a directory: %w", p, ErrNotFound)
	}
	return f, nil
}

// GetDirectory returns the directory at exactly p.
func (v *CommitViewer) GetDirectory(p string) (*VersionedDirectory, error) {
	n, err := v.GetNode(p)
	if err != nil {
		return nil, err
	}
	d, ok := n.(*VersionedDirectory)
	if !ok {
		return nil, fmt.Errorf("%s is a file: %w", p, ErrNotFound)
	}
	return d, nil
}

// Exists reports whether any node exists at p.
func (v *CommitViewer) Exists(p string) bool {
	_, err := v.GetNode(p)
	return err == nil
}
