package git

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"sort"

	"github.com/go-git/go-git/v5/plumbing/object"
)

// DiffPredicate selects diffs. A nil DiffPredicate selects everything.
type DiffPredicate func(Diff) bool

// DiffViewer is a read-only view over the changes between two commits.
// Renames are detected by content similarity; a rename counts as a deletion
// of the old path and an addition of the new one for the file helpers.
type DiffViewer struct {
	from, to *object.Commit
	changes  []change
	logger   *slog.Logger
}

type change struct {
	diff Diff
	raw  *object.Change
}

// NewDiffViewer computes the changes that turn from into to.
func NewDiffViewer(ctx context.Context, from, to *object.Commit) (*DiffViewer, error) {
	oldTree, err := from.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to get tree of commit %s: %w", from.Hash, err)
	}
	newTree, err := to.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to get tree of commit %s: %w", to.Hash, err)
	}

	raw, err := object.DiffTreeWithOptions(ctx, oldTree, newTree, object.DefaultDiffTreeOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to diff %s..%s: %w", shortSHA(from.Hash.String()), shortSHA(to.Hash.String()), err)
	}

	v := &DiffViewer{
		from:   from,
		to:     to,
		logger: slog.Default().With("component", "git.diff"),
	}
	for _, c := range raw {
		v.changes = append(v.changes, change{diff: classify(c), raw: c})
	}
	return v, nil
}

func classify(c *object.Change) Diff {
	switch {
	case c.From.Name == "":
		return Diff{Kind: DiffAdded, NewPath: c.To.Name}
	case c.To.Name == "":
		return Diff{Kind: DiffDeleted, OldPath: c.From.Name}
	case c.From.Name != c.To.Name:
		return Diff{Kind: DiffRenamed, OldPath: c.From.Name, NewPath: c.To.Name}
	default:
		return Diff{Kind: DiffModified, OldPath: c.From.Name, NewPath: c.To.Name}
	}
}

// OldHash returns the hash of the base commit.
func (v *DiffViewer) OldHash() string { return v.from.Hash.String() }

// NewHash returns the hash of the target commit.
func (v *DiffViewer) NewHash() string { return v.to.Hash.String() }

// Diffs yields every change selected by pred.
func (v *DiffViewer) Diffs(pred DiffPredicate) iter.Seq[Diff] {
	return func(yield func(Diff) bool) {
		for _, c := range v.changes {
			if pred != nil && !pred(c.diff) {
				continue
			}
			if !yield(c.diff) {
				return
			}
		}
	}
}

func (v *DiffViewer) ofKind(kind DiffKind) iter.Seq[Diff] {
	return v.Diffs(func(d Diff) bool { return d.Kind == kind })
}

// Added yields files present only in the new commit.
func (v *DiffViewer) Added() iter.Seq[Diff] { return v.ofKind(DiffAdded) }

// Deleted yields files present only in the old commit.
func (v *DiffViewer) Deleted() iter.Seq[Diff] { return v.ofKind(DiffDeleted) }

// Renamed yields files that moved between the commits.
func (v *DiffViewer) Renamed() iter.Seq[Diff] { return v.ofKind(DiffRenamed) }

// Modified yields files whose contents changed in place.
func (v *DiffViewer) Modified() iter.Seq[Diff] { return v.ofKind(DiffModified) }

// AddedOrModifiedFiles yields the new commit's version of every added,
// modified or rename-target file selected by pred.
func (v *DiffViewer) AddedOrModifiedFiles(pred Predicate) iter.Seq[*VersionedFile] {
	sha := v.NewHash()
	return func(yield func(*VersionedFile) bool) {
		for _, c := range v.changes {
			if c.diff.Kind == DiffDeleted {
				continue
			}
			_, to, err := c.raw.Files()
			if err != nil || to == nil {
				v.logger.Warn("skipping unreadable file", "path", c.diff.NewPath, "commit", shortSHA(sha), "error", err)
				continue
			}
			f := &VersionedFile{path: c.diff.NewPath, commit: sha, file: to}
			if pred.match(f) && !yield(f) {
				return
			}
		}
	}
}

// DeletedFiles yields the old commit's version of every deleted or
// rename-source file selected by pred.
func (v *DiffViewer) DeletedFiles(pred Predicate) iter.Seq[*VersionedFile] {
	sha := v.OldHash()
	return func(yield func(*VersionedFile) bool) {
		for _, c := range v.changes {
			if c.diff.Kind != DiffDeleted && c.diff.Kind != DiffRenamed {
				continue
			}
			from, _, err := c.raw.Files()
			if err != nil || from == nil {
				v.logger.Warn("skipping unreadable file", "path", c.diff.OldPath, "commit", shortSHA(sha), "error", err)
				continue
			}
			f := &VersionedFile{path: c.diff.OldPath, commit: sha, file: from}
			if pred.match(f) && !yield(f) {
				return
			}
		}
	}
}

// AffectedPaths returns the sorted, de-duplicated union of old and new paths
// touched by the diff and accepted by pred.
func (v *DiffViewer) AffectedPaths(pred func(path string) bool) []string {
	seen := make(map[string]struct{})
	for _, c := range v.changes {
		for _, p := range []string{c.diff.OldPath, c.diff.NewPath} {
			if p == "" || (pred != nil && !pred(p)) {
				continue
			}
			seen[p] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
