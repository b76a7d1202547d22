package git

import (
	"time"
)

// CommitInfo contains metadata about a Git commit.
type CommitInfo struct {
	SHA        string    `json:"sha"`
	Author     string    `json:"author"`
	Email      string    `json:"email"`
	Timestamp  time.Time `json:"timestamp"`
	Message    string    `json:"message"`
	Branch     string    `json:"branch"`
	Repository string    `json:"repository"`
}

// PullResult contains result of a pull operation.
type PullResult struct {
	FromSHA      string
	ToSHA        string
	ChangedFiles []string
	HadChanges   bool
}

// RepositoryMetrics tracks Git operation metrics.
type RepositoryMetrics struct {
	CloneDuration   time.Duration
	PullDuration    time.Duration
	LastCommitSHA   string
	LastPullTime    time.Time
	FailedPulls     int64
	SuccessfulPulls int64
}

// DiffKind classifies a single file change between two commits.
type DiffKind string

// Change kinds reported by the DiffViewer.
const (
	DiffAdded    DiffKind = "added"
	DiffDeleted  DiffKind = "deleted"
	DiffRenamed  DiffKind = "renamed"
	DiffModified DiffKind = "modified"
)

// Diff describes one file's change. OldPath is empty for additions and
// NewPath is empty for deletions.
type Diff struct {
	Kind    DiffKind `json:"kind"`
	OldPath string   `json:"old_path,omitempty"`
	NewPath string   `json:"new_path,omitempty"`
}

// Path returns the path that identifies the change: the new path when the
// file still exists, otherwise the old one.
func (d Diff) Path() string {
	if d.NewPath != "" {
		return d.NewPath
	}
	return d.OldPath
}

// shortSHA trims a hash for log output.
func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
