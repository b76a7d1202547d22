package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"mercator-hq/policysync/pkg/config"
)

// ErrNotOpened is returned by operations that need an opened repository.
var ErrNotOpened = errors.New("repository not opened, call Open() first")

// Repository is the read-mostly handle on the policy repository. It either
// serves an existing local repository in place or keeps a clone of a remote
// one up to date.
type Repository struct {
	config    *config.GitPolicyConfig
	localPath string
	local     bool
	auth      AuthProvider
	repo      *gogit.Repository
	lastHead  string
	mu        sync.RWMutex
	metrics   *RepositoryMetrics
	logger    *slog.Logger
}

// NewRepository creates a repository handle. When cfg.Repository names an
// existing local directory and no clone path is configured, the directory
// is used directly and never fetched.
func NewRepository(cfg *config.GitPolicyConfig) (*Repository, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Repository == "" {
		return nil, fmt.Errorf("repository URL cannot be empty")
	}
	if cfg.Branch == "" {
		return nil, fmt.Errorf("branch cannot be empty")
	}

	auth, err := NewAuthProvider(&cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth provider: %w", err)
	}

	r := &Repository{
		config:    cfg,
		localPath: cfg.Clone.LocalPath,
		auth:      auth,
		metrics:   &RepositoryMetrics{},
		logger:    slog.Default().With("component", "git.repository"),
	}

	if r.localPath == "" {
		if info, err := os.Stat(cfg.Repository); err == nil && info.IsDir() {
			r.localPath = cfg.Repository
			r.local = true
		} else {
			r.localPath = filepath.Join(os.TempDir(), "policysync-policies")
		}
	}

	return r, nil
}

// SetLogger sets a custom logger.
func (r *Repository) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// Open makes the repository usable. Local repositories are opened in place.
// Remote repositories are cloned into the configured path, or reopened if a
// clone already exists there and CleanOnStart is false.
func (r *Repository) Open(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.local {
		repo, err := gogit.PlainOpen(r.localPath)
		if err != nil {
			return fmt.Errorf("failed to open repository %s: %w", r.localPath, err)
		}
		r.repo = repo
		return r.recordHead()
	}

	if err := r.clone(ctx); err != nil {
		return err
	}
	return r.recordHead()
}

func (r *Repository) clone(ctx context.Context) error {
	start := time.Now()
	defer func() {
		r.metrics.CloneDuration = time.Since(start)
	}()

	if r.config.Clone.CleanOnStart {
		if err := os.RemoveAll(r.localPath); err != nil {
			return fmt.Errorf("failed to clean existing repository: %w", err)
		}
	}

	if _, err := os.Stat(filepath.Join(r.localPath, ".git")); err == nil {
		repo, err := gogit.PlainOpen(r.localPath)
		if err != nil {
			return fmt.Errorf("failed to open existing repo: %w", err)
		}
		r.repo = repo
		return nil
	}

	if err := os.MkdirAll(r.localPath, 0755); err != nil {
		return fmt.Errorf("failed to create repository directory: %w", err)
	}

	auth, err := r.auth.GetAuth()
	if err != nil {
		return fmt.Errorf("failed to get auth: %w", err)
	}

	cloneCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	repo, err := gogit.PlainCloneContext(cloneCtx, r.localPath, false, &gogit.CloneOptions{
		URL:           r.config.Repository,
		ReferenceName: plumbing.NewBranchReferenceName(r.config.Branch),
		SingleBranch:  r.config.Clone.Depth > 0,
		Depth:         r.config.Clone.Depth,
		Auth:          auth,
	})
	if err != nil {
		return fmt.Errorf("failed to clone repository: %w", err)
	}

	r.logger.Info("cloned policy repository",
		"repository", r.config.Repository,
		"branch", r.config.Branch,
		"path", r.localPath)
	r.repo = repo
	return nil
}

// Pull brings the tracked branch up to date and reports whether its head
// moved since the previous Open or Pull. For local repositories nothing is
// fetched; the branch head is simply re-read.
func (r *Repository) Pull(ctx context.Context) (*PullResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	defer func() {
		r.metrics.PullDuration = time.Since(start)
		r.metrics.LastPullTime = time.Now()
	}()

	if r.repo == nil {
		return nil, ErrNotOpened
	}

	fromSHA := r.lastHead

	if !r.local {
		if err := r.pullRemote(ctx); err != nil {
			r.metrics.FailedPulls++
			return nil, err
		}
	}
	r.metrics.SuccessfulPulls++

	head, err := r.branchHead()
	if err != nil {
		return nil, err
	}
	toSHA := head.String()

	result := &PullResult{
		FromSHA:    fromSHA,
		ToSHA:      toSHA,
		HadChanges: fromSHA != "" && fromSHA != toSHA,
	}
	r.lastHead = toSHA

	if result.HadChanges {
		changed, err := r.changedFiles(ctx, fromSHA, toSHA)
		if err != nil {
			return nil, fmt.Errorf("failed to get changed files: %w", err)
		}
		result.ChangedFiles = changed
		r.metrics.LastCommitSHA = toSHA
	}

	return result, nil
}

func (r *Repository) pullRemote(ctx context.Context) error {
	worktree, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}

	auth, err := r.auth.GetAuth()
	if err != nil {
		return fmt.Errorf("failed to get auth: %w", err)
	}

	pullCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	err = worktree.PullContext(pullCtx, &gogit.PullOptions{
		RemoteName:    "origin",
		ReferenceName: plumbing.NewBranchReferenceName(r.config.Branch),
		Auth:          auth,
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return fmt.Errorf("failed to pull: %w", err)
	}
	return nil
}

// HeadCommit returns the commit at the head of the tracked branch.
func (r *Repository) HeadCommit() (*object.Commit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.repo == nil {
		return nil, ErrNotOpened
	}
	head, err := r.branchHead()
	if err != nil {
		return nil, err
	}
	return r.repo.CommitObject(head)
}

// ResolveCommit resolves a revision (full or abbreviated hash, branch, tag,
// or expressions such as "HEAD~1") to a commit. An empty revision resolves
// to the tracked branch head.
func (r *Repository) ResolveCommit(rev string) (*object.Commit, error) {
	if rev == "" {
		return r.HeadCommit()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.repo == nil {
		return nil, ErrNotOpened
	}

	hash, err := r.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve revision %q: %w", rev, err)
	}
	commit, err := r.repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("failed to get commit %s: %w", hash, err)
	}
	return commit, nil
}

// GetCurrentCommit returns metadata about the tracked branch head.
func (r *Repository) GetCurrentCommit() (*CommitInfo, error) {
	commit, err := r.HeadCommit()
	if err != nil {
		return nil, fmt.Errorf("failed to get head commit: %w", err)
	}

	return &CommitInfo{
		SHA:        commit.Hash.String(),
		Author:     commit.Author.Name,
		Email:      commit.Author.Email,
		Timestamp:  commit.Author.When,
		Message:    commit.Message,
		Branch:     r.config.Branch,
		Repository: r.config.Repository,
	}, nil
}

// GetChangedFiles returns every path touched between two commits, old and
// new names of renames included.
func (r *Repository) GetChangedFiles(ctx context.Context, fromSHA, toSHA string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.repo == nil {
		return nil, ErrNotOpened
	}
	return r.changedFiles(ctx, fromSHA, toSHA)
}

func (r *Repository) changedFiles(ctx context.Context, fromSHA, toSHA string) ([]string, error) {
	from, err := r.repo.CommitObject(plumbing.NewHash(fromSHA))
	if err != nil {
		return nil, fmt.Errorf("failed to get from commit: %w", err)
	}
	to, err := r.repo.CommitObject(plumbing.NewHash(toSHA))
	if err != nil {
		return nil, fmt.Errorf("failed to get to commit: %w", err)
	}

	viewer, err := NewDiffViewer(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return viewer.AffectedPaths(nil), nil
}

// branchHead resolves the tracked branch, falling back to HEAD when the
// branch does not exist locally.
func (r *Repository) branchHead() (plumbing.Hash, error) {
	ref, err := r.repo.Reference(plumbing.NewBranchReferenceName(r.config.Branch), true)
	if err == nil {
		return ref.Hash(), nil
	}

	ref, err = r.repo.Head()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to get HEAD: %w", err)
	}
	return ref.Hash(), nil
}

func (r *Repository) recordHead() error {
	head, err := r.branchHead()
	if err != nil {
		return err
	}
	r.lastHead = head.String()
	r.metrics.LastCommitSHA = r.lastHead
	return nil
}

func (r *Repository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.config.Poll.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.config.Poll.Timeout)
}

// GetMetrics returns a copy of the repository metrics.
func (r *Repository) GetMetrics() RepositoryMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return *r.metrics
}

// GetLocalPath returns the filesystem path of the working repository.
func (r *Repository) GetLocalPath() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.localPath
}

// IsLocal reports whether the repository is served in place.
func (r *Repository) IsLocal() bool {
	return r.local
}
