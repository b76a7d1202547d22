package bundle

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/go-git/go-git/v5/plumbing/object"

	"mercator-hq/policysync/pkg/config"
	"mercator-hq/policysync/pkg/pathutil"
	"mercator-hq/policysync/pkg/policy/git"
)

// DataFileName is the name of files treated as data modules, whatever the
// configured extensions.
const DataFileName = "data.json"

// Bundle kinds reported to the Recorder.
const (
	KindFull   = "full"
	KindDiff   = "diff"
	KindResync = "resync"
)

// Recorder receives bundle build statistics.
type Recorder interface {
	RecordBundle(kind string, modules int, duration time.Duration)
}

// Option configures a Maker.
type Option func(*Maker)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Maker) {
		m.logger = logger
	}
}

// WithRecorder reports every built bundle to r.
func WithRecorder(r Recorder) Option {
	return func(m *Maker) {
		m.recorder = r
	}
}

// Maker turns commits of the policy repository into bundles.
type Maker struct {
	extensions   []string
	directories  []string
	ignore       []string
	manifestPath string
	recorder     Recorder
	logger       *slog.Logger
}

// NewMaker creates a Maker from the bundle configuration. Empty filters
// select everything: all directories, the default extension and no ignores.
func NewMaker(cfg config.BundleConfig, opts ...Option) *Maker {
	m := &Maker{
		extensions:   cfg.Extensions,
		directories:  pathutil.Unique(cfg.Directories),
		ignore:       cfg.Ignore,
		manifestPath: pathutil.Clean(cfg.ManifestPath),
		logger:       slog.Default().With("component", "bundle.maker"),
	}
	if len(m.extensions) == 0 {
		m.extensions = []string{config.DefaultBundleExtension}
	}
	if len(m.directories) == 0 {
		m.directories = []string{pathutil.Root}
	}
	if cfg.ManifestPath == "" {
		m.manifestPath = ManifestFileName
	}

	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MatchPath reports whether the file at p belongs in a bundle: it lies under
// a configured directory, is not ignored, and is either a data.json file or
// has one of the configured extensions.
func (m *Maker) MatchPath(p string) bool {
	p = pathutil.Clean(p)
	if !pathutil.IsUnderAny(p, m.directories) || m.ignored(p) {
		return false
	}
	if path.Base(p) == DataFileName {
		return true
	}
	for _, ext := range m.extensions {
		if strings.HasSuffix(p, ext) {
			return true
		}
	}
	return false
}

// ignored reports whether an ignore glob matches p or one of its parent
// directories, either as a whole path or by base name.
func (m *Maker) ignored(p string) bool {
	if len(m.ignore) == 0 {
		return false
	}
	candidates := append([]string{p}, pathutil.Parents(p)...)
	for _, c := range candidates {
		if c == pathutil.Root {
			continue
		}
		for _, pattern := range m.ignore {
			if ok, _ := path.Match(pattern, c); ok {
				return true
			}
			if ok, _ := path.Match(pattern, path.Base(c)); ok {
				return true
			}
		}
	}
	return false
}

func (m *Maker) matchFile(n git.VersionedNode) bool {
	return !n.IsDir() && m.MatchPath(n.Path())
}

// MakeBundle builds the complete bundle for commit.
func (m *Maker) MakeBundle(commit *object.Commit) (*PolicyBundle, error) {
	start := time.Now()

	viewer, err := git.NewCommitViewer(commit)
	if err != nil {
		return nil, err
	}

	var files []*git.VersionedFile
	for f := range viewer.Files(m.matchFile) {
		files = append(files, f)
	}

	explicit := resolveManifest(viewer, m.manifestPath, m.logger)
	b := &PolicyBundle{Hash: viewer.Hash()}
	if err := m.fill(b, files, explicit); err != nil {
		return nil, err
	}

	m.logger.Info("built bundle",
		"commit", shortHash(b.Hash),
		"data_modules", len(b.DataModules),
		"policy_modules", len(b.PolicyModules))
	m.record(KindFull, b, start)
	return b, nil
}

// MakeDiffBundle builds the bundle that moves an agent from oldCommit to
// newCommit. When both are the same commit the result is ForceFullResync.
func (m *Maker) MakeDiffBundle(ctx context.Context, oldCommit, newCommit *object.Commit) (*PolicyBundle, error) {
	if oldCommit.Hash == newCommit.Hash {
		return m.ForceFullResync(newCommit)
	}
	start := time.Now()

	diff, err := git.NewDiffViewer(ctx, oldCommit, newCommit)
	if err != nil {
		return nil, err
	}
	newViewer, err := git.NewCommitViewer(newCommit)
	if err != nil {
		return nil, err
	}
	oldViewer, err := git.NewCommitViewer(oldCommit)
	if err != nil {
		return nil, err
	}

	var upserts []*git.VersionedFile
	for f := range diff.AddedOrModifiedFiles(m.matchFile) {
		upserts = append(upserts, f)
	}

	b := &PolicyBundle{
		Hash:    diff.NewHash(),
		OldHash: diff.OldHash(),
	}
	if err := m.fill(b, upserts, resolveManifest(newViewer, m.manifestPath, m.logger)); err != nil {
		return nil, err
	}

	deleted := &DeletedFiles{
		DataModules:   []string{},
		PolicyModules: []string{},
	}
	seenData := make(map[string]struct{})
	var deletedPolicies []string
	for f := range diff.DeletedFiles(m.matchFile) {
		if path.Base(f.Path()) == DataFileName {
			dir := pathutil.Dir(f.Path())
			if _, ok := seenData[dir]; !ok {
				seenData[dir] = struct{}{}
				deleted.DataModules = append(deleted.DataModules, dir)
			}
			continue
		}
		deletedPolicies = append(deletedPolicies, f.Path())
	}
	if len(deletedPolicies) > 0 {
		oldOrder := resolveManifest(oldViewer, m.manifestPath, m.logger)
		deleted.PolicyModules = reversed(SortByExplicitOrder(deletedPolicies, oldOrder))
	}
	b.DeletedFiles = deleted

	m.logger.Info("built diff bundle",
		"old_commit", shortHash(b.OldHash),
		"new_commit", shortHash(b.Hash),
		"upserted", len(b.Manifest),
		"deleted_data", len(deleted.DataModules),
		"deleted_policies", len(deleted.PolicyModules))
	m.record(KindDiff, b, start)
	return b, nil
}

// ForceFullResync returns a bundle without modules whose manifest lists
// every directory holding a bundled file of commit. Agents receiving it
// resubscribe to all of those directories and fetch them again.
func (m *Maker) ForceFullResync(commit *object.Commit) (*PolicyBundle, error) {
	start := time.Now()

	dirs, err := m.directoriesOf(commit)
	if err != nil {
		return nil, err
	}

	sha := commit.Hash.String()
	b := &PolicyBundle{
		Manifest:      dirs,
		Hash:          sha,
		OldHash:       sha,
		DataModules:   []DataModule{},
		PolicyModules: []PolicyModule{},
	}
	m.logger.Info("built full resync bundle", "commit", shortHash(sha), "directories", len(dirs))
	m.record(KindResync, b, start)
	return b, nil
}

// ChangedDirectories returns the directories holding bundled files that
// changed between the commits, in sorted order. For identical commits it
// returns every directory holding a bundled file.
func (m *Maker) ChangedDirectories(ctx context.Context, oldCommit, newCommit *object.Commit) ([]string, error) {
	if oldCommit.Hash == newCommit.Hash {
		return m.directoriesOf(newCommit)
	}

	diff, err := git.NewDiffViewer(ctx, oldCommit, newCommit)
	if err != nil {
		return nil, err
	}

	paths := diff.AffectedPaths(m.MatchPath)
	dirs := make([]string, len(paths))
	for i, p := range paths {
		dirs[i] = pathutil.Dir(p)
	}
	return pathutil.Unique(dirs), nil
}

func (m *Maker) directoriesOf(commit *object.Commit) ([]string, error) {
	viewer, err := git.NewCommitViewer(commit)
	if err != nil {
		return nil, err
	}
	var dirs []string
	for f := range viewer.Files(m.matchFile) {
		dirs = append(dirs, pathutil.Dir(f.Path()))
	}
	return pathutil.Unique(dirs), nil
}

// fill classifies files into b's modules, ordered by the manifest.
func (m *Maker) fill(b *PolicyBundle, files []*git.VersionedFile, explicit []string) error {
	byPath := make(map[string]*git.VersionedFile, len(files))
	discovered := make([]string, 0, len(files))
	for _, f := range files {
		if _, ok := byPath[f.Path()]; ok {
			continue
		}
		byPath[f.Path()] = f
		discovered = append(discovered, f.Path())
	}

	b.Manifest = SortByExplicitOrder(discovered, explicit)
	b.DataModules = []DataModule{}
	b.PolicyModules = []PolicyModule{}

	for _, p := range b.Manifest {
		data, err := byPath[p].Contents()
		if err != nil {
			return fmt.Errorf("failed to build bundle for %s: %w", shortHash(b.Hash), err)
		}

		if path.Base(p) == DataFileName {
			b.DataModules = append(b.DataModules, DataModule{
				Path: pathutil.Dir(p),
				Data: string(data),
			})
			continue
		}

		source := string(data)
		b.PolicyModules = append(b.PolicyModules, PolicyModule{
			Path:        p,
			PackageName: PackageName(source),
			Rego:        source,
		})
	}
	return nil
}

func (m *Maker) record(kind string, b *PolicyBundle, start time.Time) {
	if m.recorder == nil {
		return
	}
	m.recorder.RecordBundle(kind, len(b.DataModules)+len(b.PolicyModules), time.Since(start))
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}
