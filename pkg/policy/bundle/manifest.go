package bundle

import (
	"bufio"
	"bytes"
	"log/slog"
	"path"
	"strings"

	"mercator-hq/policysync/pkg/pathutil"
	"mercator-hq/policysync/pkg/policy/git"
)

// ManifestFileName is the name of the file declaring load order inside a
// directory.
const ManifestFileName = ".manifest"

// manifestResolver expands a manifest and the manifests of the directories
// it names into a flat, ordered list of file paths.
type manifestResolver struct {
	viewer  *git.CommitViewer
	visited map[string]struct{}
	entries []string
	logger  *slog.Logger
}

// resolveManifest returns the explicit load order declared in commit, or nil
// when manifestPath names neither a manifest file nor a directory holding
// one. Invalid lines are logged and skipped.
func resolveManifest(viewer *git.CommitViewer, manifestPath string, logger *slog.Logger) []string {
	r := &manifestResolver{
		viewer:  viewer,
		visited: make(map[string]struct{}),
		logger:  logger.With("commit", viewer.Hash()),
	}

	node, err := viewer.GetNode(manifestPath)
	if err != nil {
		r.logger.Debug("no manifest found", "path", manifestPath)
		return nil
	}

	if node.IsDir() {
		file, err := viewer.GetFile(path.Join(node.Path(), ManifestFileName))
		if err != nil {
			r.logger.Debug("no manifest found", "path", node.Path())
			return nil
		}
		r.expand(file)
	} else {
		r.expand(node.(*git.VersionedFile))
	}
	return r.entries
}

func (r *manifestResolver) expand(manifest *git.VersionedFile) {
	r.visited[manifest.Path()] = struct{}{}

	data, err := manifest.Contents()
	if err != nil {
		r.logger.Warn("failed to read manifest", "manifest", manifest.Path(), "error", err)
		return
	}

	base := pathutil.Dir(manifest.Path())
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		r.resolveLine(manifest.Path(), base, line)
	}
	if err := scanner.Err(); err != nil {
		r.logger.Warn("failed to scan manifest", "manifest", manifest.Path(), "error", err)
	}
}

func (r *manifestResolver) resolveLine(manifest, base, line string) {
	logger := r.logger.With("manifest", manifest, "entry", line)

	if path.IsAbs(line) {
		logger.Warn("skipping absolute manifest entry")
		return
	}

	target := path.Join(base, line)
	if target == ".." || strings.HasPrefix(target, "../") || !pathutil.Contains(base, target) {
		logger.Warn("skipping manifest entry outside of the manifest directory")
		return
	}
	if _, ok := r.visited[target]; ok {
		logger.Warn("skipping manifest entry that was already visited")
		return
	}

	node, err := r.viewer.GetNode(target)
	if err != nil {
		logger.Warn("skipping manifest entry that does not exist")
		return
	}
	r.visited[target] = struct{}{}

	if !node.IsDir() {
		r.entries = append(r.entries, target)
		return
	}

	nested := path.Join(target, ManifestFileName)
	if _, ok := r.visited[nested]; ok {
		logger.Warn("skipping manifest that was already visited", "nested", nested)
		return
	}
	file, err := r.viewer.GetFile(nested)
	if err != nil {
		logger.Warn("skipping directory without a manifest")
		return
	}
	r.expand(file)
}
