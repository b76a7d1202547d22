// Package git provides read-only access to the policy repository.
//
// A Repository either serves an existing local repository in place or
// clones a remote one and keeps it up to date with Pull. Commits are then
// inspected through two snapshot views that never modify the repository:
//
//   - CommitViewer walks the tree of one commit. Nodes yields a lazy,
//     depth-first sequence with every directory before its children; Files
//     and Directories filter it by type; GetFile, GetDirectory and Exists
//     do exact-path lookups.
//   - DiffViewer lists the changes between two commits, classified as
//     added, deleted, renamed or modified. AddedOrModifiedFiles returns the
//     new commit's blobs and DeletedFiles the old commit's blobs; a rename
//     shows up in both.
//
// # Basic Usage
//
//	repo, err := git.NewRepository(&cfg.Repository)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := repo.Open(ctx); err != nil {
//		log.Fatal(err)
//	}
//
//	head, _ := repo.HeadCommit()
//	viewer, _ := git.NewCommitViewer(head)
//	for f := range viewer.Files(nil) {
//		fmt.Println(f.Path())
//	}
//
// # Change Detection
//
// The Watcher polls the repository and reports branch movements as
// (old, new) commit pairs, debouncing bursts of commits:
//
//	watcher := git.NewWatcher(repo, 30*time.Second, 10*time.Second, onChange)
//	watcher.Start(ctx)
//
// # Authentication
//
// Remote repositories support token (HTTPS), SSH key and anonymous access.
package git
