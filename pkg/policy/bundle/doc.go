// Package bundle builds policy bundles from commits of the policy
// repository.
//
// A bundle holds the policy modules and data.json documents selected by the
// configured extensions, directories and ignore globs, listed in load order.
// The order comes from .manifest files: each line names a file or a
// directory relative to the manifest, and a directory line expands that
// directory's own manifest. Files not named by any manifest follow in tree
// order.
//
// MakeDiffBundle returns only what changed between two commits, together
// with the modules to delete. ForceFullResync returns the directories an
// agent must fetch again from scratch.
package bundle
