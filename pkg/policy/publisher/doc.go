// Package publisher tells agents when the policy repository changes.
//
// Each changed directory becomes a topic ("policy:" followed by the
// directory), so agents only hear about the parts of the repository they
// serve. The git Watcher drives the Publisher through OnChange.
package publisher
