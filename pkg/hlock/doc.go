// Package hlock provides a lock keyed by hierarchical paths, used to
// serialize writes to overlapping parts of the policy store.
package hlock
