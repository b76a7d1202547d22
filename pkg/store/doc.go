// Package store holds the policy data written by the updater.
//
// A DocumentStore keeps the data as a single JSON document addressed by
// slash-separated paths. The memory backend is the default; the sqlite
// backend persists the document and the transaction history so a restarted
// client can serve the last known data before its first sync.
//
// Writes made inside Transaction are applied immediately and are not rolled
// back: each path write is independent, and the transaction only scopes the
// bookkeeping of one data update (its actions and remote fetch statuses).
package store
