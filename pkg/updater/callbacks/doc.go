// Package callbacks tracks third parties interested in update reports and
// delivers the reports to them through the fetching engine.
//
// Destinations registered without a key are keyed by a hash of their URL
// and config, which makes registration idempotent across processes.
package callbacks
