// Package security holds the credentials plumbing of the data fetcher:
// secret resolution for request headers (package secrets) and TLS client
// configuration with certificate reloading (package tls).
package security
