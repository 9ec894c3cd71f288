// Package cache is the client's local SQLite database.
//
// It persists the last successfully fetched conversation and notification
// snapshots so the client can start read-only when the server is
// unreachable, and a small key/value table for client state that should
// survive restarts. Snapshots are replaced wholesale on each successful
// fetch; the cache never merges.
package cache
