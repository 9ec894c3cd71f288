// Package dedupe collapses at-least-once event delivery to at-most-once
// application.
//
// The same logical message can reach the client up to three times: as the
// REST response to the send call, as the socket echo of that send, and after
// a reconnect replay. Stores gate every state mutation through
// Cache.CheckAndMark keyed on the message's identity (TempID before
// confirmation, server ID after), so duplicates are dropped instead of
// double-applied.
//
// The cache is bounded by both a TTL and a maximum size; a background
// goroutine sweeps expired entries and Close stops it.
package dedupe
