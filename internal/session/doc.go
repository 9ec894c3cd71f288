// Package session wires one authenticated login together.
//
// # Overview
//
// A Session owns the REST client, the realtime channel manager and the
// four stores that hang off them, plus the local cache and the intent
// tracker. Construction wires the stores to the channel's event bus;
// Start connects and loads the initial snapshots; Close tears everything
// down in dependency order so no handler outlives its store.
//
// The session degrades rather than dies: a channel that will not connect
// leaves a REST-only session, an unreachable server at startup falls back
// to cached snapshots, and only credential problems abort outright.
package session
