// Package channel owns the realtime event connection shared by the chat
// core's stores.
//
// # Overview
//
// One Manager exists per authenticated session. It dials a single websocket
// connection, reads tagged JSON envelopes, and dispatches them on a typed
// event bus. Stores never touch the socket: they register handlers with On
// and send with Emit.
//
//	mgr := channel.NewManager(url, cred, channel.Options{}, logger)
//	off := mgr.On(channel.EventNewMessage, handleMessage)
//	defer off()
//	mgr.Connect(ctx)
//
// # Lifecycle
//
//   - Connect is idempotent; a second call while connected is a no-op.
//   - On success the manager announces user_online exactly once for that
//     connection and re-joins every remembered conversation room once.
//   - A transport-level drop triggers bounded reconnection (exponential
//     backoff, capped attempts). Exhaustion dispatches a terminal
//     disconnected event; the client degrades to REST-only behavior.
//   - Disconnect tears down the socket and unregisters every handler. This
//     is the package's core resource rule: a subscribe without a matching
//     unsubscribe at teardown is a leak and a source of duplicate handlers
//     on re-entry.
//
// # Dispatch model
//
// Events for one connection are dispatched serially from a single goroutine;
// a handler runs to completion before the next event is delivered. Stores
// still guard their state with mutexes because REST completions run on other
// goroutines.
package channel
