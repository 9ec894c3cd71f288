// Package typing coordinates typing indicators in both directions.
//
// # Overview
//
// Outbound, a burst of keystrokes collapses into a single typing_start
// event; further keystrokes within the idle window only extend the
// auto-stop deadline. The matching typing_stop is emitted when the user
// goes idle, sends the message, or switches conversations.
//
// Inbound, each remote indicator carries its own expiry. Indicators
// disappear when a typing_stop arrives or when the expiry lapses,
// whichever comes first, so a dropped stop event can never pin a
// "is typing" line on screen forever. The session user's own echoes are
// ignored entirely.
package typing
