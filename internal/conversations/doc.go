// Package conversations holds the per-session conversation list: summaries,
// unread counters and peer presence.
//
// State merges from two sources. REST snapshots arrive through Load, which
// falls back to the last-known-good cached list on transient failure so the
// UI always has something to render. Socket events arrive through Attach's
// handlers and advance summaries immediately.
//
// Two ordering rules keep the merge deterministic: a conversation's
// LastMessageAt only moves forward (the later timestamp wins, equal
// timestamps keep the first-applied value), and the unread counter
// increments only for conversations that are not currently selected.
package conversations
