// Package intent decides when a conversation looks like the participants
// are arranging a paid session, so the UI can offer a booking prompt.
//
// Detect and LastMatch are pure functions over the last few messages of a
// timeline. Tracker carries the one piece of state the heuristic itself
// must not own: which intent signal the user already dismissed, per
// conversation, so the prompt only returns when a newer matching message
// arrives.
package intent
