// Package notifications maintains the notification list and its unread
// badge.
//
// # Overview
//
// The list is fed from two sources: REST snapshots on startup and pushed
// notifications over the realtime channel. Pushes are deduplicated by ID,
// because the transport redelivers.
//
// The badge count and the list are mutated in the same critical section,
// so the count always equals the number of entries with Read == false.
// Marking reads is optimistic: the badge drops immediately and rolls back
// if the server rejects the mark.
package notifications
