// Package messages owns the active conversation's timeline: the ordered,
// deduplicated merge of three independent sources.
//
// # Sources
//
//   - REST history: LoadHistory fetches the page for a newly selected
//     conversation. Socket messages arriving mid-fetch are buffered and
//     merged after the fetch resolves, never dropped or double-inserted.
//   - Optimistic sends: SendOptimistic appends a pending entry with a
//     client-generated TempID before any network round trip.
//   - Socket events: new_message deliveries for the active conversation.
//
// # Reconciliation
//
// A confirmation carrying a pending entry's TempID replaces that entry in
// place, same position, status sent. Delivery is at-least-once — the REST
// response and the socket echo can both confirm — so every application is
// gated through a dedupe cache keyed by TempID and server ID. A TempID-less
// echo from the session user is matched by (conversation, text, CreatedAt
// within a 2s window) before it is allowed to insert.
//
// A rejected send flips the entry to failed, visibly; a confirmation that
// raced ahead of the rejection wins. Entries are never silently discarded.
//
// # Ordering
//
// The timeline sorts by (CreatedAt, arrival sequence). Selecting a new
// conversation bumps a generation counter; a history response resolving for
// a superseded generation is discarded rather than overwriting the newer
// conversation's view.
package messages
