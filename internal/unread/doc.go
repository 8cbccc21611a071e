// Package unread maintains the session's aggregate unread count.
//
// Two producers report new messages: push delivery and polling. Observe
// counts a message only the first time its id is reported, bumps a
// provisional count and schedules a debounced authoritative Recount whose
// result replaces everything.
//
// MarkRead clears a conversation only when the viewport is within the
// near-bottom threshold and the server acknowledged the read of the newest
// message. Failed acknowledgements are retried by RetryPendingReads.
//
// SentinelWatcher implements the cross-tab protocol: a tab that finishes an
// out-of-band change writes payment_success_<taskId> = "true"; every other tab
// reconciles, recounts and deletes the key.
package unread
