// Package session is the conversation sync engine as a whole.
//
// An Engine owns one conversation store for the life of the process. Logging
// in builds a session around it: the push channel, the unread aggregate, the
// send tracker, the polling reconciler and a storage tab for cross-tab
// notices. Logging out tears all of those down and empties the store, so no
// state carries over to the next user.
//
// Push frames are classified once on arrival and routed by kind. Every path
// that adds messages goes through the store, which deduplicates and orders
// them regardless of which path delivered first.
package session
