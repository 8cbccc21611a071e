// Package dedupe tracks message ids that have already been counted so the
// unread aggregate sees each message once, whichever delivery path reports it.
package dedupe
