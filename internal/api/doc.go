// Package api is the HTTP client for the LinkU collaborator APIs the sync
// engine depends on.
//
// Every call takes a context and authenticates with the session cookie.
// Non-2xx responses become *StatusError; use errors.Is with ErrUnauthorized
// or ErrNotFound to branch on common cases. Server ids may be numbers or
// strings on the wire and are normalized to strings.
package api
