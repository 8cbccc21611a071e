// Package auth inspects the marketplace session cookie on the client.
//
// The cookie is usually a JWT signed by the server. The client cannot verify
// the signature, but it can read the exp claim and avoid an identity request
// that is certain to fail:
//
//	if err := auth.CheckExpiry(token, time.Now()); err != nil {
//		// continue as guest
//	}
//
// Opaque tokens are passed through untouched.
package auth
