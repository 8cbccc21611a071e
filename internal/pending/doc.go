// Package pending implements optimistic message sends.
//
// Submit inserts a pending echo with a temporary id, then tries the push
// channel and falls back to HTTP. A push success confirms the echo in place;
// an HTTP success swaps it for the server copy at the same position. When
// both fail the echo is removed and *SendError returns the original input.
// Only one send per conversation may be in flight.
package pending
