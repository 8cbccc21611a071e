// Package push owns the realtime push channel.
//
// Manager keeps exactly one WebSocket per session, addressed by user id and
// authenticated by the session cookie. Heartbeat frames are consumed here;
// every other frame goes to the handler for classification.
//
// Reconnect policy: after any close other than a normal closure, wait a fixed
// ReconnectDelay and redial, at most MaxReconnectAttempts times in a row. A
// successful open resets the count. Once the attempts run out the push path
// stays down until Connect is called again. Close disables reconnects for
// good and any timer that fires afterwards is a no-op.
//
// Send never fails loudly: it reports whether the frame reached an open
// connection so callers can fall back to HTTP.
package push
