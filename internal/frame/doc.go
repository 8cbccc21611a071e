// Package frame classifies inbound push-channel frames.
//
// Classify is the single validation boundary between raw JSON and the engine.
// Each frame maps to exactly one Frame implementation, checked in this order:
//
//  1. type heartbeat → Heartbeat
//  2. type message_sent → SendAck
//  3. type chat_ended or chat_timeout → ChatEnded
//  4. type is a lifecycle Tag → LifecycleEvent (these also carry task_id)
//  5. task_id present → TaskMessage
//  6. chat_id equals the active service chat → ServiceMessage
//  7. from present → GenericMessage
//
// Anything else is ErrUnrecognized; non-objects are ErrMalformed. Callers
// drop both.
//
// Lifecycle text comes from a fixed template table with title-present and
// title-absent variants. FormatContent applies the same table to JSON
// payloads found in polled message content.
package frame
