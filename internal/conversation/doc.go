// Package conversation holds the local, per-conversation message log.
//
// # Store
//
// Store is the single authority for message order and identity. Push frames,
// polling results, history pages and optimistic sends all enter through it:
//
//	store := conversation.NewStore(conversation.WithBroadcaster(b))
//	store.Insert(conversation.TaskID("42"), msg)
//
// Every mutation re-applies two rules:
//
//   - Order: CreatedAt ascending, ties broken by id (numeric when both ids
//     are integers, lexicographic otherwise)
//   - Identity: a message duplicates another if they share an id, or share
//     sender role and content with CreatedAt within the dedup window
//
// Pending messages (optimistic echoes) are replaced in place by
// ReplacePending, confirmed in place by ConfirmPending, or removed by
// RemovePending. LastMessageID only moves on forward inserts and window
// replacement; PrependHistory never touches it.
//
// # Broadcaster
//
// Broadcaster fans out Update notifications so a UI can follow one
// conversation or AllConversations. Updates carry no payload; read state
// with Store.Snapshot.
//
// # Previews
//
// Preview turns markdown content into a short single-line string for lists.
package conversation
