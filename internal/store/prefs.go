// ABOUTME: Per-user persisted client preferences on top of Storage
// ABOUTME: Holds the hidden conversation set and the active service chat handle

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

const (
	removedConversationsPrefix = "removed_conversations_"
	activeServiceChatPrefix    = "active_service_chat_"
)

// Prefs reads and writes per-user client state. It is never a source of
// truth for message content.
type Prefs struct {
	storage Storage
}

// NewPrefs creates Prefs backed by storage.
func NewPrefs(storage Storage) *Prefs {
	return &Prefs{storage: storage}
}

// RemovedConversations returns the hidden conversation ids for userID.
// A corrupt value is treated as empty.
func (p *Prefs) RemovedConversations(ctx context.Context, userID string) (map[string]bool, error) {
	raw, err := p.storage.Get(ctx, removedConversationsPrefix+userID)
	if errors.Is(err, ErrNotFound) {
		return map[string]bool{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading removed conversations: %w", err)
	}

	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return map[string]bool{}, nil
	}
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

// SetRemoved adds or removes one conversation id from the hidden set.
func (p *Prefs) SetRemoved(ctx context.Context, userID, conversationID string, removed bool) error {
	set, err := p.RemovedConversations(ctx, userID)
	if err != nil {
		return err
	}
	if set[conversationID] == removed {
		return nil
	}
	if removed {
		set[conversationID] = true
	} else {
		delete(set, conversationID)
	}

	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encoding removed conversations: %w", err)
	}
	if err := p.storage.Set(ctx, removedConversationsPrefix+userID, string(data)); err != nil {
		return fmt.Errorf("writing removed conversations: %w", err)
	}
	return nil
}

// ActiveServiceChat returns the persisted active service chat id, or "".
func (p *Prefs) ActiveServiceChat(ctx context.Context, userID string) (string, error) {
	v, err := p.storage.Get(ctx, activeServiceChatPrefix+userID)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading active service chat: %w", err)
	}
	return v, nil
}

// SetActiveServiceChat persists chatID as the active handle. An empty chatID
// clears it.
func (p *Prefs) SetActiveServiceChat(ctx context.Context, userID, chatID string) error {
	key := activeServiceChatPrefix + userID
	if chatID == "" {
		return p.storage.Delete(ctx, key)
	}
	return p.storage.Set(ctx, key, chatID)
}
