// ABOUTME: Collaborator API calls used by the sync engine
// ABOUTME: Identity, conversations, messages, read marks, unread recount and task actions

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ZIon2025-x/LinkU1-sub000/internal/conversation"
)

// conversationPath maps a local conversation id onto its API path.
func conversationPath(convID string) (string, error) {
	kind, ext, err := conversation.ParseID(convID)
	if err != nil {
		return "", err
	}
	return "/api/conversations/" + string(kind) + "/" + url.PathEscape(ext), nil
}

// Me returns the authenticated identity.
func (c *Client) Me(ctx context.Context) (*Identity, error) {
	var id Identity
	if err := c.do(ctx, http.MethodGet, "/api/users/me", nil, &id); err != nil {
		return nil, err
	}
	return &id, nil
}

// ListConversations returns every conversation with unread counts and previews.
func (c *Client) ListConversations(ctx context.Context) ([]ConversationSummary, error) {
	var out struct {
		Conversations []ConversationSummary `json:"conversations"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

// FetchMessages returns one page of messages. An empty cursor fetches the
// newest page; NextCursor pages backward.
func (c *Client) FetchMessages(ctx context.Context, convID, cursor string, limit int) (*MessagePage, error) {
	path, err := conversationPath(convID)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path += "/messages"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var page MessagePage
	if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// LatestMessage returns only the newest message, or nil when the conversation
// is empty.
func (c *Client) LatestMessage(ctx context.Context, convID string) (*Message, error) {
	path, err := conversationPath(convID)
	if err != nil {
		return nil, err
	}
	var m Message
	err = c.do(ctx, http.MethodGet, path+"/messages/latest", nil, &m)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// SendMessage posts a message and returns the server's stored copy.
func (c *Client) SendMessage(ctx context.Context, convID string, req SendRequest) (*Message, error) {
	path, err := conversationPath(convID)
	if err != nil {
		return nil, err
	}
	var m Message
	if err := c.do(ctx, http.MethodPost, path+"/messages", req, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// MarkRead acknowledges every message up to and including messageID.
func (c *Client) MarkRead(ctx context.Context, convID, messageID string) error {
	path, err := conversationPath(convID)
	if err != nil {
		return err
	}
	body := map[string]string{"message_id": messageID}
	return c.do(ctx, http.MethodPost, path+"/read", body, nil)
}

// UnreadCounts returns the authoritative unread recount.
func (c *Client) UnreadCounts(ctx context.Context) (*UnreadCounts, error) {
	var out UnreadCounts
	if err := c.do(ctx, http.MethodGet, "/api/messages/unread", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListTasks returns the user's tasks.
func (c *Client) ListTasks(ctx context.Context) ([]Task, error) {
	var out struct {
		Tasks []Task `json:"tasks"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/tasks", nil, &out); err != nil {
		return nil, err
	}
	return out.Tasks, nil
}

// GetApplication fetches one application.
func (c *Client) GetApplication(ctx context.Context, taskID, applicationID string) (*Application, error) {
	var out Application
	path := fmt.Sprintf("/api/tasks/%s/applications/%s", url.PathEscape(taskID), url.PathEscape(applicationID))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DecideApplication approves (approve=true) or rejects an application.
func (c *Client) DecideApplication(ctx context.Context, taskID, applicationID string, approve bool) error {
	verb := "reject"
	if approve {
		verb = "approve"
	}
	path := fmt.Sprintf("/api/tasks/%s/applications/%s/%s", url.PathEscape(taskID), url.PathEscape(applicationID), verb)
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// ApplyToTask applies the logged-in user to taskID and returns the new
// participant record.
func (c *Client) ApplyToTask(ctx context.Context, taskID string) (*Participant, error) {
	var out Participant
	path := fmt.Sprintf("/api/tasks/%s/apply", url.PathEscape(taskID))
	if err := c.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetParticipant fetches one participant record.
func (c *Client) GetParticipant(ctx context.Context, taskID, userID string) (*Participant, error) {
	var out Participant
	path := fmt.Sprintf("/api/tasks/%s/participants/%s", url.PathEscape(taskID), url.PathEscape(userID))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TaskAction is a task lifecycle action name understood by the server.
type TaskAction string

const (
	ActionApprove          TaskAction = "approve"
	ActionReject           TaskAction = "reject"
	ActionStart            TaskAction = "start"
	ActionComplete         TaskAction = "complete"
	ActionConfirm          TaskAction = "confirm"
	ActionDistributeReward TaskAction = "distribute_reward"
	ActionRequestExit      TaskAction = "exit_request"
	ActionApproveExit      TaskAction = "exit_approve"
	ActionRejectExit       TaskAction = "exit_reject"
)

// ParticipantAction performs action on userID's participation in taskID.
func (c *Client) ParticipantAction(ctx context.Context, taskID, userID string, action TaskAction) error {
	path := fmt.Sprintf("/api/tasks/%s/participants/%s/%s", url.PathEscape(taskID), url.PathEscape(userID), action)
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// TaskLifecycle performs a task-level action such as confirm or distribute_reward.
func (c *Client) TaskLifecycle(ctx context.Context, taskID string, action TaskAction) error {
	path := fmt.Sprintf("/api/tasks/%s/%s", url.PathEscape(taskID), action)
	return c.do(ctx, http.MethodPost, path, nil, nil)
}
