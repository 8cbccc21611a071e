// ABOUTME: Tests for linku-chat command parsing and message formatting
// ABOUTME: The engine-facing loop is covered by the session package tests

package main

import (
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/ZIon2025-x/LinkU1-sub000/internal/conversation"
	"github.com/ZIon2025-x/LinkU1-sub000/internal/participation"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line    string
		want    command
		isSlash bool
	}{
		{"/use task:7", command{"use", "task:7"}, true},
		{"  /LIST  ", command{"list", ""}, true},
		{"/pay   42 ", command{"pay", "42"}, true},
		{"hello there", command{}, false},
		{"", command{}, false},
	}
	for _, tt := range tests {
		got, ok := parseCommand(tt.line)
		assert.Equal(t, tt.isSlash, ok, tt.line)
		assert.Equal(t, tt.want, got, tt.line)
	}
}

func TestFormatMessage(t *testing.T) {
	color.NoColor = true
	at := time.Date(2024, 5, 1, 12, 30, 0, 0, time.Local)

	assert.Contains(t, formatMessage(conversation.Message{SenderRole: conversation.RoleSelf, Content: "hi", CreatedAt: at}), "me: hi")
	assert.Contains(t, formatMessage(conversation.Message{SenderRole: conversation.RoleOther, SenderID: "u-2", Content: "yo", CreatedAt: at}), "u-2: yo")
	assert.Contains(t, formatMessage(conversation.Message{SenderRole: conversation.RoleOther, SenderID: "u-2", Kind: conversation.MessageImage, CreatedAt: at}), "[image]")
	assert.Contains(t, formatMessage(conversation.Message{SenderRole: conversation.RoleSystem, Content: "ended", CreatedAt: at}), "· ended")
	assert.Contains(t, formatMessage(conversation.Message{SenderRole: conversation.RoleSelf, CreatedAt: at}), "12:30")
}

func TestFormatParticipant(t *testing.T) {
	assert.Equal(t, "in_progress (next: request_exit, complete)",
		formatParticipant(participation.State{Status: participation.StatusInProgress}))
	assert.Equal(t, "completed",
		formatParticipant(participation.State{Status: participation.StatusCompleted}))
}
