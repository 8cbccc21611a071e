// ABOUTME: Tests for markdown preview extraction
// ABOUTME: Covers formatting removal, placeholders and rune-safe truncation

package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlainText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"**bold** and _em_", "bold and em"},
		{"# Title\n\nbody line", "Title body line"},
		{"see [docs](https://example.com)", "see docs"},
		{"- one\n- two", "one two"},
		{"`code` span", "code span"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PlainText(tt.in), tt.in)
	}
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "[image]", Preview(Message{Kind: MessageImage, Content: "x.png"}, 10))
	assert.Equal(t, "[file]", Preview(Message{Kind: MessageFile}, 10))
	assert.Equal(t, "你好世界…", Preview(Message{Kind: MessageText, Content: "你好世界朋友"}, 4))
	assert.Equal(t, "short", Preview(Message{Kind: MessageText, Content: "short"}, 0))
}
