// ABOUTME: Lifecycle event tags and their fixed message templates
// ABOUTME: Also parses lifecycle payloads embedded as JSON in polled message content

package frame

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// Tag is a task or application lifecycle event tag.
type Tag string

const (
	TagApplicationAccepted  Tag = "application_accepted"
	TagApplicationRejected  Tag = "application_rejected"
	TagApplicationWithdrawn Tag = "application_withdrawn"
	TagNegotiationOffer     Tag = "negotiation_offer"
	TagNegotiationAccepted  Tag = "negotiation_accepted"
	TagNegotiationRejected  Tag = "negotiation_rejected"
	TagTaskCompleted        Tag = "task_completed"
	TagTaskConfirmed        Tag = "task_confirmed"
)

type template struct {
	withTitle    string // one %s for the task title
	withoutTitle string
}

var templates = map[Tag]template{
	TagApplicationAccepted: {
		withTitle:    "Your application for %q was accepted",
		withoutTitle: "Your application was accepted",
	},
	TagApplicationRejected: {
		withTitle:    "Your application for %q was not accepted",
		withoutTitle: "Your application was not accepted",
	},
	TagApplicationWithdrawn: {
		withTitle:    "An application for %q was withdrawn",
		withoutTitle: "An application was withdrawn",
	},
	TagNegotiationOffer: {
		withTitle:    "New price offer for %q",
		withoutTitle: "You received a new price offer",
	},
	TagNegotiationAccepted: {
		withTitle:    "The price offer for %q was accepted",
		withoutTitle: "The price offer was accepted",
	},
	TagNegotiationRejected: {
		withTitle:    "The price offer for %q was declined",
		withoutTitle: "The price offer was declined",
	},
	TagTaskCompleted: {
		withTitle:    "Task %q has been marked as completed",
		withoutTitle: "The task has been marked as completed",
	},
	TagTaskConfirmed: {
		withTitle:    "Completion of task %q has been confirmed",
		withoutTitle: "Task completion has been confirmed",
	},
}

// ParseTag returns the tag for s if it is a known lifecycle tag.
func ParseTag(s string) (Tag, bool) {
	t := Tag(s)
	_, ok := templates[t]
	return t, ok
}

// allTags returns every known lifecycle tag.
func allTags() []Tag {
	return []Tag{
		TagApplicationAccepted, TagApplicationRejected, TagApplicationWithdrawn,
		TagNegotiationOffer, TagNegotiationAccepted, TagNegotiationRejected,
		TagTaskCompleted, TagTaskConfirmed,
	}
}

// Format renders the tag's template. Unknown tags render as the raw tag.
func (t Tag) Format(title string) string {
	tpl, ok := templates[t]
	if !ok {
		return string(t)
	}
	if title == "" {
		return tpl.withoutTitle
	}
	return fmt.Sprintf(tpl.withTitle, title)
}

// FormatContent renders message content that may hold a serialized lifecycle
// payload such as {"type":"task_completed","task_title":"Clean flat"}. The
// tag may also appear under "event". Anything that is not a recognized
// payload is returned verbatim with ok false.
func FormatContent(content string) (text string, ok bool) {
	if !gjson.Valid(content) {
		return content, false
	}
	doc := gjson.Parse(content)
	if !doc.IsObject() {
		return content, false
	}

	raw := doc.Get("type").String()
	if raw == "" {
		raw = doc.Get("event").String()
	}
	tag, known := ParseTag(raw)
	if !known {
		return content, false
	}
	return tag.Format(doc.Get("task_title").String()), true
}
