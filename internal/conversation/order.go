// ABOUTME: Ordering and duplicate detection rules for conversation logs
// ABOUTME: Messages sort by CreatedAt then id; duplicates share an id or role+content within a window

package conversation

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultDedupWindow is the content-equality window for duplicate detection.
// Two distinct messages with identical role and content inside this window
// merge; this is a known limitation.
const DefaultDedupWindow = 5 * time.Second

// Less orders messages by CreatedAt ascending, breaking ties by id.
func Less(a, b Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return compareIDs(a.ID, b.ID) < 0
}

// compareIDs compares numerically when both ids are integers and
// lexicographically otherwise.
func compareIDs(a, b string) int {
	ai, aErr := strconv.ParseInt(a, 10, 64)
	bi, bErr := strconv.ParseInt(b, 10, 64)
	if aErr == nil && bErr == nil {
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(a, b)
}

func sortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool { return Less(msgs[i], msgs[j]) })
}

// contentKey is the text compared for content duplicates. Attachment urls are
// folded in so attachment-only messages with empty text stay distinct.
func contentKey(m Message) string {
	if len(m.Attachments) == 0 {
		return m.Content
	}
	var b strings.Builder
	b.WriteString(m.Content)
	for _, a := range m.Attachments {
		b.WriteByte('\x00')
		b.WriteString(a.URL)
	}
	return b.String()
}

// IsDuplicate reports whether a and b represent the same message.
func IsDuplicate(a, b Message, window time.Duration) bool {
	if a.ID != "" && a.ID == b.ID {
		return true
	}
	if a.SenderRole != b.SenderRole || contentKey(a) != contentKey(b) {
		return false
	}
	delta := a.CreatedAt.Sub(b.CreatedAt)
	if delta < 0 {
		delta = -delta
	}
	return delta <= window
}

// findDuplicate returns the index of the first message in msgs duplicating m, or -1.
func findDuplicate(msgs []Message, m Message, window time.Duration) int {
	for i := range msgs {
		if IsDuplicate(msgs[i], m, window) {
			return i
		}
	}
	return -1
}

// lastConfirmedID returns the id of the newest non-pending message.
func lastConfirmedID(msgs []Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if !msgs[i].IsPending() {
			return msgs[i].ID
		}
	}
	return ""
}
