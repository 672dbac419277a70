package reconcile

import (
	"fmt"
	"strings"

	"callmind/internal/voice"
)

// FormatTranscript renders conversation turns as "[role] text" lines in
// order. Turns missing a role or text are skipped; when nothing renders, the
// raw provider payload is returned so the record still carries something
// reviewable.
func FormatTranscript(d voice.ConversationDetail) string {
	if len(d.Messages) == 0 {
		return string(d.Raw)
	}

	var b strings.Builder
	for _, m := range d.Messages {
		if m.Role == "" || m.Text == "" {
			continue
		}
		fmt.Fprintf(&b, "[%s] %s\n", m.Role, m.Text)
	}
	if b.Len() == 0 {
		return string(d.Raw)
	}
	return b.String()
}
