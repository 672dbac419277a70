package reconcile

import "encoding/json"

// Event is a decoded provider webhook payload. The provider's schema is not
// stable enough to bind to a struct, so only the conceptual fields are lifted
// out and the rest stays opaque in Raw.
type Event struct {
	CallID         string
	ConversationID string
	EventType      string
	Status         string

	Raw json.RawMessage

	fields map[string]any
}

// ParseEvent never fails: an unreadable body yields an Event with all
// identifiers empty, which the reconciler ignores downstream.
func ParseEvent(raw json.RawMessage) Event {
	ev := Event{Raw: raw}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return ev
	}
	ev.fields = fields
	ev.CallID = stringField(fields, "call_id")
	ev.ConversationID = stringField(fields, "conversation_id")
	ev.EventType = stringField(fields, "event_type")
	ev.Status = stringField(fields, "status")
	return ev
}

// Field returns a top-level string field from the payload, or "".
func (e Event) Field(name string) string {
	return stringField(e.fields, name)
}

func stringField(fields map[string]any, name string) string {
	if fields == nil {
		return ""
	}
	if s, ok := fields[name].(string); ok {
		return s
	}
	return ""
}
