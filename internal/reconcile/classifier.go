package reconcile

import (
	"callmind/internal/calls"
)

// Classification is the canonical reading of one provider event.
type Classification struct {
	// Status is empty when the event carried nothing usable; the record
	// then keeps its current status.
	Status calls.Status

	// IsFailure is true iff the event type is one of the fixed failure
	// variants. A pass-through status never sets it.
	IsFailure bool

	// FailureReason is populated only when IsFailure is true.
	FailureReason string
}

// eventStatuses is the fixed table from provider event-type vocabulary to
// canonical status. It must cover every entry of the status callback
// subscription in internal/voice.
var eventStatuses = map[string]calls.Status{
	"call.initiated": calls.StatusInitiated,
	"call.ringing":   calls.StatusRinging,
	"call.answered":  calls.StatusAnswered,
	"call.completed": calls.StatusCompleted,
	"call.ended":     calls.StatusEnded,

	"call.initiation_failed": calls.StatusInitiationFailed,
	"call.busy":              calls.StatusBusy,
	"call.no_answer":         calls.StatusNoAnswer,
	"call.failed":            calls.StatusFailed,
	"call.canceled":          calls.StatusCanceled,
	"call.unreachable":       calls.StatusUnreachable,
	"call.rejected":          calls.StatusRejected,
}

// cannedFailureReasons are the human-readable fallbacks per failure event
// type, used when the payload carries no explicit reason field.
var cannedFailureReasons = map[string]string{
	"call.initiation_failed": "Call could not be initiated",
	"call.busy":              "Recipient is busy",
	"call.no_answer":         "Recipient did not answer",
	"call.canceled":          "Call was canceled",
	"call.unreachable":       "Recipient unreachable",
	"call.rejected":          "Call was rejected",
}

// Classify maps a raw provider event to a canonical status plus failure
// information. It is total and side-effect free: statuses are never
// invented, and missing failure fields resolve to documented canned strings.
//
// Status precedence: a failure event type forces its canonical failure
// status; otherwise the payload's own explicit status wins verbatim (the
// provider reports sub-status transitions like answered-with-completed this
// way); otherwise the event-type table; otherwise empty, which keeps the
// record's current status downstream.
func Classify(ev Event) Classification {
	status, known := eventStatuses[ev.EventType]
	if !known {
		return Classification{Status: calls.Status(ev.Status)}
	}

	if status.IsFailure() {
		return Classification{
			Status:        status,
			IsFailure:     true,
			FailureReason: failureReason(ev),
		}
	}

	if ev.Status != "" {
		return Classification{Status: calls.Status(ev.Status)}
	}
	return Classification{Status: status}
}

// failureReason resolution order: explicit failure_reason, error_message,
// message fields; then the canned per-type string; then a generic fallback.
// First non-empty match wins.
func failureReason(ev Event) string {
	for _, field := range []string{"failure_reason", "error_message", "message"} {
		if v := ev.Field(field); v != "" {
			return v
		}
	}
	if canned := cannedFailureReasons[ev.EventType]; canned != "" {
		return canned
	}
	return "Call failed - " + ev.EventType
}
