package reconcile

import (
	"encoding/json"
	"testing"

	"callmind/internal/calls"
)

func event(t *testing.T, body string) Event {
	t.Helper()
	return ParseEvent(json.RawMessage(body))
}

func TestClassify_KnownEventTypes(t *testing.T) {
	cases := []struct {
		eventType string
		want      calls.Status
		failure   bool
	}{
		{"call.initiated", calls.StatusInitiated, false},
		{"call.ringing", calls.StatusRinging, false},
		{"call.answered", calls.StatusAnswered, false},
		{"call.completed", calls.StatusCompleted, false},
		{"call.ended", calls.StatusEnded, false},
		{"call.initiation_failed", calls.StatusInitiationFailed, true},
		{"call.busy", calls.StatusBusy, true},
		{"call.no_answer", calls.StatusNoAnswer, true},
		{"call.failed", calls.StatusFailed, true},
		{"call.canceled", calls.StatusCanceled, true},
		{"call.unreachable", calls.StatusUnreachable, true},
		{"call.rejected", calls.StatusRejected, true},
	}

	for _, tc := range cases {
		t.Run(tc.eventType, func(t *testing.T) {
			cls := Classify(event(t, `{"event_type":"`+tc.eventType+`"}`))
			if cls.Status != tc.want {
				t.Fatalf("expected status %q, got %q", tc.want, cls.Status)
			}
			if cls.IsFailure != tc.failure {
				t.Fatalf("expected failure=%v", tc.failure)
			}
			if tc.failure && cls.FailureReason == "" {
				t.Fatalf("expected a failure reason for %q", tc.eventType)
			}
			if !tc.failure && cls.FailureReason != "" {
				t.Fatalf("unexpected failure reason %q", cls.FailureReason)
			}
		})
	}
}

func TestClassify_UnknownTypePassesStatusThrough(t *testing.T) {
	cls := Classify(event(t, `{"event_type":"call.mystery","status":"weird_state"}`))
	if cls.Status != calls.Status("weird_state") {
		t.Fatalf("expected verbatim pass-through, got %q", cls.Status)
	}
	if cls.IsFailure {
		t.Fatalf("unknown types are never failures")
	}
}

func TestClassify_ExplicitStatusWinsForNonFailureTypes(t *testing.T) {
	// answered carrying the completed sub-status classifies as completed.
	cls := Classify(event(t, `{"event_type":"call.answered","status":"completed"}`))
	if cls.Status != calls.StatusCompleted {
		t.Fatalf("expected completed, got %q", cls.Status)
	}
	if cls.IsFailure {
		t.Fatalf("unexpected failure flag")
	}
}

func TestClassify_FailureTypeForcesFailureStatus(t *testing.T) {
	// An explicit status never overrides a failure event type.
	cls := Classify(event(t, `{"event_type":"call.busy","status":"in_progress"}`))
	if cls.Status != calls.StatusBusy {
		t.Fatalf("expected busy, got %q", cls.Status)
	}
	if !cls.IsFailure {
		t.Fatalf("expected failure flag")
	}
}

func TestClassify_UnknownTypeWithoutStatus(t *testing.T) {
	cls := Classify(event(t, `{"event_type":"call.mystery"}`))
	if cls.Status != "" {
		t.Fatalf("expected empty status, got %q", cls.Status)
	}
}

func TestClassify_FailureReasonResolutionOrder(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"explicit failure_reason wins", `{"event_type":"call.busy","failure_reason":"carrier says busy","error_message":"x","message":"y"}`, "carrier says busy"},
		{"error_message second", `{"event_type":"call.busy","error_message":"trunk error","message":"y"}`, "trunk error"},
		{"message third", `{"event_type":"call.busy","message":"try again"}`, "try again"},
		{"canned per-type", `{"event_type":"call.busy"}`, "Recipient is busy"},
		{"canned no_answer", `{"event_type":"call.no_answer"}`, "Recipient did not answer"},
		{"generic last resort", `{"event_type":"call.failed"}`, "Call failed - call.failed"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cls := Classify(event(t, tc.body))
			if cls.FailureReason != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, cls.FailureReason)
			}
		})
	}
}

func TestClassify_NeverPanicsOnGarbage(t *testing.T) {
	for _, body := range []string{``, `not json`, `[]`, `{"status":42,"event_type":{}}`} {
		cls := Classify(ParseEvent(json.RawMessage(body)))
		if cls.IsFailure {
			t.Fatalf("garbage must not classify as failure: %q", body)
		}
	}
}

func TestClassifier_CoversCallbackSubscription(t *testing.T) {
	// Every event type we subscribe to at the provider must classify to a
	// known canonical status, not fall into pass-through.
	for _, et := range []string{
		"call.initiated", "call.ringing", "call.answered", "call.completed",
		"call.ended", "call.initiation_failed", "call.busy", "call.no_answer",
		"call.failed", "call.canceled", "call.unreachable", "call.rejected",
	} {
		if _, ok := eventStatuses[et]; !ok {
			t.Fatalf("subscribed event type %q is not classified", et)
		}
	}
}
