package calls

import (
	"encoding/json"
	"testing"
	"time"
)

func TestStatus_FailurePredicate(t *testing.T) {
	failures := []Status{
		StatusInitiationFailed, StatusBusy, StatusNoAnswer,
		StatusFailed, StatusCanceled, StatusUnreachable, StatusRejected,
	}
	for _, s := range failures {
		if !s.IsFailure() {
			t.Fatalf("expected %q to be a failure status", s)
		}
		if !s.IsTerminal() {
			t.Fatalf("expected failure status %q to be terminal", s)
		}
	}

	for _, s := range []Status{StatusCreated, StatusInitiated, StatusRinging, StatusAnswered} {
		if s.IsFailure() || s.IsTerminal() {
			t.Fatalf("expected %q to be non-terminal and non-failure", s)
		}
	}

	if !StatusCompleted.IsTerminal() || !StatusEnded.IsTerminal() {
		t.Fatalf("expected completed and ended to be terminal")
	}
}

func TestApply_StickyFailureReason(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rec := Record{Status: StatusRinging}

	rec = rec.Apply(Update{Status: StatusBusy, FailureReason: "Recipient is busy"}, now)
	if rec.FailureReason != "Recipient is busy" {
		t.Fatalf("expected failure reason set, got %q", rec.FailureReason)
	}

	// A later non-failure event with no reason must not clear it.
	rec = rec.Apply(Update{Status: StatusRinging}, now.Add(time.Second))
	if rec.FailureReason != "Recipient is busy" {
		t.Fatalf("expected sticky failure reason, got %q", rec.FailureReason)
	}

	// A new non-empty reason replaces the old one.
	rec = rec.Apply(Update{Status: StatusFailed, FailureReason: "Call failed - call.failed"}, now.Add(2*time.Second))
	if rec.FailureReason != "Call failed - call.failed" {
		t.Fatalf("expected replacement, got %q", rec.FailureReason)
	}
}

func TestApply_TranscriptSetAtMostOnce(t *testing.T) {
	now := time.Now().UTC()
	rec := Record{Status: StatusCompleted}

	rec = rec.Apply(Update{Transcript: "[agent] Hello\n", DurationSeconds: 42}, now)
	if rec.Transcript != "[agent] Hello\n" || rec.DurationSeconds != 42 {
		t.Fatalf("expected transcript and duration set, got %+v", rec)
	}

	rec = rec.Apply(Update{Transcript: "[agent] Replaced\n", DurationSeconds: 7}, now)
	if rec.Transcript != "[agent] Hello\n" {
		t.Fatalf("transcript must be set-and-forget, got %q", rec.Transcript)
	}
	if rec.DurationSeconds != 42 {
		t.Fatalf("duration must be set-and-forget, got %d", rec.DurationSeconds)
	}

	rec = rec.Apply(Update{Status: StatusEnded}, now)
	if rec.Transcript == "" {
		t.Fatalf("transcript must never be cleared")
	}
}

func TestApply_RawResponseLastWriteWins(t *testing.T) {
	now := time.Now().UTC()
	rec := Record{RawResponse: json.RawMessage(`{"event_type":"call.ringing"}`)}

	rec = rec.Apply(Update{RawResponse: json.RawMessage(`{"event_type":"call.answered"}`)}, now)
	if string(rec.RawResponse) != `{"event_type":"call.answered"}` {
		t.Fatalf("expected newest payload kept, got %s", rec.RawResponse)
	}

	// Empty payload is "no contribution", not a clear.
	rec = rec.Apply(Update{Status: StatusEnded}, now)
	if len(rec.RawResponse) == 0 {
		t.Fatalf("expected raw response retained")
	}
}

func TestApply_EmptyStatusKeepsCurrent(t *testing.T) {
	now := time.Now().UTC()
	rec := Record{Status: StatusAnswered}

	rec = rec.Apply(Update{RawResponse: json.RawMessage(`{}`)}, now)
	if rec.Status != StatusAnswered {
		t.Fatalf("expected status retained, got %q", rec.Status)
	}
	if !rec.StatusUpdatedAt.Equal(now) {
		t.Fatalf("expected status_updated_at stamped")
	}
}

func TestApply_UnknownStatusNeverRegressesTerminalState(t *testing.T) {
	now := time.Now().UTC()

	for _, terminal := range []Status{StatusCompleted, StatusEnded, StatusBusy} {
		rec := Record{Status: terminal}
		rec = rec.Apply(Update{Status: Status("weird_state")}, now)
		if rec.Status != terminal {
			t.Fatalf("unknown status displaced terminal %q, got %q", terminal, rec.Status)
		}
	}

	// Non-terminal records store unrecognized statuses verbatim.
	rec := Record{Status: StatusRinging}
	rec = rec.Apply(Update{Status: Status("weird_state")}, now)
	if rec.Status != Status("weird_state") {
		t.Fatalf("expected verbatim unknown status, got %q", rec.Status)
	}

	// Canonical statuses still overwrite terminal states (last event wins).
	rec = Record{Status: StatusCompleted}
	rec = rec.Apply(Update{Status: StatusRinging}, now)
	if rec.Status != StatusRinging {
		t.Fatalf("expected canonical status to win, got %q", rec.Status)
	}
}

func TestApply_IsPure(t *testing.T) {
	now := time.Now().UTC()
	orig := Record{Status: StatusRinging, FailureReason: "x"}
	_ = orig.Apply(Update{Status: StatusCompleted}, now)
	if orig.Status != StatusRinging {
		t.Fatalf("Apply must not mutate its receiver")
	}
}
