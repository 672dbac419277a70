package reconcile

import (
	"encoding/json"
	"testing"

	"callmind/internal/voice"
)

func TestFormatTranscript_RendersRoleLines(t *testing.T) {
	got := FormatTranscript(voice.ConversationDetail{
		Messages: []voice.Turn{
			{Role: "agent", Text: "Hello"},
			{Role: "user", Text: "Hi there"},
		},
	})
	want := "[agent] Hello\n[user] Hi there\n"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestFormatTranscript_SkipsIncompleteTurns(t *testing.T) {
	got := FormatTranscript(voice.ConversationDetail{
		Messages: []voice.Turn{
			{Role: "agent", Text: "Hello"},
			{Role: "", Text: "orphan"},
			{Role: "user", Text: ""},
		},
	})
	if got != "[agent] Hello\n" {
		t.Fatalf("expected incomplete turns skipped, got %q", got)
	}
}

func TestFormatTranscript_FallsBackToRaw(t *testing.T) {
	raw := json.RawMessage(`{"duration":10}`)

	if got := FormatTranscript(voice.ConversationDetail{Raw: raw}); got != string(raw) {
		t.Fatalf("expected raw fallback with no messages, got %q", got)
	}

	// All turns unrenderable also falls back.
	got := FormatTranscript(voice.ConversationDetail{
		Raw:      raw,
		Messages: []voice.Turn{{Role: "", Text: ""}},
	})
	if got != string(raw) {
		t.Fatalf("expected raw fallback, got %q", got)
	}
}
