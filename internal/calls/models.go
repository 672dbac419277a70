package calls

import (
	"encoding/json"
	"time"
)

// Record is the unit of reconciliation: one outbound incident callout.
//
// Invariants:
// - ProviderCallID, when non-empty, is unique across all records.
// - Version increases by exactly 1 per accepted write; writes carrying a stale
//   version are rejected by the store (see Store.Save).
// - FailureReason and Transcript are sticky: once set they are never cleared
//   by a later event carrying an empty value.
// - RawResponse is the opposite: always overwritten with the newest provider
//   payload, full fidelity, opaque structure.
//
// Records are never deleted by this service; cleanup is an administrative
// operation outside the API.
type Record struct {
	ID string `json:"id" db:"id"`

	// ProviderCallID is the provider's call identifier. Empty until the
	// provider has assigned one (the record is created before the outbound
	// call request is sent).
	ProviderCallID string `json:"provider_call_id,omitempty" db:"provider_call_id"`

	// ConversationID is a secondary provider identifier discovered from
	// lifecycle payloads. Fallback lookup key only, never the primary key.
	ConversationID string `json:"conversation_id,omitempty" db:"conversation_id"`

	ToNumber string `json:"to_number" db:"to_number"`

	AgentID            string `json:"agent_id,omitempty" db:"agent_id"`
	AgentPhoneNumberID string `json:"agent_phone_number_id,omitempty" db:"agent_phone_number_id"`

	Status Status `json:"status" db:"status"`

	// RequestPayload is the original call-creation request. Immutable.
	RequestPayload json.RawMessage `json:"request_payload,omitempty" db:"request_payload"`

	// RawResponse is the last raw payload received from the provider.
	RawResponse json.RawMessage `json:"raw_response,omitempty" db:"raw_response"`

	Transcript      string `json:"transcript,omitempty" db:"transcript"`
	DurationSeconds int    `json:"duration_seconds,omitempty" db:"duration_seconds"`

	FailureReason string `json:"failure_reason,omitempty" db:"failure_reason"`

	Version int64 `json:"version" db:"version"`

	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	StatusUpdatedAt time.Time `json:"status_updated_at" db:"status_updated_at"`
}

// Status is the canonical lifecycle position, independent of the provider's
// event vocabulary. Values outside this set can still be stored verbatim when
// the provider reports a status we do not recognize.
type Status string

const (
	StatusCreated   Status = "created"
	StatusInitiated Status = "initiated"
	StatusRinging   Status = "ringing"
	StatusAnswered  Status = "answered"
	StatusCompleted Status = "completed"
	StatusEnded     Status = "ended"

	StatusInitiationFailed Status = "initiation_failed"
	StatusBusy             Status = "busy"
	StatusNoAnswer         Status = "no_answer"
	StatusFailed           Status = "failed"
	StatusCanceled         Status = "canceled"
	StatusUnreachable      Status = "unreachable"
	StatusRejected         Status = "rejected"
)

// IsFailure reports whether s is one of the canonical failure variants.
func (s Status) IsFailure() bool {
	switch s {
	case StatusInitiationFailed, StatusBusy, StatusNoAnswer, StatusFailed,
		StatusCanceled, StatusUnreachable, StatusRejected:
		return true
	default:
		return false
	}
}

// IsCanonical reports whether s is one of the statuses this service defines.
// Provider payloads can carry values outside this set; those are stored
// verbatim, but only while the record is in a non-terminal state.
func (s Status) IsCanonical() bool {
	switch s {
	case StatusCreated, StatusInitiated, StatusRinging,
		StatusAnswered, StatusCompleted, StatusEnded:
		return true
	default:
		return s.IsFailure()
	}
}

// IsTerminal reports whether no further status-changing events are expected
// under normal operation. Note that terminal is advisory only: late provider
// events still overwrite status (see Update semantics).
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusEnded || s.IsFailure()
}

// Update carries the fields a single inbound provider event may contribute to
// a record. Zero values mean "no contribution" for every field except
// RawResponse, which is last-write-wins by contract.
type Update struct {
	// Status replaces the record's status when non-empty. No monotonicity is
	// enforced for canonical statuses: a stale ringing after completed still
	// wins, and StatusUpdatedAt carries the ordering history. A value outside
	// the canonical set only lands while the record is non-terminal.
	Status Status

	ConversationID string

	RawResponse json.RawMessage

	// FailureReason is sticky-merged: a non-empty value overwrites, an empty
	// value never clears what is already there.
	FailureReason string

	// Transcript is set at most once; later values never replace it.
	Transcript      string
	DurationSeconds int
}

// Apply merges an update into the record under the sticky-field rules and
// stamps StatusUpdatedAt. It is a pure function of (record, update, now) so
// the merge invariants stay testable in isolation; persistence and version
// bumping belong to the store.
func (r Record) Apply(u Update, now time.Time) Record {
	out := r

	if u.Status != "" && (u.Status.IsCanonical() || !out.Status.IsTerminal()) {
		out.Status = u.Status
	}
	if u.ConversationID != "" {
		out.ConversationID = u.ConversationID
	}
	if len(u.RawResponse) > 0 {
		out.RawResponse = u.RawResponse
	}
	if u.FailureReason != "" {
		out.FailureReason = u.FailureReason
	}
	if u.Transcript != "" && out.Transcript == "" {
		out.Transcript = u.Transcript
	}
	if u.DurationSeconds > 0 && out.DurationSeconds == 0 {
		out.DurationSeconds = u.DurationSeconds
	}

	out.StatusUpdatedAt = now
	return out
}
