package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"callmind/internal/calls"
	"callmind/internal/voice"
	"callmind/pkg/logger"
)

// ErrConflictExhausted is returned when the conditional-write retry budget
// runs out. It is the only condition that aborts an update; surfacing it as
// an error response makes the provider redeliver, which re-enters this same
// idempotent path.
var ErrConflictExhausted = errors.New("reconcile: version conflict retries exhausted")

const defaultMaxAttempts = 3

// TranscriptSource fetches post-call conversation detail.
type TranscriptSource interface {
	FetchConversation(ctx context.Context, providerCallID string) (voice.ConversationDetail, error)
}

// OnceGuard is an optional cross-replica single-shot claim for the
// transcript fetch side effect. A nil guard degrades to the local
// transcript-already-present check only.
type OnceGuard interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// Reconciler applies classified provider events to call records under the
// optimistic-concurrency protocol.
//
// Concurrency model: every inbound event runs in its own goroutine (the HTTP
// server's), with no serialization even for the same call. Delivery is
// at-least-once and unordered. Correctness rests on the version-tagged
// conditional write: a mismatched version forces re-read-merge-retry, which
// is what keeps sticky fields from being lost under interleaved deliveries.
//
// No monotonic status enforcement: a stale ringing arriving after completed
// regresses the status on purpose, with status_updated_at carrying the
// ordering history. Last event wins.
type Reconciler struct {
	store       calls.Store
	resolver    Resolver
	transcripts TranscriptSource
	guard       OnceGuard

	clock       func() time.Time
	maxAttempts int

	fetches sync.WaitGroup
}

// NewReconciler wires the engine. transcripts and guard may be nil; a nil
// transcripts source disables the fetch side effect entirely.
func NewReconciler(store calls.Store, transcripts TranscriptSource, guard OnceGuard) *Reconciler {
	return &Reconciler{
		store:       store,
		resolver:    NewResolver(store),
		transcripts: transcripts,
		guard:       guard,
		clock:       time.Now,
		maxAttempts: defaultMaxAttempts,
	}
}

// Outcome reports what one event application did.
type Outcome struct {
	// Matched is false when the event carried no usable identifier or no
	// record matched; both are acknowledged no-ops, not errors.
	Matched bool

	Record calls.Record

	// TranscriptScheduled is true when this event triggered the detached
	// transcript fetch.
	TranscriptScheduled bool
}

// HandleEvent ingests one raw webhook payload end to end: parse, classify,
// resolve, merge, conditionally persist, and (on a completion-eligible
// transition) schedule the transcript fetch.
func (r *Reconciler) HandleEvent(ctx context.Context, raw json.RawMessage) (Outcome, error) {
	log := logger.From(ctx)

	ev := ParseEvent(raw)
	if ev.CallID == "" && ev.ConversationID == "" {
		log.Warn("event without identifiers ignored", "event_type", ev.EventType)
		return Outcome{}, nil
	}

	cls := Classify(ev)

	rec, err := r.resolver.Resolve(ctx, ev.CallID, ev.ConversationID)
	if errors.Is(err, calls.ErrNotFound) {
		log.Warn("no call record matches event",
			"call_id", ev.CallID, "conversation_id", ev.ConversationID, "event_type", ev.EventType)
		return Outcome{}, nil
	}
	if err != nil {
		return Outcome{}, err
	}

	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		upd := calls.Update{
			Status:         cls.Status,
			ConversationID: ev.ConversationID,
			RawResponse:    ev.Raw,
		}
		if cls.IsFailure {
			upd.FailureReason = cls.FailureReason
		}

		next := rec.Apply(upd, r.clock().UTC())

		saved, err := r.store.Save(ctx, next, rec.Version)
		if errors.Is(err, calls.ErrVersionConflict) {
			rec, err = r.store.GetByID(ctx, rec.ID)
			if err != nil {
				return Outcome{}, err
			}
			continue
		}
		if err != nil {
			return Outcome{}, err
		}

		out := Outcome{Matched: true, Record: saved}
		if completionEligible(ev, cls) && saved.Transcript == "" && saved.ProviderCallID != "" {
			out.TranscriptScheduled = true
			r.ScheduleTranscriptFetch(ctx, saved)
		}

		log.Info("call record reconciled",
			"call_id", saved.ProviderCallID,
			"status", string(saved.Status),
			"version", saved.Version,
			"transcript_scheduled", out.TranscriptScheduled)
		return out, nil
	}

	return Outcome{}, ErrConflictExhausted
}

// completionEligible mirrors the provider's success signals: an explicit
// completion event, or an answered event already carrying the completed
// sub-status. A bare call.ended does not qualify.
func completionEligible(ev Event, cls Classification) bool {
	if cls.Status == calls.StatusCompleted {
		return true
	}
	return cls.Status == calls.StatusAnswered && strings.EqualFold(ev.Status, "completed")
}

// ScheduleTranscriptFetch starts the detached transcript fetch for rec. It
// runs outside the critical update path so a slow or failed fetch never
// delays status visibility. Exported for the outbound-call flow, which hits
// the same completion signals synchronously at creation time.
func (r *Reconciler) ScheduleTranscriptFetch(ctx context.Context, rec calls.Record) {
	if r.transcripts == nil || rec.ProviderCallID == "" {
		return
	}

	// Keep logger and trace values, drop the request's cancellation: the
	// webhook response must not gate the fetch.
	fetchCtx := context.WithoutCancel(ctx)

	r.fetches.Add(1)
	go func() {
		defer r.fetches.Done()
		r.fetchTranscript(fetchCtx, rec)
	}()
}

// Wait blocks until all in-flight transcript fetches finish. Called on
// shutdown and by tests.
func (r *Reconciler) Wait() {
	r.fetches.Wait()
}

func (r *Reconciler) fetchTranscript(ctx context.Context, rec calls.Record) {
	log := logger.From(ctx).With("call_id", rec.ProviderCallID)

	guardKey := "transcript:" + rec.ProviderCallID
	if r.guard != nil {
		claimed, err := r.guard.Claim(ctx, guardKey)
		if err != nil {
			// Guard outage must not suppress the fetch; worst case is a
			// duplicate fetch, which the sticky transcript field absorbs.
			log.Warn("transcript guard unavailable, fetching anyway", "err", err)
		} else if !claimed {
			log.Debug("transcript fetch already claimed by another replica")
			return
		}
	}

	detail, err := r.transcripts.FetchConversation(ctx, rec.ProviderCallID)
	if err != nil {
		// Non-fatal: the status update is already persisted. Left for a
		// possible later manual fetch; no automatic retry.
		log.Error("transcript fetch failed", "err", err)
		if r.guard != nil {
			_ = r.guard.Release(ctx, guardKey)
		}
		return
	}

	text := FormatTranscript(detail)
	r.mergeTranscript(ctx, rec, text, detail.DurationSeconds)
}

// mergeTranscript persists the transcript under the same CAS discipline as
// event writes. A concurrent event between fetch and save just forces a
// re-read; if some other writer set the transcript first, this one yields.
func (r *Reconciler) mergeTranscript(ctx context.Context, rec calls.Record, text string, durationSeconds int) {
	log := logger.From(ctx).With("call_id", rec.ProviderCallID)

	cur := rec
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		if cur.Transcript != "" {
			return
		}

		next := cur.Apply(calls.Update{
			Transcript:      text,
			DurationSeconds: durationSeconds,
		}, r.clock().UTC())

		_, err := r.store.Save(ctx, next, cur.Version)
		if err == nil {
			log.Info("transcript saved", "duration_seconds", durationSeconds)
			return
		}
		if errors.Is(err, calls.ErrVersionConflict) {
			cur, err = r.store.GetByID(ctx, cur.ID)
			if err != nil {
				log.Error("transcript merge re-read failed", "err", err)
				return
			}
			continue
		}
		log.Error("transcript save failed", "err", err)
		return
	}
	log.Error("transcript save abandoned after repeated version conflicts")
}
