package calls

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"callmind/pkg/utils"
)

// PostgresStore is the production Store backed by the call_records table
// (see migrations). Conditional saves are a single UPDATE guarded by the
// version column; uniqueness of provider_call_id is enforced by a partial
// unique index so records created before the provider assigns an id do not
// collide on the empty value.
type PostgresStore struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, clock: time.Now}
}

const recordColumns = `
	id, provider_call_id, conversation_id, to_number,
	agent_id, agent_phone_number_id, status,
	request_payload, raw_response,
	transcript, duration_seconds, failure_reason,
	version, created_at, status_updated_at`

func (s *PostgresStore) Create(ctx context.Context, rec Record) (Record, error) {
	if rec.ToNumber == "" {
		return Record{}, ErrInvalidArgument
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.clock().UTC()
	}
	if rec.StatusUpdatedAt.IsZero() {
		rec.StatusUpdatedAt = rec.CreatedAt
	}
	rec.Version = 1

	const q = `
		INSERT INTO call_records (
			id, provider_call_id, conversation_id, to_number,
			agent_id, agent_phone_number_id, status,
			request_payload, raw_response,
			transcript, duration_seconds, failure_reason,
			version, created_at, status_updated_at
		) VALUES ($1, NULLIF($2,''), $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := s.db.ExecContext(ctx, q,
		rec.ID, rec.ProviderCallID, rec.ConversationID, rec.ToNumber,
		rec.AgentID, rec.AgentPhoneNumberID, string(rec.Status),
		nullableJSON(rec.RequestPayload), nullableJSON(rec.RawResponse),
		rec.Transcript, rec.DurationSeconds, rec.FailureReason,
		rec.Version, rec.CreatedAt, rec.StatusUpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return Record{}, ErrDuplicateCallID
		}
		return Record{}, err
	}
	return rec, nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (Record, error) {
	if id == "" {
		return Record{}, ErrInvalidArgument
	}
	const q = `SELECT ` + recordColumns + ` FROM call_records WHERE id = $1`
	return s.scanOne(s.db.QueryRowContext(ctx, q, id))
}

func (s *PostgresStore) GetByProviderCallID(ctx context.Context, providerCallID string) (Record, error) {
	if providerCallID == "" {
		return Record{}, ErrInvalidArgument
	}
	const q = `SELECT ` + recordColumns + ` FROM call_records WHERE provider_call_id = $1`
	return s.scanOne(s.db.QueryRowContext(ctx, q, providerCallID))
}

func (s *PostgresStore) FindByConversationID(ctx context.Context, conversationID string) (Record, error) {
	if conversationID == "" {
		return Record{}, ErrInvalidArgument
	}
	// Oldest-first keeps fallback resolution stable across retried
	// deliveries when several raw payloads embed the same conversation id.
	const q = `SELECT ` + recordColumns + `
		FROM call_records
		WHERE raw_response->>'conversation_id' = $1
		ORDER BY created_at ASC
		LIMIT 1`
	return s.scanOne(s.db.QueryRowContext(ctx, q, conversationID))
}

func (s *PostgresStore) Save(ctx context.Context, rec Record, expectedVersion int64) (Record, error) {
	if rec.ID == "" {
		return Record{}, ErrInvalidArgument
	}

	const q = `
		UPDATE call_records SET
			provider_call_id = NULLIF($3,''),
			conversation_id = $4,
			status = $5,
			raw_response = $6,
			transcript = $7,
			duration_seconds = $8,
			failure_reason = $9,
			status_updated_at = $10,
			version = version + 1
		WHERE id = $1 AND version = $2
		RETURNING version`

	// The UPDATE and the missed-write classification share one transaction
	// so a row removed between the two cannot report a stale version as a
	// conflict when the record is in fact gone.
	err := utils.WithTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		var newVersion int64
		err := tx.QueryRowContext(ctx, q,
			rec.ID, expectedVersion,
			rec.ProviderCallID, rec.ConversationID, string(rec.Status),
			nullableJSON(rec.RawResponse),
			rec.Transcript, rec.DurationSeconds, rec.FailureReason,
			rec.StatusUpdatedAt,
		).Scan(&newVersion)
		if err == nil {
			rec.Version = newVersion
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return classifyMissedWrite(ctx, tx, rec.ID)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return Record{}, ErrDuplicateCallID
		}
		return Record{}, err
	}
	return rec, nil
}

// classifyMissedWrite distinguishes a stale version from a missing record.
func classifyMissedWrite(ctx context.Context, tx *sql.Tx, id string) error {
	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM call_records WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return ErrVersionConflict
	}
	return ErrNotFound
}

func (s *PostgresStore) scanOne(row *sql.Row) (Record, error) {
	var rec Record
	var providerCallID sql.NullString
	var requestPayload, rawResponse []byte

	err := row.Scan(
		&rec.ID, &providerCallID, &rec.ConversationID, &rec.ToNumber,
		&rec.AgentID, &rec.AgentPhoneNumberID, &rec.Status,
		&requestPayload, &rawResponse,
		&rec.Transcript, &rec.DurationSeconds, &rec.FailureReason,
		&rec.Version, &rec.CreatedAt, &rec.StatusUpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}

	rec.ProviderCallID = providerCallID.String
	rec.RequestPayload = requestPayload
	rec.RawResponse = rawResponse
	return rec, nil
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
