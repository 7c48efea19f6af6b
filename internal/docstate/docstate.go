// Package docstate implements the document processing state machine and
// its event bus: the compare-and-swap status transition a document moves
// through during ingestion, and the dual-write (Redis pub/sub + Kafka)
// notification fired on every transition.
package docstate

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"manifold/internal/eventbus"
	"manifold/internal/kv"
)

// Status is one state in a document's processing lifecycle.
type Status string

const (
	StatusIngested    Status = "INGESTED"
	StatusExtracting  Status = "EXTRACTING"
	StatusEmbedding   Status = "EMBEDDING"
	StatusGraphSync   Status = "GRAPH_SYNC"
	StatusReady       Status = "READY"
	StatusFailed      Status = "FAILED"
)

// transitions enumerates every legal (from -> to) edge of the state
// diagram. AdvanceIfInState rejects any move not listed here.
var transitions = map[Status][]Status{
	StatusIngested:   {StatusExtracting, StatusFailed},
	StatusExtracting: {StatusEmbedding, StatusFailed},
	StatusEmbedding:  {StatusGraphSync, StatusFailed},
	StatusGraphSync:  {StatusReady, StatusFailed},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to Status) bool {
	for _, candidate := range transitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// ErrInvalidTransition is returned when the requested transition is not in
// the state diagram, or the document was not found in the expected "from"
// state (the CAS lost a race with a concurrent writer).
type ErrInvalidTransition struct {
	DocumentID string
	From, To   Status
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("docstate: cannot advance document %s from %s to %s", e.DocumentID, e.From, e.To)
}

// StateChange is the payload dual-written to Redis pub/sub and the Kafka
// state topic whenever a document's status advances.
type StateChange struct {
	TenantID   string    `json:"tenant_id"`
	DocumentID string    `json:"document_id"`
	From       Status    `json:"from"`
	To         Status    `json:"to"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

const pubsubChannel = "docstate.changes"

// Machine advances document state with a CAS guard and fans the
// transition out over the event bus.
type Machine struct {
	pool  *pgxpool.Pool
	store *kv.RedisStore
	bus   *eventbus.Bus
}

// New builds a Machine. store and bus may be nil, in which case
// emitStateChange silently degrades to a no-op (the CAS itself always
// requires a pool, since state is durable).
func New(pool *pgxpool.Pool, store *kv.RedisStore, bus *eventbus.Bus) *Machine {
	return &Machine{pool: pool, store: store, bus: bus}
}

// EnsureSchema creates the documents status table if absent. Kept
// idempotent so it is safe to call at composition-root startup.
func (m *Machine) EnsureSchema(ctx context.Context) error {
	_, err := m.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS document_status (
	tenant_id TEXT NOT NULL,
	document_id TEXT NOT NULL,
	status TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (tenant_id, document_id))`)
	return err
}

// Initialize records a freshly-registered document at StatusIngested.
func (m *Machine) Initialize(ctx context.Context, tenantID, documentID string) error {
	_, err := m.pool.Exec(ctx, `
INSERT INTO document_status(tenant_id, document_id, status) VALUES($1,$2,$3)
ON CONFLICT (tenant_id, document_id) DO NOTHING`, tenantID, documentID, StatusIngested)
	if err != nil {
		return err
	}
	m.emitStateChange(ctx, StateChange{TenantID: tenantID, DocumentID: documentID, To: StatusIngested, OccurredAt: time.Now().UTC()})
	return nil
}

// CurrentStatus returns the document's current state.
func (m *Machine) CurrentStatus(ctx context.Context, tenantID, documentID string) (Status, error) {
	var s string
	err := m.pool.QueryRow(ctx, `
SELECT status FROM document_status WHERE tenant_id=$1 AND document_id=$2`, tenantID, documentID).Scan(&s)
	return Status(s), err
}

// AdvanceIfInState performs the compare-and-swap transition: the row only
// updates, and only this call returns success, if the document's current
// status equals from. Concurrent callers racing the same document will see
// exactly one winner; the rest get ErrInvalidTransition. On success the
// transition is announced via emitStateChange.
func (m *Machine) AdvanceIfInState(ctx context.Context, tenantID, documentID string, from, to Status, reason string) error {
	if !CanTransition(from, to) {
		return &ErrInvalidTransition{DocumentID: documentID, From: from, To: to}
	}
	tag, err := m.pool.Exec(ctx, `
UPDATE document_status SET status=$1, updated_at=now()
WHERE tenant_id=$2 AND document_id=$3 AND status=$4`, to, tenantID, documentID, from)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &ErrInvalidTransition{DocumentID: documentID, From: from, To: to}
	}
	m.emitStateChange(ctx, StateChange{
		TenantID: tenantID, DocumentID: documentID, From: from, To: to,
		Reason: reason, OccurredAt: time.Now().UTC(),
	})
	return nil
}

// Fail unconditionally moves a document to StatusFailed from whatever state
// it is currently in (the only transition legal from every non-terminal
// state), recording reason for operator visibility.
func (m *Machine) Fail(ctx context.Context, tenantID, documentID, reason string) error {
	var from string
	err := m.pool.QueryRow(ctx, `
UPDATE document_status SET status=$1, updated_at=now()
WHERE tenant_id=$2 AND document_id=$3 AND status NOT IN ($4,$1)
RETURNING (SELECT status FROM document_status WHERE tenant_id=$2 AND document_id=$3)
`, StatusFailed, tenantID, documentID, StatusReady).Scan(&from)
	if err != nil {
		return err
	}
	m.emitStateChange(ctx, StateChange{
		TenantID: tenantID, DocumentID: documentID, From: Status(from), To: StatusFailed,
		Reason: reason, OccurredAt: time.Now().UTC(),
	})
	return nil
}

// emitStateChange dual-writes the transition: an ephemeral Redis pub/sub
// publish for live subscribers (e.g. a status-streaming API), and a durable
// Kafka append to the state topic for replay/audit. Both writes degrade to
// no-ops when their transport is unconfigured; failures are swallowed here
// because the CAS itself already committed and is the source of truth.
func (m *Machine) emitStateChange(ctx context.Context, ev StateChange) {
	if m.store != nil {
		if payload, err := marshalStateChange(ev); err == nil {
			_ = m.store.Publish(ctx, pubsubChannel, payload)
		}
	}
	if m.bus != nil {
		_ = m.bus.Publish(ctx, "state", ev)
	}
}

// Subscribe streams live state changes via the Redis pub/sub channel. The
// returned channel closes when ctx is cancelled or the caller invokes the
// returned unsubscribe func.
func (m *Machine) Subscribe(ctx context.Context) (<-chan StateChange, func() error) {
	raw, unsub := m.store.Subscribe(ctx, pubsubChannel)
	out := make(chan StateChange)
	go func() {
		defer close(out)
		for payload := range raw {
			ev, err := unmarshalStateChange(payload)
			if err != nil {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, unsub
}
