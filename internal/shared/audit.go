package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SystemActor is recorded when a change arrives without an X-Actor-Uid header.
const SystemActor = "system"

// AuditLog is one row of audit_logs describing a stock or billing mutation.
type AuditLog struct {
	ActorID  string
	Action   string
	Entity   string
	EntityID int64
	Meta     map[string]any
	At       time.Time
}

// AuditLogger appends AuditLog rows.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the entry. Callers treat failures as warnings; the audited
// change has already committed.
func (l *AuditLogger) Record(ctx context.Context, entry AuditLog) error {
	if l == nil || l.pool == nil {
		return errors.New("audit logger not initialised")
	}
	if entry.Action == "" || entry.Entity == "" || entry.EntityID <= 0 {
		return fmt.Errorf("%w: audit entry needs action, entity and id", ErrValidation)
	}
	actor := entry.ActorID
	if actor == "" {
		actor = SystemActor
	}
	meta, err := json.Marshal(entry.Meta)
	if err != nil {
		return fmt.Errorf("audit: encode meta: %w", err)
	}
	at := entry.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err = l.pool.Exec(ctx, `
		INSERT INTO audit_logs (actor_uid, action, entity, entity_id, meta, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		actor, entry.Action, entry.Entity, strconv.FormatInt(entry.EntityID, 10), meta, at.UTC())
	if err != nil {
		return fmt.Errorf("audit: insert %s %s/%d: %w", entry.Action, entry.Entity, entry.EntityID, err)
	}
	return nil
}
