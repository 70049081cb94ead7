package repository

import (
	"context"
	"encoding/json"

	"github.com/jmoiron/sqlx"
)

type sqlAuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository returns the audit sink over a database/sql handle.
func NewAuditRepository(db *sqlx.DB) AuditRepository {
	return &sqlAuditRepository{db: db}
}

func (r *sqlAuditRepository) Append(ctx context.Context, event *AuditEvent) error {
	ensureID(&event.ID)
	if len(event.Metadata) == 0 {
		event.Metadata = []byte("{}")
	}
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO audit_events (id, actor_id, actor_type, action, target_type, target_id, metadata, created_at)
		VALUES (:id, :actor_id, :actor_type, :action, :target_type, :target_id, :metadata, :created_at)
	`, event)
	return err
}

// AuditReader is used by operator tooling; the engine itself never reads
// the audit trail back.
type AuditReader interface {
	FindByTarget(ctx context.Context, targetType, targetID string) ([]*AuditEvent, error)
}

// NewAuditReader returns a reader over the same table the sink writes.
func NewAuditReader(db *sqlx.DB) AuditReader {
	return &sqlAuditRepository{db: db}
}

type auditRow struct {
	AuditEvent
	MetadataText string `db:"metadata_text"`
}

func (r *sqlAuditRepository) FindByTarget(ctx context.Context, targetType, targetID string) ([]*AuditEvent, error) {
	var rows []auditRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, actor_id, actor_type, action, target_type, target_id, metadata::text AS metadata_text, created_at
		FROM audit_events
		WHERE target_type = $1 AND target_id = $2
		ORDER BY created_at ASC
	`, targetType, targetID)
	if err != nil {
		return nil, err
	}

	events := make([]*AuditEvent, len(rows))
	for i := range rows {
		e := rows[i].AuditEvent
		e.Metadata = json.RawMessage(rows[i].MetadataText)
		events[i] = &e
	}
	return events, nil
}
