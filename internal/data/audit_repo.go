package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/target/sessionguard/internal/data/pgxutil"
	"github.com/target/sessionguard/internal/domain/audit"
	apperrors "github.com/target/sessionguard/internal/errors"
	"github.com/target/sessionguard/internal/ports"
)

const (
	defaultAuditListLimit = 100
	maxAuditListLimit     = 1000
)

// AuditRepo persists audit events to Postgres. It implements ports.AuditWriter.
type AuditRepo struct {
	DB *sql.DB
}

var _ ports.AuditWriter = (*AuditRepo)(nil)

// NewAuditRepo creates an AuditRepo.
func NewAuditRepo(db *sql.DB) *AuditRepo {
	return &AuditRepo{DB: db}
}

// auditRow mirrors the audit_events table.
type auditRow struct {
	ID         uuid.UUID       `db:"id"`
	OccurredAt time.Time       `db:"occurred_at"`
	Event      string          `db:"event"`
	Page       string          `db:"page"`
	SessionID  string          `db:"session_id"`
	UserID     string          `db:"user_id"`
	TenantID   string          `db:"tenant_id"`
	Details    json.RawMessage `db:"details"`
}

const auditColumns = `id, occurred_at, event, page, session_id, user_id, tenant_id, details`

// Write inserts one event.
func (r *AuditRepo) Write(ctx context.Context, ev audit.Event) error {
	if ev.Event == "" {
		return apperrors.ValidationField("event", "event name is required")
	}
	details := []byte(`{}`)
	if len(ev.Details) > 0 {
		b, err := json.Marshal(ev.Details)
		if err != nil {
			return fmt.Errorf("marshal audit details: %w", err)
		}
		details = b
	}
	occurred := ev.Timestamp
	if occurred.IsZero() {
		occurred = time.Now()
	}

	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		_, execErr := conn.Exec(ctx, `
			INSERT INTO audit_events (`+auditColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			uuid.New(), occurred.UTC(), string(ev.Event), ev.Page, ev.SessionID, ev.UserID, ev.TenantID, details,
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("insert audit event: %w", apperrors.MapDBError(err))
	}
	return nil
}

// AuditFilter narrows List. Zero fields are ignored.
type AuditFilter struct {
	SessionID string
	UserID    string
	TenantID  string
	Event     audit.Name
	Since     time.Time
	Limit     int // default 100, capped at 1000
}

// List returns matching events, newest first.
func (r *AuditRepo) List(ctx context.Context, f AuditFilter) ([]audit.Event, error) {
	query, args := buildAuditListQuery(f)

	var rows []auditRow
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		res, qErr := conn.Query(ctx, query, args...)
		if qErr != nil {
			return qErr
		}
		var collectErr error
		rows, collectErr = pgx.CollectRows(res, pgx.RowToStructByName[auditRow])
		return collectErr
	})
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", apperrors.MapDBError(err))
	}

	out := make([]audit.Event, 0, len(rows))
	for _, row := range rows {
		ev, convErr := row.toEvent()
		if convErr != nil {
			return nil, convErr
		}
		out = append(out, ev)
	}
	return out, nil
}

func buildAuditListQuery(f AuditFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(expr string, v any) {
		args = append(args, v)
		conds = append(conds, expr+" $"+strconv.Itoa(len(args)))
	}
	if f.SessionID != "" {
		add("session_id =", f.SessionID)
	}
	if f.UserID != "" {
		add("user_id =", f.UserID)
	}
	if f.TenantID != "" {
		add("tenant_id =", f.TenantID)
	}
	if f.Event != "" {
		add("event =", string(f.Event))
	}
	if !f.Since.IsZero() {
		add("occurred_at >=", f.Since.UTC())
	}

	limit := f.Limit
	switch {
	case limit <= 0:
		limit = defaultAuditListLimit
	case limit > maxAuditListLimit:
		limit = maxAuditListLimit
	}

	var b strings.Builder
	b.WriteString("SELECT " + auditColumns + " FROM audit_events")
	if len(conds) > 0 {
		b.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	args = append(args, limit)
	b.WriteString(" ORDER BY occurred_at DESC, id LIMIT $" + strconv.Itoa(len(args)))
	return b.String(), args
}

func (row auditRow) toEvent() (audit.Event, error) {
	ev := audit.Event{
		Timestamp: row.OccurredAt,
		Event:     audit.Name(row.Event),
		Page:      row.Page,
		SessionID: row.SessionID,
		UserID:    row.UserID,
		TenantID:  row.TenantID,
	}
	if len(row.Details) == 0 {
		return ev, nil
	}
	var details map[string]any
	if err := json.Unmarshal(row.Details, &details); err != nil {
		return audit.Event{}, errors.Join(fmt.Errorf("decode audit details for %s", row.ID), err)
	}
	if len(details) > 0 {
		ev.Details = details
	}
	return ev, nil
}

// DeleteBefore purges events older than cutoff and returns how many were removed.
func (r *AuditRepo) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		tag, execErr := conn.Exec(ctx, `DELETE FROM audit_events WHERE occurred_at < $1`, cutoff.UTC())
		n = tag.RowsAffected()
		return execErr
	})
	if err != nil {
		return 0, fmt.Errorf("purge audit events: %w", apperrors.MapDBError(err))
	}
	return n, nil
}
