package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ipamd/internal/domain"
)

const auditColumns = `id, user_id, action, entity_type, entity_id, old_values, new_values,
	request_id, source_addr, user_agent, created_at`

type AuditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

func (r *AuditRepository) Append(ctx context.Context, ev domain.AuditEvent) (domain.AuditEvent, error) {
	oldValues, err := marshalValues(ev.OldValues)
	if err != nil {
		return domain.AuditEvent{}, err
	}
	newValues, err := marshalValues(ev.NewValues)
	if err != nil {
		return domain.AuditEvent{}, err
	}

	q := queryerFrom(ctx, r.pool)
	row := q.QueryRow(ctx, `
		INSERT INTO audit_logs (user_id, action, entity_type, entity_id, old_values, new_values,
			request_id, source_addr, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+auditColumns,
		ev.ActorID, ev.Action, ev.EntityType, ev.EntityID, oldValues, newValues,
		ev.RequestID, ev.SourceAddr, ev.UserAgent)
	return scanAudit(row)
}

func (r *AuditRepository) Search(ctx context.Context, aq domain.AuditQuery) ([]domain.AuditEvent, int64, error) {
	where := []string{"TRUE"}
	args := []any{}
	n := 1
	add := func(cond string, value any) {
		where = append(where, fmt.Sprintf(cond, n))
		args = append(args, value)
		n++
	}
	if aq.ActorID != nil {
		add(`user_id = $%d`, *aq.ActorID)
	}
	if aq.EntityType != "" {
		add(`entity_type = $%d`, aq.EntityType)
	}
	if aq.EntityID != nil {
		add(`entity_id = $%d`, *aq.EntityID)
	}
	if aq.Action != "" {
		add(`action = $%d`, aq.Action)
	}
	if aq.From != nil {
		add(`created_at >= $%d`, *aq.From)
	}
	if aq.To != nil {
		add(`created_at <= $%d`, *aq.To)
	}
	cond := strings.Join(where, " AND ")

	q := queryerFrom(ctx, r.pool)
	var total int64
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM audit_logs WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, translate(err)
	}

	stmt := fmt.Sprintf(`SELECT %s FROM audit_logs WHERE %s ORDER BY created_at DESC, id DESC OFFSET $%d LIMIT $%d`,
		auditColumns, cond, n, n+1)
	rows, err := q.Query(ctx, stmt, append(args, aq.Offset, aq.Limit)...)
	if err != nil {
		return nil, 0, translate(err)
	}
	defer rows.Close()

	events, err := scanAudits(rows)
	return events, total, err
}

func (r *AuditRepository) HistoryForIP(ctx context.Context, ip string, limit int) ([]domain.AuditEvent, error) {
	// Snapshots carry the ip, so history outlives the address record and its
	// numeric id.
	q := queryerFrom(ctx, r.pool)
	rows, err := q.Query(ctx, `
		SELECT `+auditColumns+` FROM audit_logs
		WHERE entity_type = 'ip'
		AND (old_values->>'ip' = $1 OR new_values->>'ip' = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, ip, limit)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	return scanAudits(rows)
}

func (r *AuditRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	q := queryerFrom(ctx, r.pool)
	tag, err := q.Exec(ctx, `DELETE FROM audit_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, translate(err)
	}
	return tag.RowsAffected(), nil
}

func (r *AuditRepository) Stats(ctx context.Context) (domain.AuditStats, error) {
	q := queryerFrom(ctx, r.pool)
	stats := domain.AuditStats{
		ByAction: make(map[string]int64),
		ByEntity: make(map[string]int64),
	}

	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM audit_logs`).Scan(&stats.Total); err != nil {
		return domain.AuditStats{}, translate(err)
	}

	rows, err := q.Query(ctx, `SELECT action, COUNT(*) FROM audit_logs GROUP BY action`)
	if err != nil {
		return domain.AuditStats{}, translate(err)
	}
	if err := scanCounts(rows, stats.ByAction); err != nil {
		return domain.AuditStats{}, err
	}

	rows, err = q.Query(ctx, `SELECT entity_type, COUNT(*) FROM audit_logs GROUP BY entity_type`)
	if err != nil {
		return domain.AuditStats{}, translate(err)
	}
	if err := scanCounts(rows, stats.ByEntity); err != nil {
		return domain.AuditStats{}, err
	}
	return stats, nil
}

func scanCounts(rows pgx.Rows, into map[string]int64) error {
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return translate(err)
		}
		into[key] = n
	}
	return translate(rows.Err())
}

func marshalValues(values map[string]any) ([]byte, error) {
	if len(values) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("marshal audit values: %w", err)
	}
	return data, nil
}

func unmarshalValues(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var values map[string]any
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("unmarshal audit values: %w", err)
	}
	return values, nil
}

func scanAudit(row pgx.Row) (domain.AuditEvent, error) {
	var (
		ev        domain.AuditEvent
		oldValues []byte
		newValues []byte
	)
	err := row.Scan(&ev.ID, &ev.ActorID, &ev.Action, &ev.EntityType, &ev.EntityID,
		&oldValues, &newValues, &ev.RequestID, &ev.SourceAddr, &ev.UserAgent, &ev.CreatedAt)
	if err != nil {
		return domain.AuditEvent{}, translate(err)
	}
	if ev.OldValues, err = unmarshalValues(oldValues); err != nil {
		return domain.AuditEvent{}, err
	}
	if ev.NewValues, err = unmarshalValues(newValues); err != nil {
		return domain.AuditEvent{}, err
	}
	return ev, nil
}

func scanAudits(rows pgx.Rows) ([]domain.AuditEvent, error) {
	var out []domain.AuditEvent
	for rows.Next() {
		ev, err := scanAudit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, translate(rows.Err())
}
