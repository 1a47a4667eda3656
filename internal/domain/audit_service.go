package domain

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Minimum retention window for archival.
const minArchiveDays = 30

// exportLimit caps how many events a single export pulls.
const exportLimit = 10000

type auditService struct {
	logger *slog.Logger
	repo   AuditRepository
	now    func() time.Time
}

func NewAuditService(logger *slog.Logger, repo AuditRepository) AuditService {
	return &auditService{
		logger: logger,
		repo:   repo,
		now:    time.Now,
	}
}

// Record appends one event. Failures are logged and swallowed: an audit gap
// is accepted over rolling back the operation it describes.
func (s *auditService) Record(ctx context.Context, entry AuditEntry) {
	ev := AuditEvent{
		ActorID:    entry.ActorID,
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		OldValues:  entry.OldValues,
		NewValues:  entry.NewValues,
	}
	if meta, ok := RequestMetaFromContext(ctx); ok {
		ev.RequestID = meta.RequestID
		ev.SourceAddr = meta.SourceAddr
		ev.UserAgent = meta.UserAgent
	}
	if ev.RequestID == "" {
		ev.RequestID = uuid.NewString()
	}

	if _, err := s.repo.Append(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "audit append failed",
			"action", entry.Action,
			"entity_type", entry.EntityType,
			"err", err.Error(),
		)
	}
}

func (s *auditService) Search(ctx context.Context, q AuditQuery) ([]AuditEvent, int64, error) {
	return s.repo.Search(ctx, q)
}

func (s *auditService) HistoryForIP(ctx context.Context, ip string, limit int) ([]AuditEvent, error) {
	if _, err := ParseIP(ip); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	return s.repo.HistoryForIP(ctx, ip, limit)
}

func (s *auditService) Export(ctx context.Context, q AuditQuery, format ExportFormat) ([]byte, string, error) {
	q.Offset = 0
	q.Limit = exportLimit
	events, _, err := s.repo.Search(ctx, q)
	if err != nil {
		return nil, "", err
	}

	switch format {
	case ExportJSON:
		data, err := exportJSON(events)
		return data, "application/json", err
	case ExportCSV:
		data, err := exportCSV(events, false)
		return data, "text/csv; charset=utf-8", err
	case ExportExcel:
		// Excel-compatible CSV: a UTF-8 BOM makes Excel decode the Chinese
		// detail strings correctly.
		data, err := exportCSV(events, true)
		return data, "text/csv; charset=utf-8", err
	default:
		return nil, "", Errorf(ErrInvalidInput, "不支持的导出格式: %s", format)
	}
}

func (s *auditService) Archive(ctx context.Context, days int) (int64, error) {
	if days < minArchiveDays {
		return 0, Errorf(ErrInvalidInput, "归档保留期不能少于 %d 天", minArchiveDays)
	}
	cutoff := s.now().AddDate(0, 0, -days)
	deleted, err := s.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	s.logger.InfoContext(ctx, "audit logs archived", "days_kept", days, "deleted", deleted)
	return deleted, nil
}

func (s *auditService) Stats(ctx context.Context) (AuditStats, error) {
	return s.repo.Stats(ctx)
}

var exportHeader = []string{
	"id", "actor_id", "action", "entity_type", "entity_id",
	"old_values", "new_values", "request_id", "source_addr", "user_agent", "created_at",
}

func exportCSV(events []AuditEvent, bom bool) ([]byte, error) {
	var buf bytes.Buffer
	if bom {
		buf.Write([]byte{0xEF, 0xBB, 0xBF})
	}
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeader); err != nil {
		return nil, err
	}
	for _, ev := range events {
		entityID := ""
		if ev.EntityID != nil {
			entityID = strconv.FormatInt(*ev.EntityID, 10)
		}
		record := []string{
			strconv.FormatInt(ev.ID, 10),
			strconv.FormatInt(ev.ActorID, 10),
			ev.Action,
			ev.EntityType,
			entityID,
			jsonField(ev.OldValues),
			jsonField(ev.NewValues),
			ev.RequestID,
			ev.SourceAddr,
			ev.UserAgent,
			ev.CreatedAt.Format(time.RFC3339),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func exportJSON(events []AuditEvent) ([]byte, error) {
	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal audit export: %w", err)
	}
	return data, nil
}

func jsonField(values map[string]any) string {
	if len(values) == 0 {
		return ""
	}
	data, err := json.Marshal(values)
	if err != nil {
		return ""
	}
	return string(data)
}
