// Package audit is the single source of truth for "what changed, when, by
// what actor". Entries live in a key-value sorted set scored by epoch
// millis, so reverse-chronological reads and date-range queries come for
// free. Logging is strictly best effort: a trail failure must never abort
// the business operation that triggered it.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/wrenware/showcase/pkg/kvstore"
	"github.com/wrenware/showcase/pkg/model"
)

const defaultQueryLimit = 100

// Service records and queries the audit trail.
type Service struct {
	kv    *kvstore.Client
	clock func() time.Time
}

// New builds a Service. clock may be nil, defaulting to time.Now.
func New(kv *kvstore.Client, clock func() time.Time) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{kv: kv, clock: clock}
}

// LogEntry stamps and appends one entry, then bumps the per-action,
// per-entity-type and per-source counters. It never returns an error;
// failures are logged and dropped.
func (s *Service) LogEntry(ctx context.Context, entry model.AuditEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.clock()
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		klog.Warningf("audit entry marshal failed, dropping: %v", err)
		return
	}
	if err := s.kv.ZAdd(ctx, kvstore.AuditLogKey, entry.Score(), string(raw)); err != nil {
		klog.Warningf("audit append failed, dropping entry %s/%s: %v", entry.Action, entry.EntityID, err)
		return
	}
	s.bump(ctx, "action", string(entry.Action))
	if entry.EntityType != "" {
		s.bump(ctx, "entityType", string(entry.EntityType))
	}
	s.bump(ctx, "source", string(entry.Source))
}

func (s *Service) bump(ctx context.Context, dimension, value string) {
	if value == "" {
		return
	}
	if err := s.kv.HIncrBy(ctx, kvstore.AuditCountKey(dimension), value, 1); err != nil {
		klog.Warningf("audit counter %s:%s increment failed: %v", dimension, value, err)
	}
}

// Query filters audit reads. Zero values mean "no constraint".
type Query struct {
	EntityType model.EntityType
	EntityID   string
	Action     model.AuditAction
	Source     model.AuditSource
	From       time.Time
	To         time.Time
	Limit      int
}

func (q *Query) filtered() bool {
	return q.EntityType != "" || q.EntityID != "" || q.Action != "" || q.Source != ""
}

func (q *Query) match(e *model.AuditEntry) bool {
	if q.EntityType != "" && e.EntityType != q.EntityType {
		return false
	}
	if q.EntityID != "" && e.EntityID != q.EntityID {
		return false
	}
	if q.Action != "" && e.Action != q.Action {
		return false
	}
	if q.Source != "" && e.Source != q.Source {
		return false
	}
	return true
}

// GetEntries returns matching entries newest-first, capped by Limit
// (default 100).
func (s *Service) GetEntries(ctx context.Context, q Query) ([]model.AuditEntry, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}

	maxScore := int64(1<<62 - 1)
	minScore := int64(0)
	if !q.To.IsZero() {
		maxScore = q.To.UnixMilli()
	}
	if !q.From.IsZero() {
		minScore = q.From.UnixMilli()
	}

	// Attribute filters are applied after the fetch, so only an
	// unfiltered query can push the cap down into the range read.
	fetchLimit := int64(limit)
	if q.filtered() {
		fetchLimit = 0
	}
	members, err := s.kv.ZRevRangeByScore(ctx, kvstore.AuditLogKey, maxScore, minScore, fetchLimit)
	if err != nil {
		return nil, fmt.Errorf("audit query: %w", err)
	}

	entries := make([]model.AuditEntry, 0, limit)
	for _, m := range members {
		var e model.AuditEntry
		if err := json.Unmarshal([]byte(m), &e); err != nil {
			klog.Warningf("skipping unparseable audit entry: %v", err)
			continue
		}
		if !q.match(&e) {
			continue
		}
		entries = append(entries, e)
		if len(entries) >= limit {
			break
		}
	}
	return entries, nil
}

// Stats summarizes the trail for the status endpoints.
type Stats struct {
	Total         int64              `json:"total"`
	ByAction      map[string]int64   `json:"byAction"`
	ByEntityType  map[string]int64   `json:"byEntityType"`
	BySource      map[string]int64   `json:"bySource"`
	RecentEntries []model.AuditEntry `json:"recentEntries"`
}

// GetStats returns the total count, the maintained counters and the 10
// most recent entries.
func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	total, err := s.kv.ZCard(ctx, kvstore.AuditLogKey)
	if err != nil {
		return nil, fmt.Errorf("audit stats: %w", err)
	}
	stats := &Stats{Total: total}
	if stats.ByAction, err = s.counters(ctx, "action"); err != nil {
		return nil, err
	}
	if stats.ByEntityType, err = s.counters(ctx, "entityType"); err != nil {
		return nil, err
	}
	if stats.BySource, err = s.counters(ctx, "source"); err != nil {
		return nil, err
	}
	recent, err := s.GetEntries(ctx, Query{Limit: 10})
	if err != nil {
		return nil, err
	}
	stats.RecentEntries = recent
	return stats, nil
}

func (s *Service) counters(ctx context.Context, dimension string) (map[string]int64, error) {
	raw, err := s.kv.HGetAll(ctx, kvstore.AuditCountKey(dimension))
	if err != nil {
		return nil, fmt.Errorf("audit counters %s: %w", dimension, err)
	}
	out := make(map[string]int64, len(raw))
	for k, v := range raw {
		n, convErr := strconv.ParseInt(v, 10, 64)
		if convErr != nil {
			klog.Warningf("audit counter %s:%s has non-numeric value %q", dimension, k, v)
			continue
		}
		out[k] = n
	}
	return out, nil
}

// CleanupOldEntries removes entries older than retentionDays and logs a
// cleanup entry summarizing how many were dropped.
func (s *Service) CleanupOldEntries(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := s.clock().AddDate(0, 0, -retentionDays).UnixMilli()
	removed, err := s.kv.ZRemRangeByScore(ctx, kvstore.AuditLogKey, 0, cutoff)
	if err != nil {
		return 0, fmt.Errorf("audit cleanup: %w", err)
	}
	s.LogEntry(ctx, model.AuditEntry{
		Action: model.ActionCleanup,
		Source: model.SourceAdmin,
		Changes: &model.AuditChange{
			Detail: fmt.Sprintf("removed %d entries older than %d days", removed, retentionDays),
		},
	})
	return removed, nil
}
