// Package entitystore provides typed CRUD and index maintenance for one
// entity type over the key-value client. Index updates and access-time
// tracking are best-effort secondary state: their failures are logged but
// never roll back the entity write.
package entitystore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"k8s.io/klog/v2"

	"github.com/wrenware/showcase/pkg/apperrors"
	"github.com/wrenware/showcase/pkg/audit"
	"github.com/wrenware/showcase/pkg/kvstore"
	"github.com/wrenware/showcase/pkg/model"
)

// entityPtr ties the pointer type PT to its value type T while requiring
// the model.Entity behavior, so the store can allocate records itself.
type entityPtr[T any] interface {
	*T
	model.Entity
}

// Store is the generic base; see NewProjectStore and NewResourceStore for
// the two concrete instantiations.
type Store[T any, PT entityPtr[T]] struct {
	kv         *kvstore.Client
	audit      *audit.Service
	entityType model.EntityType
	rules      func(PT) []string
	change     func(PT) *model.AuditChange
	clock      func() time.Time
}

func newStore[T any, PT entityPtr[T]](
	kv *kvstore.Client,
	auditSvc *audit.Service,
	entityType model.EntityType,
	rules func(PT) []string,
	change func(PT) *model.AuditChange,
) *Store[T, PT] {
	return &Store[T, PT]{
		kv:         kv,
		audit:      auditSvc,
		entityType: entityType,
		rules:      rules,
		change:     change,
		clock:      time.Now,
	}
}

// Get fetches one entity by id, returning nil when absent. It also
// touches the last-accessed marker and logs a read entry; both are
// non-critical and their failures are swallowed.
func (s *Store[T, PT]) Get(ctx context.Context, id string) (PT, error) {
	entity, err := s.fetch(ctx, id)
	if err != nil || entity == nil {
		return entity, err
	}
	s.touchAccessed(ctx, id)
	return entity, nil
}

func (s *Store[T, PT]) fetch(ctx context.Context, id string) (PT, error) {
	raw, ok, err := s.kv.Get(ctx, kvstore.DataKey(s.entityType, id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	entity := PT(new(T))
	if err := json.Unmarshal([]byte(raw), entity); err != nil {
		return nil, fmt.Errorf("decode %s %q: %w", s.entityType, id, err)
	}
	return entity, nil
}

func (s *Store[T, PT]) touchAccessed(ctx context.Context, id string) {
	key := kvstore.AccessedKey(s.entityType, id)
	if err := s.kv.Set(ctx, key, s.clock().Format(time.RFC3339)); err != nil {
		klog.V(4).Infof("access marker update failed for %s: %v", key, err)
	}
	s.audit.LogEntry(ctx, model.AuditEntry{
		Action:     model.ActionRead,
		EntityType: s.entityType,
		EntityID:   id,
		Source:     model.SourceHybridService,
	})
}

// Save validates, stamps timestamps, persists the record and then brings
// the published/all index sets in line. Validation failure lists every
// violated rule and nothing is written.
func (s *Store[T, PT]) Save(ctx context.Context, entity PT, source model.AuditSource) error {
	violations := s.validate(entity)
	if len(violations) > 0 {
		return &apperrors.ValidationError{EntityID: entity.ID(), Violations: violations}
	}

	meta := entity.Meta()
	now := s.clock()
	action := model.ActionUpdate
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = now
		action = model.ActionCreate
	}
	meta.UpdatedAt = now
	if meta.Status == "" {
		meta.Status = model.StatusDraft
	}

	raw, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("encode %s %q: %w", s.entityType, entity.ID(), err)
	}
	if err := s.kv.Set(ctx, kvstore.DataKey(s.entityType, entity.ID()), string(raw)); err != nil {
		return err
	}

	s.updateIndexes(ctx, entity.ID(), meta.Published())

	s.audit.LogEntry(ctx, model.AuditEntry{
		Action:     action,
		EntityType: s.entityType,
		EntityID:   entity.ID(),
		Source:     source,
		Changes:    s.change(entity),
	})
	return nil
}

func (s *Store[T, PT]) updateIndexes(ctx context.Context, id string, published bool) {
	if err := s.kv.SAdd(ctx, kvstore.AllIndexKey(s.entityType), id); err != nil {
		klog.Warningf("all index add failed for %s %q: %v", s.entityType, id, err)
	}
	pubKey := kvstore.PublishedIndexKey(s.entityType)
	if published {
		if err := s.kv.SAdd(ctx, pubKey, id); err != nil {
			klog.Warningf("published index add failed for %s %q: %v", s.entityType, id, err)
		}
		return
	}
	if err := s.kv.SRem(ctx, pubKey, id); err != nil {
		klog.Warningf("published index remove failed for %s %q: %v", s.entityType, id, err)
	}
}

func (s *Store[T, PT]) validate(entity PT) []string {
	var violations []string
	id := entity.ID()
	switch {
	case id == "":
		violations = append(violations, "id is required")
	case !model.SlugPattern.MatchString(id):
		violations = append(violations, fmt.Sprintf("id %q must match [a-z0-9-]+", id))
	}
	meta := entity.Meta()
	switch meta.Status {
	case "", model.StatusDraft, model.StatusPublished, model.StatusArchived:
	default:
		violations = append(violations, fmt.Sprintf("status %q is not one of draft, published, archived", meta.Status))
	}
	if s.rules != nil {
		violations = append(violations, s.rules(entity)...)
	}
	return violations
}

// Delete removes the record and, on success, drops it from both indexes.
// Returns whether anything was actually deleted.
func (s *Store[T, PT]) Delete(ctx context.Context, id string, source model.AuditSource) (bool, error) {
	n, err := s.kv.Del(ctx, kvstore.DataKey(s.entityType, id))
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	if err := s.kv.SRem(ctx, kvstore.AllIndexKey(s.entityType), id); err != nil {
		klog.Warningf("all index remove failed for %s %q: %v", s.entityType, id, err)
	}
	if err := s.kv.SRem(ctx, kvstore.PublishedIndexKey(s.entityType), id); err != nil {
		klog.Warningf("published index remove failed for %s %q: %v", s.entityType, id, err)
	}
	s.audit.LogEntry(ctx, model.AuditEntry{
		Action:     model.ActionDelete,
		EntityType: s.entityType,
		EntityID:   id,
		Source:     source,
	})
	return true, nil
}

// GetMany fetches a batch by id. Records that fail to parse are skipped
// with a warning instead of aborting the whole batch.
func (s *Store[T, PT]) GetMany(ctx context.Context, ids []string) ([]PT, error) {
	if len(ids) == 0 {
		return []PT{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = kvstore.DataKey(s.entityType, id)
	}
	values, err := s.kv.MGet(ctx, keys...)
	if err != nil {
		return nil, err
	}
	out := make([]PT, 0, len(values))
	for i, raw := range values {
		if raw == "" {
			continue
		}
		entity := PT(new(T))
		if err := json.Unmarshal([]byte(raw), entity); err != nil {
			klog.Warningf("skipping unparseable %s %q: %v", s.entityType, ids[i], err)
			continue
		}
		out = append(out, entity)
	}
	return out, nil
}

// GetByIndex resolves an index set and batch-fetches its members.
func (s *Store[T, PT]) GetByIndex(ctx context.Context, indexKey string) ([]PT, error) {
	ids, err := s.kv.SMembers(ctx, indexKey)
	if err != nil {
		return nil, err
	}
	return s.GetMany(ctx, ids)
}

// GetAll returns every entity in the "all" index.
func (s *Store[T, PT]) GetAll(ctx context.Context) ([]PT, error) {
	return s.GetByIndex(ctx, kvstore.AllIndexKey(s.entityType))
}

// GetPublished returns the entities in the "published" index.
func (s *Store[T, PT]) GetPublished(ctx context.Context) ([]PT, error) {
	return s.GetByIndex(ctx, kvstore.PublishedIndexKey(s.entityType))
}

// Update merges a partial document into the stored entity and saves it.
// Returns nil when the entity does not exist; it never creates one.
// The id field is immutable and silently dropped from the partial.
func (s *Store[T, PT]) Update(ctx context.Context, id string, partial map[string]any, source model.AuditSource) (PT, error) {
	// The read leg of the merge is internal; only the update is audited.
	current, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, nil
	}
	merged, err := MergePartial(current, partial)
	if err != nil {
		return nil, err
	}
	entity := PT(new(T))
	if err := json.Unmarshal(merged, entity); err != nil {
		return nil, fmt.Errorf("merge %s %q: %w", s.entityType, id, err)
	}
	if err := s.Save(ctx, entity, source); err != nil {
		return nil, err
	}
	return entity, nil
}

// MergePartial applies a shallow field merge, with one level of nesting
// for the metadata block so callers can flip status or featured without
// clobbering timestamps.
func MergePartial(current any, partial map[string]any) ([]byte, error) {
	raw, err := json.Marshal(current)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	for k, v := range partial {
		if k == "id" {
			continue
		}
		if k == "metadata" {
			patch, ok := v.(map[string]any)
			if !ok {
				continue
			}
			meta, ok := doc["metadata"].(map[string]any)
			if !ok {
				meta = map[string]any{}
			}
			for mk, mv := range patch {
				meta[mk] = mv
			}
			doc["metadata"] = meta
			continue
		}
		doc[k] = v
	}
	return json.Marshal(doc)
}
