package kvstore

import "github.com/wrenware/showcase/pkg/model"

// Key naming is a pure function of entity type, id and purpose. The
// per-type segment keeps projects and resources from ever colliding.

const (
	// AuditLogKey is the time-ordered audit sorted set.
	AuditLogKey = "audit:log"
	// FlagsKey holds the persisted migration flag record.
	FlagsKey = "migration:flags"
)

// DataKey addresses one entity record, e.g. data:projects:acme.
func DataKey(t model.EntityType, id string) string {
	return "data:" + string(t) + ":" + id
}

// AllIndexKey is the set of every id ever saved for the type.
func AllIndexKey(t model.EntityType) string {
	return "index:all:" + string(t)
}

// PublishedIndexKey is the set of currently published ids for the type.
func PublishedIndexKey(t model.EntityType) string {
	return "index:published:" + string(t)
}

// AccessedKey is the best-effort last-accessed marker for one entity.
func AccessedKey(t model.EntityType, id string) string {
	return "meta:accessed:" + string(t) + ":" + id
}

// AuditCountKey addresses one audit counter hash, dimension in
// {action, entityType, source}.
func AuditCountKey(dimension string) string {
	return "audit:count:" + dimension
}
