package model

import (
	"encoding/json"
	"time"
)

// AuditAction enumerates the operations recorded in the audit trail.
type AuditAction string

const (
	ActionCreate               AuditAction = "create"
	ActionUpdate               AuditAction = "update"
	ActionDelete               AuditAction = "delete"
	ActionRead                 AuditAction = "read"
	ActionFileWrite            AuditAction = "file_write"
	ActionFlagChange           AuditAction = "flag_change"
	ActionMigration            AuditAction = "migration"
	ActionEmergencyRollback    AuditAction = "emergency_rollback"
	ActionConsistencyViolation AuditAction = "consistency_violation"
	ActionCleanup              AuditAction = "cleanup"
)

// AuditSource identifies the actor that triggered a mutation.
type AuditSource string

const (
	SourceMCP           AuditSource = "mcp"
	SourceAPI           AuditSource = "api"
	SourceAdmin         AuditSource = "admin"
	SourceMigration     AuditSource = "migration"
	SourceHybridService AuditSource = "hybrid_service"
	SourceJSONStore     AuditSource = "json_store"
)

// AuditEntry is one immutable record of a mutating operation.
// Timestamp doubles as the sorted-set score (epoch millis), so entries
// sharing a millisecond have no defined relative order.
type AuditEntry struct {
	// ID keeps otherwise identical entries distinct in the sorted set.
	ID         string       `json:"id,omitempty"`
	Timestamp  time.Time    `json:"timestamp"`
	Action     AuditAction  `json:"action"`
	EntityType EntityType   `json:"entityType,omitempty"`
	EntityID   string       `json:"entityId,omitempty"`
	Source     AuditSource  `json:"source"`
	Changes    *AuditChange `json:"changes,omitempty"`
}

// Score returns the epoch-millisecond ordering key for the entry.
func (e *AuditEntry) Score() int64 {
	return e.Timestamp.UnixMilli()
}

// AuditChange is a tagged union over the payload kinds the trail records.
// Exactly one field should be set; Other carries forward-compatible raw
// JSON from sources this version does not know how to type.
type AuditChange struct {
	Project  *ProjectChange  `json:"project,omitempty"`
	Resource *ResourceChange `json:"resource,omitempty"`
	Flag     *FlagChange     `json:"flag,omitempty"`
	Detail   string          `json:"detail,omitempty"`
	Other    json.RawMessage `json:"other,omitempty"`
}

// ProjectChange captures the fields a project mutation touched.
type ProjectChange struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Status      Status `json:"status,omitempty"`
}

// ResourceChange captures the fields a resource mutation touched.
type ResourceChange struct {
	Title        string `json:"title,omitempty"`
	Description  string `json:"description,omitempty"`
	DownloadLink string `json:"downloadLink,omitempty"`
	Status       Status `json:"status,omitempty"`
}

// FlagChange records a migration flag transition.
type FlagChange struct {
	Flag     string `json:"flag,omitempty"`
	OldValue string `json:"oldValue,omitempty"`
	NewValue string `json:"newValue,omitempty"`
	Reason   string `json:"reason,omitempty"`
}
