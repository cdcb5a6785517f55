package model

import "time"

// MigrationMode is the coarse phase of the JSON to key-value cutover.
type MigrationMode string

const (
	// ModeJSON serves everything from the flat files. Initial and
	// rollback state; all redis_* flags must be false here.
	ModeJSON MigrationMode = "json"
	// ModeDual writes both stores and reads per the per-entity flags.
	ModeDual MigrationMode = "dual"
	// ModeRedis serves completed entities from the key-value store only.
	ModeRedis MigrationMode = "redis"
)

// Flag names accepted by the generic flag endpoint.
const (
	FlagRedisReadProjects   = "redis_read_projects"
	FlagRedisReadResources  = "redis_read_resources"
	FlagRedisWriteProjects  = "redis_write_projects"
	FlagRedisWriteResources = "redis_write_resources"
	FlagRedisMCPTools       = "redis_mcp_tools"
)

// MigrationFlags is the single process-wide flag record. It is persisted
// in the key-value store and cached in memory with a short TTL.
type MigrationFlags struct {
	RedisReadProjects   bool `json:"redis_read_projects"`
	RedisReadResources  bool `json:"redis_read_resources"`
	RedisWriteProjects  bool `json:"redis_write_projects"`
	RedisWriteResources bool `json:"redis_write_resources"`
	RedisMCPTools       bool `json:"redis_mcp_tools"`

	MigrationMode MigrationMode `json:"migration_mode"`

	MigrationStarted   bool `json:"migration_started"`
	MigrationCompleted bool `json:"migration_completed"`
	MigrationPaused    bool `json:"migration_paused"`
	RollbackEnabled    bool `json:"rollback_enabled"`

	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultFlags is the safe all-JSON state used before the flag record
// exists and whenever the flag store is unreachable.
func DefaultFlags() MigrationFlags {
	return MigrationFlags{
		MigrationMode:   ModeJSON,
		RollbackEnabled: true,
	}
}

// ReadEnabled reports whether key-value reads are on for the entity type.
func (f MigrationFlags) ReadEnabled(t EntityType) bool {
	switch t {
	case EntityProjects:
		return f.RedisReadProjects
	case EntityResources:
		return f.RedisReadResources
	default:
		return false
	}
}

// WriteEnabled reports whether key-value writes are on for the entity type.
func (f *MigrationFlags) WriteEnabled(t EntityType) bool {
	switch t {
	case EntityProjects:
		return f.RedisWriteProjects
	case EntityResources:
		return f.RedisWriteResources
	default:
		return false
	}
}

// AnyRedis reports whether any redis_* flag is set.
func (f *MigrationFlags) AnyRedis() bool {
	return f.RedisReadProjects || f.RedisReadResources ||
		f.RedisWriteProjects || f.RedisWriteResources || f.RedisMCPTools
}

// OperationStat is one ring-buffer sample recorded per facade call.
// Never persisted; observability only.
type OperationStat struct {
	Source        string        `json:"source"`
	OperationType string        `json:"operationType"`
	EntityType    EntityType    `json:"entityType"`
	Success       bool          `json:"success"`
	Latency       time.Duration `json:"latency"`
	Timestamp     time.Time     `json:"timestamp"`
}
