// Package flags is the process-wide migration controller: a small state
// machine over migration_mode {json, dual, redis} plus per-entity read and
// write switches, persisted in the key-value store so it survives
// restarts. Reads go through a short-TTL in-memory cache to bound load on
// the flag key; when the store is unreachable the controller fails closed
// to the all-JSON defaults rather than accidentally enabling redis.
package flags

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"k8s.io/klog/v2"

	"github.com/wrenware/showcase/pkg/audit"
	"github.com/wrenware/showcase/pkg/kvstore"
	"github.com/wrenware/showcase/pkg/model"
)

const defaultCacheTTL = 10 * time.Second

// Dual-write phases accepted by the dual-write endpoint.
const (
	PhaseReadOnly     = "read-only"
	PhaseDualWrite    = "dual-write"
	PhaseRedisPrimary = "redis-primary"
)

// Controller owns the persisted flag record and its cache.
type Controller struct {
	kv    *kvstore.Client
	audit *audit.Service

	cacheTTL time.Duration
	clock    func() time.Time

	mu     sync.Mutex
	cached *model.MigrationFlags
	expiry time.Time
}

// New builds a Controller. clock may be nil, defaulting to time.Now.
func New(kv *kvstore.Client, auditSvc *audit.Service, clock func() time.Time) *Controller {
	if clock == nil {
		clock = time.Now
	}
	return &Controller{
		kv:       kv,
		audit:    auditSvc,
		cacheTTL: defaultCacheTTL,
		clock:    clock,
	}
}

// GetFlags returns the current flag record, served from cache when fresh.
// An unreachable flag store degrades to the safe all-JSON defaults.
func (c *Controller) GetFlags(ctx context.Context) model.MigrationFlags {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock()
	if c.cached != nil && now.Before(c.expiry) {
		return *c.cached
	}
	current, err := c.fetch(ctx)
	if err != nil {
		klog.Warningf("flag store unreachable, serving all-JSON defaults: %v", err)
		return model.DefaultFlags()
	}
	c.cached = &current
	c.expiry = now.Add(c.cacheTTL)
	return current
}

// fetch loads the persisted record, lazily initializing defaults the
// first time the key is missing. Caller holds the lock.
func (c *Controller) fetch(ctx context.Context) (model.MigrationFlags, error) {
	raw, ok, err := c.kv.Get(ctx, kvstore.FlagsKey)
	if err != nil {
		return model.MigrationFlags{}, err
	}
	if !ok {
		defaults := model.DefaultFlags()
		defaults.UpdatedAt = c.clock()
		if err := c.persist(ctx, &defaults); err != nil {
			return model.MigrationFlags{}, err
		}
		return defaults, nil
	}
	var current model.MigrationFlags
	if err := json.Unmarshal([]byte(raw), &current); err != nil {
		return model.MigrationFlags{}, fmt.Errorf("decode flag record: %w", err)
	}
	normalize(&current)
	return current, nil
}

func (c *Controller) persist(ctx context.Context, f *model.MigrationFlags) error {
	normalize(f)
	f.UpdatedAt = c.clock()
	raw, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode flag record: %w", err)
	}
	return c.kv.Set(ctx, kvstore.FlagsKey, string(raw))
}

// normalize enforces the mode invariant: json mode means every redis
// flag is off, whatever state the record arrived in.
func normalize(f *model.MigrationFlags) {
	if f.MigrationMode == "" {
		f.MigrationMode = model.ModeJSON
	}
	if f.MigrationMode == model.ModeJSON {
		f.RedisReadProjects = false
		f.RedisReadResources = false
		f.RedisWriteProjects = false
		f.RedisWriteResources = false
		f.RedisMCPTools = false
	}
}

// mutate runs one load-modify-persist cycle under the lock, invalidates
// the cache and writes the audit record.
func (c *Controller) mutate(ctx context.Context, detail string, apply func(*model.MigrationFlags) error) (model.MigrationFlags, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	current, err := c.fetch(ctx)
	if err != nil {
		return model.MigrationFlags{}, err
	}
	before := current
	if err := apply(&current); err != nil {
		return model.MigrationFlags{}, err
	}
	if err := c.persist(ctx, &current); err != nil {
		return model.MigrationFlags{}, err
	}
	c.cached = &current
	c.expiry = c.clock().Add(c.cacheTTL)

	c.audit.LogEntry(ctx, model.AuditEntry{
		Action: model.ActionFlagChange,
		Source: model.SourceAdmin,
		Changes: &model.AuditChange{
			Flag: &model.FlagChange{
				Flag:     detail,
				OldValue: string(before.MigrationMode),
				NewValue: string(current.MigrationMode),
			},
		},
	})
	return current, nil
}

// SetFlag flips one redis_* switch. Turning any switch on while the mode
// is still json requires migration_started and moves the mode to dual.
func (c *Controller) SetFlag(ctx context.Context, name string, value bool) (model.MigrationFlags, error) {
	return c.mutate(ctx, fmt.Sprintf("%s=%t", name, value), func(f *model.MigrationFlags) error {
		if value && f.MigrationMode == model.ModeJSON {
			if !f.MigrationStarted {
				return fmt.Errorf("cannot enable %s before the migration is started", name)
			}
			f.MigrationMode = model.ModeDual
		}
		switch name {
		case model.FlagRedisReadProjects:
			f.RedisReadProjects = value
		case model.FlagRedisReadResources:
			f.RedisReadResources = value
		case model.FlagRedisWriteProjects:
			f.RedisWriteProjects = value
		case model.FlagRedisWriteResources:
			f.RedisWriteResources = value
		case model.FlagRedisMCPTools:
			f.RedisMCPTools = value
		default:
			return fmt.Errorf("unknown flag %q", name)
		}
		return nil
	})
}

// ApplyDualWritePhase applies the flag set for a named cutover phase.
func (c *Controller) ApplyDualWritePhase(ctx context.Context, phase string, projects, resources, mcp bool) (model.MigrationFlags, error) {
	return c.mutate(ctx, "phase="+phase, func(f *model.MigrationFlags) error {
		if !f.MigrationStarted {
			return fmt.Errorf("cannot apply phase %q before the migration is started", phase)
		}
		switch phase {
		case PhaseReadOnly:
			f.RedisReadProjects = projects
			f.RedisReadResources = resources
			f.RedisWriteProjects = false
			f.RedisWriteResources = false
			f.MigrationMode = model.ModeDual
		case PhaseDualWrite:
			f.RedisReadProjects = projects
			f.RedisReadResources = resources
			f.RedisWriteProjects = projects
			f.RedisWriteResources = resources
			f.MigrationMode = model.ModeDual
		case PhaseRedisPrimary:
			f.RedisReadProjects = projects
			f.RedisReadResources = resources
			f.RedisWriteProjects = projects
			f.RedisWriteResources = resources
			f.MigrationMode = model.ModeRedis
		default:
			return fmt.Errorf("unknown phase %q", phase)
		}
		f.RedisMCPTools = mcp
		if !f.AnyRedis() {
			f.MigrationMode = model.ModeJSON
		}
		return nil
	})
}

// StartMigration marks the migration as started; flag phases refuse to
// run before this.
func (c *Controller) StartMigration(ctx context.Context) (model.MigrationFlags, error) {
	return c.mutate(ctx, "migration_started=true", func(f *model.MigrationFlags) error {
		f.MigrationStarted = true
		return nil
	})
}

// PauseMigration sets migration_paused without touching the mode.
func (c *Controller) PauseMigration(ctx context.Context) (model.MigrationFlags, error) {
	return c.mutate(ctx, "migration_paused=true", func(f *model.MigrationFlags) error {
		f.MigrationPaused = true
		return nil
	})
}

// ResumeMigration clears migration_paused without touching the mode.
func (c *Controller) ResumeMigration(ctx context.Context) (model.MigrationFlags, error) {
	return c.mutate(ctx, "migration_paused=false", func(f *model.MigrationFlags) error {
		f.MigrationPaused = false
		return nil
	})
}

// CompleteMigration moves to redis mode and disables rollback; the dual
// phase is over and JSON is no longer written.
func (c *Controller) CompleteMigration(ctx context.Context) (model.MigrationFlags, error) {
	return c.mutate(ctx, "migration_completed=true", func(f *model.MigrationFlags) error {
		f.MigrationMode = model.ModeRedis
		f.MigrationCompleted = true
		f.MigrationPaused = false
		f.RollbackEnabled = false
		return nil
	})
}

// EmergencyRollback unconditionally returns to all-JSON serving: every
// redis flag off, mode json, migration paused. Safe to call repeatedly.
func (c *Controller) EmergencyRollback(ctx context.Context, reason string) (model.MigrationFlags, error) {
	klog.Warningf("emergency rollback requested: %s", reason)
	flags, err := c.mutate(ctx, "emergency_rollback", func(f *model.MigrationFlags) error {
		f.MigrationMode = model.ModeJSON
		f.MigrationPaused = true
		f.MigrationCompleted = false
		f.RollbackEnabled = true
		return nil
	})
	if err != nil {
		return flags, err
	}
	c.audit.LogEntry(ctx, model.AuditEntry{
		Action: model.ActionEmergencyRollback,
		Source: model.SourceAdmin,
		Changes: &model.AuditChange{
			Flag: &model.FlagChange{Flag: "migration_mode", NewValue: string(model.ModeJSON), Reason: reason},
		},
	})
	return flags, nil
}

// ResetToDefaults rewrites the record with the all-JSON defaults. Dev and
// test utility behind DELETE /migration/run.
func (c *Controller) ResetToDefaults(ctx context.Context) (model.MigrationFlags, error) {
	return c.mutate(ctx, "reset_to_defaults", func(f *model.MigrationFlags) error {
		*f = model.DefaultFlags()
		return nil
	})
}

// InvalidateCache forces the next GetFlags to hit the store. Used by the
// bulk runner after it mutates flags out of band.
func (c *Controller) InvalidateCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cached = nil
}
