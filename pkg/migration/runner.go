// Package migration implements the one-shot batch job that copies the
// JSON collections into the key-value store. Per-record failures are
// counted and reported, never fatal; only connectivity loss or a failed
// integrity validation aborts the run, triggering the controller's
// emergency rollback when enabled.
package migration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/wrenware/showcase/pkg/audit"
	"github.com/wrenware/showcase/pkg/entitystore"
	"github.com/wrenware/showcase/pkg/flags"
	"github.com/wrenware/showcase/pkg/hybrid"
	"github.com/wrenware/showcase/pkg/jsonstore"
	"github.com/wrenware/showcase/pkg/kvstore"
	"github.com/wrenware/showcase/pkg/model"
)

var (
	// ErrAlreadyRunning guards the single-flight contract (HTTP 409).
	ErrAlreadyRunning = errors.New("migration is already running")
	// ErrAlreadyCompleted refuses a re-run after success (HTTP 400).
	ErrAlreadyCompleted = errors.New("migration has already completed")
)

const defaultBatchSize = 10

// Options tunes one run.
type Options struct {
	BatchSize             int  `json:"batchSize"`
	ValidateIntegrity     bool `json:"validateIntegrity"`
	EnableProgressLogging bool `json:"enableProgressLogging"`
	EnableRollback        bool `json:"enableRollback"`
	SkipIfExists          bool `json:"skipIfExists"`
}

// EntityResult is the per-collection outcome.
type EntityResult struct {
	Total    int      `json:"total"`
	Migrated int      `json:"migrated"`
	Skipped  int      `json:"skipped"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
}

// Result summarizes a whole run.
type Result struct {
	RunID        string       `json:"runId"`
	StartedAt    time.Time    `json:"startedAt"`
	FinishedAt   time.Time    `json:"finishedAt"`
	Success      bool         `json:"success"`
	Error        string       `json:"error,omitempty"`
	Projects     EntityResult `json:"projects"`
	Resources    EntityResult `json:"resources"`
	AuditEntries EntityResult `json:"auditEntries"`
	RolledBack   bool         `json:"rolledBack,omitempty"`
}

// Status is the snapshot served by GET /migration/run.
type Status struct {
	Running   bool                 `json:"running"`
	Completed bool                 `json:"completed"`
	Flags     model.MigrationFlags `json:"flags"`
	LastRun   *Result              `json:"lastRun,omitempty"`
}

// Runner executes bulk migrations; one at a time per process.
type Runner struct {
	kv        *kvstore.Client
	files     *jsonstore.Store
	projects  *entitystore.ProjectStore
	resources *entitystore.ResourceStore
	audit     *audit.Service
	flags     *flags.Controller

	mu        sync.Mutex
	running   bool
	completed bool
	last      *Result
}

// NewRunner wires the runner from its collaborators.
func NewRunner(
	kv *kvstore.Client,
	files *jsonstore.Store,
	projects *entitystore.ProjectStore,
	resources *entitystore.ResourceStore,
	auditSvc *audit.Service,
	ctrl *flags.Controller,
) *Runner {
	return &Runner{
		kv:        kv,
		files:     files,
		projects:  projects,
		resources: resources,
		audit:     auditSvc,
		flags:     ctrl,
	}
}

// Start launches a run in the background. It enforces the single-flight
// contract synchronously so the handler can answer 409/400 immediately.
func (r *Runner) Start(opts Options) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return ErrAlreadyRunning
	}
	if r.completed {
		r.mu.Unlock()
		return ErrAlreadyCompleted
	}
	r.running = true
	r.mu.Unlock()

	go func() {
		// The run owns its own lifetime; the HTTP request that started
		// it has long since returned.
		res := r.run(context.Background(), opts)
		r.mu.Lock()
		r.running = false
		r.completed = res.Success
		r.last = res
		r.mu.Unlock()
	}()
	return nil
}

// Status reports the current run state plus the controller's flags.
func (r *Runner) Status(ctx context.Context) Status {
	r.mu.Lock()
	st := Status{Running: r.running, Completed: r.completed, LastRun: r.last}
	r.mu.Unlock()
	st.Flags = r.flags.GetFlags(ctx)
	return st
}

// ResetCompleted clears the completed latch (dev/test utility backing
// DELETE /migration/run, together with the controller flag reset).
func (r *Runner) ResetCompleted() {
	r.mu.Lock()
	r.completed = false
	r.last = nil
	r.mu.Unlock()
}

// Run executes the phases in strict order and returns the summary. It is
// exported for synchronous use in tests and one-off tooling; the HTTP
// surface goes through Start.
func (r *Runner) Run(ctx context.Context, opts Options) *Result {
	return r.run(ctx, opts)
}

func (r *Runner) run(ctx context.Context, opts Options) *Result {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	res := &Result{RunID: uuid.NewString(), StartedAt: time.Now()}

	fail := func(msg string) *Result {
		res.Success = false
		res.Error = msg
		res.FinishedAt = time.Now()
		klog.Errorf("bulk migration %s failed: %s", res.RunID, msg)
		if opts.EnableRollback {
			if _, err := r.flags.EmergencyRollback(ctx, "bulk migration failed: "+msg); err != nil {
				klog.Errorf("rollback after failed migration also failed: %v", err)
			} else {
				res.RolledBack = true
			}
		}
		r.logSummary(ctx, res)
		return res
	}

	// Phase 1: connectivity. A stale healthy verdict is not good enough
	// to start copying, so force a fresh probe.
	r.kv.InvalidateHealth()
	if !r.kv.HealthCheck(ctx) {
		return fail("key-value store failed connectivity check")
	}

	// Phase 2: mark started.
	if _, err := r.flags.StartMigration(ctx); err != nil {
		return fail(fmt.Sprintf("could not mark migration started: %v", err))
	}

	// Phase 3 and 4: entity collections.
	res.Projects = migrateCollection(ctx, r, hybrid.ProjectsFile, opts,
		func(ctx context.Context, p *model.Project) error {
			return r.projects.Save(ctx, p, model.SourceMigration)
		})
	res.Resources = migrateCollection(ctx, r, hybrid.ResourcesFile, opts,
		func(ctx context.Context, rs *model.Resource) error {
			return r.resources.Save(ctx, rs, model.SourceMigration)
		})

	// Phase 5: the file-local audit trail.
	res.AuditEntries = r.migrateAuditEntries(ctx, opts)

	// Phase 6: optional integrity validation.
	if opts.ValidateIntegrity {
		if err := r.validateIntegrity(ctx, res); err != nil {
			return fail(err.Error())
		}
	}

	res.Success = true
	res.FinishedAt = time.Now()
	klog.Infof("bulk migration %s done: projects %d/%d, resources %d/%d, audit %d/%d",
		res.RunID,
		res.Projects.Migrated, res.Projects.Total,
		res.Resources.Migrated, res.Resources.Total,
		res.AuditEntries.Migrated, res.AuditEntries.Total)
	r.logSummary(ctx, res)
	return res
}

// migrateCollection streams one JSON array file in fixed-size batches,
// decoding records individually so a single malformed record is counted
// and named instead of aborting the file.
func migrateCollection[T any, PT interface {
	*T
	model.Entity
}](ctx context.Context, r *Runner, fileName string, opts Options, save func(context.Context, PT) error) EntityResult {
	var out EntityResult
	raws, err := jsonstore.ReadArray[json.RawMessage](r.files.Path(fileName))
	if err != nil {
		out.Errors = append(out.Errors, fmt.Sprintf("read %s: %v", fileName, err))
		out.Failed++
		return out
	}
	out.Total = len(raws)

	for start := 0; start < len(raws); start += opts.BatchSize {
		end := min(start+opts.BatchSize, len(raws))
		for _, raw := range raws[start:end] {
			entity := PT(new(T))
			if err := json.Unmarshal(raw, entity); err != nil {
				out.Failed++
				out.Errors = append(out.Errors, fmt.Sprintf("%s: %v", looseID(raw), err))
				continue
			}
			if opts.SkipIfExists {
				exists, err := r.kv.Exists(ctx, kvstore.DataKey(entity.EntityType(), entity.ID()))
				if err == nil && exists {
					out.Skipped++
					continue
				}
			}
			if err := save(ctx, entity); err != nil {
				out.Failed++
				out.Errors = append(out.Errors, fmt.Sprintf("%s: %v", entity.ID(), err))
				continue
			}
			out.Migrated++
		}
		if opts.EnableProgressLogging {
			klog.Infof("migrating %s: %d/%d done (%d failed)", fileName, end, out.Total, out.Failed)
		}
	}
	return out
}

// looseID pulls just the id out of a record that would not decode, so
// the error list can still name the offender.
func looseID(raw json.RawMessage) string {
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil || probe.ID == "" {
		return "<unknown id>"
	}
	return probe.ID
}

func (r *Runner) migrateAuditEntries(ctx context.Context, opts Options) EntityResult {
	var out EntityResult
	entries, err := r.files.AuditEntries()
	if err != nil {
		out.Errors = append(out.Errors, fmt.Sprintf("read audit trail: %v", err))
		out.Failed++
		return out
	}
	out.Total = len(entries)
	for i := range entries {
		e := entries[i]
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		raw, err := json.Marshal(e)
		if err != nil {
			out.Failed++
			out.Errors = append(out.Errors, fmt.Sprintf("audit entry %d: %v", i, err))
			continue
		}
		if err := r.kv.ZAdd(ctx, kvstore.AuditLogKey, e.Score(), string(raw)); err != nil {
			out.Failed++
			out.Errors = append(out.Errors, fmt.Sprintf("audit entry %d: %v", i, err))
			continue
		}
		out.Migrated++
	}
	if opts.EnableProgressLogging {
		klog.Infof("migrated %d/%d audit entries", out.Migrated, out.Total)
	}
	return out
}

// validateIntegrity compares what the run claims to have migrated with
// what the destination actually holds.
func (r *Runner) validateIntegrity(ctx context.Context, res *Result) error {
	checks := []struct {
		name     string
		migrated int
		skipped  int
		indexKey string
	}{
		{"projects", res.Projects.Migrated, res.Projects.Skipped, kvstore.AllIndexKey(model.EntityProjects)},
		{"resources", res.Resources.Migrated, res.Resources.Skipped, kvstore.AllIndexKey(model.EntityResources)},
	}
	for _, c := range checks {
		count, err := r.kv.SCard(ctx, c.indexKey)
		if err != nil {
			return fmt.Errorf("integrity validation could not count %s: %w", c.name, err)
		}
		if c.migrated > 0 && count == 0 {
			return fmt.Errorf("integrity validation failed: migrated %d %s but destination shows 0", c.migrated, c.name)
		}
		if count < int64(c.migrated+c.skipped) {
			return fmt.Errorf("integrity validation failed: destination holds %d %s, expected at least %d", count, c.name, c.migrated+c.skipped)
		}
	}
	return nil
}

func (r *Runner) logSummary(ctx context.Context, res *Result) {
	detail, err := json.Marshal(res)
	if err != nil {
		detail = []byte(res.RunID)
	}
	r.audit.LogEntry(ctx, model.AuditEntry{
		Action:  model.ActionMigration,
		Source:  model.SourceMigration,
		Changes: &model.AuditChange{Other: json.RawMessage(detail)},
	})
}
