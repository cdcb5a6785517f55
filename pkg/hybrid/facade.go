// Package hybrid is the single entry point the rest of the application
// uses for entity reads and writes. It consults the migration controller
// to decide which store serves each call, falls back to the JSON files
// when the key-value side misbehaves, and keeps per-operation statistics.
//
// Dual-write tie-break: the key-value result wins when it succeeded, and
// a key-value failure fails the whole write even if the JSON leg could
// have succeeded. The asymmetry deliberately biases toward the
// migration's destination store.
package hybrid

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"k8s.io/klog/v2"

	"github.com/wrenware/showcase/pkg/apperrors"
	"github.com/wrenware/showcase/pkg/audit"
	"github.com/wrenware/showcase/pkg/entitystore"
	"github.com/wrenware/showcase/pkg/flags"
	"github.com/wrenware/showcase/pkg/jsonstore"
	"github.com/wrenware/showcase/pkg/kvstore"
	"github.com/wrenware/showcase/pkg/model"
)

// Collection file names inside the JSON data directory.
const (
	ProjectsFile  = "projects.json"
	ResourcesFile = "resources.json"
)

// Source labels for operation statistics.
const (
	sourceRedis = "redis"
	sourceJSON  = "json"
	sourceDual  = "dual"
)

// Facade hides the JSON/key-value split from its callers.
type Facade struct {
	kv        *kvstore.Client
	flags     *flags.Controller
	projects  *entitystore.ProjectStore
	resources *entitystore.ResourceStore
	files     *jsonstore.Store
	audit     *audit.Service
	stats     *StatsRecorder
}

// New wires the facade from its collaborators.
func New(
	kv *kvstore.Client,
	ctrl *flags.Controller,
	projects *entitystore.ProjectStore,
	resources *entitystore.ResourceStore,
	files *jsonstore.Store,
	auditSvc *audit.Service,
	stats *StatsRecorder,
) *Facade {
	return &Facade{
		kv:        kv,
		flags:     ctrl,
		projects:  projects,
		resources: resources,
		files:     files,
		audit:     auditSvc,
		stats:     stats,
	}
}

// Stats exposes the recorder for the status endpoints.
func (f *Facade) Stats() *StatsRecorder { return f.stats }

func (f *Facade) record(source, op string, t model.EntityType, success bool, start time.Time) {
	f.stats.Record(model.OperationStat{
		Source:        source,
		OperationType: op,
		EntityType:    t,
		Success:       success,
		Latency:       time.Since(start),
	})
}

// readVia serves a read from the key-value store when the flags enable
// it, dropping to the JSON files through the client's circuit breaker
// otherwise. It reports which source actually answered.
func readVia[T any](ctx context.Context, kv *kvstore.Client, enabled bool, primary, fromFile func(context.Context) (T, error)) (T, string, error) {
	if !enabled {
		out, err := fromFile(ctx)
		return out, sourceJSON, err
	}
	source := sourceRedis
	out, err := kvstore.ExecuteWithFallback(ctx, kv, primary, func(ctx context.Context) (T, error) {
		source = sourceJSON
		return fromFile(ctx)
	})
	return out, source, err
}

// GetProjects returns every project from whichever store is active.
// Published-only filtering belongs to the HTTP layer, never here.
func (f *Facade) GetProjects(ctx context.Context) ([]*model.Project, error) {
	start := time.Now()
	list, source, err := readVia(ctx, f.kv, f.flags.GetFlags(ctx).ReadEnabled(model.EntityProjects),
		f.projects.GetAll,
		func(context.Context) ([]*model.Project, error) {
			items, err := jsonstore.ReadArray[model.Project](f.files.Path(ProjectsFile))
			if err != nil {
				return nil, err
			}
			return toPtrs(items), nil
		})
	f.record(source, "read", model.EntityProjects, err == nil, start)
	return list, err
}

// GetProject returns one project by slug, nil when absent.
func (f *Facade) GetProject(ctx context.Context, slug string) (*model.Project, error) {
	start := time.Now()
	p, source, err := readVia(ctx, f.kv, f.flags.GetFlags(ctx).ReadEnabled(model.EntityProjects),
		func(ctx context.Context) (*model.Project, error) {
			return f.projects.Get(ctx, slug)
		},
		func(context.Context) (*model.Project, error) {
			return findInFile[model.Project](f.files, ProjectsFile, slug)
		})
	f.record(source, "read", model.EntityProjects, err == nil, start)
	return p, err
}

// GetResources returns every resource from whichever store is active.
func (f *Facade) GetResources(ctx context.Context) ([]*model.Resource, error) {
	start := time.Now()
	list, source, err := readVia(ctx, f.kv, f.flags.GetFlags(ctx).ReadEnabled(model.EntityResources),
		f.resources.GetAll,
		func(context.Context) ([]*model.Resource, error) {
			items, err := jsonstore.ReadArray[model.Resource](f.files.Path(ResourcesFile))
			if err != nil {
				return nil, err
			}
			return toPtrs(items), nil
		})
	f.record(source, "read", model.EntityResources, err == nil, start)
	return list, err
}

// GetResource returns one resource by slug, nil when absent.
func (f *Facade) GetResource(ctx context.Context, slug string) (*model.Resource, error) {
	start := time.Now()
	r, source, err := readVia(ctx, f.kv, f.flags.GetFlags(ctx).ReadEnabled(model.EntityResources),
		func(ctx context.Context) (*model.Resource, error) {
			return f.resources.Get(ctx, slug)
		},
		func(context.Context) (*model.Resource, error) {
			return findInFile[model.Resource](f.files, ResourcesFile, slug)
		})
	f.record(source, "read", model.EntityResources, err == nil, start)
	return r, err
}

// findInFile scans the collection file for one slug, nil when absent.
func findInFile[T any](files *jsonstore.Store, name, slug string) (*T, error) {
	items, err := jsonstore.ReadArray[T](files.Path(name))
	if err != nil {
		return nil, err
	}
	for i := range items {
		if entityID(&items[i]) == slug {
			return &items[i], nil
		}
	}
	return nil, nil
}

func toPtrs[T any](items []T) []*T {
	out := make([]*T, len(items))
	for i := range items {
		out[i] = &items[i]
	}
	return out
}

// UpdateProject merges a partial document into the stored project. The
// active flags decide which store (or both) takes the write.
func (f *Facade) UpdateProject(ctx context.Context, slug string, partial map[string]any, source model.AuditSource) (*model.Project, error) {
	start := time.Now()
	fl := f.flags.GetFlags(ctx)

	switch {
	case fl.WriteEnabled(model.EntityProjects) && fl.MigrationMode == model.ModeDual:
		// Key-value first: its failure fails the whole call before the
		// JSON file is touched.
		kvProject, err := f.projects.Update(ctx, slug, partial, source)
		if err != nil {
			f.record(sourceDual, "write", model.EntityProjects, false, start)
			return nil, err
		}
		if kvProject == nil {
			f.record(sourceDual, "write", model.EntityProjects, false, start)
			return nil, &apperrors.NotFoundError{EntityType: string(model.EntityProjects), EntityID: slug}
		}
		jsonProject, jsonErr := updateInFile[model.Project](f.files, ProjectsFile, slug, partial, source)
		if jsonErr != nil {
			// Redis wins the tie-break; the JSON leg is only logged.
			klog.Warningf("JSON leg of dual write failed for project %q: %v", slug, jsonErr)
		} else {
			f.checkProjectConsistency(ctx, kvProject, jsonProject)
		}
		f.record(sourceDual, "write", model.EntityProjects, true, start)
		return kvProject, nil

	case fl.WriteEnabled(model.EntityProjects) && fl.MigrationMode == model.ModeRedis:
		kvProject, err := f.projects.Update(ctx, slug, partial, source)
		f.record(sourceRedis, "write", model.EntityProjects, err == nil && kvProject != nil, start)
		if err != nil {
			return nil, err
		}
		if kvProject == nil {
			return nil, &apperrors.NotFoundError{EntityType: string(model.EntityProjects), EntityID: slug}
		}
		return kvProject, nil

	default:
		p, err := updateInFile[model.Project](f.files, ProjectsFile, slug, partial, source)
		f.record(sourceJSON, "write", model.EntityProjects, err == nil, start)
		return p, err
	}
}

// UpdateResource merges a partial document into the stored resource.
func (f *Facade) UpdateResource(ctx context.Context, slug string, partial map[string]any, source model.AuditSource) (*model.Resource, error) {
	start := time.Now()
	fl := f.flags.GetFlags(ctx)

	switch {
	case fl.WriteEnabled(model.EntityResources) && fl.MigrationMode == model.ModeDual:
		kvResource, err := f.resources.Update(ctx, slug, partial, source)
		if err != nil {
			f.record(sourceDual, "write", model.EntityResources, false, start)
			return nil, err
		}
		if kvResource == nil {
			f.record(sourceDual, "write", model.EntityResources, false, start)
			return nil, &apperrors.NotFoundError{EntityType: string(model.EntityResources), EntityID: slug}
		}
		jsonResource, jsonErr := updateInFile[model.Resource](f.files, ResourcesFile, slug, partial, source)
		if jsonErr != nil {
			klog.Warningf("JSON leg of dual write failed for resource %q: %v", slug, jsonErr)
		} else {
			f.checkResourceConsistency(ctx, kvResource, jsonResource)
		}
		f.record(sourceDual, "write", model.EntityResources, true, start)
		return kvResource, nil

	case fl.WriteEnabled(model.EntityResources) && fl.MigrationMode == model.ModeRedis:
		kvResource, err := f.resources.Update(ctx, slug, partial, source)
		f.record(sourceRedis, "write", model.EntityResources, err == nil && kvResource != nil, start)
		if err != nil {
			return nil, err
		}
		if kvResource == nil {
			return nil, &apperrors.NotFoundError{EntityType: string(model.EntityResources), EntityID: slug}
		}
		return kvResource, nil

	default:
		r, err := updateInFile[model.Resource](f.files, ResourcesFile, slug, partial, source)
		f.record(sourceJSON, "write", model.EntityResources, err == nil, start)
		return r, err
	}
}

// updateInFile is the JSON leg of an entity update: read-merge-write with
// not-found propagating before anything is written.
func updateInFile[T any](files *jsonstore.Store, name, slug string, partial map[string]any, source model.AuditSource) (*T, error) {
	var updated *T
	path := files.Path(name)
	_, err := jsonstore.AtomicUpdate(files, path, jsonstore.WriteOptions{Source: source}, func(items []T) ([]T, error) {
		idx := -1
		for i := range items {
			if entityID(&items[i]) == slug {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, &apperrors.NotFoundError{EntityType: name, EntityID: slug}
		}
		merged, err := entitystore.MergePartial(&items[idx], partial)
		if err != nil {
			return nil, err
		}
		next := new(T)
		if err := unmarshalStrictID(merged, next, slug); err != nil {
			return nil, err
		}
		stampUpdated(next)
		items[idx] = *next
		updated = next
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func entityID(v any) string {
	if e, ok := v.(model.Entity); ok {
		return e.ID()
	}
	return ""
}

func stampUpdated(v any) {
	if e, ok := v.(model.Entity); ok {
		e.Meta().UpdatedAt = time.Now()
	}
}

func unmarshalStrictID(raw []byte, next any, slug string) error {
	if err := json.Unmarshal(raw, next); err != nil {
		return err
	}
	if e, ok := next.(model.Entity); ok && e.ID() != slug {
		return fmt.Errorf("id is immutable, cannot change %q", slug)
	}
	return nil
}

func (f *Facade) checkProjectConsistency(ctx context.Context, kv, js *model.Project) {
	if kv.Title == js.Title && kv.Description == js.Description &&
		kv.Metadata.Published() == js.Metadata.Published() {
		return
	}
	f.logConsistencyViolation(ctx, model.EntityProjects, kv.Slug, fmt.Sprintf(
		"kv={title:%q published:%t} json={title:%q published:%t}",
		kv.Title, kv.Metadata.Published(), js.Title, js.Metadata.Published()))
}

func (f *Facade) checkResourceConsistency(ctx context.Context, kv, js *model.Resource) {
	if kv.Title == js.Title && kv.Description == js.Description &&
		kv.Metadata.Published() == js.Metadata.Published() {
		return
	}
	f.logConsistencyViolation(ctx, model.EntityResources, kv.Slug, fmt.Sprintf(
		"kv={title:%q published:%t} json={title:%q published:%t}",
		kv.Title, kv.Metadata.Published(), js.Title, js.Metadata.Published()))
}

// logConsistencyViolation records the divergence; it never fails the
// request that detected it.
func (f *Facade) logConsistencyViolation(ctx context.Context, t model.EntityType, slug, detail string) {
	klog.Warningf("dual-write consistency violation for %s %q: %s", t, slug, detail)
	f.audit.LogEntry(ctx, model.AuditEntry{
		Action:     model.ActionConsistencyViolation,
		EntityType: t,
		EntityID:   slug,
		Source:     model.SourceHybridService,
		Changes:    &model.AuditChange{Detail: detail},
	})
}
