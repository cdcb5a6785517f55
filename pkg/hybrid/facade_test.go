package hybrid_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wrenware/showcase/pkg/apperrors"
	"github.com/wrenware/showcase/pkg/audit"
	"github.com/wrenware/showcase/pkg/entitystore"
	"github.com/wrenware/showcase/pkg/flags"
	"github.com/wrenware/showcase/pkg/hybrid"
	"github.com/wrenware/showcase/pkg/jsonstore"
	"github.com/wrenware/showcase/pkg/kvstore"
	"github.com/wrenware/showcase/pkg/kvstore/kvstoretest"
	"github.com/wrenware/showcase/pkg/model"
)

type fixture struct {
	srv      *kvstoretest.Server
	files    *jsonstore.Store
	projects *entitystore.ProjectStore
	audit    *audit.Service
	flags    *flags.Controller
	facade   *hybrid.Facade
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv := kvstoretest.New()
	t.Cleanup(srv.Close)
	client, err := kvstore.New(kvstore.Config{
		URL:           srv.URL(),
		Token:         "rw",
		ReadOnlyToken: "ro",
		HealthTTL:     time.Nanosecond,
	})
	require.NoError(t, err)
	files, err := jsonstore.New(t.TempDir())
	require.NoError(t, err)

	f := &fixture{srv: srv, files: files, now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return f.now }
	f.audit = audit.New(client, clock)
	f.projects = entitystore.NewProjectStore(client, f.audit)
	resources := entitystore.NewResourceStore(client, f.audit)
	f.flags = flags.New(client, f.audit, clock)
	f.facade = hybrid.New(client, f.flags, f.projects, resources, files, f.audit, hybrid.NewStatsRecorder(nil))
	return f
}

func (f *fixture) seedJSON(t *testing.T, projects ...model.Project) {
	t.Helper()
	res := f.files.AtomicWrite(f.files.Path(hybrid.ProjectsFile), projects, jsonstore.WriteOptions{SkipAudit: true})
	require.True(t, res.Success, res.Message)
}

func (f *fixture) seedKV(t *testing.T, ctx context.Context, projects ...*model.Project) {
	t.Helper()
	for _, p := range projects {
		require.NoError(t, f.projects.Save(ctx, p, model.SourceMigration))
	}
}

func (f *fixture) enablePhase(t *testing.T, ctx context.Context, phase string) {
	t.Helper()
	_, err := f.flags.StartMigration(ctx)
	require.NoError(t, err)
	_, err = f.flags.ApplyDualWritePhase(ctx, phase, true, true, false)
	require.NoError(t, err)
}

func project(slug, title string) model.Project {
	return model.Project{
		Slug:        slug,
		Title:       title,
		Description: "Description of " + slug,
		Metadata:    model.Metadata{Status: model.StatusPublished},
	}
}

func TestReadsServeFromJSONByDefault(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedJSON(t, project("alpha", "From JSON"))

	list, err := f.facade.GetProjects(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "From JSON", list[0].Title)

	one, err := f.facade.GetProject(ctx, "alpha")
	require.NoError(t, err)
	require.NotNil(t, one)
	assert.Equal(t, "From JSON", one.Title)

	missing, err := f.facade.GetProject(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, missing)

	summary := f.facade.Stats().Summarize()
	assert.Equal(t, 3, summary.BySource["json"])
	assert.Zero(t, summary.Failures)
}

func TestReadsServeFromKVWhenFlagged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedJSON(t, project("alpha", "From JSON"))
	p := project("alpha", "From KV")
	f.seedKV(t, ctx, &p)
	f.enablePhase(t, ctx, flags.PhaseReadOnly)

	list, err := f.facade.GetProjects(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "From KV", list[0].Title)

	summary := f.facade.Stats().Summarize()
	assert.Equal(t, 1, summary.BySource["redis"])
}

func TestReadFallsBackToJSONOnKVFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedJSON(t, project("alpha", "From JSON"))
	p := project("alpha", "From KV")
	f.seedKV(t, ctx, &p)
	f.enablePhase(t, ctx, flags.PhaseReadOnly)

	f.srv.SetDown(true)
	// Every retry during the outage serves the file, not an error.
	for i := 0; i < 3; i++ {
		list, err := f.facade.GetProjects(ctx)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "From JSON", list[0].Title)
	}
	f.srv.SetDown(false)

	// Recovery: once the store answers again, KV serves.
	f.flags.InvalidateCache()
	list, err := f.facade.GetProjects(ctx)
	require.NoError(t, err)
	assert.Equal(t, "From KV", list[0].Title)
}

func TestReadFallsBackWhenCommandFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedJSON(t, project("alpha", "From JSON"))
	p := project("alpha", "From KV")
	f.seedKV(t, ctx, &p)
	f.enablePhase(t, ctx, flags.PhaseReadOnly)

	// The store answers pings but the index lookup itself errors out, so
	// the fallback leg serves the file.
	f.srv.FailCommand("SMEMBERS", true)
	list, err := f.facade.GetProjects(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "From JSON", list[0].Title)
	f.srv.FailCommand("SMEMBERS", false)

	summary := f.facade.Stats().Summarize()
	assert.Equal(t, 1, summary.BySource["json"])
}

func TestUpdateWritesJSONOnlyByDefault(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedJSON(t, project("alpha", "Old Title"))

	updated, err := f.facade.UpdateProject(ctx, "alpha", map[string]any{"title": "New Title"}, model.SourceAdmin)
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, "New Title", updated.Title)

	// Nothing reached the key-value store.
	_, ok := f.srv.GetString("data:projects:alpha")
	assert.False(t, ok)

	items, err := jsonstore.ReadArray[model.Project](f.files.Path(hybrid.ProjectsFile))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "New Title", items[0].Title)
}

func TestUpdateMissingEntityInFile(t *testing.T) {
	f := newFixture(t)
	f.seedJSON(t, project("alpha", "Alpha"))
	_, err := f.facade.UpdateProject(context.Background(), "ghost", map[string]any{"title": "x"}, model.SourceAdmin)
	var nf *apperrors.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestDualWriteUpdatesBothStores(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedJSON(t, project("alpha", "Old Title"))
	p := project("alpha", "Old Title")
	f.seedKV(t, ctx, &p)
	f.enablePhase(t, ctx, flags.PhaseDualWrite)

	updated, err := f.facade.UpdateProject(ctx, "alpha", map[string]any{"title": "New Title"}, model.SourceAdmin)
	require.NoError(t, err)
	assert.Equal(t, "New Title", updated.Title)

	fromKV, err := f.projects.Get(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, "New Title", fromKV.Title)

	items, err := jsonstore.ReadArray[model.Project](f.files.Path(hybrid.ProjectsFile))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "New Title", items[0].Title)

	// Both legs agreed, so no violation was recorded.
	entries, err := f.audit.GetEntries(ctx, audit.Query{Action: model.ActionConsistencyViolation})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDualWriteKVFailureLeavesJSONUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedJSON(t, project("alpha", "Old Title"))
	p := project("alpha", "Old Title")
	f.seedKV(t, ctx, &p)
	f.enablePhase(t, ctx, flags.PhaseDualWrite)

	f.srv.FailCommand("SET", true)
	_, err := f.facade.UpdateProject(ctx, "alpha", map[string]any{"title": "New Title"}, model.SourceAdmin)
	require.Error(t, err)
	f.srv.FailCommand("SET", false)

	items, readErr := jsonstore.ReadArray[model.Project](f.files.Path(hybrid.ProjectsFile))
	require.NoError(t, readErr)
	require.Len(t, items, 1)
	assert.Equal(t, "Old Title", items[0].Title)
}

func TestDualWriteMissingInKVIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	// Present in the file but never migrated to the key-value store.
	f.seedJSON(t, project("alpha", "Only In JSON"))
	f.enablePhase(t, ctx, flags.PhaseDualWrite)

	_, err := f.facade.UpdateProject(ctx, "alpha", map[string]any{"title": "x"}, model.SourceAdmin)
	var nf *apperrors.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "alpha", nf.EntityID)
}

func TestDualWriteDetectsDivergence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	// The two stores already disagree on the title.
	f.seedJSON(t, project("alpha", "JSON Title"))
	p := project("alpha", "KV Title")
	f.seedKV(t, ctx, &p)
	f.enablePhase(t, ctx, flags.PhaseDualWrite)

	// Updating an unrelated field keeps the divergence in place.
	_, err := f.facade.UpdateProject(ctx, "alpha", map[string]any{"outcome": "shipped"}, model.SourceAdmin)
	require.NoError(t, err)

	entries, err := f.audit.GetEntries(ctx, audit.Query{Action: model.ActionConsistencyViolation})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "alpha", entries[0].EntityID)
	assert.Equal(t, model.SourceHybridService, entries[0].Source)
	assert.Contains(t, entries[0].Changes.Detail, "KV Title")
}

func TestRedisPrimaryWriteSkipsJSON(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedJSON(t, project("alpha", "Old Title"))
	p := project("alpha", "Old Title")
	f.seedKV(t, ctx, &p)
	f.enablePhase(t, ctx, flags.PhaseRedisPrimary)

	updated, err := f.facade.UpdateProject(ctx, "alpha", map[string]any{"title": "New Title"}, model.SourceAdmin)
	require.NoError(t, err)
	assert.Equal(t, "New Title", updated.Title)

	// The file stays at its old contents in redis mode.
	items, err := jsonstore.ReadArray[model.Project](f.files.Path(hybrid.ProjectsFile))
	require.NoError(t, err)
	assert.Equal(t, "Old Title", items[0].Title)
}

func TestRollbackReturnsReadsToJSON(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedJSON(t, project("alpha", "From JSON"))
	p := project("alpha", "From KV")
	f.seedKV(t, ctx, &p)
	f.enablePhase(t, ctx, flags.PhaseRedisPrimary)

	list, err := f.facade.GetProjects(ctx)
	require.NoError(t, err)
	assert.Equal(t, "From KV", list[0].Title)

	_, err = f.flags.EmergencyRollback(ctx, "operator request")
	require.NoError(t, err)

	list, err = f.facade.GetProjects(ctx)
	require.NoError(t, err)
	assert.Equal(t, "From JSON", list[0].Title)
}

func TestStatsRecorderRing(t *testing.T) {
	r := hybrid.NewStatsRecorder(nil)
	for i := 0; i < 1100; i++ {
		r.Record(model.OperationStat{
			Source:        "json",
			OperationType: "read",
			EntityType:    model.EntityProjects,
			Success:       i%2 == 0,
		})
	}
	snap := r.Snapshot()
	assert.Len(t, snap, 1000)

	s := r.Summarize()
	assert.Equal(t, 1000, s.Total)
	assert.Equal(t, 1000, s.BySource["json"])
	assert.Equal(t, 500, s.Failures)
}
