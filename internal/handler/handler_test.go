package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wrenware/showcase/internal/handler"
	"github.com/wrenware/showcase/internal/middleware"
	"github.com/wrenware/showcase/pkg/audit"
	"github.com/wrenware/showcase/pkg/entitystore"
	"github.com/wrenware/showcase/pkg/flags"
	"github.com/wrenware/showcase/pkg/hybrid"
	"github.com/wrenware/showcase/pkg/jsonstore"
	"github.com/wrenware/showcase/pkg/kvstore"
	"github.com/wrenware/showcase/pkg/kvstore/kvstoretest"
	"github.com/wrenware/showcase/pkg/migration"
	"github.com/wrenware/showcase/pkg/model"
)

type testServer struct {
	router *gin.Engine
	srv    *kvstoretest.Server
	files  *jsonstore.Store
	flags  *flags.Controller
	runner *migration.Runner
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

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

	auditSvc := audit.New(client, nil)
	projects := entitystore.NewProjectStore(client, auditSvc)
	resources := entitystore.NewResourceStore(client, auditSvc)
	ctrl := flags.New(client, auditSvc, nil)
	facade := hybrid.New(client, ctrl, projects, resources, files, auditSvc, hybrid.NewStatsRecorder(nil))
	runner := migration.NewRunner(client, files, projects, resources, auditSvc, ctrl)

	conf := &handler.RegisterConfig{
		KV:       client,
		Audit:    auditSvc,
		Flags:    ctrl,
		Facade:   facade,
		Runner:   runner,
		Registry: prometheus.NewRegistry(),
	}

	router := gin.New()
	router.Use(middleware.AuditSource())
	public := router.Group("/v1")
	protected := router.Group("/v1")
	admin := router.Group("/v1/admin")
	for _, register := range handler.Registers {
		mgr := register(conf)
		mgr.RegisterPublic(public)
		mgr.RegisterProtected(protected)
		mgr.RegisterAdmin(admin)
	}

	return &testServer{router: router, srv: srv, files: files, flags: ctrl, runner: runner}
}

func (ts *testServer) seedProjects(t *testing.T, projects ...model.Project) {
	t.Helper()
	res := ts.files.AtomicWrite(ts.files.Path(hybrid.ProjectsFile), projects, jsonstore.WriteOptions{SkipAudit: true})
	require.True(t, res.Success, res.Message)
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Code int             `json:"code"`
	Data json.RawMessage `json:"data"`
	Msg  string          `json:"msg"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func published(slug, title string) model.Project {
	return model.Project{
		Slug:        slug,
		Title:       title,
		Description: "Description of " + slug,
		Metadata:    model.Metadata{Status: model.StatusPublished},
	}
}

func TestListProjectsFiltersUnpublished(t *testing.T) {
	ts := newTestServer(t)
	draft := model.Project{Slug: "draft-one", Title: "Draft", Metadata: model.Metadata{Status: model.StatusDraft}}
	ts.seedProjects(t, published("alpha", "Alpha"), draft)

	w := ts.do(t, http.MethodGet, "/v1/projects", nil)
	require.Equal(t, http.StatusOK, w.Code)
	env := decode(t, w)
	assert.Zero(t, env.Code)

	var list []model.Project
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "alpha", list[0].Slug)
}

func TestGetProjectStatusCodes(t *testing.T) {
	ts := newTestServer(t)
	draft := model.Project{Slug: "draft-one", Title: "Draft", Metadata: model.Metadata{Status: model.StatusDraft}}
	ts.seedProjects(t, published("alpha", "Alpha"), draft)

	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/v1/projects/alpha", nil).Code)
	// Drafts are invisible on the public surface, same as missing slugs.
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/v1/projects/draft-one", nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/v1/projects/ghost", nil).Code)
}

func TestUpdateProject(t *testing.T) {
	ts := newTestServer(t)
	ts.seedProjects(t, published("alpha", "Alpha"))

	w := ts.do(t, http.MethodPatch, "/v1/admin/projects/alpha", map[string]any{"title": "Renamed"})
	require.Equal(t, http.StatusOK, w.Code)
	var p model.Project
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &p))
	assert.Equal(t, "Renamed", p.Title)

	w = ts.do(t, http.MethodPatch, "/v1/admin/projects/ghost", map[string]any{"title": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMigrationRunLifecycle(t *testing.T) {
	ts := newTestServer(t)
	ts.seedProjects(t, published("alpha", "Alpha"))

	w := ts.do(t, http.MethodPost, "/v1/admin/migration/run", migration.Options{})
	require.Equal(t, http.StatusOK, w.Code)

	require.Eventually(t, func() bool {
		return !ts.runner.Status(context.Background()).Running
	}, 5*time.Second, 10*time.Millisecond)

	// A finished run refuses to start again.
	w = ts.do(t, http.MethodPost, "/v1/admin/migration/run", migration.Options{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 40003, decode(t, w).Code)

	w = ts.do(t, http.MethodGet, "/v1/admin/migration/run", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var st migration.Status
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &st))
	assert.True(t, st.Completed)
	assert.True(t, st.Flags.MigrationStarted)
	require.NotNil(t, st.LastRun)
	assert.Equal(t, 1, st.LastRun.Projects.Migrated)

	// Reset clears the latch and the flags.
	w = ts.do(t, http.MethodDelete, "/v1/admin/migration/run", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = ts.do(t, http.MethodPost, "/v1/admin/migration/run", migration.Options{})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMigrationControlActions(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPatch, "/v1/admin/migration/run", map[string]any{"action": "pause"})
	require.Equal(t, http.StatusOK, w.Code)
	var f model.MigrationFlags
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &f))
	assert.True(t, f.MigrationPaused)

	w = ts.do(t, http.MethodPatch, "/v1/admin/migration/run", map[string]any{"action": "resume"})
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodPatch, "/v1/admin/migration/run", map[string]any{"action": "rollback", "reason": "drill"})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &f))
	assert.Equal(t, model.ModeJSON, f.MigrationMode)

	// Unknown actions fail binding.
	w = ts.do(t, http.MethodPatch, "/v1/admin/migration/run", map[string]any{"action": "explode"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFlagsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/v1/admin/migration/flags", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var f model.MigrationFlags
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &f))
	assert.Equal(t, model.ModeJSON, f.MigrationMode)

	// Enabling a flag before the migration starts is refused.
	w = ts.do(t, http.MethodPost, "/v1/admin/migration/flags",
		map[string]any{"flag": model.FlagRedisReadProjects, "value": true})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPost, "/v1/admin/migration/flags", map[string]any{"action": "start_migration"})
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodPost, "/v1/admin/migration/flags",
		map[string]any{"flag": model.FlagRedisReadProjects, "value": true})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &f))
	assert.True(t, f.RedisReadProjects)
	assert.Equal(t, model.ModeDual, f.MigrationMode)

	// Neither action nor flag is a bad request.
	w = ts.do(t, http.MethodPost, "/v1/admin/migration/flags", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDualWriteEndpoint(t *testing.T) {
	ts := newTestServer(t)

	// Phases refuse to apply before the migration is started.
	w := ts.do(t, http.MethodPost, "/v1/admin/migration/dual-write",
		map[string]any{"phase": "dual-write", "enableProjects": true, "enableResources": true})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPost, "/v1/admin/migration/flags", map[string]any{"action": "start_migration"})
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodPost, "/v1/admin/migration/dual-write",
		map[string]any{"phase": "dual-write", "enableProjects": true, "enableResources": true})
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/v1/admin/migration/dual-write", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var st handler.DualWriteStatus
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &st))
	assert.Equal(t, "dual-write", st.Phase)
	assert.Equal(t, "redis", st.ReadSources["projects"])
	assert.Equal(t, "redis", st.WriteSources["projects"])
	assert.True(t, st.StoreHealthy)

	// Disable rolls everything back to JSON-only.
	w = ts.do(t, http.MethodDelete, "/v1/admin/migration/dual-write", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = ts.do(t, http.MethodGet, "/v1/admin/migration/dual-write", nil)
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &st))
	assert.Equal(t, "json-only", st.Phase)

	// Unknown phases fail binding.
	w = ts.do(t, http.MethodPost, "/v1/admin/migration/dual-write", map[string]any{"phase": "big-bang"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
