package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/wrenware/showcase/internal/middleware"
	"github.com/wrenware/showcase/internal/resputil"
	"github.com/wrenware/showcase/pkg/hybrid"
	"github.com/wrenware/showcase/pkg/model"
)

//nolint:gochecknoinits // This is the standard way to register a gin handler.
func init() {
	Registers = append(Registers, NewContentMgr)
}

// ContentMgr serves the read-only content endpoints the site renders
// from. Published-only filtering happens here, never inside the data
// layer, so admin surfaces can reuse the same facade unfiltered.
type ContentMgr struct {
	name   string
	facade *hybrid.Facade
}

type ContentSlugReq struct {
	Slug string `uri:"slug" binding:"required"`
}

func NewContentMgr(conf *RegisterConfig) Manager {
	return &ContentMgr{
		name:   "content",
		facade: conf.Facade,
	}
}

func (mgr *ContentMgr) GetName() string { return mgr.name }

func (mgr *ContentMgr) RegisterPublic(g *gin.RouterGroup) {
	g.GET("/projects", mgr.ListProjects)
	g.GET("/projects/:slug", mgr.GetProject)
	g.GET("/resources", mgr.ListResources)
	g.GET("/resources/:slug", mgr.GetResource)
}

func (mgr *ContentMgr) RegisterProtected(_ *gin.RouterGroup) {}

func (mgr *ContentMgr) RegisterAdmin(g *gin.RouterGroup) {
	g.PATCH("/projects/:slug", mgr.UpdateProject)
	g.PATCH("/resources/:slug", mgr.UpdateResource)
}

// ListProjects godoc
// @Summary list published projects
// @Description published projects from whichever store the migration flags select
// @Tags content
// @Accept json
// @Produce json
// @Success 200 {object} resputil.Response[[]model.Project]
// @Failure 500 {object} resputil.Response[any] "other errors"
// @Router /v1/projects [get]
func (mgr *ContentMgr) ListProjects(c *gin.Context) {
	projects, err := mgr.facade.GetProjects(c)
	if err != nil {
		resputil.WrapError(c, err)
		return
	}
	published := lo.Filter(projects, func(p *model.Project, _ int) bool {
		return p.Metadata.Published()
	})
	resputil.Success(c, published)
}

// GetProject godoc
// @Summary get one published project
// @Tags content
// @Accept json
// @Produce json
// @Param slug path string true "project slug"
// @Success 200 {object} resputil.Response[model.Project]
// @Failure 404 {object} resputil.Response[any] "not found or not published"
// @Router /v1/projects/{slug} [get]
func (mgr *ContentMgr) GetProject(c *gin.Context) {
	var req ContentSlugReq
	if err := c.ShouldBindUri(&req); err != nil {
		resputil.Error(c, "failed to bind request: "+err.Error(), resputil.InvalidRequest)
		return
	}
	project, err := mgr.facade.GetProject(c, req.Slug)
	if err != nil {
		resputil.WrapError(c, err)
		return
	}
	if project == nil || !project.Metadata.Published() {
		resputil.Error(c, "project not found", resputil.NotFound)
		return
	}
	resputil.Success(c, project)
}

// ListResources godoc
// @Summary list published resources
// @Tags content
// @Accept json
// @Produce json
// @Success 200 {object} resputil.Response[[]model.Resource]
// @Failure 500 {object} resputil.Response[any] "other errors"
// @Router /v1/resources [get]
func (mgr *ContentMgr) ListResources(c *gin.Context) {
	resources, err := mgr.facade.GetResources(c)
	if err != nil {
		resputil.WrapError(c, err)
		return
	}
	published := lo.Filter(resources, func(r *model.Resource, _ int) bool {
		return r.Metadata.Published()
	})
	resputil.Success(c, published)
}

// GetResource godoc
// @Summary get one published resource
// @Tags content
// @Accept json
// @Produce json
// @Param slug path string true "resource slug"
// @Success 200 {object} resputil.Response[model.Resource]
// @Failure 404 {object} resputil.Response[any] "not found or not published"
// @Router /v1/resources/{slug} [get]
func (mgr *ContentMgr) GetResource(c *gin.Context) {
	var req ContentSlugReq
	if err := c.ShouldBindUri(&req); err != nil {
		resputil.Error(c, "failed to bind request: "+err.Error(), resputil.InvalidRequest)
		return
	}
	resource, err := mgr.facade.GetResource(c, req.Slug)
	if err != nil {
		resputil.WrapError(c, err)
		return
	}
	if resource == nil || !resource.Metadata.Published() {
		resputil.Error(c, "resource not found", resputil.NotFound)
		return
	}
	resputil.Success(c, resource)
}

// UpdateProject godoc
// @Summary apply a partial update to a project
// @Description routes the write to JSON, key-value or both per the migration flags
// @Tags content
// @Accept json
// @Produce json
// @Param slug path string true "project slug"
// @Param data body map[string]any true "partial document"
// @Success 200 {object} resputil.Response[model.Project]
// @Failure 400 {object} resputil.Response[any] "validation failure"
// @Failure 404 {object} resputil.Response[any] "not found"
// @Router /v1/admin/projects/{slug} [patch]
func (mgr *ContentMgr) UpdateProject(c *gin.Context) {
	var req ContentSlugReq
	if err := c.ShouldBindUri(&req); err != nil {
		resputil.Error(c, "failed to bind request: "+err.Error(), resputil.InvalidRequest)
		return
	}
	var partial map[string]any
	if err := c.ShouldBindJSON(&partial); err != nil {
		resputil.Error(c, "failed to bind request: "+err.Error(), resputil.InvalidRequest)
		return
	}
	project, err := mgr.facade.UpdateProject(c, req.Slug, partial, middleware.GetSource(c))
	if err != nil {
		resputil.WrapError(c, err)
		return
	}
	if project == nil {
		resputil.Error(c, "project not found", resputil.NotFound)
		return
	}
	resputil.Success(c, project)
}

// UpdateResource godoc
// @Summary apply a partial update to a resource
// @Tags content
// @Accept json
// @Produce json
// @Param slug path string true "resource slug"
// @Param data body map[string]any true "partial document"
// @Success 200 {object} resputil.Response[model.Resource]
// @Failure 400 {object} resputil.Response[any] "validation failure"
// @Failure 404 {object} resputil.Response[any] "not found"
// @Router /v1/admin/resources/{slug} [patch]
func (mgr *ContentMgr) UpdateResource(c *gin.Context) {
	var req ContentSlugReq
	if err := c.ShouldBindUri(&req); err != nil {
		resputil.Error(c, "failed to bind request: "+err.Error(), resputil.InvalidRequest)
		return
	}
	var partial map[string]any
	if err := c.ShouldBindJSON(&partial); err != nil {
		resputil.Error(c, "failed to bind request: "+err.Error(), resputil.InvalidRequest)
		return
	}
	resource, err := mgr.facade.UpdateResource(c, req.Slug, partial, middleware.GetSource(c))
	if err != nil {
		resputil.WrapError(c, err)
		return
	}
	if resource == nil {
		resputil.Error(c, "resource not found", resputil.NotFound)
		return
	}
	resputil.Success(c, resource)
}
