package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/wrenware/showcase/internal/resputil"
	"github.com/wrenware/showcase/pkg/flags"
	"github.com/wrenware/showcase/pkg/hybrid"
	"github.com/wrenware/showcase/pkg/kvstore"
	"github.com/wrenware/showcase/pkg/model"
)

//nolint:gochecknoinits // This is the standard way to register a gin handler.
func init() {
	Registers = append(Registers, NewDualWriteMgr)
}

// DualWriteMgr controls and observes the dual-write phase.
type DualWriteMgr struct {
	name   string
	flags  *flags.Controller
	facade *hybrid.Facade
	kv     *kvstore.Client
}

type DualWriteReq struct {
	EnableProjects  bool   `json:"enableProjects"`
	EnableResources bool   `json:"enableResources"`
	EnableMcp       bool   `json:"enableMcp"`
	Phase           string `json:"phase" binding:"required,oneof=read-only dual-write redis-primary"`
}

// DualWriteStatus is the GET payload: which store serves what right now,
// plus the facade's operation statistics.
type DualWriteStatus struct {
	Flags        model.MigrationFlags  `json:"flags"`
	Phase        string                `json:"phase"`
	ReadSources  map[string]string     `json:"readSources"`
	WriteSources map[string]string     `json:"writeSources"`
	StoreHealthy bool                  `json:"storeHealthy"`
	Stats        hybrid.Summary        `json:"stats"`
	RecentOps    []model.OperationStat `json:"recentOps"`
}

func NewDualWriteMgr(conf *RegisterConfig) Manager {
	return &DualWriteMgr{
		name:   "dualwrite",
		flags:  conf.Flags,
		facade: conf.Facade,
		kv:     conf.KV,
	}
}

func (mgr *DualWriteMgr) GetName() string { return mgr.name }

func (mgr *DualWriteMgr) RegisterPublic(_ *gin.RouterGroup) {}

func (mgr *DualWriteMgr) RegisterProtected(_ *gin.RouterGroup) {}

func (mgr *DualWriteMgr) RegisterAdmin(g *gin.RouterGroup) {
	g.POST("/migration/dual-write", mgr.ApplyPhase)
	g.GET("/migration/dual-write", mgr.GetStatus)
	g.DELETE("/migration/dual-write", mgr.Disable)
}

// ApplyPhase godoc
// @Summary apply the flag set for a cutover phase
// @Tags migration
// @Accept json
// @Produce json
// @Param data body DualWriteReq true "phase and per-entity switches"
// @Success 200 {object} resputil.Response[model.MigrationFlags]
// @Failure 400 {object} resputil.Response[any] "unknown phase or migration not started"
// @Router /v1/admin/migration/dual-write [post]
func (mgr *DualWriteMgr) ApplyPhase(c *gin.Context) {
	var req DualWriteReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.Error(c, "failed to bind request: "+err.Error(), resputil.InvalidRequest)
		return
	}
	result, err := mgr.flags.ApplyDualWritePhase(c, req.Phase, req.EnableProjects, req.EnableResources, req.EnableMcp)
	if err != nil {
		resputil.Error(c, err.Error(), resputil.InvalidRequest)
		return
	}
	resputil.Success(c, result)
}

// GetStatus godoc
// @Summary current dual-write phase, source summary and statistics
// @Tags migration
// @Produce json
// @Success 200 {object} resputil.Response[DualWriteStatus]
// @Router /v1/admin/migration/dual-write [get]
func (mgr *DualWriteMgr) GetStatus(c *gin.Context) {
	f := mgr.flags.GetFlags(c)
	recent := mgr.facade.Stats().Snapshot()
	if len(recent) > 20 {
		recent = recent[len(recent)-20:]
	}
	resputil.Success(c, DualWriteStatus{
		Flags:        f,
		Phase:        phaseName(&f),
		ReadSources:  sourceSummary(f.RedisReadProjects, f.RedisReadResources),
		WriteSources: sourceSummary(f.RedisWriteProjects, f.RedisWriteResources),
		StoreHealthy: mgr.kv.HealthCheck(c),
		Stats:        mgr.facade.Stats().Summarize(),
		RecentOps:    recent,
	})
}

func phaseName(f *model.MigrationFlags) string {
	switch {
	case f.MigrationMode == model.ModeRedis:
		return flags.PhaseRedisPrimary
	case f.RedisWriteProjects || f.RedisWriteResources:
		return flags.PhaseDualWrite
	case f.RedisReadProjects || f.RedisReadResources:
		return flags.PhaseReadOnly
	default:
		return "json-only"
	}
}

func sourceSummary(projects, resources bool) map[string]string {
	label := func(enabled bool) string {
		if enabled {
			return "redis"
		}
		return "json"
	}
	return map[string]string{
		string(model.EntityProjects):  label(projects),
		string(model.EntityResources): label(resources),
	}
}

// Disable godoc
// @Summary force all flags back to JSON-only
// @Tags migration
// @Produce json
// @Success 200 {object} resputil.Response[model.MigrationFlags]
// @Router /v1/admin/migration/dual-write [delete]
func (mgr *DualWriteMgr) Disable(c *gin.Context) {
	result, err := mgr.flags.EmergencyRollback(c, "dual-write disabled via API")
	if err != nil {
		resputil.WrapError(c, err)
		return
	}
	resputil.Success(c, result)
}
