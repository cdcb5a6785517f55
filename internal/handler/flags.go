package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/wrenware/showcase/internal/resputil"
	"github.com/wrenware/showcase/pkg/flags"
)

//nolint:gochecknoinits // This is the standard way to register a gin handler.
func init() {
	Registers = append(Registers, NewFlagsMgr)
}

// FlagsMgr is the generic flag get/set surface, including the lifecycle
// actions the finer-grained endpoints compose.
type FlagsMgr struct {
	name  string
	flags *flags.Controller
}

type SetFlagReq struct {
	// Either a lifecycle action or one flag/value pair.
	Action string `json:"action" binding:"omitempty,oneof=start_migration pause_migration resume_migration complete_migration emergency_rollback"`
	Reason string `json:"reason"`
	Flag   string `json:"flag"`
	Value  bool   `json:"value"`
}

func NewFlagsMgr(conf *RegisterConfig) Manager {
	return &FlagsMgr{
		name:  "flags",
		flags: conf.Flags,
	}
}

func (mgr *FlagsMgr) GetName() string { return mgr.name }

func (mgr *FlagsMgr) RegisterPublic(_ *gin.RouterGroup) {}

func (mgr *FlagsMgr) RegisterProtected(_ *gin.RouterGroup) {}

func (mgr *FlagsMgr) RegisterAdmin(g *gin.RouterGroup) {
	g.GET("/migration/flags", mgr.GetFlags)
	g.POST("/migration/flags", mgr.SetFlag)
}

// GetFlags godoc
// @Summary current migration flag record
// @Tags migration
// @Produce json
// @Success 200 {object} resputil.Response[model.MigrationFlags]
// @Router /v1/admin/migration/flags [get]
func (mgr *FlagsMgr) GetFlags(c *gin.Context) {
	resputil.Success(c, mgr.flags.GetFlags(c))
}

// SetFlag godoc
// @Summary set one flag or apply a lifecycle action
// @Tags migration
// @Accept json
// @Produce json
// @Param data body SetFlagReq true "action or flag/value pair"
// @Success 200 {object} resputil.Response[model.MigrationFlags]
// @Failure 400 {object} resputil.Response[any] "unknown flag or refused transition"
// @Router /v1/admin/migration/flags [post]
func (mgr *FlagsMgr) SetFlag(c *gin.Context) {
	var req SetFlagReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.Error(c, "failed to bind request: "+err.Error(), resputil.InvalidRequest)
		return
	}

	var err error
	var result any
	switch req.Action {
	case "start_migration":
		result, err = mgr.flags.StartMigration(c)
	case "pause_migration":
		result, err = mgr.flags.PauseMigration(c)
	case "resume_migration":
		result, err = mgr.flags.ResumeMigration(c)
	case "complete_migration":
		result, err = mgr.flags.CompleteMigration(c)
	case "emergency_rollback":
		reason := req.Reason
		if reason == "" {
			reason = "emergency rollback via flags API"
		}
		result, err = mgr.flags.EmergencyRollback(c, reason)
	case "":
		if req.Flag == "" {
			resputil.Error(c, "either action or flag must be set", resputil.InvalidRequest)
			return
		}
		result, err = mgr.flags.SetFlag(c, req.Flag, req.Value)
	}
	if err != nil {
		resputil.Error(c, err.Error(), resputil.InvalidRequest)
		return
	}
	resputil.Success(c, result)
}
