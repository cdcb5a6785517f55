package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/wrenware/showcase/internal/resputil"
	"github.com/wrenware/showcase/pkg/flags"
	"github.com/wrenware/showcase/pkg/migration"
)

//nolint:gochecknoinits // This is the standard way to register a gin handler.
func init() {
	Registers = append(Registers, NewMigrationMgr)
}

// MigrationMgr drives the bulk migration runner.
type MigrationMgr struct {
	name   string
	runner *migration.Runner
	flags  *flags.Controller
}

type MigrationControlReq struct {
	Action string `json:"action" binding:"required,oneof=pause resume rollback"`
	Reason string `json:"reason"`
}

func NewMigrationMgr(conf *RegisterConfig) Manager {
	return &MigrationMgr{
		name:   "migration",
		runner: conf.Runner,
		flags:  conf.Flags,
	}
}

func (mgr *MigrationMgr) GetName() string { return mgr.name }

func (mgr *MigrationMgr) RegisterPublic(_ *gin.RouterGroup) {}

func (mgr *MigrationMgr) RegisterProtected(_ *gin.RouterGroup) {}

func (mgr *MigrationMgr) RegisterAdmin(g *gin.RouterGroup) {
	g.POST("/migration/run", mgr.StartRun)
	g.GET("/migration/run", mgr.GetRunStatus)
	g.PATCH("/migration/run", mgr.ControlRun)
	g.DELETE("/migration/run", mgr.ResetRun)
}

// StartRun godoc
// @Summary start the bulk JSON to key-value migration
// @Description launches the run asynchronously; poll GET for progress
// @Tags migration
// @Accept json
// @Produce json
// @Param data body migration.Options false "run options"
// @Success 200 {object} resputil.Response[string]
// @Failure 409 {object} resputil.Response[any] "already running"
// @Failure 400 {object} resputil.Response[any] "already completed"
// @Router /v1/admin/migration/run [post]
func (mgr *MigrationMgr) StartRun(c *gin.Context) {
	var opts migration.Options
	if err := c.ShouldBindJSON(&opts); err != nil {
		resputil.Error(c, "failed to bind request: "+err.Error(), resputil.InvalidRequest)
		return
	}
	if err := mgr.runner.Start(opts); err != nil {
		switch {
		case errors.Is(err, migration.ErrAlreadyRunning):
			resputil.Error(c, err.Error(), resputil.AlreadyRunning)
		case errors.Is(err, migration.ErrAlreadyCompleted):
			resputil.Error(c, err.Error(), resputil.MigrationCompleted)
		default:
			resputil.WrapError(c, err)
		}
		return
	}
	resputil.Success(c, "migration started")
}

// GetRunStatus godoc
// @Summary current run status plus the controller's flag snapshot
// @Tags migration
// @Produce json
// @Success 200 {object} resputil.Response[migration.Status]
// @Router /v1/admin/migration/run [get]
func (mgr *MigrationMgr) GetRunStatus(c *gin.Context) {
	resputil.Success(c, mgr.runner.Status(c))
}

// ControlRun godoc
// @Summary pause, resume or roll back the migration
// @Tags migration
// @Accept json
// @Produce json
// @Param data body MigrationControlReq true "control action"
// @Success 200 {object} resputil.Response[model.MigrationFlags]
// @Failure 400 {object} resputil.Response[any] "unknown action"
// @Router /v1/admin/migration/run [patch]
func (mgr *MigrationMgr) ControlRun(c *gin.Context) {
	var req MigrationControlReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.Error(c, "failed to bind request: "+err.Error(), resputil.InvalidRequest)
		return
	}
	var err error
	var result any
	switch req.Action {
	case "pause":
		result, err = mgr.flags.PauseMigration(c)
	case "resume":
		result, err = mgr.flags.ResumeMigration(c)
	case "rollback":
		reason := req.Reason
		if reason == "" {
			reason = "manual rollback via API"
		}
		result, err = mgr.flags.EmergencyRollback(c, reason)
	}
	if err != nil {
		resputil.WrapError(c, err)
		return
	}
	resputil.Success(c, result)
}

// ResetRun godoc
// @Summary reset flags to the default JSON-only state
// @Description dev/test utility; also clears the completed latch
// @Tags migration
// @Produce json
// @Success 200 {object} resputil.Response[model.MigrationFlags]
// @Router /v1/admin/migration/run [delete]
func (mgr *MigrationMgr) ResetRun(c *gin.Context) {
	result, err := mgr.flags.ResetToDefaults(c)
	if err != nil {
		resputil.WrapError(c, err)
		return
	}
	mgr.runner.ResetCompleted()
	resputil.Success(c, result)
}
