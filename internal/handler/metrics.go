package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

//nolint:gochecknoinits // This is the standard way to register a gin handler.
func init() {
	Registers = append(Registers, NewMetricsMgr)
}

type MetricsMgr struct {
	name        string
	promHandler http.Handler
}

func NewMetricsMgr(conf *RegisterConfig) Manager {
	return &MetricsMgr{
		name: "metrics",
		promHandler: promhttp.HandlerFor(conf.Registry, promhttp.HandlerOpts{
			Registry: conf.Registry,
		}),
	}
}

func (mgr *MetricsMgr) GetName() string { return mgr.name }

func (mgr *MetricsMgr) RegisterPublic(g *gin.RouterGroup) {
	g.GET("/metrics", mgr.GetMetrics)
}

func (mgr *MetricsMgr) RegisterProtected(_ *gin.RouterGroup) {}

func (mgr *MetricsMgr) RegisterAdmin(_ *gin.RouterGroup) {}

// GetMetrics godoc
// @Summary prometheus metrics for the hybrid facade
// @Tags metrics
// @Produce plain
// @Success 200 {string} string "metrics exposition"
// @Router /v1/metrics [get]
func (mgr *MetricsMgr) GetMetrics(c *gin.Context) {
	mgr.promHandler.ServeHTTP(c.Writer, c.Request)
}
