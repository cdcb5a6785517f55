package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wrenware/showcase/pkg/audit"
	"github.com/wrenware/showcase/pkg/config"
	"github.com/wrenware/showcase/pkg/flags"
	"github.com/wrenware/showcase/pkg/hybrid"
	"github.com/wrenware/showcase/pkg/kvstore"
	"github.com/wrenware/showcase/pkg/migration"
)

type Manager interface {
	GetName() string
	RegisterPublic(group *gin.RouterGroup)
	RegisterProtected(group *gin.RouterGroup)
	RegisterAdmin(group *gin.RouterGroup)
}

// RegisterConfig carries the shared dependencies every manager may pull
// from; the composition root builds exactly one of these.
type RegisterConfig struct {
	Config   *config.Config
	KV       *kvstore.Client
	Audit    *audit.Service
	Flags    *flags.Controller
	Facade   *hybrid.Facade
	Runner   *migration.Runner
	Registry *prometheus.Registry
}

// Registers collects the manager constructors; each handler file appends
// its own in init().
var Registers []func(*RegisterConfig) Manager
