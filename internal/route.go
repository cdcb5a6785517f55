package internal

import (
	"net/http"
	"os"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	"github.com/wrenware/showcase/internal/handler"
	"github.com/wrenware/showcase/internal/middleware"
	"github.com/wrenware/showcase/pkg/config"
)

type Backend struct {
	R *gin.Engine
}

// Register builds the gin engine and mounts every handler manager.
func Register(conf *handler.RegisterConfig) *Backend {
	s := new(Backend)
	s.R = gin.Default()

	// Health check, reporting the cached key-value verdict.
	s.R.GET("/v1/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message":   "ok",
			"kvHealthy": conf.KV.HealthCheck(c),
		})
	})

	s.RegisterService(conf)
	return s
}

func (b *Backend) RegisterService(conf *handler.RegisterConfig) {
	// Enable CORS for http://localhost:XXXX in debug mode
	if config.IsDebugMode() {
		fe := os.Getenv("SHOWCASE_FE_PORT")
		if fe != "" {
			url := "http://localhost:" + fe
			corsConf := cors.DefaultConfig()
			corsConf.AllowOrigins = []string{url}
			b.R.Use(cors.New(corsConf))
		}
	}

	b.R.Use(middleware.AuditSource())

	publicRouter := b.R.Group("/v1")
	protectedRouter := b.R.Group("/v1")
	// Platform auth fronts this service; the admin group exists so the
	// migration control surface stays separable from public reads.
	adminRouter := b.R.Group("/v1/admin")

	for _, manager := range registerManagers(conf) {
		manager.RegisterPublic(publicRouter)
		manager.RegisterProtected(protectedRouter)
		manager.RegisterAdmin(adminRouter)
	}
}

// registerManagers instantiates all the managers.
func registerManagers(conf *handler.RegisterConfig) []handler.Manager {
	var managers []handler.Manager
	for _, register := range handler.Registers {
		manager := register(conf)
		managers = append(managers, manager)
		klog.Infof("Registered manager: %s", manager.GetName())
	}
	return managers
}
