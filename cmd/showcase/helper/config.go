package helper

import (
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wrenware/showcase/internal/handler"
	"github.com/wrenware/showcase/pkg/audit"
	"github.com/wrenware/showcase/pkg/config"
	"github.com/wrenware/showcase/pkg/cronjob"
	"github.com/wrenware/showcase/pkg/entitystore"
	"github.com/wrenware/showcase/pkg/flags"
	"github.com/wrenware/showcase/pkg/hybrid"
	"github.com/wrenware/showcase/pkg/jsonstore"
	"github.com/wrenware/showcase/pkg/kvstore"
	"github.com/wrenware/showcase/pkg/migration"
)

// ConfigInitializer is the composition root: it loads configuration and
// wires every service exactly once, then hands the bundle to the router.
type ConfigInitializer struct {
	backendConfig *config.Config
}

func NewConfigInitializer() *ConfigInitializer {
	return &ConfigInitializer{}
}

// LoadDebugEnvironment loads .debug.env when running in gin debug mode.
func (ci *ConfigInitializer) LoadDebugEnvironment() error {
	if !config.IsDebugMode() {
		return nil
	}
	return godotenv.Load(".debug.env")
}

// LoadConfig reads the YAML config and the required environment.
func (ci *ConfigInitializer) LoadConfig() (*config.Config, error) {
	conf, err := config.Load()
	if err != nil {
		return nil, err
	}
	ci.backendConfig = conf
	return conf, nil
}

// Dependencies bundles everything main needs beyond the RegisterConfig.
type Dependencies struct {
	Register *handler.RegisterConfig
	Cron     *cronjob.Manager
}

// Build constructs the service graph from the loaded config.
func (ci *ConfigInitializer) Build() (*Dependencies, error) {
	conf := ci.backendConfig

	kv, err := kvstore.New(kvstore.Config{
		URL:           conf.KV.URL,
		Token:         conf.KV.Token,
		ReadOnlyToken: conf.KV.ReadOnlyToken,
	})
	if err != nil {
		return nil, err
	}

	files, err := jsonstore.New(conf.DataDir)
	if err != nil {
		return nil, err
	}

	auditSvc := audit.New(kv, nil)
	projectStore := entitystore.NewProjectStore(kv, auditSvc)
	resourceStore := entitystore.NewResourceStore(kv, auditSvc)
	flagCtrl := flags.New(kv, auditSvc, nil)

	registry := prometheus.NewRegistry()
	stats := hybrid.NewStatsRecorder(registry)
	facade := hybrid.New(kv, flagCtrl, projectStore, resourceStore, files, auditSvc, stats)
	runner := migration.NewRunner(kv, files, projectStore, resourceStore, auditSvc, flagCtrl)

	return &Dependencies{
		Register: &handler.RegisterConfig{
			Config:   conf,
			KV:       kv,
			Audit:    auditSvc,
			Flags:    flagCtrl,
			Facade:   facade,
			Runner:   runner,
			Registry: registry,
		},
		Cron: cronjob.NewManager(auditSvc, conf.Audit.RetentionDays),
	}, nil
}
