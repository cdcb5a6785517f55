package main

import (
	"k8s.io/klog/v2"

	"github.com/wrenware/showcase/cmd/showcase/helper"
)

// @title						Showcase Data API
// @version					1.0.0
// @description				Content data layer for the showcase site, serving projects and
// @description				resources through the hybrid JSON/key-value migration facade.
func main() {
	configInit := helper.NewConfigInitializer()

	// Load debug environment if needed
	if err := configInit.LoadDebugEnvironment(); err != nil {
		klog.Fatalf("Failed to load env: %s", err)
	}

	backendConfig, err := configInit.LoadConfig()
	if err != nil {
		klog.Fatalf("Failed to load config: %s", err)
	}

	deps, err := configInit.Build()
	if err != nil {
		klog.Fatalf("Failed to build services: %s", err)
	}

	// Nightly audit retention cleanup
	if err := deps.Cron.Start(backendConfig.Audit.CleanupSpec); err != nil {
		klog.Fatalf("Failed to start cron: %s", err)
	}
	defer deps.Cron.Stop()

	serverRunner := helper.NewServerRunner(backendConfig)
	serverRunner.StartServer(deps.Register)
}
