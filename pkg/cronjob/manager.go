// Package cronjob schedules the recurring maintenance work; today that
// is only the audit trail retention cleanup.
package cronjob

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"k8s.io/klog/v2"

	"github.com/wrenware/showcase/pkg/audit"
)

type Manager struct {
	cron          *cron.Cron
	audit         *audit.Service
	retentionDays int
}

func NewManager(auditSvc *audit.Service, retentionDays int) *Manager {
	return &Manager{
		cron:          cron.New(cron.WithLocation(time.Local)),
		audit:         auditSvc,
		retentionDays: retentionDays,
	}
}

// Start registers the retention job under spec and starts the scheduler.
func (m *Manager) Start(spec string) error {
	_, err := m.cron.AddFunc(spec, func() {
		removed, err := m.audit.CleanupOldEntries(context.Background(), m.retentionDays)
		if err != nil {
			klog.Errorf("audit retention cleanup failed: %v", err)
			return
		}
		klog.Infof("audit retention cleanup removed %d entries", removed)
	})
	if err != nil {
		return err
	}
	m.cron.Start()
	return nil
}

// Stop halts the scheduler, waiting for a running job to finish.
func (m *Manager) Stop() {
	ctx := m.cron.Stop()
	<-ctx.Done()
}
