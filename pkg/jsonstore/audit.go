package jsonstore

import (
	"path/filepath"
	"time"

	"k8s.io/klog/v2"

	"github.com/wrenware/showcase/pkg/model"
)

// appendAudit records a file write in the store-local trail. Best effort:
// a trail failure is logged and never propagated to the caller.
func (s *Store) appendAudit(path, checksum string, source model.AuditSource) {
	if source == "" {
		source = model.SourceJSONStore
	}
	entry := model.AuditEntry{
		Timestamp: time.Now(),
		Action:    model.ActionFileWrite,
		Source:    source,
		Changes: &model.AuditChange{
			Detail: filepath.Base(path) + " checksum=" + checksum,
		},
	}
	auditPath := s.Path(auditFileName)
	entries, err := ReadArray[model.AuditEntry](auditPath)
	if err != nil {
		klog.Warningf("audit trail read failed, dropping entry: %v", err)
		return
	}
	entries = append(entries, entry)
	if len(entries) > maxAuditEntries {
		entries = entries[len(entries)-maxAuditEntries:]
	}
	res := s.AtomicWrite(auditPath, entries, WriteOptions{SkipAudit: true})
	if !res.Success {
		klog.Warningf("audit trail write failed, dropping entry: %s", res.Message)
	}
}

// AuditEntries returns the store-local trail, oldest first.
func (s *Store) AuditEntries() ([]model.AuditEntry, error) {
	return ReadArray[model.AuditEntry](s.Path(auditFileName))
}
