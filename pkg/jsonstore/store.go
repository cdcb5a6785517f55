// Package jsonstore is the legacy flat-file side of the migration: each
// entity collection is one JSON array file, written atomically with
// checksum verification so a crash can never leave a partial file behind.
package jsonstore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/wrenware/showcase/pkg/apperrors"
	"github.com/wrenware/showcase/pkg/model"
)

const (
	// auditFileName is the store-local append-only trail.
	auditFileName = "audit-log.json"
	// maxAuditEntries caps the file trail; older entries are dropped.
	maxAuditEntries = 1000
)

// WriteResult reports the outcome of an atomic write.
type WriteResult struct {
	Success  bool   `json:"success"`
	Message  string `json:"message,omitempty"`
	Checksum string `json:"checksum,omitempty"`
	Path     string `json:"path,omitempty"`
}

// WriteOptions tunes a single atomic write.
type WriteOptions struct {
	// SkipAudit suppresses the audit append. Set when writing the audit
	// file itself, otherwise every audit append would audit itself.
	SkipAudit bool
	Source    model.AuditSource
}

// Store persists JSON array files under a single data directory.
type Store struct {
	dataDir  string
	readBack func(string) ([]byte, error)
}

// New returns a Store rooted at dataDir, creating it if needed.
func New(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, &apperrors.IOError{Path: dataDir, Op: "mkdir", Err: err}
	}
	return &Store{dataDir: dataDir, readBack: os.ReadFile}, nil
}

// SetReadBack replaces the temp-file re-read used for write verification.
// Injectable for tests; defaults to os.ReadFile.
func (s *Store) SetReadBack(fn func(string) ([]byte, error)) {
	s.readBack = fn
}

// DataDir returns the directory the store writes under.
func (s *Store) DataDir() string { return s.dataDir }

// Path resolves a collection file name inside the data directory.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dataDir, name)
}

// ReadArray parses the JSON array at path. A missing file is an empty
// collection, not an error; anything else is an IOError.
func ReadArray[T any](path string) ([]T, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []T{}, nil
		}
		return nil, &apperrors.IOError{Path: path, Op: "read", Err: err}
	}
	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, &apperrors.IOError{Path: path, Op: "parse", Err: err}
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// AtomicWrite serializes data, writes it to a uniquely named temp file in
// the same directory, re-reads and re-hashes the temp file to verify
// byte-for-byte integrity, then renames over the target path. On any step
// failure the temp file is removed and the target is left untouched.
func (s *Store) AtomicWrite(path string, data any, opts WriteOptions) WriteResult {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return WriteResult{Success: false, Message: fmt.Sprintf("marshal: %v", err), Path: path}
	}

	sum := sha256.Sum256(raw)
	checksum := hex.EncodeToString(sum[:])

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", base, uuid.NewString()[:8]))

	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return WriteResult{Success: false, Message: fmt.Sprintf("write temp: %v", err), Path: path}
	}

	// Verify what actually hit the disk before it can replace the target.
	written, err := s.readBack(tmp)
	if err != nil {
		s.removeTemp(tmp)
		return WriteResult{Success: false, Message: fmt.Sprintf("verify read: %v", err), Path: path}
	}
	verify := sha256.Sum256(written)
	if hex.EncodeToString(verify[:]) != checksum {
		s.removeTemp(tmp)
		return WriteResult{Success: false, Message: "checksum mismatch after temp write", Path: path}
	}

	if err := os.Rename(tmp, path); err != nil {
		s.removeTemp(tmp)
		return WriteResult{Success: false, Message: fmt.Sprintf("rename: %v", err), Path: path}
	}

	if !opts.SkipAudit {
		s.appendAudit(path, checksum, opts.Source)
	}
	return WriteResult{Success: true, Checksum: checksum, Path: path}
}

// AtomicUpdate is the read-modify-write convenience: mutate receives the
// current array and returns the replacement. A mutate error propagates
// without touching the file.
func AtomicUpdate[T any](s *Store, path string, opts WriteOptions, mutate func([]T) ([]T, error)) (WriteResult, error) {
	items, err := ReadArray[T](path)
	if err != nil {
		return WriteResult{Success: false, Message: err.Error(), Path: path}, err
	}
	next, err := mutate(items)
	if err != nil {
		return WriteResult{Success: false, Message: err.Error(), Path: path}, err
	}
	res := s.AtomicWrite(path, next, opts)
	if !res.Success {
		return res, &apperrors.IOError{Path: path, Op: "atomic write", Err: fmt.Errorf("%s", res.Message)}
	}
	return res, nil
}

func (s *Store) removeTemp(tmp string) {
	if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
		klog.Warningf("failed to remove temp file %s: %v", tmp, err)
	}
}
