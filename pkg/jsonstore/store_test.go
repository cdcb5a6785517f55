package jsonstore_test

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wrenware/showcase/pkg/apperrors"
	"github.com/wrenware/showcase/pkg/jsonstore"
	"github.com/wrenware/showcase/pkg/model"
)

type record struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func newStore(t *testing.T) *jsonstore.Store {
	t.Helper()
	store, err := jsonstore.New(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestReadArrayMissingFileIsEmpty(t *testing.T) {
	store := newStore(t)
	items, err := jsonstore.ReadArray[record](store.Path("projects.json"))
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.NotNil(t, items)
}

func TestReadArrayMalformedFile(t *testing.T) {
	store := newStore(t)
	path := store.Path("projects.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"not":"an array"`), 0o644))

	_, err := jsonstore.ReadArray[record](path)
	var ioErr *apperrors.IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "parse", ioErr.Op)
}

func TestAtomicWriteRoundTrip(t *testing.T) {
	store := newStore(t)
	path := store.Path("projects.json")
	items := []record{{ID: "alpha", Title: "Alpha"}, {ID: "beta", Title: "Beta"}}

	res := store.AtomicWrite(path, items, jsonstore.WriteOptions{Source: model.SourceAPI})
	require.True(t, res.Success, res.Message)
	assert.Equal(t, path, res.Path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	sum := sha256.Sum256(raw)
	assert.Equal(t, hex.EncodeToString(sum[:]), res.Checksum)

	back, err := jsonstore.ReadArray[record](path)
	require.NoError(t, err)
	assert.Equal(t, items, back)
}

func TestAtomicWriteLeavesNoTempFiles(t *testing.T) {
	store := newStore(t)
	path := store.Path("projects.json")
	res := store.AtomicWrite(path, []record{{ID: "alpha"}}, jsonstore.WriteOptions{SkipAudit: true})
	require.True(t, res.Success, res.Message)

	entries, err := os.ReadDir(store.DataDir())
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}
}

func TestAtomicWriteUnmarshalableData(t *testing.T) {
	store := newStore(t)
	path := store.Path("projects.json")
	require.True(t, store.AtomicWrite(path, []record{{ID: "alpha"}}, jsonstore.WriteOptions{SkipAudit: true}).Success)
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	res := store.AtomicWrite(path, func() {}, jsonstore.WriteOptions{SkipAudit: true})
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "marshal")

	// The target survives a failed write untouched.
	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestAtomicWriteChecksumMismatchRefusesRename(t *testing.T) {
	store := newStore(t)
	path := store.Path("projects.json")
	require.True(t, store.AtomicWrite(path, []record{{ID: "alpha"}}, jsonstore.WriteOptions{SkipAudit: true}).Success)
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	// Corrupt what the verification pass reads back from the temp file.
	store.SetReadBack(func(name string) ([]byte, error) {
		raw, err := os.ReadFile(name)
		if err != nil {
			return nil, err
		}
		return append(raw, '!'), nil
	})
	res := store.AtomicWrite(path, []record{{ID: "beta"}}, jsonstore.WriteOptions{SkipAudit: true})
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "checksum mismatch")

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	entries, err := os.ReadDir(store.DataDir())
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}
}

func TestAtomicWriteVerifyReadFailure(t *testing.T) {
	store := newStore(t)
	path := store.Path("projects.json")
	require.True(t, store.AtomicWrite(path, []record{{ID: "alpha"}}, jsonstore.WriteOptions{SkipAudit: true}).Success)
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	store.SetReadBack(func(string) ([]byte, error) {
		return nil, assert.AnError
	})
	res := store.AtomicWrite(path, []record{{ID: "beta"}}, jsonstore.WriteOptions{SkipAudit: true})
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "verify read")

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestStrayTempFileNeverReachesTarget(t *testing.T) {
	store := newStore(t)
	path := store.Path("projects.json")
	items := []record{{ID: "alpha", Title: "Alpha"}}
	require.True(t, store.AtomicWrite(path, items, jsonstore.WriteOptions{SkipAudit: true}).Success)

	// A crash between temp-write and rename leaves an orphaned temp file
	// behind; the target must keep serving its last committed contents.
	stray := store.Path(".projects.json.deadbeef.tmp")
	require.NoError(t, os.WriteFile(stray, []byte(`[{"id":"intruder"`), 0o644))

	back, err := jsonstore.ReadArray[record](path)
	require.NoError(t, err)
	assert.Equal(t, items, back)

	// Later writes still commit normally and never pick the stray up.
	next := []record{{ID: "beta", Title: "Beta"}}
	require.True(t, store.AtomicWrite(path, next, jsonstore.WriteOptions{SkipAudit: true}).Success)
	back, err = jsonstore.ReadArray[record](path)
	require.NoError(t, err)
	assert.Equal(t, next, back)

	_, err = os.Stat(stray)
	assert.NoError(t, err)
}

func TestAtomicUpdateMutateErrorLeavesFileUntouched(t *testing.T) {
	store := newStore(t)
	path := store.Path("projects.json")
	require.True(t, store.AtomicWrite(path, []record{{ID: "alpha"}}, jsonstore.WriteOptions{SkipAudit: true}).Success)
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	_, err = jsonstore.AtomicUpdate(store, path, jsonstore.WriteOptions{SkipAudit: true},
		func(items []record) ([]record, error) {
			return nil, assert.AnError
		})
	assert.ErrorIs(t, err, assert.AnError)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestAtomicUpdateAppends(t *testing.T) {
	store := newStore(t)
	path := store.Path("projects.json")

	res, err := jsonstore.AtomicUpdate(store, path, jsonstore.WriteOptions{SkipAudit: true},
		func(items []record) ([]record, error) {
			return append(items, record{ID: "alpha"}), nil
		})
	require.NoError(t, err)
	require.True(t, res.Success)

	res, err = jsonstore.AtomicUpdate(store, path, jsonstore.WriteOptions{SkipAudit: true},
		func(items []record) ([]record, error) {
			return append(items, record{ID: "beta"}), nil
		})
	require.NoError(t, err)
	require.True(t, res.Success)

	items, err := jsonstore.ReadArray[record](path)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "alpha", items[0].ID)
	assert.Equal(t, "beta", items[1].ID)
}

func TestWriteAppendsAuditTrail(t *testing.T) {
	store := newStore(t)
	path := store.Path("projects.json")
	res := store.AtomicWrite(path, []record{{ID: "alpha"}}, jsonstore.WriteOptions{Source: model.SourceMigration})
	require.True(t, res.Success)

	entries, err := store.AuditEntries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.ActionFileWrite, entries[0].Action)
	assert.Equal(t, model.SourceMigration, entries[0].Source)
	require.NotNil(t, entries[0].Changes)
	assert.Contains(t, entries[0].Changes.Detail, "projects.json")
	assert.Contains(t, entries[0].Changes.Detail, res.Checksum)
}

func TestSkipAuditSuppressesTrail(t *testing.T) {
	store := newStore(t)
	res := store.AtomicWrite(store.Path("projects.json"), []record{}, jsonstore.WriteOptions{SkipAudit: true})
	require.True(t, res.Success)

	entries, err := store.AuditEntries()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAuditTrailDefaultsSource(t *testing.T) {
	store := newStore(t)
	require.True(t, store.AtomicWrite(store.Path("projects.json"), []record{}, jsonstore.WriteOptions{}).Success)

	entries, err := store.AuditEntries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.SourceJSONStore, entries[0].Source)
}

func TestWrittenFileIsIndented(t *testing.T) {
	store := newStore(t)
	path := store.Path("resources.json")
	require.True(t, store.AtomicWrite(path, []record{{ID: "guide"}}, jsonstore.WriteOptions{SkipAudit: true}).Success)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var indented []record
	require.NoError(t, json.Unmarshal(raw, &indented))
	assert.Contains(t, string(raw), "\n  ")
}

func TestPathJoinsDataDir(t *testing.T) {
	dir := t.TempDir()
	store, err := jsonstore.New(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "projects.json"), store.Path("projects.json"))
}
