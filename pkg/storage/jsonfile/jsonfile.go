// Package jsonfile provides a storage.Driver that persists the whole store as
// one JSON document. Every mutation rewrites the file through a temp file and
// an atomic rename, so a crash leaves either the old or the new state on disk.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/record"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/storage"
	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/storage/inmemory"
)

// Driver implements storage.Driver on top of a JSON file.
type Driver struct {
	path string

	// writeMu serializes Apply and Load so each one persists on top of the
	// previous commit.
	writeMu sync.Mutex

	// mu guards current. Readers only hold it long enough to grab the
	// pointer.
	mu      sync.RWMutex
	current *inmemory.Driver
}

// NewDriver opens the store at path. A missing file is an empty store; a file
// that cannot be parsed or fails validation yields a CorruptStoreError.
func NewDriver(path string) (*Driver, error) {
	if path == "" {
		return nil, errors.New("jsonfile: empty path")
	}

	d := &Driver{
		path:    path,
		current: inmemory.NewDriver(),
	}

	snap, err := readSnapshot(path)
	if err != nil {
		return nil, err
	}
	if snap != nil {
		if err := d.current.Load(context.Background(), snap); err != nil {
			return nil, storage.CorruptStoreError{Source: path, Err: errors.Unwrap(err)}
		}
	}

	return d, nil
}

// Path returns the backing file path.
func (d *Driver) Path() string {
	return d.path
}

// Apply commits m to a copy of the working set, persists it and only then
// makes it visible.
func (d *Driver) Apply(ctx context.Context, m *storage.Mutation) error {
	if err := m.Validate(); err != nil {
		return err
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	next := d.working().Clone()
	if err := next.Apply(ctx, m); err != nil {
		return err
	}
	return d.commit(ctx, next)
}

// Load replaces the store contents with snap and persists it.
func (d *Driver) Load(ctx context.Context, snap *record.Snapshot) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	next := inmemory.NewDriver()
	if err := next.Load(ctx, snap); err != nil {
		return err
	}
	return d.commit(ctx, next)
}

func (d *Driver) commit(ctx context.Context, next *inmemory.Driver) error {
	snap, err := next.Snapshot(ctx)
	if err != nil {
		return err
	}
	if err := writeSnapshot(d.path, snap); err != nil {
		return storage.StorageError{Op: "write " + d.path, Err: err}
	}

	d.mu.Lock()
	d.current = next
	d.mu.Unlock()
	return nil
}

func (d *Driver) working() *inmemory.Driver {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.current
}

// GetSession retrieves a session by id.
func (d *Driver) GetSession(ctx context.Context, sessionID string) (*record.Session, error) {
	return d.working().GetSession(ctx, sessionID)
}

// ListSessions returns all sessions.
func (d *Driver) ListSessions(ctx context.Context) ([]*record.Session, error) {
	return d.working().ListSessions(ctx)
}

// ListInformation returns matching information records in insertion order.
func (d *Driver) ListInformation(ctx context.Context, filter storage.InformationFilter) ([]*record.InformationRecord, error) {
	return d.working().ListInformation(ctx, filter)
}

// ListCallLogs returns all call logs in insertion order.
func (d *Driver) ListCallLogs(ctx context.Context) ([]*record.CallLog, error) {
	return d.working().ListCallLogs(ctx)
}

// CountCallLogs returns the number of committed call logs.
func (d *Driver) CountCallLogs(ctx context.Context) (int, error) {
	return d.working().CountCallLogs(ctx)
}

// Snapshot returns a deep copy of the committed state.
func (d *Driver) Snapshot(ctx context.Context) (*record.Snapshot, error) {
	return d.working().Snapshot(ctx)
}

// Close is a no-op; every commit is already on disk.
func (d *Driver) Close() error {
	return nil
}

func readSnapshot(path string) (*record.Snapshot, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, storage.StorageError{Op: "read " + path, Err: err}
	}

	snap := &record.Snapshot{}
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, storage.CorruptStoreError{Source: path, Err: err}
	}
	return snap, nil
}

func writeSnapshot(path string, snap *record.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return syncDir(dir)
}

// syncDir flushes the directory entry so the rename itself survives a crash.
func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open directory: %w", err)
	}
	defer f.Close()
	if err := f.Sync(); err != nil && !errors.Is(err, os.ErrInvalid) {
		return fmt.Errorf("sync directory: %w", err)
	}
	return nil
}

var _ storage.Driver = (*Driver)(nil)
