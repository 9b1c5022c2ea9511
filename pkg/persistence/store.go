package persistence

import (
	"context"
	"io"
	"os"

	"github.com/vanderheijden86/boardstate/pkg/conflict"
	"github.com/vanderheijden86/boardstate/pkg/model"
)

// LoadResult is what a Store hands back from Load.
type LoadResult struct {
	Snapshot model.Snapshot
	Metadata model.Metadata
	// Missing is true when no file existed; Snapshot is then empty.
	Missing bool
	// Migrated is true when a legacy file was upgraded during this load.
	Migrated   bool
	BackupPath string
}

// Store persists whole snapshots. Implementations refuse to overwrite a
// file changed by another process since it was last read or written,
// returning a *ConflictError.
type Store interface {
	Load(ctx context.Context) (LoadResult, error)
	Save(ctx context.Context, snap model.Snapshot) (model.Metadata, error)
	// Acknowledge adopts the current on-disk state as last known without
	// loading it, so the next Save overwrites an external change.
	Acknowledge() error
	Path() string
	InstanceID() string
	Close() error
}

// WriteHook is told the fingerprint of every file this process writes.
type WriteHook func(path string, fp conflict.Fingerprint)

// readWithFingerprint reads path and fingerprints exactly the bytes read.
func readWithFingerprint(path string) ([]byte, conflict.Fingerprint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, conflict.Fingerprint{}, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, conflict.Fingerprint{}, err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, conflict.Fingerprint{}, err
	}
	fp := conflict.FromBytes(data)
	fp.ModTime = info.ModTime()
	return data, fp, nil
}

// writtenFingerprint describes bytes we just renamed into place. The hash
// comes from memory so a racing writer cannot be mistaken for us.
func writtenFingerprint(path string, data []byte) conflict.Fingerprint {
	fp := conflict.FromBytes(data)
	if info, err := os.Stat(path); err == nil {
		fp.ModTime = info.ModTime()
	}
	return fp
}
