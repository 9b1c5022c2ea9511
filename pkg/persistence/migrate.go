package persistence

import (
	"fmt"

	"github.com/vanderheijden86/boardstate/pkg/conflict"
	"github.com/vanderheijden86/boardstate/pkg/debug"
	"github.com/vanderheijden86/boardstate/pkg/metrics"
	"github.com/vanderheijden86/boardstate/pkg/model"
)

// BackupSuffix is appended to the path of a migrated legacy file.
const BackupSuffix = ".v1.backup"

// BackupPath returns where the original bytes of a legacy file are kept.
func BackupPath(path string) string {
	return path + BackupSuffix
}

// migrateLocked upgrades the legacy bytes in original (read from s.path
// with fingerprint fp). The untouched original is written to the backup
// path before the V2 document replaces it, and the result is read back to
// verify it decodes to the same snapshot.
func (s *JSONFileStore) migrateLocked(original []byte, fp conflict.Fingerprint) (LoadResult, error) {
	defer metrics.Timer(metrics.MigrationDuration)()

	snap, err := decodeV1(original)
	if err != nil {
		return LoadResult{}, &SerializationError{Path: s.path, Err: fmt.Errorf("legacy document: %w", err)}
	}

	backup := BackupPath(s.path)
	if err := WriteFileAtomic(backup, original, s.perm); err != nil {
		return LoadResult{}, err
	}

	// the file must still be the one we parsed
	s.lastKnown = fp
	if err := s.checkLocked(); err != nil {
		return LoadResult{}, err
	}

	meta := model.NewMetadata(s.instanceID)
	data, err := EncodeDocument(snap, meta)
	if err != nil {
		return LoadResult{}, err
	}
	if err := s.writeLocked(s.path, data); err != nil {
		return LoadResult{}, err
	}

	if err := s.verifyLocked(snap); err != nil {
		return LoadResult{}, err
	}
	debug.Log("migrated %s from v1 (backup at %s)", s.path, backup)
	return LoadResult{
		Snapshot:   snap,
		Metadata:   meta,
		Migrated:   true,
		BackupPath: backup,
	}, nil
}

func (s *JSONFileStore) verifyLocked(want model.Snapshot) error {
	data, _, err := readWithFingerprint(s.path)
	if err != nil {
		return ioErr("re-read", s.path, err)
	}
	doc, err := DecodeDocument(data)
	if err != nil {
		return &SerializationError{Path: s.path, Err: fmt.Errorf("migrated document: %w", err)}
	}
	if !doc.Data.Equal(want) {
		return &SerializationError{Path: s.path, Err: fmt.Errorf("migrated document does not match legacy content")}
	}
	return nil
}
