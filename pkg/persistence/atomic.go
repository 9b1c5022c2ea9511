package persistence

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// TempInfix marks temporary files produced by WriteFileAtomic. Watchers
// use it to ignore intermediate writes.
const TempInfix = ".tmp-"

// IsTempFile reports whether name looks like a WriteFileAtomic temp file.
func IsTempFile(name string) bool {
	return strings.Contains(filepath.Base(name), TempInfix)
}

// beforeRename runs after the temp file is durable but before it replaces
// the target. Tests use it to simulate a crash.
var beforeRename func(tmpPath string) error

// WriteFileAtomic writes data to <path>.tmp-<random> in the same directory,
// syncs it and renames it over path. A failure at any point leaves path
// untouched.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return ioErr("create directory", dir, err)
	}
	tmp, err := os.CreateTemp(dir, base+TempInfix+"*")
	if err != nil {
		return ioErr("create temp file in", dir, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return ioErr("write", tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return ioErr("sync", tmpPath, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		cleanup()
		return ioErr("chmod", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return ioErr("close", tmpPath, err)
	}
	if beforeRename != nil {
		if err := beforeRename(tmpPath); err != nil {
			return fmt.Errorf("aborted before rename: %w", err)
		}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return ioErr("rename", path, err)
	}
	syncDir(dir)
	return nil
}

// syncDir flushes the directory entry so the rename survives a power loss.
// Platforms that cannot fsync a directory are ignored.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

// staleTempAge keeps RemoveStaleTemps away from writes still in flight in
// another process.
const staleTempAge = time.Minute

// RemoveStaleTemps deletes leftover temp files for path from interrupted
// writes. It returns how many were removed.
func RemoveStaleTemps(path string) int {
	matches, err := filepath.Glob(path + TempInfix + "*")
	if err != nil {
		return 0
	}
	n := 0
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || time.Since(info.ModTime()) < staleTempAge {
			continue
		}
		if os.Remove(m) == nil {
			n++
		}
	}
	return n
}
