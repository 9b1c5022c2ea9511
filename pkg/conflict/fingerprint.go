// Package conflict detects whether a stored board file changed since this
// process last read or wrote it, and whether the change was its own.
package conflict

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// Fingerprint summarizes the bytes of a file at one observation.
// The zero value is the sentinel for an absent file.
type Fingerprint struct {
	Exists  bool
	Size    int64
	ModTime time.Time
	Hash    string
}

// IsZero reports whether f is the absent-file sentinel.
func (f Fingerprint) IsZero() bool {
	return !f.Exists
}

// SameContent reports whether two fingerprints describe identical bytes.
// The modification time is ignored so a touch without a rewrite is not a
// change.
func (f Fingerprint) SameContent(other Fingerprint) bool {
	if f.Exists != other.Exists {
		return false
	}
	if !f.Exists {
		return true
	}
	return f.Size == other.Size && f.Hash == other.Hash
}

// Equal reports whether size, modification time and hash all match.
func (f Fingerprint) Equal(other Fingerprint) bool {
	return f.SameContent(other) && (!f.Exists || f.ModTime.Equal(other.ModTime))
}

func (f Fingerprint) String() string {
	if !f.Exists {
		return "absent"
	}
	h := f.Hash
	if len(h) > 12 {
		h = h[:12]
	}
	return fmt.Sprintf("size=%d mtime=%s hash=%s", f.Size, f.ModTime.Format(time.RFC3339Nano), h)
}

// Compute fingerprints the file at path. A missing file yields the zero
// Fingerprint and no error.
func Compute(path string) (Fingerprint, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Fingerprint{}, nil
		}
		return Fingerprint{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Fingerprint{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return Fingerprint{}, fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return Fingerprint{
		Exists:  true,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		Hash:    hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// FromBytes fingerprints data already in memory. ModTime is left zero.
func FromBytes(data []byte) Fingerprint {
	sum := sha256.Sum256(data)
	return Fingerprint{
		Exists: true,
		Size:   int64(len(data)),
		Hash:   hex.EncodeToString(sum[:]),
	}
}
