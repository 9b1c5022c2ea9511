package persistence

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/vanderheijden86/boardstate/pkg/conflict"
	"github.com/vanderheijden86/boardstate/pkg/debug"
	"github.com/vanderheijden86/boardstate/pkg/metrics"
	"github.com/vanderheijden86/boardstate/pkg/model"
)

// JSONFileStore keeps a snapshot in a single V2 JSON document.
type JSONFileStore struct {
	path       string
	instanceID string
	perm       os.FileMode
	detector   *conflict.Detector
	onWrite    WriteHook

	mu        sync.Mutex
	lastKnown conflict.Fingerprint
}

// JSONOption configures a JSONFileStore.
type JSONOption func(*JSONFileStore)

// WithInstanceID overrides the randomly generated instance id.
func WithInstanceID(id string) JSONOption {
	return func(s *JSONFileStore) {
		if id != "" {
			s.instanceID = id
		}
	}
}

// WithWriteHook registers a callback run after every successful write.
func WithWriteHook(h WriteHook) JSONOption {
	return func(s *JSONFileStore) {
		s.onWrite = h
	}
}

// WithFileMode sets the permission bits of written files.
func WithFileMode(perm os.FileMode) JSONOption {
	return func(s *JSONFileStore) {
		s.perm = perm
	}
}

// NewJSONFileStore returns a store for path. Nothing is read until Load.
func NewJSONFileStore(path string, opts ...JSONOption) *JSONFileStore {
	s := &JSONFileStore{
		path:       path,
		instanceID: model.NewID(),
		perm:       0644,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.detector = conflict.NewDetector(s.instanceID)
	return s
}

func (s *JSONFileStore) Path() string       { return s.path }
func (s *JSONFileStore) InstanceID() string { return s.instanceID }
func (s *JSONFileStore) Close() error       { return nil }

// SetWriteHook replaces the write hook after construction.
func (s *JSONFileStore) SetWriteHook(h WriteHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onWrite = h
}

// LastKnown returns the fingerprint observed at the last read or write.
func (s *JSONFileStore) LastKnown() conflict.Fingerprint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastKnown
}

// Load reads the document, migrating a legacy file in place. A missing file
// yields an empty snapshot.
func (s *JSONFileStore) Load(ctx context.Context) (LoadResult, error) {
	defer metrics.Timer(metrics.LoadDuration)()
	if err := ctx.Err(); err != nil {
		return LoadResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := RemoveStaleTemps(s.path); n > 0 {
		debug.Log("removed %d stale temp files next to %s", n, s.path)
	}

	data, fp, err := readWithFingerprint(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.lastKnown = conflict.Fingerprint{}
		return LoadResult{Snapshot: model.Empty(), Missing: true}, nil
	}
	if err != nil {
		return LoadResult{}, ioErr("read", s.path, err)
	}

	version, err := DetectVersion(data)
	if err != nil {
		return LoadResult{}, &SerializationError{Path: s.path, Err: err}
	}
	switch version {
	case FormatV1:
		return s.migrateLocked(data, fp)
	case FormatV2:
		doc, err := DecodeDocument(data)
		if err != nil {
			return LoadResult{}, &SerializationError{Path: s.path, Err: err}
		}
		s.lastKnown = fp
		debug.Log("loaded %s (%s, %d cards)", s.path, fp, len(doc.Data.Cards))
		return LoadResult{Snapshot: doc.Data, Metadata: doc.Metadata}, nil
	default:
		return LoadResult{}, &SerializationError{Path: s.path, Err: fmt.Errorf("unsupported version %d", version)}
	}
}

// Save writes snap if the file is unchanged since it was last observed or
// was last changed by this instance.
func (s *JSONFileStore) Save(ctx context.Context, snap model.Snapshot) (model.Metadata, error) {
	defer metrics.Timer(metrics.SaveDuration)()
	if err := ctx.Err(); err != nil {
		return model.Metadata{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLocked(); err != nil {
		return model.Metadata{}, err
	}
	meta := model.NewMetadata(s.instanceID)
	data, err := EncodeDocument(snap, meta)
	if err != nil {
		return model.Metadata{}, err
	}
	if err := s.writeLocked(s.path, data); err != nil {
		return model.Metadata{}, err
	}
	return meta, nil
}

// Acknowledge adopts whatever is on disk now as the last known state.
func (s *JSONFileStore) Acknowledge() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fp, err := conflict.Compute(s.path)
	if err != nil {
		return ioErr("fingerprint", s.path, err)
	}
	s.lastKnown = fp
	return nil
}

// Check reports how the file differs from what this store last observed.
func (s *JSONFileStore) Check() (conflict.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detector.Check(s.path, s.lastKnown)
}

func (s *JSONFileStore) checkLocked() error {
	defer metrics.Timer(metrics.FingerprintCheck)()
	res, err := s.detector.Check(s.path, s.lastKnown)
	if err != nil {
		return ioErr("check", s.path, err)
	}
	if res.Status == conflict.ChangedExternally {
		metrics.ConflictsDetected.Inc()
		debug.Log("refusing write to %s: last known %s, now %s", s.path, s.lastKnown, res.Current)
		return &ConflictError{Path: s.path, Remote: res.Remote, Current: res.Current}
	}
	return nil
}

func (s *JSONFileStore) writeLocked(path string, data []byte) error {
	if err := WriteFileAtomic(path, data, s.perm); err != nil {
		return err
	}
	fp := writtenFingerprint(path, data)
	if path == s.path {
		s.lastKnown = fp
	}
	if s.onWrite != nil {
		s.onWrite(path, fp)
	}
	return nil
}
