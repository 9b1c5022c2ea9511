package persistence

import (
	"errors"
	"fmt"

	"github.com/vanderheijden86/boardstate/pkg/conflict"
	"github.com/vanderheijden86/boardstate/pkg/model"
)

// ErrConflict is matched by every ConflictError.
var ErrConflict = errors.New("file changed externally")

// ConflictError reports a write refused because another process changed
// the file since it was last read.
type ConflictError struct {
	Path    string
	Remote  model.Metadata
	Current conflict.Fingerprint
}

func (e *ConflictError) Error() string {
	who := e.Remote.InstanceID
	if who == "" {
		who = "unknown writer"
	}
	return fmt.Sprintf("conflict on %s: changed by %s since last read", e.Path, who)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// IOError wraps a filesystem failure. Saves that fail this way can be
// retried.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// SerializationError reports bytes that could not be encoded or decoded.
// A file that fails to decode is not partially recovered.
type SerializationError struct {
	Path string
	Err  error
}

func (e *SerializationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("serialization failed: %v", e.Err)
	}
	return fmt.Sprintf("corrupt document %s: %v", e.Path, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

func ioErr(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &IOError{Op: op, Path: path, Err: err}
}
