package state

import (
	"errors"
	"io/fs"

	"github.com/vanderheijden86/boardstate/pkg/command"
	"github.com/vanderheijden86/boardstate/pkg/persistence"
)

// ErrorKind classifies errors surfaced by the coordinator.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindNotFound
	KindValidation
	KindIO
	KindSerialization
	KindConflict
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindIO:
		return "io"
	case KindSerialization:
		return "serialization"
	case KindConflict:
		return "conflict_detected"
	default:
		return "unknown"
	}
}

// Recoverable reports whether retrying the operation can succeed without
// user action. Serialization errors leave the file unusable.
func (k ErrorKind) Recoverable() bool {
	return k != KindSerialization
}

// KindOf returns the kind of err. A nil error is KindUnknown.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var (
		conflictErr *persistence.ConflictError
		notFound    command.NotFoundError
		invalid     command.ValidationError
		serialErr   *persistence.SerializationError
		ioErr       *persistence.IOError
		pathErr     *fs.PathError
	)
	switch {
	case errors.As(err, &conflictErr), errors.Is(err, persistence.ErrConflict):
		return KindConflict
	case errors.As(err, &notFound):
		return KindNotFound
	case errors.As(err, &invalid):
		return KindValidation
	case errors.As(err, &serialErr):
		return KindSerialization
	case errors.As(err, &ioErr), errors.As(err, &pathErr):
		return KindIO
	default:
		return KindUnknown
	}
}
