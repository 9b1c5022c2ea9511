package command

import (
	"errors"
	"fmt"

	"github.com/vanderheijden86/boardstate/pkg/model"
)

// Recorder receives the pre-mutation snapshot of every applied batch.
// history.Manager satisfies it.
type Recorder interface {
	Push(snapshot model.Snapshot)
}

// Applied describes a successfully executed batch.
type Applied struct {
	Descriptions []string
}

// Summary joins the batch descriptions for status display.
func (a Applied) Summary() string {
	switch len(a.Descriptions) {
	case 0:
		return ""
	case 1:
		return a.Descriptions[0]
	}
	return fmt.Sprintf("%s (+%d more)", a.Descriptions[0], len(a.Descriptions)-1)
}

// BatchError wraps the failure of one command inside a batch.
type BatchError struct {
	Index       int
	Description string
	Err         error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch step %d (%s): %v", e.Index+1, e.Description, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// Executor applies commands to a snapshot all-or-nothing.
type Executor struct {
	history Recorder
}

// NewExecutor returns an executor that records history into r. r may be nil.
func NewExecutor(r Recorder) *Executor {
	return &Executor{history: r}
}

// Execute applies a single command.
func (e *Executor) Execute(s *model.Snapshot, cmd Command) (Applied, error) {
	applied, err := e.ExecuteBatch(s, cmd)
	var be *BatchError
	if errors.As(err, &be) {
		return Applied{}, be.Err
	}
	return applied, err
}

// ExecuteBatch applies cmds as one unit. If any command fails, s is
// restored to its pre-batch contents and nothing is recorded. On success
// exactly one pre-batch snapshot is pushed to history.
func (e *Executor) ExecuteBatch(s *model.Snapshot, cmds ...Command) (Applied, error) {
	if len(cmds) == 0 {
		return Applied{}, ValidationError{Field: "batch", Reason: "no commands"}
	}
	pre := s.Clone()
	applied := Applied{Descriptions: make([]string, 0, len(cmds))}
	for i, cmd := range cmds {
		if cmd == nil {
			*s = pre
			return Applied{}, &BatchError{Index: i, Err: ValidationError{Field: "command", Reason: "nil"}}
		}
		if err := cmd.Execute(s); err != nil {
			*s = pre
			return Applied{}, &BatchError{Index: i, Description: cmd.Description(), Err: err}
		}
		applied.Descriptions = append(applied.Descriptions, cmd.Description())
	}
	s.Normalize()
	if e.history != nil {
		e.history.Push(pre)
	}
	return applied, nil
}
