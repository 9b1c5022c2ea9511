package conflict

import (
	"fmt"

	"github.com/vanderheijden86/boardstate/pkg/model"
)

// Resolver decides between in-memory state and a newer on-disk version.
type Resolver interface {
	// UseExternal reports whether the external document should replace
	// local state.
	UseExternal(local, external model.Metadata) bool
	Name() string
}

// LastWriteWins prefers whichever side was saved most recently. A tie keeps
// the local state.
type LastWriteWins struct{}

func (LastWriteWins) UseExternal(local, external model.Metadata) bool {
	return external.SavedAt.After(local.SavedAt)
}

func (LastWriteWins) Name() string { return "last-write-wins" }

// Explain renders a one-line description of a resolution decision.
func Explain(r Resolver, local, external model.Metadata) string {
	winner := "local"
	if r.UseExternal(local, external) {
		winner = "external"
	}
	return fmt.Sprintf("%s: keeping %s (local saved %s, external saved %s by %s)",
		r.Name(), winner,
		local.SavedAt.Format("2006-01-02 15:04:05"),
		external.SavedAt.Format("2006-01-02 15:04:05"),
		external.InstanceID)
}
