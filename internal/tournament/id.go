package tournament

import (
	"fmt"

	"github.com/google/uuid"
)

// DraftPrefix marks local keys generated for tournaments the remote API has
// never seen.
const DraftPrefix = "local-"

// ID identifies a tournament. Exactly one of the two forms is set:
// a saved ID holds the remote identifier, a draft ID holds a local key.
type ID struct {
	remote string
	local  string
}

// Saved returns the ID of a tournament known to the remote API.
func Saved(remoteID string) ID {
	return ID{remote: remoteID}
}

// Draft returns the ID of a locally created tournament with the given key.
func Draft(localKey string) ID {
	return ID{local: localKey}
}

// NewDraft returns a draft ID with a freshly generated local key.
func NewDraft() ID {
	return Draft(DraftPrefix + uuid.NewString())
}

// ParseKey reverses Key. Whether key is a draft is recorded next to it
// wherever it is stored; the key text itself decides nothing, since a
// remote identifier may start with DraftPrefix too. The empty key yields
// the zero ID.
func ParseKey(key string, localOnly bool) ID {
	switch {
	case key == "":
		return ID{}
	case localOnly:
		return Draft(key)
	default:
		return Saved(key)
	}
}

// Remote returns the remote identifier and whether the ID is saved.
func (id ID) Remote() (string, bool) {
	return id.remote, id.remote != ""
}

// IsDraft reports whether the ID is a local-only draft key.
func (id ID) IsDraft() bool {
	return id.remote == "" && id.local != ""
}

// IsZero reports whether the ID was never assigned.
func (id ID) IsZero() bool {
	return id.remote == "" && id.local == ""
}

// Key returns the local store primary key for this ID.
func (id ID) Key() string {
	if id.remote != "" {
		return id.remote
	}
	return id.local
}

// String implements fmt.Stringer.
func (id ID) String() string {
	switch {
	case id.remote != "":
		return id.remote
	case id.local != "":
		return fmt.Sprintf("draft(%s)", id.local)
	default:
		return "unsaved"
	}
}
