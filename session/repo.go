package session

import "errors"

// Fixed storage keys for the three persisted session entries. They must only
// ever be written or cleared as a group (see Store).
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
	KeyUser         = "user"
)

// ErrKeyNotFound is returned by Repo.Get when no value exists for a key.
var ErrKeyNotFound = errors.New("session: key not found")

// Repo defines the interface for persisted session storage. Values are
// opaque strings; writes are whole-value replacements, never partial-field
// mutations.
type Repo interface {
	// Get retrieves the value stored under key, or ErrKeyNotFound
	Get(key string) (string, error)

	// Set stores value under key, replacing any previous value
	Set(key, value string) error

	// Delete removes the value stored under key; deleting a missing key is
	// not an error
	Delete(key string) error

	// Clear removes all session entries together
	Clear() error
}
