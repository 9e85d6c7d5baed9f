package session

// RoleType represents an account role as reported by the backend.
type RoleType string

const (
	RoleDentist RoleType = "dentist"
	RoleAdmin   RoleType = "admin"
)

// Identity is the authenticated user record returned by the accounts API and
// persisted alongside the token pair. Field names follow the backend user
// serializer.
type Identity struct {
	ID                 int64    `json:"id,omitempty"`
	Username           string   `json:"username,omitempty"`
	Email              string   `json:"email,omitempty"`
	FirstName          string   `json:"first_name,omitempty"`
	LastName           string   `json:"last_name,omitempty"`
	Role               RoleType `json:"role,omitempty"`
	EmailVerified      bool     `json:"email_verified,omitempty"`
	TwoFAEnabled       bool     `json:"two_fa_enabled,omitempty"`
	TwoFASetupComplete bool     `json:"two_fa_setup_complete,omitempty"`
}

// FullName returns the display name, falling back to the username when no
// name has been set.
func (i *Identity) FullName() string {
	if i == nil {
		return ""
	}
	switch {
	case i.FirstName == "" && i.LastName == "":
		return i.Username
	case i.FirstName == "":
		return i.LastName
	case i.LastName == "":
		return i.FirstName
	}
	return i.FirstName + " " + i.LastName
}
