package model

// Role is the marketplace role attached to an identity.
type Role string

const (
	RoleNone     Role = ""
	RoleArtist   Role = "Artist"
	RoleEmployer Role = "Employer"
	RoleAdmin    Role = "Admin"
)

// Valid reports whether r is one of the enumerated roles.
// An unrecognised role carries no privileges.
func (r Role) Valid() bool {
	switch r {
	case RoleArtist, RoleEmployer, RoleAdmin:
		return true
	default:
		return false
	}
}

// Session is the authenticated identity of this client.
//
// [INVARIANT]
// AuthToken is non-empty if and only if UserID is non-nil: a session is either
// fully authenticated or fully anonymous.
type Session struct {
	UserID     *int64 `json:"user_id"`
	Role       Role   `json:"role,omitempty"`
	ArtistID   *int64 `json:"artist_id,omitempty"`
	EmployerID *int64 `json:"employer_id,omitempty"`
	Fullname   string `json:"fullname,omitempty"`

	// AuthToken is persisted under its own key, never inside the user record.
	AuthToken string `json:"-"`
}

// Authenticated reports whether the session carries an identity.
func (s Session) Authenticated() bool { return s.UserID != nil }

// Consistent reports whether the token/user invariant holds.
func (s Session) Consistent() bool {
	return (s.UserID != nil) == (s.AuthToken != "")
}

// Clone returns a deep copy so callers never share the pointer fields.
func (s Session) Clone() Session {
	out := s
	out.UserID = cloneID(s.UserID)
	out.ArtistID = cloneID(s.ArtistID)
	out.EmployerID = cloneID(s.EmployerID)
	return out
}

// Equal compares every field including the token.
func (s Session) Equal(o Session) bool {
	return idEqual(s.UserID, o.UserID) &&
		idEqual(s.ArtistID, o.ArtistID) &&
		idEqual(s.EmployerID, o.EmployerID) &&
		s.Role == o.Role &&
		s.Fullname == o.Fullname &&
		s.AuthToken == o.AuthToken
}

// SameIdentity reports whether two sessions belong to the same user and token.
func (s Session) SameIdentity(o Session) bool {
	return idEqual(s.UserID, o.UserID) && s.AuthToken == o.AuthToken
}

// ID returns a pointer to a copy of v.
func ID(v int64) *int64 { return &v }

func cloneID(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func idEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
