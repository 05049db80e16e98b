package model

// ArtistProfile is the artist side of an account.
type ArtistProfile struct {
	ID int64
}

// EmployerProfile is the employer side of an account.
type EmployerProfile struct {
	ID int64
}

// User is the identity record returned by the API on login and on /me.
type User struct {
	ID       int64
	Email    string
	Role     Role
	Fullname string
	Artist   *ArtistProfile
	Employer *EmployerProfile
}

// NewSession builds the session for u authenticated by token.
func NewSession(u User, token string) Session {
	s := Session{
		UserID:    ID(u.ID),
		Role:      u.Role,
		Fullname:  u.Fullname,
		AuthToken: token,
	}
	if u.Artist != nil {
		s.ArtistID = ID(u.Artist.ID)
	}
	if u.Employer != nil {
		s.EmployerID = ID(u.Employer.ID)
	}
	return s
}
