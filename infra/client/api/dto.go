package api

import "github.com/artmarket/session-sync/internal/domain/model"

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type artistWire struct {
	ID int64 `json:"artist_id"`
}

type employerWire struct {
	ID int64 `json:"employer_id"`
}

// userWire accepts both the flat ids returned on login and the nested
// profiles returned by /me.
type userWire struct {
	ID         int64         `json:"user_id"`
	Email      string        `json:"email"`
	Role       string        `json:"role"`
	Fullname   string        `json:"fullname"`
	ArtistID   *int64        `json:"artist_id"`
	EmployerID *int64        `json:"employer_id"`
	Artist     *artistWire   `json:"artist"`
	Employer   *employerWire `json:"employer"`
}

func (w userWire) toModel() model.User {
	u := model.User{
		ID:       w.ID,
		Email:    w.Email,
		Role:     model.Role(w.Role),
		Fullname: w.Fullname,
	}
	switch {
	case w.Artist != nil:
		u.Artist = &model.ArtistProfile{ID: w.Artist.ID}
	case w.ArtistID != nil:
		u.Artist = &model.ArtistProfile{ID: *w.ArtistID}
	}
	switch {
	case w.Employer != nil:
		u.Employer = &model.EmployerProfile{ID: w.Employer.ID}
	case w.EmployerID != nil:
		u.Employer = &model.EmployerProfile{ID: *w.EmployerID}
	}
	return u
}

type loginWire struct {
	Token string   `json:"token"`
	User  userWire `json:"user"`
}

// LoginResult is the identity and token returned by a successful login.
type LoginResult struct {
	Token string
	User  model.User
}

// RegisterRequest creates an account.
type RegisterRequest struct {
	Email    string     `json:"email"`
	Password string     `json:"password"`
	Fullname string     `json:"fullname"`
	Role     model.Role `json:"role"`
}

// RegisterResult mirrors the register response.
type RegisterResult struct {
	UserID     int64  `json:"user_id"`
	ArtistID   *int64 `json:"artist_id,omitempty"`
	EmployerID *int64 `json:"employer_id,omitempty"`
	Token      string `json:"token"`
}
