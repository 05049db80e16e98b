package service

import (
	"context"

	"github.com/artmarket/session-sync/infra/client/api"
	"github.com/artmarket/session-sync/internal/domain/model"
)

// AuthAPI is the unauthenticated part of the REST surface.
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (api.LoginResult, error)
	Register(ctx context.Context, req api.RegisterRequest) (api.RegisterResult, error)
}

// Authenticator turns credentials into a resident session.
type Authenticator struct {
	api      AuthAPI
	session  *Container
	profiles Resolver
}

func NewAuthenticator(a AuthAPI, session *Container, profiles Resolver) *Authenticator {
	return &Authenticator{api: a, session: session, profiles: profiles}
}

// Login exchanges credentials and logs the returned identity in.
func (a *Authenticator) Login(ctx context.Context, email, password string) (model.Session, error) {
	res, err := a.api.Login(ctx, email, password)
	if err != nil {
		return model.Session{}, err
	}
	if err := a.session.Login(ctx, res.User, res.Token); err != nil {
		return model.Session{}, err
	}
	return a.session.Snapshot(), nil
}

// Register creates the account and logs it in. The role comes from the
// request since the register response carries only ids.
func (a *Authenticator) Register(ctx context.Context, req api.RegisterRequest) (model.Session, error) {
	res, err := a.api.Register(ctx, req)
	if err != nil {
		return model.Session{}, err
	}

	u := model.User{
		ID:       res.UserID,
		Email:    req.Email,
		Role:     req.Role,
		Fullname: req.Fullname,
	}
	if res.ArtistID != nil {
		u.Artist = &model.ArtistProfile{ID: *res.ArtistID}
	}
	if res.EmployerID != nil {
		u.Employer = &model.EmployerProfile{ID: *res.EmployerID}
	}

	if err := a.session.Login(ctx, u, res.Token); err != nil {
		return model.Session{}, err
	}
	return a.session.Snapshot(), nil
}

// RefreshProfile refetches /me, bypassing the cache, and applies it.
func (a *Authenticator) RefreshProfile(ctx context.Context) (model.Session, error) {
	uid := a.session.UserID()
	if uid == nil {
		return model.Session{}, ErrNoSession
	}
	epoch := a.session.Epoch()

	a.profiles.Forget(*uid)
	u, err := a.profiles.Resolve(ctx, *uid)
	if err != nil {
		return model.Session{}, err
	}
	if err := a.session.ApplyProfile(ctx, epoch, u); err != nil {
		return model.Session{}, err
	}
	return a.session.Snapshot(), nil
}
