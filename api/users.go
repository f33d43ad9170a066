package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/pkg/errors"

	"github.com/fyd-app/go-fyd-client/sessions"
)

// SessionOwner is the slice of the auth client the users service needs:
// session teardown after account deletion, and profile snapshot updates.
// The session store itself stays out of reach; only the auth client writes
// it.
type SessionOwner interface {
	Logout(ctx context.Context) error
	ApplyProfile(ctx context.Context, userID string, apply func(*sessions.User)) error
}

// UsersService talks to the users endpoints.
type UsersService struct {
	client  *Client
	session SessionOwner
}

func NewUsersService(client *Client, session SessionOwner) *UsersService {
	return &UsersService{client: client, session: session}
}

// UserUpdate carries the profile fields to change. Nil fields are omitted
// from the payload and left untouched server-side.
type UserUpdate struct {
	Name      *string   `json:"name,omitempty"`
	Email     *string   `json:"email,omitempty"`
	Age       *int      `json:"age,omitempty"`
	City      *string   `json:"city,omitempty"`
	Interests *[]string `json:"interests,omitempty"`
}

// Update saves a partial profile change, then folds the accepted fields into
// the cached session snapshot.
func (s *UsersService) Update(ctx context.Context, userID string, update UserUpdate) error {
	var env statusEnvelope
	if err := s.client.Do(ctx, http.MethodPut, "/users/"+url.PathEscape(userID), update, &env); err != nil {
		return errors.WithMessage(err, "[UsersService.Update]")
	}
	if !env.Success {
		return errors.WithStack(&Error{Message: serverMessage(env.Message)})
	}

	if s.session == nil {
		return nil
	}
	err := s.session.ApplyProfile(ctx, userID, func(user *sessions.User) {
		if update.Name != nil {
			user.Name = *update.Name
		}
		if update.Email != nil {
			user.Email = *update.Email
		}
		if update.Age != nil {
			user.Age = *update.Age
		}
		if update.City != nil {
			user.City = *update.City
		}
		if update.Interests != nil {
			user.Interests = *update.Interests
		}
	})
	return errors.WithMessage(err, "[UsersService.Update] refresh cached profile")
}

// DeleteAccount removes the account server-side, then tears the local
// session down through the auth client.
func (s *UsersService) DeleteAccount(ctx context.Context) error {
	var env statusEnvelope
	if err := s.client.Do(ctx, http.MethodDelete, "/users/me", nil, &env); err != nil {
		return errors.WithMessage(err, "[UsersService.DeleteAccount]")
	}
	if !env.Success {
		return errors.WithStack(&Error{Message: serverMessage(env.Message)})
	}

	if s.session == nil {
		return nil
	}
	return errors.WithMessage(s.session.Logout(ctx), "[UsersService.DeleteAccount] teardown")
}
