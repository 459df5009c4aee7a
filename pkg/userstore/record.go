package userstore

import (
	"errors"

	"github.com/rhuss/securest/pkg/auth"
)

// ErrInvalidUser is returned when a user cannot be stored.
var ErrInvalidUser = errors.New("invalid user record")

// Record is the serialized form of a registered user.
type Record struct {
	Username string   `json:"username"`
	Password string   `json:"password"`
	Email    string   `json:"email,omitempty"`
	Active   bool     `json:"active"`
	Roles    []string `json:"roles,omitempty"`
}

// FromUser converts a registered user to a Record.
func FromUser(u *auth.RegisteredUser) Record {
	rec := Record{
		Username: u.Username,
		Password: u.Password,
		Email:    u.Email,
		Active:   u.Active,
	}
	for _, r := range u.RoleSet {
		rec.Roles = append(rec.Roles, r.Name)
	}
	return rec
}

// User converts the record back to a registered user.
func (r Record) User() *auth.RegisteredUser {
	u := &auth.RegisteredUser{
		Username: r.Username,
		Password: r.Password,
		Email:    r.Email,
		Active:   r.Active,
	}
	for _, name := range r.Roles {
		u.RoleSet = append(u.RoleSet, auth.Role{Name: name})
	}
	return u
}

// Validate checks the fields every store requires.
func (r Record) Validate() error {
	if r.Username == "" {
		return errors.Join(ErrInvalidUser, errors.New("username is required"))
	}
	return nil
}
