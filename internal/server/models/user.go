package models

import (
	"github.com/dmitrijs2005/ritw/internal/cryptox"
	"github.com/dmitrijs2005/ritw/internal/dbx"
)

// User is a registered account. Password holds the verifier, never the
// plaintext.
type User struct {
	ID       string
	Name     string
	Password []byte
}

func (u *User) Identity() string {
	return u.ID
}

// UserCreateInfo is the signup/signin form as submitted by the client.
type UserCreateInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// NewUser converts untrusted input into a User, hashing the password on
// the way in.
func NewUser(dto UserCreateInfo) *User {
	return &User{
		ID:       dto.ID,
		Name:     dto.Name,
		Password: cryptox.HashPassword(dto.Password),
	}
}

// UserFromRow maps a users table row.
func UserFromRow(r dbx.Row) (*User, error) {
	id, err := r.String("id")
	if err != nil {
		return nil, err
	}
	name, err := r.String("name")
	if err != nil {
		return nil, err
	}
	password, err := r.Bytes("password")
	if err != nil {
		return nil, err
	}
	return &User{ID: id, Name: name, Password: password}, nil
}

// UserInfo is the public view of a User.
type UserInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (u *User) Info() UserInfo {
	return UserInfo{ID: u.ID, Name: u.Name}
}
