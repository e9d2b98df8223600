package auth

import (
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/JAssertz/better-convex-sub001/internal/schema"
)

// User is a server account. Roles are the schema role names the account
// carries into policy evaluation; IsRoot bypasses policies entirely.
type User struct {
	Id       string
	Name     string
	Password []byte
	Roles    []string
	IsRoot   bool
}

func NewUser(name, password string, roles ...string) *User {
	// password max size is 72 bytes because of bcrypt limit
	hashed_password, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return &User{Id: uuid.New().String(), Name: name, Password: hashed_password, Roles: roles}
}

func NewRootUser(name, password string) *User {
	user := NewUser(name, password)
	user.IsRoot = true
	return user
}

func (u *User) ValidateUser(password string) bool {
	return bcrypt.CompareHashAndPassword(u.Password, []byte(password)) == nil
}

// Actor is the identity this account presents to policy evaluation.
func (u *User) Actor() schema.Actor {
	return schema.Actor{Subject: u.Name, Roles: u.Roles, Bypass: u.IsRoot}
}
