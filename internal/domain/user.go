// Package domain contains the record types served by the mutual-aid data providers.
package domain

import (
	"strings"
	"time"
)

// Role is the access profile of a user inside the mutual-aid association.
type Role string

const (
	// RoleAdmin manages sessions, exercises, members and bailouts.
	RoleAdmin Role = "ADMINISTRATEUR"
	// RoleMember is an enrolled member with a financial record.
	RoleMember Role = "MEMBRE"
	// RoleVisitor is a registered user who is not (yet) a member.
	RoleVisitor Role = "VISITEUR"
)

// IsAdmin reports whether the role carries administrator rights.
// "ADMIN" is accepted as a legacy alias.
func (r Role) IsAdmin() bool {
	switch strings.ToUpper(strings.TrimSpace(string(r))) {
	case string(RoleAdmin), "ADMIN":
		return true
	}
	return false
}

// IsMember reports whether the role is an enrolled member.
func (r Role) IsMember() bool {
	return strings.ToUpper(strings.TrimSpace(string(r))) == string(RoleMember)
}

// User is the identity record of the signed-in person.
type User struct {
	UserID    string    `json:"user_id" yaml:"user_id"`
	FirstName string    `json:"first_name" yaml:"first_name"`
	LastName  string    `json:"last_name" yaml:"last_name"`
	Email     string    `json:"email" yaml:"email"`
	Phone     string    `json:"phone,omitempty" yaml:"phone"`
	Role      Role      `json:"role" yaml:"role"`
	CreatedAt time.Time `json:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// FullName returns "First Last", trimmed.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// DisplayName returns the name used when addressing the user.
func (u *User) DisplayName() string {
	if name := strings.TrimSpace(u.FirstName); name != "" {
		return name
	}
	return u.FullName()
}
