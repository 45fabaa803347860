// FILE: internal/entity/user_entity.go
package entity

import (
	"time"
)

type UserRole string

const (
	UserRoleStudent   UserRole = "student"
	UserRoleCounselor UserRole = "counselor"
)

func (r UserRole) IsValid() bool {
	return r == UserRoleStudent || r == UserRoleCounselor
}

// Counterpart is the role a user of role r chats with.
func (r UserRole) Counterpart() UserRole {
	if r == UserRoleStudent {
		return UserRoleCounselor
	}
	return UserRoleStudent
}

// User is the local read-model of a profile owned by the identity provider.
// The core only writes IsOnline/LastSeen through the presence projection.
type User struct {
	Id          string
	DisplayName string
	Role        UserRole
	IsOnline    bool
	LastSeen    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
