package user

import (
	"errors"
	"strings"
)

// Role identifies which side of the marketplace a session acts for.
type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleWorker   Role = "WORKER"
	RoleAdmin    Role = "ADMIN"
)

var ErrInvalidRole = errors.New("invalid role")

// ParseRole trims and uppercases s, then validates it.
func ParseRole(s string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !role.Valid() {
		return "", ErrInvalidRole
	}
	return role, nil
}

func (role Role) Valid() bool {
	switch role {
	case RoleCustomer, RoleWorker, RoleAdmin:
		return true
	}
	return false
}

func (role Role) String() string { return string(role) }
