package auth

import (
	"errors"
	"fmt"
)

var ErrUnknownRole = errors.New("unknown role")

// Role is the closed set of account roles.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// ParseRole converts an untrusted string, such as a token claim, into a Role.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleCustomer, RoleAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
}

// CanManageCatalog reports whether the role may create, update or delete products.
func (r Role) CanManageCatalog() bool {
	switch r {
	case RoleAdmin:
		return true
	case RoleCustomer:
		return false
	default:
		return false
	}
}

func (r Role) String() string {
	return string(r)
}
