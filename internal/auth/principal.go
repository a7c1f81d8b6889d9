package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cimillas/library-lending/internal/domain"
)

type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleLibrarian Role = "LIBRARIAN"
	RoleStudent   Role = "STUDENT"
	RoleUser      Role = "USER"
)

var ErrInvalidClaims = errors.New("invalid token claims")

// Principal is the authenticated caller of a use case. It is passed explicitly
// through every service call that makes an authorization decision.
type Principal struct {
	Subject string
	Roles   []Role
}

func (p Principal) HasRole(role Role) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (p Principal) HasAnyRole(roles ...Role) bool {
	for _, role := range roles {
		if p.HasRole(role) {
			return true
		}
	}
	return false
}

// IsStaff reports whether the principal may run librarian operations.
func (p Principal) IsStaff() bool {
	return p.HasAnyRole(RoleAdmin, RoleLibrarian)
}

// RequireStaff fails with ErrForbidden unless the principal is ADMIN or LIBRARIAN.
func (p Principal) RequireStaff() error {
	if !p.IsStaff() {
		return fmt.Errorf("%w: %s requires ADMIN or LIBRARIAN", domain.ErrForbidden, p.Subject)
	}
	return nil
}

// RequireStudent fails with ErrForbidden unless the principal may act as a student.
func (p Principal) RequireStudent() error {
	if !p.HasAnyRole(RoleStudent, RoleUser) {
		return fmt.Errorf("%w: %s requires STUDENT or USER", domain.ErrForbidden, p.Subject)
	}
	return nil
}

// ParseRoles accepts a comma separated list. Unknown roles are dropped.
func ParseRoles(raw string) []Role {
	var roles []Role
	for _, part := range strings.Split(raw, ",") {
		if r, ok := parseRole(part); ok {
			roles = append(roles, r)
		}
	}
	return roles
}

func parseRole(s string) (Role, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "ROLE_")
	switch Role(s) {
	case RoleAdmin, RoleLibrarian, RoleStudent, RoleUser:
		return Role(s), true
	}
	return "", false
}

// FromClaims maps verified token claims to a principal. The subject comes from
// "sub"; roles come from "roles" as either a comma separated string or an array.
func FromClaims(claims jwt.MapClaims) (Principal, error) {
	sub, err := claims.GetSubject()
	if err != nil || strings.TrimSpace(sub) == "" {
		return Principal{}, fmt.Errorf("%w: missing sub", ErrInvalidClaims)
	}

	p := Principal{Subject: sub}
	switch v := claims["roles"].(type) {
	case nil:
	case string:
		p.Roles = ParseRoles(v)
	case []any:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				continue
			}
			if r, ok := parseRole(s); ok {
				p.Roles = append(p.Roles, r)
			}
		}
	default:
		return Principal{}, fmt.Errorf("%w: roles has type %T", ErrInvalidClaims, v)
	}
	return p, nil
}
