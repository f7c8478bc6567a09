package domain

import (
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Standard role names. The administrator role is the protected one.
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
	RoleCitizen  = "citizen"
)

// Role is a named permission group. A protected role can be neither renamed nor deleted.
type Role struct {
	ID        int64
	Name      string
	Protected bool
	Active    bool
	DeletedAt *time.Time
	CreatedAt time.Time
}

// Membership links an account to a role. At most one per (account, role) pair.
type Membership struct {
	AccountID int64
	RoleID    int64
	CreatedAt time.Time
}

// ErrInvalidRoleRef is returned by ParseRoleRef for an empty reference.
var ErrInvalidRoleRef = errors.New("role reference is required")

// RoleRef identifies a role either by numeric id or by name.
type RoleRef struct {
	id   int64
	name string
}

// RoleByID returns a reference to the role with id.
func RoleByID(id int64) RoleRef { return RoleRef{id: id} }

// RoleByName returns a reference to the role named name.
func RoleByName(name string) RoleRef { return RoleRef{name: strings.TrimSpace(name)} }

// ParseRoleRef reads a positive integer as an id and anything else as a name.
func ParseRoleRef(s string) (RoleRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return RoleRef{}, ErrInvalidRoleRef
	}
	if id, err := strconv.ParseInt(s, 10, 64); err == nil && id > 0 {
		return RoleByID(id), nil
	}
	return RoleByName(s), nil
}

// ID returns the referenced id and true when the reference is by id.
func (r RoleRef) ID() (int64, bool) { return r.id, r.id > 0 }

// Name returns the referenced name and true when the reference is by name.
func (r RoleRef) Name() (string, bool) { return r.name, r.id == 0 && r.name != "" }

func (r RoleRef) String() string {
	if r.id > 0 {
		return strconv.FormatInt(r.id, 10)
	}
	return r.name
}

// PrimaryRole picks the account's primary role label from its role names:
// admin, then operator, then the first other name alphabetically, else citizen.
func PrimaryRole(names []string) string {
	var others []string
	hasOperator := false
	for _, n := range names {
		switch n {
		case RoleAdmin:
			return RoleAdmin
		case RoleOperator:
			hasOperator = true
		case RoleCitizen:
		default:
			others = append(others, n)
		}
	}
	if hasOperator {
		return RoleOperator
	}
	if len(others) > 0 {
		sort.Strings(others)
		return others[0]
	}
	return RoleCitizen
}
