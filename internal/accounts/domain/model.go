package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")
	ErrInvalidAccount  = errors.New("invalid account")
)

// Account statuses.
const (
	StatusActive        = "active"
	StatusSuspended     = "suspended"
	StatusClosed        = "closed"
	StatusUninitialized = "uninitialized"
)

// Roles, from most to least privileged. Each role includes the ones below it.
const (
	RoleAdministrator = "Administrator"
	RoleDeveloper     = "Developer"
	RoleRestcommUser  = "RestcommUser"
)

var roleRank = map[string]int{
	RoleRestcommUser:  1,
	RoleDeveloper:     2,
	RoleAdministrator: 3,
}

// Account is an API user. Sub-accounts point at their parent through ParentSid.
type Account struct {
	Sid          string    `json:"sid"`
	ParentSid    string    `json:"parentSid,omitempty"`
	FriendlyName string    `json:"friendlyName"`
	Email        string    `json:"email"`
	Status       string    `json:"status"`
	Role         string    `json:"role"`
	DateCreated  time.Time `json:"dateCreated"`
	DateUpdated  time.Time `json:"dateUpdated"`
}

// NewSid returns a fresh account sid.
func NewSid() string {
	return "AC" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Active reports whether the account may use the API.
func (a *Account) Active() bool {
	return a.Status == StatusActive
}

// HasRole reports whether the account's role includes required.
func (a *Account) HasRole(required string) bool {
	have, ok := roleRank[a.Role]
	if !ok {
		return false
	}
	return have >= roleRank[required]
}

// IsKnownRole reports whether role is one of the defined roles.
func IsKnownRole(role string) bool {
	_, ok := roleRank[role]
	return ok
}

// Validate checks the fields every stored account must carry.
func (a *Account) Validate() error {
	switch {
	case a.Sid == "":
		return errors.Join(ErrInvalidAccount, errors.New("sid is required"))
	case a.Email == "":
		return errors.Join(ErrInvalidAccount, errors.New("email is required"))
	case !IsKnownRole(a.Role):
		return errors.Join(ErrInvalidAccount, errors.New("unknown role "+a.Role))
	}
	return nil
}

// IsKnownStatus reports whether status is one of the defined statuses.
func IsKnownStatus(status string) bool {
	switch status {
	case StatusActive, StatusSuspended, StatusClosed, StatusUninitialized:
		return true
	}
	return false
}
