// Package auth holds the static user table and authenticates connecting clients.
//
// Passwords are compared in plaintext; the protocol carries them unencrypted
// and this package does not pretend otherwise.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
)

// MaxCredentialLength is the width of the username and password fields on the
// wire, including the terminating zero byte.
const MaxCredentialLength = 32

// ErrAuthFailed is returned for an unknown user or a wrong password.
var ErrAuthFailed = errors.New("authentication failed")

// Group is a permission level. Groups are ordered: a higher group may perform
// everything a lower one may.
type Group uint8

const (
	GroupGuest Group = iota
	GroupConfidential
)

func (g Group) String() string {
	switch g {
	case GroupGuest:
		return "guest"
	case GroupConfidential:
		return "confidential"
	default:
		return fmt.Sprintf("Group(%d)", uint8(g))
	}
}

// ParseGroup maps a configuration name to a Group.
func ParseGroup(s string) (Group, error) {
	switch strings.ToLower(s) {
	case "guest":
		return GroupGuest, nil
	case "confidential":
		return GroupConfidential, nil
	default:
		return 0, fmt.Errorf("unknown group %q", s)
	}
}

// AtLeast reports whether g is at or above required.
func (g Group) AtLeast(required Group) bool {
	return g >= required
}

// User is an immutable account entry.
type User struct {
	Name     string
	Password string
	Group    Group
}

// Table is the process-wide user list. It is never modified after New, so
// lookups need no locking and returned *User values live as long as the table.
type Table struct {
	users []User
}

// New builds a table, rejecting empty, duplicate or over-long names and passwords.
func New(users []User) (*Table, error) {
	seen := make(map[string]bool, len(users))
	table := &Table{users: make([]User, 0, len(users))}

	for i, u := range users {
		if u.Name == "" {
			return nil, fmt.Errorf("users[%d]: empty name", i)
		}
		if len(u.Name) >= MaxCredentialLength {
			return nil, fmt.Errorf("users[%d]: name longer than %d bytes", i, MaxCredentialLength-1)
		}
		if len(u.Password) >= MaxCredentialLength {
			return nil, fmt.Errorf("users[%d]: password longer than %d bytes", i, MaxCredentialLength-1)
		}
		if seen[u.Name] {
			return nil, fmt.Errorf("users[%d]: duplicate name %q", i, u.Name)
		}
		seen[u.Name] = true
		table.users = append(table.users, u)
	}

	return table, nil
}

// DefaultUsers is the built-in account list.
func DefaultUsers() []User {
	return []User{
		{Name: "user1", Password: "pass1", Group: GroupConfidential},
		{Name: "user2", Password: "pass2", Group: GroupGuest},
		{Name: "user3", Password: "pass3", Group: GroupConfidential},
	}
}

// Authenticate scans the table for name. The first name match decides the
// outcome: a wrong password fails immediately.
func (t *Table) Authenticate(name, password string) (*User, error) {
	for i := range t.users {
		u := &t.users[i]
		if u.Name != name {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(u.Password), []byte(password)) == 1 {
			return u, nil
		}
		return nil, ErrAuthFailed
	}
	return nil, ErrAuthFailed
}

// Len returns the number of accounts.
func (t *Table) Len() int {
	return len(t.users)
}
