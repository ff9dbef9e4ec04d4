// Package identity authenticates operators against a directory and maps
// their group memberships onto application roles.
package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"simrelease/pkg/platform/sentinel"
)

var (
	// ErrInvalidCredentials is returned when the directory rejects the bind.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnavailable is returned when the directory cannot be queried.
	ErrUnavailable = fmt.Errorf("directory: %w", sentinel.ErrUnavailable)
)

// Account is an authenticated directory user with the common names of every
// group it belongs to, directly or through one parent group.
type Account struct {
	Username string
	Groups   []string
}

//go:generate mockgen -source=identity.go -destination=mocks/mocks.go -package=mocks Directory

// Directory verifies credentials and reports group membership.
type Directory interface {
	Authenticate(ctx context.Context, username, password string) (*Account, error)
}

// RoleMapping binds a directory group to an application role.
type RoleMapping struct {
	Group string
	Role  string
}

// Roles is an ordered group to role table; the first matching row wins.
type Roles []RoleMapping

// Resolve returns the role for groups, or "" when no row matches.
func (r Roles) Resolve(groups []string) string {
	for _, m := range r {
		for _, g := range groups {
			if strings.EqualFold(g, m.Group) {
				return m.Role
			}
		}
	}
	return ""
}

// NormalizeUsername lower-cases and trims a login name.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

var commonName = regexp.MustCompile(`(?i)CN=([^,]+)`)

// CommonNames extracts the first CN component of each distinguished name,
// dropping duplicates and names without one.
func CommonNames(dns []string) []string {
	seen := make(map[string]struct{}, len(dns))
	out := make([]string, 0, len(dns))
	for _, dn := range dns {
		m := commonName.FindStringSubmatch(dn)
		if m == nil {
			continue
		}
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		out = append(out, m[1])
	}
	return out
}
