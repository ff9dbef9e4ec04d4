package identity

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// StaticUser is one entry of a static directory file.
type StaticUser struct {
	Username     string   `yaml:"username"`
	PasswordHash string   `yaml:"password_hash"`
	Groups       []string `yaml:"groups"`
}

type staticFile struct {
	Users []StaticUser `yaml:"users"`
}

// Static is a Directory held in memory, loaded from YAML in dev mode.
// Passwords are stored as bcrypt hashes.
type Static struct {
	users map[string]StaticUser
	// compared against for unknown users so both paths cost one bcrypt
	decoy []byte
}

func NewStatic(users ...StaticUser) *Static {
	s := &Static{users: make(map[string]StaticUser, len(users))}
	for _, u := range users {
		u.Username = NormalizeUsername(u.Username)
		s.users[u.Username] = u
	}
	s.decoy, _ = bcrypt.GenerateFromPassword([]byte("decoy"), bcrypt.MinCost)
	return s
}

// LoadStatic reads a static directory file.
func LoadStatic(path string) (*Static, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read static directory: %w", err)
	}
	var f staticFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse static directory %s: %w", path, err)
	}
	return NewStatic(f.Users...), nil
}

// HashPassword returns a bcrypt hash suitable for StaticUser.PasswordHash.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (s *Static) Authenticate(_ context.Context, username, password string) (*Account, error) {
	u, ok := s.users[NormalizeUsername(username)]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(s.decoy, []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &Account{Username: u.Username, Groups: append([]string(nil), u.Groups...)}, nil
}
