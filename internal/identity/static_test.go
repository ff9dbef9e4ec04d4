package identity

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func hash(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func TestStatic_Authenticate(t *testing.T) {
	dir := NewStatic(StaticUser{Username: "JDoe", PasswordHash: hash(t, "s3cret"), Groups: []string{"CRM IT Team"}})
	ctx := context.Background()

	t.Run("valid credentials", func(t *testing.T) {
		acc, err := dir.Authenticate(ctx, "jdoe", "s3cret")
		require.NoError(t, err)
		assert.Equal(t, &Account{Username: "jdoe", Groups: []string{"CRM IT Team"}}, acc)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := dir.Authenticate(ctx, "jdoe", "nope")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := dir.Authenticate(ctx, "ghost", "s3cret")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestLoadStatic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.yaml")
	doc := "users:\n  - username: ops\n    password_hash: " + hash(t, "pw") + "\n    groups: [\"ADM Support 1515 Group\"]\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	dir, err := LoadStatic(path)
	require.NoError(t, err)

	acc, err := dir.Authenticate(context.Background(), "OPS", "pw")
	require.NoError(t, err)
	assert.Equal(t, "support1515", defaultRoles.Resolve(acc.Groups))

	_, err = LoadStatic(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestHashPassword(t *testing.T) {
	h, err := HashPassword("pw")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(h), []byte("pw")))
}
