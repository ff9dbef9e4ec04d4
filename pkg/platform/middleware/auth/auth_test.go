package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"simrelease/pkg/requestcontext"
)

type revokedSet map[string]bool

func (r revokedSet) IsRevoked(_ context.Context, jti string) (bool, error) {
	if jti == "boom" {
		return false, errors.New("redis down")
	}
	return r[jti], nil
}

var validator = TokenValidatorFunc(func(token string) (*Claims, error) {
	switch token {
	case "good":
		return &Claims{Username: "jdoe", Role: "crm_it_team", TokenID: "jti-1"}, nil
	case "revoked":
		return &Claims{Username: "jdoe", Role: "crm_it_team", TokenID: "jti-2"}, nil
	case "no-jti":
		return &Claims{Username: "jdoe", Role: "crm_it_team"}, nil
	case "check-fails":
		return &Claims{Username: "jdoe", TokenID: "boom"}, nil
	}
	return nil, errors.New("invalid token")
})

func TestRequireAuth(t *testing.T) {
	var seen struct{ actor, role, jti string }
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.actor = requestcontext.Actor(r.Context())
		seen.role = requestcontext.Role(r.Context())
		seen.jti = requestcontext.TokenID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	mw := RequireAuth(validator, revokedSet{"jti-2": true}, slog.New(slog.NewTextHandler(io.Discard, nil)))(next)

	tests := []struct {
		name   string
		header string
		status int
		desc   string
	}{
		{"valid token", "Bearer good", http.StatusNoContent, ""},
		{"missing header", "", http.StatusUnauthorized, "Missing or invalid Authorization header"},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, "Missing or invalid Authorization header"},
		{"invalid token", "Bearer forged", http.StatusUnauthorized, "Invalid or expired token"},
		{"revoked token", "Bearer revoked", http.StatusUnauthorized, "Token has been revoked"},
		{"token without id", "Bearer no-jti", http.StatusUnauthorized, "Invalid or expired token"},
		{"revocation check fails", "Bearer check-fails", http.StatusInternalServerError, "Failed to validate token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/sim/creation-liberation", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()

			mw.ServeHTTP(rr, req)

			assert.Equal(t, tt.status, rr.Code)
			if tt.desc != "" {
				assert.Contains(t, rr.Body.String(), tt.desc)
			}
		})
	}

	assert.Equal(t, "jdoe", seen.actor)
	assert.Equal(t, "crm_it_team", seen.role)
	assert.Equal(t, "jti-1", seen.jti)
}

func TestRequireAuth_NilRevocationChecker(t *testing.T) {
	mw := RequireAuth(validator, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer no-jti")
	rr := httptest.NewRecorder()
	mw.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}
