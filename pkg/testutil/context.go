package testutil

import (
	"net/http"

	"simrelease/pkg/requestcontext"
)

// WithActor adds the actor and role to the request context.
// This simulates what the auth middleware does for authenticated requests.
func WithActor(req *http.Request, actor, role string) *http.Request {
	return req.WithContext(requestcontext.WithActor(req.Context(), actor, role))
}

// WithClient adds the caller's network origin and client label.
func WithClient(req *http.Request, ip, label string) *http.Request {
	return req.WithContext(requestcontext.WithClientMetadata(req.Context(), ip, label))
}

// WithAuth is WithActor plus a token id, the state the auth middleware leaves
// behind for a valid bearer token.
func WithAuth(req *http.Request, actor, role, tokenID string) *http.Request {
	ctx := requestcontext.WithActor(req.Context(), actor, role)
	if tokenID != "" {
		ctx = requestcontext.WithTokenID(ctx, tokenID)
	}
	return req.WithContext(ctx)
}
