// Package auth supplies bearer credentials for upstream agent calls.
package auth

import (
	"context"
)

// TokenSource yields a bearer token for one upstream call. It is invoked once
// per turn; an empty token with a nil error means "call unauthenticated".
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc adapts a function to a TokenSource.
type TokenFunc func(ctx context.Context) (string, error)

// Token implements TokenSource.
func (f TokenFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// StaticTokenSource always returns the same service token.
type StaticTokenSource struct {
	token string
}

// NewStaticTokenSource creates a TokenSource around a fixed token, which may
// be empty.
func NewStaticTokenSource(token string) *StaticTokenSource {
	return &StaticTokenSource{token: token}
}

// Token implements TokenSource.
func (s *StaticTokenSource) Token(ctx context.Context) (string, error) {
	return s.token, nil
}

type bearerTokenKey struct{}

// WithBearerToken stashes the caller's raw bearer token in the context so it
// survives into the turn context after the initiating request returns.
func WithBearerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, bearerTokenKey{}, token)
}

// BearerToken returns the stashed bearer token, or empty if none.
func BearerToken(ctx context.Context) string {
	if v := ctx.Value(bearerTokenKey{}); v != nil {
		return v.(string)
	}
	return ""
}

// ForwardingTokenSource forwards the bearer token of the user who started the
// turn, falling back to a configured service token.
type ForwardingTokenSource struct {
	fallback string
}

// NewForwardingTokenSource creates a forwarding source with an optional
// fallback service token.
func NewForwardingTokenSource(fallback string) *ForwardingTokenSource {
	return &ForwardingTokenSource{fallback: fallback}
}

// Token implements TokenSource.
func (s *ForwardingTokenSource) Token(ctx context.Context) (string, error) {
	if tok := BearerToken(ctx); tok != "" {
		return tok, nil
	}
	return s.fallback, nil
}
