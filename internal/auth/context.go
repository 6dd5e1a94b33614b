// Package auth carries the authenticated sync account through a request context.
package auth

import "context"

type contextKey struct{}

// Account identifies the holder of a verified session token.
type Account struct {
	UserID string
	Email  string
}

func WithAccount(ctx context.Context, a Account) context.Context {
	return context.WithValue(ctx, contextKey{}, a)
}

func FromContext(ctx context.Context) (Account, bool) {
	a, ok := ctx.Value(contextKey{}).(Account)
	return a, ok
}

// UserID returns the authenticated user id, or "" when there is none.
func UserID(ctx context.Context) string {
	a, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	return a.UserID
}
