// Package users is the engine's only view of the identity service.
package users

import "context"

// Directory answers whether an id belongs to a known, active user.
type Directory interface {
	IsActiveUser(ctx context.Context, userID int64) (bool, error)
}

// DirectoryFunc adapts a function to Directory.
type DirectoryFunc func(ctx context.Context, userID int64) (bool, error)

func (f DirectoryFunc) IsActiveUser(ctx context.Context, userID int64) (bool, error) {
	return f(ctx, userID)
}
