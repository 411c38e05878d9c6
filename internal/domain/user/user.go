package user

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("user: not found")

type ID string

// Profile is the display identity used to decorate chat responses.
type Profile struct {
	ID        ID
	Name      string
	AvatarRef string
}

// Directory resolves display attributes for a user id.
type Directory interface {
	ResolveDisplay(ctx context.Context, id ID) (Profile, error)
}
