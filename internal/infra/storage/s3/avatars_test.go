package s3

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainuser "socialnet/internal/domain/user"
	"socialnet/internal/infra/storage/memory"
)

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient("", false, "k", "s", "bucket", "", nil)
	require.Error(t, err)

	_, err = NewClient("localhost:9000", false, "k", "s", " ", "", nil)
	require.Error(t, err)
}

func TestObjectURL(t *testing.T) {
	c, err := NewClient("http://minio:9000", false, "k", "s", "avatars", "http://localhost:9000/", nil)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000/avatars/u1/pic.png", c.ObjectURL("/u1/pic.png"))

	bare, err := NewClient("minio:9000", true, "k", "s", "avatars", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://minio:9000/avatars/a.png", bare.ObjectURL("a.png"))
}

func TestAvatarDirectoryResolvesKeys(t *testing.T) {
	c, err := NewClient("http://minio:9000", false, "k", "s", "avatars", "http://cdn.local", nil)
	require.NoError(t, err)
	users := memory.NewUserDirectory(
		domainuser.Profile{ID: "u1", Name: "Ann", AvatarRef: "u1/pic.png"},
		domainuser.Profile{ID: "u2", Name: "Bob", AvatarRef: "https://img.example.com/b.png"},
		domainuser.Profile{ID: "u3", Name: "Cid"},
	)
	dir := AvatarDirectory{Next: users, Objects: c}
	ctx := context.Background()

	p, err := dir.ResolveDisplay(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "http://cdn.local/avatars/u1/pic.png", p.AvatarRef)

	p, err = dir.ResolveDisplay(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, "https://img.example.com/b.png", p.AvatarRef)

	p, err = dir.ResolveDisplay(ctx, "u3")
	require.NoError(t, err)
	assert.Empty(t, p.AvatarRef)

	_, err = dir.ResolveDisplay(ctx, "missing")
	assert.ErrorIs(t, err, domainuser.ErrNotFound)
}
