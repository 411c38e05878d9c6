package memory

import (
	"context"
	"strings"
	"sync"

	domainuser "socialnet/internal/domain/user"
)

// UserDirectory serves display profiles from memory. Not suitable for production.
type UserDirectory struct {
	mu   sync.RWMutex
	byID map[domainuser.ID]domainuser.Profile
}

func NewUserDirectory(profiles ...domainuser.Profile) *UserDirectory {
	d := &UserDirectory{byID: make(map[domainuser.ID]domainuser.Profile, len(profiles))}
	for _, p := range profiles {
		d.Put(p)
	}
	return d
}

// Put stores or replaces a profile.
func (d *UserDirectory) Put(p domainuser.Profile) {
	id := domainuser.ID(strings.TrimSpace(string(p.ID)))
	if id == "" {
		return
	}
	p.ID = id
	d.mu.Lock()
	d.byID[id] = p
	d.mu.Unlock()
}

func (d *UserDirectory) ResolveDisplay(ctx context.Context, id domainuser.ID) (domainuser.Profile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.byID[domainuser.ID(strings.TrimSpace(string(id)))]
	if !ok {
		return domainuser.Profile{}, domainuser.ErrNotFound
	}
	return p, nil
}

var _ domainuser.Directory = (*UserDirectory)(nil)
