package permission

import (
	"errors"
	"sync"
)

// Registry is the catalogue of permission names the deployment recognises.
// Raw permission strings are normalised against it before they reach a Subject.
type Registry struct {
	mu     sync.RWMutex
	known  map[Permission]struct{}
	frozen bool
}

// NewRegistry creates an empty permission [Registry].
func NewRegistry() *Registry {
	return &Registry{
		known: make(map[Permission]struct{}),
	}
}

// Register adds a permission name. Names are normalised before storage.
// Must be called before [Registry.Freeze].
func (r *Registry) Register(name string) (Permission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return "", errors.New("registry frozen")
	}

	p := NormalizePermission(name)
	if p == "" {
		return "", errors.New("permission name cannot be empty")
	}

	if _, exists := r.known[p]; exists {
		return "", errors.New("permission already registered")
	}

	r.known[p] = struct{}{}
	return p, nil
}

// Known reports whether the normalised form of name is registered.
func (r *Registry) Known(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.known[NormalizePermission(name)]
	return ok
}

// Normalize converts raw permission strings into a Set. Unregistered names are
// dropped and returned separately so the caller can log them.
func (r *Registry) Normalize(raw []string) (Set, []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := make(Set, len(raw))
	var unknown []string
	for _, name := range raw {
		p := NormalizePermission(name)
		if p == "" {
			continue
		}
		if _, ok := r.known[p]; !ok {
			unknown = append(unknown, name)
			continue
		}
		set[p] = struct{}{}
	}
	return set, unknown
}

// Freeze prevents further registrations. Must be called before the
// registry is used for normalisation.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Count returns the number of registered permissions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.known)
}
