package permission

import (
	"errors"
	"sync"
)

// RoleManager holds the default permission grants attached to each role.
//
// RoleManager instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RoleManager struct {
	registry *Registry

	mu     sync.RWMutex
	grants map[Role]Set
	frozen bool
}

// NewRoleManager returns a RoleManager validating grants against registry.
func NewRoleManager(registry *Registry) *RoleManager {
	return &RoleManager{
		registry: registry,
		grants:   make(map[Role]Set),
	}
}

// RegisterRole attaches permissionNames to role. Every name must already be
// present in the registry.
func (rm *RoleManager) RegisterRole(role Role, permissionNames []string) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.frozen {
		return errors.New("role manager frozen")
	}

	if !role.Valid() {
		return ErrUnknownRole
	}

	if _, exists := rm.grants[role]; exists {
		return errors.New("role already registered")
	}

	set := make(Set, len(permissionNames))
	for _, name := range permissionNames {
		if !rm.registry.Known(name) {
			return errors.New("permission not registered: " + name)
		}
		set[NormalizePermission(name)] = struct{}{}
	}

	rm.grants[role] = set
	return nil
}

/*
====================================
GET GRANTS FOR ROLE
*/

// Grants returns the default permissions of role, or an empty set.
func (rm *RoleManager) Grants(role Role) Set {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	if set, ok := rm.grants[role]; ok {
		return set
	}
	return Set{}
}

/*
====================================
FREEZE
*/

// Freeze prevents further registrations.
func (rm *RoleManager) Freeze() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.frozen = true
}

// Count returns the number of roles with registered grants.
func (rm *RoleManager) Count() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.grants)
}
