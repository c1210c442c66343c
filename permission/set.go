package permission

import (
	"sort"
	"strings"
)

// Permission is a normalized capability name such as "project:create".
type Permission string

// NormalizePermission trims whitespace and lower-cases the name.
func NormalizePermission(raw string) Permission {
	return Permission(strings.ToLower(strings.TrimSpace(raw)))
}

// Set is an immutable-by-convention set of permissions.
type Set map[Permission]struct{}

// NewSet builds a Set from already-normalized permissions. Empty names are skipped.
func NewSet(perms ...Permission) Set {
	s := make(Set, len(perms))
	for _, p := range perms {
		if p == "" {
			continue
		}
		s[p] = struct{}{}
	}
	return s
}

// Has reports whether p is a member.
func (s Set) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// HasAll reports whether every permission in required is a member.
func (s Set) HasAll(required []Permission) bool {
	for _, p := range required {
		if !s.Has(p) {
			return false
		}
	}
	return true
}

// Union returns a new set holding the members of both s and other.
func (s Set) Union(other Set) Set {
	out := make(Set, len(s)+len(other))
	for p := range s {
		out[p] = struct{}{}
	}
	for p := range other {
		out[p] = struct{}{}
	}
	return out
}

// Slice returns the members in lexical order.
func (s Set) Slice() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
