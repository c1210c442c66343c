// Package directory is a static, in-memory user directory backed by bcrypt
// hashes. It serves as both the credential verifier and the subject provider
// of the authcore binary.
package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/permission"
	"golang.org/x/crypto/bcrypt"
)

// User is one directory entry.
type User struct {
	ID   string
	Role string
	Hash []byte
}

// Directory maps lowercased identifiers to users.
type Directory struct {
	users map[string]User
	// dummy is compared against when the identifier is unknown so that both
	// paths pay the bcrypt cost.
	dummy []byte
}

// HashPassword returns a bcrypt hash of password. cost 0 selects bcrypt.DefaultCost.
func HashPassword(password string, cost int) (string, error) {
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Parse builds a Directory from comma-separated identifier:role:hash entries.
// The identifier doubles as the user id.
func Parse(entries string) (*Directory, error) {
	var users []User
	for _, entry := range strings.Split(entries, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
			return nil, fmt.Errorf("malformed user entry %q", entry)
		}
		users = append(users, User{ID: parts[0], Role: parts[1], Hash: []byte(parts[2])})
	}
	return New(users...)
}

// New validates users and returns a Directory.
func New(users ...User) (*Directory, error) {
	d := &Directory{users: make(map[string]User, len(users))}
	cost := bcrypt.DefaultCost
	for _, u := range users {
		key := strings.ToLower(strings.TrimSpace(u.ID))
		if key == "" {
			return nil, errors.New("user id must not be empty")
		}
		if _, dup := d.users[key]; dup {
			return nil, fmt.Errorf("duplicate user %q", u.ID)
		}
		if _, err := permission.ParseRole(u.Role); err != nil {
			return nil, fmt.Errorf("user %q: unknown role %q", u.ID, u.Role)
		}
		c, err := bcrypt.Cost(u.Hash)
		if err != nil {
			return nil, fmt.Errorf("user %q: %w", u.ID, err)
		}
		cost = c
		d.users[key] = u
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte("authcore-directory-dummy"), cost)
	if err != nil {
		return nil, err
	}
	d.dummy = dummy
	return d, nil
}

// Len returns the number of users.
func (d *Directory) Len() int {
	return len(d.users)
}

// VerifyCredentials implements authcore.CredentialVerifier.
func (d *Directory) VerifyCredentials(_ context.Context, identifier, secret string) (string, bool, error) {
	u, ok := d.users[strings.ToLower(strings.TrimSpace(identifier))]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(d.dummy, []byte(secret))
		return "", false, nil
	}
	if err := bcrypt.CompareHashAndPassword(u.Hash, []byte(secret)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return "", false, nil
		}
		return "", false, err
	}
	return u.ID, true, nil
}

// LoadSubject implements authcore.SubjectProvider. Permissions come from the
// engine's role grants.
func (d *Directory) LoadSubject(_ context.Context, userID string) (*authcore.RawSubject, error) {
	u, ok := d.users[strings.ToLower(strings.TrimSpace(userID))]
	if !ok {
		return nil, nil
	}
	return &authcore.RawSubject{ID: u.ID, Role: u.Role}, nil
}
