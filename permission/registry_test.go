package permission

import "testing"

func newTestRegistry(t *testing.T, names ...string) *Registry {
	t.Helper()
	r := NewRegistry()
	for _, n := range names {
		if _, err := r.Register(n); err != nil {
			t.Fatalf("register %q: %v", n, err)
		}
	}
	return r
}

func TestRegistryNormalizeDropsUnknown(t *testing.T) {
	r := newTestRegistry(t, "project:create", "project:publish")
	r.Freeze()

	set, unknown := r.Normalize([]string{" Project:Create ", "admin:nuke", "", "project:publish"})
	if !set.Has("project:create") || !set.Has("project:publish") {
		t.Fatalf("expected both known permissions, got %v", set.Slice())
	}
	if len(set) != 2 {
		t.Fatalf("expected 2 permissions, got %d", len(set))
	}
	if len(unknown) != 1 || unknown[0] != "admin:nuke" {
		t.Fatalf("expected admin:nuke reported unknown, got %v", unknown)
	}
}

func TestRegistryRejectsDuplicatesAndFrozen(t *testing.T) {
	r := newTestRegistry(t, "project:create")
	if _, err := r.Register("PROJECT:CREATE"); err == nil {
		t.Fatal("expected duplicate registration to fail after normalisation")
	}
	if _, err := r.Register("  "); err == nil {
		t.Fatal("expected empty name to fail")
	}
	r.Freeze()
	if _, err := r.Register("project:delete"); err == nil {
		t.Fatal("expected frozen registry to reject registration")
	}
	if r.Count() != 1 {
		t.Fatalf("expected count 1, got %d", r.Count())
	}
}

func TestRoleManagerGrants(t *testing.T) {
	r := newTestRegistry(t, "project:create", "pledge:create")
	rm := NewRoleManager(r)

	if err := rm.RegisterRole(RoleCreator, []string{"project:create"}); err != nil {
		t.Fatalf("register creator: %v", err)
	}
	if err := rm.RegisterRole(RoleCreator, nil); err == nil {
		t.Fatal("expected duplicate role registration to fail")
	}
	if err := rm.RegisterRole(RoleParticipant, []string{"missing:perm"}); err == nil {
		t.Fatal("expected unregistered permission to fail")
	}
	if err := rm.RegisterRole(RoleUnknown, nil); err != ErrUnknownRole {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
	rm.Freeze()
	if err := rm.RegisterRole(RoleAdmin, nil); err == nil {
		t.Fatal("expected frozen role manager to reject registration")
	}

	if !rm.Grants(RoleCreator).Has("project:create") {
		t.Fatal("creator should hold project:create")
	}
	if len(rm.Grants(RoleParticipant)) != 0 {
		t.Fatal("participant has no grants registered")
	}
}

func TestSetUnion(t *testing.T) {
	a := NewSet("a", "b")
	b := NewSet("b", "c", "")
	u := a.Union(b)
	got := u.Slice()
	if len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Fatalf("unexpected union %v", got)
	}
	if len(a) != 2 {
		t.Fatal("union must not mutate receiver")
	}
}
