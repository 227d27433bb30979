package auth

import (
	"context"
	"errors"
	"testing"
)

func TestCreateAccount(t *testing.T) {
	creds := newFakeCredentialStore()
	directory, err := NewDirectory(creds)
	if err != nil {
		t.Fatalf("NewDirectory: %v", err)
	}
	ctx := context.Background()

	account, err := directory.CreateAccount(ctx, "editor@sunnah", "editor-secret-1", RoleManager)
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if account.ID == "" {
		t.Fatal("empty account id")
	}
	if account.Status != StatusActive {
		t.Fatalf("status = %s, want active", account.Status)
	}
	if account.PasswordHash == "editor-secret-1" {
		t.Fatal("password stored in the clear")
	}
	if match, err := VerifyPassword("editor-secret-1", account.PasswordHash); err != nil || !match {
		t.Fatalf("stored digest does not verify: match=%v err=%v", match, err)
	}

	// Login names are unique.
	if _, err := directory.CreateAccount(ctx, "editor@sunnah", "other-secret-1", RoleViewer); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("duplicate login: got %v, want ErrAlreadyExists", err)
	}
}

func TestCreateAccountValidation(t *testing.T) {
	directory, err := NewDirectory(newFakeCredentialStore())
	if err != nil {
		t.Fatalf("NewDirectory: %v", err)
	}
	ctx := context.Background()

	cases := []struct {
		name      string
		loginName string
		secret    string
		role      Role
	}{
		{"empty login", "", "long-enough-1", RoleViewer},
		{"blank login", "   ", "long-enough-1", RoleViewer},
		{"short password", "a@sunnah", "short", RoleViewer},
		{"invalid role", "a@sunnah", "long-enough-1", Role(99)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := directory.CreateAccount(ctx, tc.loginName, tc.secret, tc.role); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("got %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestChangePassword(t *testing.T) {
	owner, _ := testAccounts()
	creds := newFakeCredentialStore(owner)
	directory, err := NewDirectory(creds)
	if err != nil {
		t.Fatalf("NewDirectory: %v", err)
	}
	ctx := context.Background()

	if err := directory.ChangePassword(ctx, owner.ID, "owner-secret-1", "owner-secret-2"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	updated, err := creds.FindByID(ctx, owner.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if match, err := VerifyPassword("owner-secret-2", updated.PasswordHash); err != nil || !match {
		t.Fatalf("new password does not verify: match=%v err=%v", match, err)
	}
	if match, _ := VerifyPassword("owner-secret-1", updated.PasswordHash); match {
		t.Fatal("old password still verifies")
	}
}

func TestChangePasswordRejectsWrongCurrent(t *testing.T) {
	owner, _ := testAccounts()
	creds := newFakeCredentialStore(owner)
	directory, err := NewDirectory(creds)
	if err != nil {
		t.Fatalf("NewDirectory: %v", err)
	}
	ctx := context.Background()

	if err := directory.ChangePassword(ctx, owner.ID, "wrong-current", "owner-secret-2"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong current: got %v", err)
	}
	if err := directory.ChangePassword(ctx, owner.ID, "owner-secret-1", "short"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("short next: got %v", err)
	}
	if err := directory.ChangePassword(ctx, "acct-nobody", "whatever", "owner-secret-2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown account: got %v", err)
	}
}

func TestSetStatus(t *testing.T) {
	_, viewer := testAccounts()
	creds := newFakeCredentialStore(viewer)
	cache := newFakePermissionCache()
	directory, err := NewDirectory(creds, WithDirectoryCache(cache))
	if err != nil {
		t.Fatalf("NewDirectory: %v", err)
	}
	ctx := context.Background()

	if err := directory.SetStatus(ctx, viewer.ID, StatusDisabled); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	updated, err := creds.FindByID(ctx, viewer.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if !updated.Disabled() {
		t.Fatalf("status = %s, want disabled", updated.Status)
	}
	if len(cache.invalidatedAccounts) != 1 || cache.invalidatedAccounts[0] != viewer.ID {
		t.Fatalf("invalidatedAccounts = %v", cache.invalidatedAccounts)
	}

	// Re-enabling does not purge; there is nothing stale to remove.
	if err := directory.SetStatus(ctx, viewer.ID, StatusActive); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if len(cache.invalidatedAccounts) != 1 {
		t.Fatalf("re-enable triggered a purge: %v", cache.invalidatedAccounts)
	}

	if err := directory.SetStatus(ctx, viewer.ID, Status("archived")); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("unsupported status: got %v", err)
	}
	if err := directory.SetStatus(ctx, "acct-nobody", StatusDisabled); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown account: got %v", err)
	}
}

func TestSetStatusSurvivesCachePurgeFailure(t *testing.T) {
	_, viewer := testAccounts()
	creds := newFakeCredentialStore(viewer)
	cache := newFakePermissionCache()
	cache.fail = true
	directory, err := NewDirectory(creds, WithDirectoryCache(cache))
	if err != nil {
		t.Fatalf("NewDirectory: %v", err)
	}

	// The disable must land even when the cache is unreachable; stale
	// positives age out within the TTL and the store check denies anyway.
	if err := directory.SetStatus(context.Background(), viewer.ID, StatusDisabled); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	updated, err := creds.FindByID(context.Background(), viewer.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if !updated.Disabled() {
		t.Fatalf("status = %s, want disabled", updated.Status)
	}
}
