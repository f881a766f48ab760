package keyring

import (
	"errors"
	"testing"

	gokeyring "github.com/zalando/go-keyring"
)

func TestSetAndGetConnectionString(t *testing.T) {
	gokeyring.MockInit()

	want := "postgres://sam@localhost:5432/habits?sslmode=disable"
	if err := SetConnectionString("  " + want + "\n"); err != nil {
		t.Fatalf("SetConnectionString() failed: %v", err)
	}

	got, err := GetConnectionString()
	if err != nil {
		t.Fatalf("GetConnectionString() failed: %v", err)
	}
	if got != want {
		t.Errorf("GetConnectionString() = %q, want %q", got, want)
	}
}

func TestSetConnectionStringEmpty(t *testing.T) {
	gokeyring.MockInit()

	if err := SetConnectionString("   "); err == nil {
		t.Error("SetConnectionString with blank input should return an error")
	}
}

func TestGetConnectionStringNotFound(t *testing.T) {
	gokeyring.MockInit()
	_ = DeleteConnectionString()

	_, err := GetConnectionString()
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetConnectionString() error = %v, want %v", err, ErrNotFound)
	}
}

func TestDeleteConnectionString(t *testing.T) {
	gokeyring.MockInit()

	if err := SetConnectionString("postgres://sam@localhost/habits"); err != nil {
		t.Fatalf("SetConnectionString() failed: %v", err)
	}
	if err := DeleteConnectionString(); err != nil {
		t.Fatalf("DeleteConnectionString() failed: %v", err)
	}
	if err := DeleteConnectionString(); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteConnectionString() error = %v, want %v", err, ErrNotFound)
	}
}

func TestUnavailableKeyring(t *testing.T) {
	gokeyring.MockInitWithError(errors.New("no dbus session"))
	defer gokeyring.MockInit()

	_, err := GetConnectionString()
	if !errors.Is(err, ErrKeyringUnavailable) {
		t.Errorf("GetConnectionString() error = %v, want %v", err, ErrKeyringUnavailable)
	}
	if IsAvailable() {
		t.Error("IsAvailable() = true with a failing keyring")
	}
}

func TestResolve(t *testing.T) {
	gokeyring.MockInit()
	_ = DeleteConnectionString()

	path := "/tmp/habits.db"
	if got, err := Resolve(path); err != nil || got != path {
		t.Errorf("Resolve(%q) = %q, %v; want passthrough", path, got, err)
	}

	if _, err := Resolve("keyring"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve(keyring) with empty keyring error = %v, want %v", err, ErrNotFound)
	}

	want := "postgres://sam@db.internal/habits"
	if err := SetConnectionString(want); err != nil {
		t.Fatal(err)
	}
	if got, err := Resolve("KEYRING"); err != nil || got != want {
		t.Errorf("Resolve(KEYRING) = %q, %v; want %q", got, err, want)
	}
}
