package credentials

import (
	"errors"
	"testing"

	"github.com/zalando/go-keyring"
)

// TestKeyringRoundTrip tests Set, Get and Delete against the in-memory keyring
func TestKeyringRoundTrip(t *testing.T) {
	keyring.MockInit()

	if !IsAvailable() {
		t.Fatal("mock keyring should be available")
	}
	if err := Set("clinic.example.org", "secret-key"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err := Get("clinic.example.org")
	if err != nil || got != "secret-key" {
		t.Fatalf("Get = %q, %v", got, err)
	}
	if err := Delete("clinic.example.org"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := Get("clinic.example.org"); !errors.Is(err, ErrNotInKeyring) {
		t.Errorf("Get after delete = %v, want ErrNotInKeyring", err)
	}
	if err := Delete("clinic.example.org"); !errors.Is(err, ErrNotInKeyring) {
		t.Errorf("Delete of missing = %v", err)
	}
}

func TestKeyringValidation(t *testing.T) {
	keyring.MockInit()

	if err := Set("", "k"); err == nil {
		t.Error("Set with empty host should fail")
	}
	if err := Set("h", ""); err == nil {
		t.Error("Set with empty key should fail")
	}
	if _, err := Get(""); err == nil {
		t.Error("Get with empty host should fail")
	}
	if err := Delete(""); err == nil {
		t.Error("Delete with empty host should fail")
	}
}

// TestResolvePriority tests keyring > env > config
func TestResolvePriority(t *testing.T) {
	keyring.MockInit()
	const host = "clinic.example.org"

	r := NewResolver()

	t.Setenv(EnvAccessKey, "")
	if _, err := r.Resolve(host, ""); err == nil {
		t.Fatal("expected not-found error with no sources")
	}

	creds, err := r.Resolve(host, "config-key")
	if err != nil || creds.Source != SourceConfig || creds.AccessKey != "config-key" {
		t.Fatalf("config only: %+v, %v", creds, err)
	}

	t.Setenv(EnvAccessKey, "env-key")
	creds, err = r.Resolve(host, "config-key")
	if err != nil || creds.Source != SourceEnv || creds.AccessKey != "env-key" {
		t.Fatalf("env over config: %+v, %v", creds, err)
	}

	if err := Set(host, "keyring-key"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	creds, err = r.Resolve(host, "config-key")
	if err != nil || creds.Source != SourceKeyring || creds.AccessKey != "keyring-key" {
		t.Fatalf("keyring over env: %+v, %v", creds, err)
	}

	// no host skips the keyring
	creds, err = r.Resolve("", "config-key")
	if err != nil || creds.Source != SourceEnv {
		t.Fatalf("empty host: %+v, %v", creds, err)
	}
}

func TestResolveKeyringUnavailable(t *testing.T) {
	t.Setenv(EnvAccessKey, "")
	r := &Resolver{
		keyringLookup: func(string) (string, error) { return "", errors.New("dbus down") },
		available:     func() bool { return true },
	}
	creds, err := r.Resolve("clinic.example.org", "config-key")
	if err != nil || creds.Source != SourceConfig {
		t.Fatalf("keyring error should fall through: %+v, %v", creds, err)
	}

	r.available = func() bool { return false }
	creds, err = r.Resolve("clinic.example.org", "config-key")
	if err != nil || creds.Source != SourceConfig {
		t.Fatalf("unavailable keyring: %+v, %v", creds, err)
	}
}
