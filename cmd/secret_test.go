package cmd

import (
	"errors"
	"testing"

	"github.com/zalando/go-keyring"
)

func stubKeyring(t *testing.T, store map[string]string, getErr error) {
	t.Helper()
	origSet, origGet, origNew := keyringSet, keyringGet, newSecret
	t.Cleanup(func() {
		keyringSet, keyringGet, newSecret = origSet, origGet, origNew
	})
	keyringGet = func(service, user string) (string, error) {
		if getErr != nil {
			return "", getErr
		}
		v, ok := store[service+"/"+user]
		if !ok {
			return "", keyring.ErrNotFound
		}
		return v, nil
	}
	keyringSet = func(service, user, password string) error {
		store[service+"/"+user] = password
		return nil
	}
	newSecret = func() string { return "generated" }
}

func TestResolveSecret_Explicit(t *testing.T) {
	stubKeyring(t, map[string]string{}, nil)
	s, gen, err := resolveSecret("given", true)
	if err != nil || s != "given" || gen {
		t.Fatalf("unexpected result %q %v %v", s, gen, err)
	}
}

func TestResolveSecret_GeneratedWithoutKeyring(t *testing.T) {
	store := map[string]string{}
	stubKeyring(t, store, nil)
	s, gen, err := resolveSecret("", false)
	if err != nil || s != "generated" || !gen {
		t.Fatalf("unexpected result %q %v %v", s, gen, err)
	}
	if len(store) != 0 {
		t.Fatalf("expected keyring untouched, got %v", store)
	}
}

func TestResolveSecret_KeyringStoresThenReuses(t *testing.T) {
	store := map[string]string{}
	stubKeyring(t, store, nil)
	s, gen, err := resolveSecret("", true)
	if err != nil || s != "generated" || !gen {
		t.Fatalf("unexpected result %q %v %v", s, gen, err)
	}
	if store["keypool/rpc-secret"] != "generated" {
		t.Fatalf("expected secret stored, got %v", store)
	}
	newSecret = func() string { return "other" }
	s, gen, err = resolveSecret("", true)
	if err != nil || s != "generated" || gen {
		t.Fatalf("expected stored secret reused, got %q %v %v", s, gen, err)
	}
}

func TestResolveSecret_KeyringError(t *testing.T) {
	boom := errors.New("no keyring daemon")
	stubKeyring(t, map[string]string{}, boom)
	if _, _, err := resolveSecret("", true); !errors.Is(err, boom) {
		t.Fatalf("expected keyring error, got %v", err)
	}
}
