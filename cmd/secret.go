package cmd

import (
	"errors"

	"github.com/google/uuid"
	"github.com/zalando/go-keyring"
)

const (
	keyringService = "keypool"
	keyringUser    = "rpc-secret"
)

var (
	keyringSet = keyring.Set
	keyringGet = keyring.Get
	newSecret  = uuid.NewString
)

// resolveSecret picks the RPC bearer token. An explicit secret wins. With
// useKeyring the secret stored in the OS keyring is reused, and a generated
// one is stored there for clients to read.
func resolveSecret(explicit string, useKeyring bool) (secret string, generated bool, err error) {
	if explicit != "" {
		return explicit, false, nil
	}
	if useKeyring {
		s, err := keyringGet(keyringService, keyringUser)
		if err == nil && s != "" {
			return s, false, nil
		}
		if err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return "", false, err
		}
	}
	secret = newSecret()
	if useKeyring {
		if err := keyringSet(keyringService, keyringUser, secret); err != nil {
			return "", false, err
		}
	}
	return secret, true, nil
}
