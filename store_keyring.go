package session

import (
	"errors"
	"strconv"

	goerrors "github.com/goliatone/go-errors"
	"github.com/zalando/go-keyring"
)

const (
	keyringTokenKey = "token"
	keyringAdminKey = "admin-flag"
)

var _ CredentialStore = &KeyringStore{}

// KeyringStore keeps the credential record in the OS keychain/credential
// manager, scoped by service name.
type KeyringStore struct {
	service string
}

func NewKeyringStore(service string) *KeyringStore {
	return &KeyringStore{service: service}
}

func (s *KeyringStore) Load() (CredentialRecord, bool, error) {
	token, err := keyring.Get(s.service, keyringTokenKey)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return CredentialRecord{}, false, nil
		}
		return CredentialRecord{}, false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load token from keyring")
	}

	rec := CredentialRecord{Token: token}

	if flag, err := keyring.Get(s.service, keyringAdminKey); err == nil {
		rec.IsAdmin, _ = strconv.ParseBool(flag)
	} else if !errors.Is(err, keyring.ErrNotFound) {
		return CredentialRecord{}, false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load admin flag from keyring")
	}

	return rec, token != "", nil
}

func (s *KeyringStore) Save(rec CredentialRecord) error {
	if err := keyring.Set(s.service, keyringTokenKey, rec.Token); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to save token to keyring")
	}
	if err := keyring.Set(s.service, keyringAdminKey, strconv.FormatBool(rec.IsAdmin)); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to save admin flag to keyring")
	}
	return nil
}

func (s *KeyringStore) Clear() error {
	for _, key := range []string{keyringTokenKey, keyringAdminKey} {
		if err := keyring.Delete(s.service, key); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to clear keyring entry")
		}
	}
	return nil
}
