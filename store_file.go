package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/crypto/scrypt"
)

const credentialFileName = "credentials.json"

var _ CredentialStore = &FileStore{}

// FileStore persists the credential record as a JSON file under the user's
// config directory. With a secret set, the record is encrypted at rest with
// AES-GCM under an scrypt-derived key.
type FileStore struct {
	path   string
	secret []byte
}

// FileStoreOption customizes a FileStore.
type FileStoreOption func(*FileStore)

// WithFileSecret enables at-rest encryption of the credential file.
func WithFileSecret(secret []byte) FileStoreOption {
	return func(s *FileStore) {
		if len(secret) > 0 {
			s.secret = secret
		}
	}
}

// NewFileStore stores credentials under the given directory.
func NewFileStore(dir string, opts ...FileStoreOption) *FileStore {
	s := &FileStore{path: filepath.Join(dir, credentialFileName)}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// DefaultFileStore stores credentials under the OS user config dir, scoped
// by app name (e.g. ~/.config/<app>/credentials.json on Linux).
func DefaultFileStore(app string, opts ...FileStoreOption) (*FileStore, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve user config directory")
	}
	return NewFileStore(filepath.Join(base, app), opts...), nil
}

func (s *FileStore) Load() (CredentialRecord, bool, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return CredentialRecord{}, false, nil
	}
	if err != nil {
		return CredentialRecord{}, false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read credential file")
	}

	if len(s.secret) > 0 {
		data, err = s.decrypt(data)
		if err != nil {
			return CredentialRecord{}, false, err
		}
	}

	var rec CredentialRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return CredentialRecord{}, false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to parse credential file")
	}

	return rec, rec.Token != "", nil
}

func (s *FileStore) Save(rec CredentialRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to marshal credential record")
	}

	if len(s.secret) > 0 {
		if data, err = s.encrypt(data); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create credential directory")
	}

	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to write credential file")
	}

	return nil
}

func (s *FileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to remove credential file")
	}
	return nil
}

type cipherEnvelope struct {
	Salt string `json:"salt"`
	Data string `json:"data"`
}

func (s *FileStore) encrypt(plaintext []byte) ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate salt")
	}

	gcm, err := s.aead(salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate nonce")
	}

	sealed := gcm.Seal(nonce, nonce, plaintext, nil)

	return json.Marshal(cipherEnvelope{
		Salt: base64.StdEncoding.EncodeToString(salt),
		Data: base64.StdEncoding.EncodeToString(sealed),
	})
}

func (s *FileStore) decrypt(data []byte) ([]byte, error) {
	var env cipherEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to parse encrypted credential file")
	}

	salt, err := base64.StdEncoding.DecodeString(env.Salt)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to decode salt")
	}

	sealed, err := base64.StdEncoding.DecodeString(env.Data)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to decode payload")
	}

	gcm, err := s.aead(salt)
	if err != nil {
		return nil, err
	}

	if len(sealed) < gcm.NonceSize() {
		return nil, goerrors.New("encrypted credential file is truncated", goerrors.CategoryInternal)
	}

	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to decrypt credential file")
	}

	return plaintext, nil
}

func (s *FileStore) aead(salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key(s.secret, salt, 1<<15, 8, 1, 32)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to derive encryption key")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create cipher")
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create GCM")
	}

	return gcm, nil
}
