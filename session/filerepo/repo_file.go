// Package filerepo persists the session entries to a single file, encrypted
// at rest so bearer tokens are never written to disk in the clear. The
// encryption key lives in a separate 0600 key file next to the session file.
package filerepo

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/tunzadent/dentclient/session"
)

const (
	sessionFile = "session.enc"
	keyFile     = "session.key"
)

var _ session.Repo = (*FileSessionRepo)(nil)

// FileSessionRepo stores all session entries as one encrypted JSON document.
// Every write re-encrypts and replaces the whole file, which keeps the
// entries consistent as a group.
type FileSessionRepo struct {
	dir  string
	key  []byte
	lock sync.Mutex
}

// New opens (or initializes) the session store in dir, creating the
// directory and encryption key on first use.
func New(dir string) (*FileSessionRepo, error) {
	if dir == "" {
		return nil, errors.New("[filerepo.New] dir is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrap(err, "[filerepo.New] create data folder")
	}

	key, err := loadOrCreateKey(filepath.Join(dir, keyFile))
	if err != nil {
		return nil, err
	}

	return &FileSessionRepo{dir: dir, key: key}, nil
}

func loadOrCreateKey(path string) ([]byte, error) {
	if encoded, err := os.ReadFile(path); err == nil {
		key, decErr := hex.DecodeString(string(encoded))
		if decErr == nil && len(key) == chacha20poly1305.KeySize {
			return key, nil
		}
		// Unusable key file: any previously encrypted session is lost anyway,
		// so fall through and mint a fresh key.
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, errors.Wrap(err, "[filerepo] generate key")
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(key)), 0o600); err != nil {
		return nil, errors.Wrap(err, "[filerepo] write key file")
	}
	return key, nil
}

func (fr *FileSessionRepo) Get(key string) (string, error) {
	fr.lock.Lock()
	defer fr.lock.Unlock()

	values := fr.load()
	value, ok := values[key]
	if !ok {
		return "", session.ErrKeyNotFound
	}
	return value, nil
}

func (fr *FileSessionRepo) Set(key, value string) error {
	fr.lock.Lock()
	defer fr.lock.Unlock()

	values := fr.load()
	values[key] = value
	return fr.save(values)
}

func (fr *FileSessionRepo) Delete(key string) error {
	fr.lock.Lock()
	defer fr.lock.Unlock()

	values := fr.load()
	delete(values, key)
	return fr.save(values)
}

func (fr *FileSessionRepo) Clear() error {
	fr.lock.Lock()
	defer fr.lock.Unlock()

	if err := os.Remove(filepath.Join(fr.dir, sessionFile)); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "[filerepo.Clear] remove session file")
	}
	return nil
}

// load reads and decrypts the session file. A missing, truncated or
// undecryptable file yields an empty map; the Store treats the resulting
// absent identity as an anonymous start.
func (fr *FileSessionRepo) load() map[string]string {
	values := make(map[string]string)

	ciphertext, err := os.ReadFile(filepath.Join(fr.dir, sessionFile))
	if err != nil {
		return values
	}

	aead, err := chacha20poly1305.New(fr.key)
	if err != nil {
		return values
	}
	if len(ciphertext) < aead.NonceSize() {
		return values
	}

	nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return values
	}

	if err := json.Unmarshal(plaintext, &values); err != nil {
		return make(map[string]string)
	}
	return values
}

func (fr *FileSessionRepo) save(values map[string]string) error {
	plaintext, err := json.Marshal(values)
	if err != nil {
		return errors.Wrap(err, "[filerepo.save] marshal entries")
	}

	aead, err := chacha20poly1305.New(fr.key)
	if err != nil {
		return errors.Wrap(err, "[filerepo.save] init cipher")
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return errors.Wrap(err, "[filerepo.save] generate nonce")
	}

	sealed := aead.Seal(nonce, nonce, plaintext, nil)

	path := filepath.Join(fr.dir, sessionFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, sealed, 0o600); err != nil {
		return errors.Wrap(err, "[filerepo.save] write session file")
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrap(err, "[filerepo.save] replace session file")
	}
	return nil
}
