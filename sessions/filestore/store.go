// Package filestore keeps the session record encrypted at rest in a single
// file, standing in for the device's secure storage. The sealing key is
// derived from a random device key generated on first use.
package filestore

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"

	"github.com/fyd-app/go-fyd-client/sessions"
)

const (
	recordKey   = "user_data"
	keyFileName = "device_key"
	saltLength  = 16
)

var _ sessions.Store = (*Store)(nil)

// Store is a sessions.Store backed by a single encrypted file under dir.
type Store struct {
	dir       string
	deviceKey []byte
}

// New prepares the storage directory and loads (or creates) the device key.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrap(sessions.ErrStorageUnavailable, err.Error())
	}
	key, err := loadOrCreateDeviceKey(filepath.Join(dir, keyFileName))
	if err != nil {
		return nil, err
	}
	return &Store{dir: dir, deviceKey: key}, nil
}

func (s *Store) Get(ctx context.Context) (*sessions.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(sessions.ErrStorageUnavailable, err.Error())
	}

	sealed, err := os.ReadFile(s.recordPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(sessions.ErrStorageUnavailable, err.Error())
	}

	plain, err := s.open(sealed)
	if err != nil {
		return nil, err
	}

	var record sessions.Record
	if err := json.Unmarshal(plain, &record); err != nil {
		return nil, errors.Wrap(sessions.ErrStorageUnavailable, err.Error())
	}
	return &record, nil
}

// Put seals the record and replaces the stored file via rename, so a
// concurrent Get observes either the previous record or the new one, never a
// torn value.
func (s *Store) Put(ctx context.Context, record *sessions.Record) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(sessions.ErrStorageUnavailable, err.Error())
	}

	plain, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(sessions.ErrStorageUnavailable, err.Error())
	}

	sealed, err := s.seal(plain)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, recordKey+"-*")
	if err != nil {
		return errors.Wrap(sessions.ErrStorageUnavailable, err.Error())
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(sealed); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(sessions.ErrStorageUnavailable, err.Error())
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(sessions.ErrStorageUnavailable, err.Error())
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(sessions.ErrStorageUnavailable, err.Error())
	}
	if err := os.Rename(tmpName, s.recordPath()); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(sessions.ErrStorageUnavailable, err.Error())
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(sessions.ErrStorageUnavailable, err.Error())
	}
	if err := os.Remove(s.recordPath()); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(sessions.ErrStorageUnavailable, err.Error())
	}
	return nil
}

func (s *Store) recordPath() string {
	return filepath.Join(s.dir, recordKey)
}

// seal produces salt || nonce || ciphertext.
func (s *Store) seal(plain []byte) ([]byte, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, errors.Wrap(sessions.ErrStorageUnavailable, err.Error())
	}

	aead, err := s.aead(salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, errors.Wrap(sessions.ErrStorageUnavailable, err.Error())
	}

	out := make([]byte, 0, saltLength+len(nonce)+len(plain)+aead.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plain, nil), nil
}

func (s *Store) open(sealed []byte) ([]byte, error) {
	if len(sealed) < saltLength {
		return nil, errors.Wrap(sessions.ErrStorageUnavailable, "stored record truncated")
	}
	salt := sealed[:saltLength]

	aead, err := s.aead(salt)
	if err != nil {
		return nil, err
	}

	rest := sealed[saltLength:]
	if len(rest) < aead.NonceSize() {
		return nil, errors.Wrap(sessions.ErrStorageUnavailable, "stored record truncated")
	}
	nonce, ciphertext := rest[:aead.NonceSize()], rest[aead.NonceSize():]

	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.Wrap(sessions.ErrStorageUnavailable, err.Error())
	}
	return plain, nil
}

func (s *Store) aead(salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key(s.deviceKey, salt, 1<<15, 8, 1, chacha20poly1305.KeySize)
	if err != nil {
		return nil, errors.Wrap(sessions.ErrStorageUnavailable, err.Error())
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errors.Wrap(sessions.ErrStorageUnavailable, err.Error())
	}
	return aead, nil
}

func loadOrCreateDeviceKey(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	if err == nil {
		// regenerating here would orphan every record sealed with the old key
		if len(key) != chacha20poly1305.KeySize {
			return nil, errors.Wrap(sessions.ErrStorageUnavailable, "device key file malformed")
		}
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, errors.Wrap(sessions.ErrStorageUnavailable, err.Error())
	}

	key = make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, errors.Wrap(sessions.ErrStorageUnavailable, err.Error())
	}
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return nil, errors.Wrap(sessions.ErrStorageUnavailable, err.Error())
	}
	return key, nil
}
