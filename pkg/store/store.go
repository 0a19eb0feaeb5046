// Package store is the persistence layer: player accounts and the world
// snapshot live in a bbolt database. Live session state never touches
// this package; the server consults it only for durable reads and writes.
package store

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	bbolt "go.etcd.io/bbolt"
	"golang.org/x/crypto/bcrypt"

	"github.com/emberfall-mud/emberfall/pkg/crypt"
)

// Bucket name constants.
var (
	bucketAccounts     = []byte("accounts")     // account ID -> gob Account
	bucketAccountNames = []byte("accountnames") // lower(name) -> account ID
	bucketRooms        = []byte("rooms")        // room ID -> gob roomRecord
	bucketMeta         = []byte("meta")
)

var keyWorldImported = []byte("worldimported")

// Errors returned by account operations.
var (
	ErrDuplicateName      = errors.New("store: account name already taken")
	ErrNotFound           = errors.New("store: not found")
	ErrInvalidCredentials = errors.New("store: invalid credentials")
)

// Account is a durable player account. Live connection state (current
// session, presence) is owned by the server, not stored here.
type Account struct {
	ID         string
	Name       string
	PassHash   []byte // bcrypt
	LegacyHash string // DES crypt(3) hash on imported accounts; cleared on upgrade
	LastRoom   string
	Created    time.Time
	LastLogin  time.Time
}

// Store wraps a bbolt database file.
type Store struct {
	bolt *bbolt.DB
}

// Open opens or creates a bbolt database file and ensures all buckets exist.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketAccounts, bucketAccountNames, bucketRooms, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create buckets: %w", err)
	}

	return &Store{bolt: db}, nil
}

// Close closes the underlying bbolt database.
func (s *Store) Close() error {
	if s.bolt != nil {
		return s.bolt.Close()
	}
	return nil
}

// Path returns the filesystem path of the underlying database.
func (s *Store) Path() string {
	if s.bolt != nil {
		return s.bolt.Path()
	}
	return ""
}

// nameKey is the case-insensitive index key for an account name.
func nameKey(name string) []byte {
	return []byte(strings.ToLower(strings.TrimSpace(name)))
}

// CreateAccount creates a new account with a bcrypt-hashed password.
// The uniqueness check and the insert run in one transaction, so two
// concurrent signups for the same name cannot both succeed.
func (s *Store) CreateAccount(name, password string) (*Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("store: hash password: %w", err)
	}

	acct := &Account{
		ID:       uuid.NewString(),
		Name:     name,
		PassHash: hash,
		Created:  time.Now(),
	}

	err = s.bolt.Update(func(tx *bbolt.Tx) error {
		names := tx.Bucket(bucketAccountNames)
		if names.Get(nameKey(name)) != nil {
			return ErrDuplicateName
		}
		data, err := encodeAccount(acct)
		if err != nil {
			return fmt.Errorf("store: encode account %s: %w", acct.ID, err)
		}
		if err := tx.Bucket(bucketAccounts).Put([]byte(acct.ID), data); err != nil {
			return err
		}
		return names.Put(nameKey(name), []byte(acct.ID))
	})
	if err != nil {
		return nil, err
	}
	return acct, nil
}

// ImportLegacyAccount registers an account carrying only a DES crypt(3)
// hash, as produced by a TinyMUSH database import. The hash is upgraded
// to bcrypt on the account's first successful login.
func (s *Store) ImportLegacyAccount(name, desHash, lastRoom string) (*Account, error) {
	acct := &Account{
		ID:         uuid.NewString(),
		Name:       name,
		LegacyHash: desHash,
		LastRoom:   lastRoom,
		Created:    time.Now(),
	}
	err := s.bolt.Update(func(tx *bbolt.Tx) error {
		names := tx.Bucket(bucketAccountNames)
		if names.Get(nameKey(name)) != nil {
			return ErrDuplicateName
		}
		data, err := encodeAccount(acct)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketAccounts).Put([]byte(acct.ID), data); err != nil {
			return err
		}
		return names.Put(nameKey(name), []byte(acct.ID))
	})
	if err != nil {
		return nil, err
	}
	return acct, nil
}

// VerifyCredential checks a name/password pair and returns the account on
// success. Lookup and compare failures are indistinguishable to callers:
// both return ErrInvalidCredentials. Accounts still carrying a legacy DES
// hash are verified against it and transparently rehashed with bcrypt.
func (s *Store) VerifyCredential(name, password string) (*Account, error) {
	acct, err := s.FindAccountByName(name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	upgraded := false
	switch {
	case len(acct.PassHash) > 0:
		if bcrypt.CompareHashAndPassword(acct.PassHash, []byte(password)) != nil {
			return nil, ErrInvalidCredentials
		}
	case acct.LegacyHash != "":
		if !crypt.CheckPassword(password, acct.LegacyHash) {
			return nil, ErrInvalidCredentials
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("store: rehash legacy password: %w", err)
		}
		acct.PassHash = hash
		acct.LegacyHash = ""
		upgraded = true
	default:
		return nil, ErrInvalidCredentials
	}

	acct.LastLogin = time.Now()
	if err := s.putAccount(acct); err != nil {
		// The login itself succeeded; losing the timestamp (or the hash
		// upgrade) is recoverable on a later login.
		if upgraded {
			return nil, fmt.Errorf("store: persist upgraded hash: %w", err)
		}
	}
	return acct, nil
}

// GetAccount fetches an account by ID.
func (s *Store) GetAccount(id string) (*Account, error) {
	var acct *Account
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketAccounts).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		var err error
		acct, err = decodeAccount(data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return acct, nil
}

// FindAccountByName fetches an account by name, case-insensitively.
func (s *Store) FindAccountByName(name string) (*Account, error) {
	var acct *Account
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket(bucketAccountNames).Get(nameKey(name))
		if id == nil {
			return ErrNotFound
		}
		data := tx.Bucket(bucketAccounts).Get(id)
		if data == nil {
			return ErrNotFound
		}
		var err error
		acct, err = decodeAccount(data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return acct, nil
}

// putAccount writes an account record back (ID must already exist or be new).
func (s *Store) putAccount(acct *Account) error {
	data, err := encodeAccount(acct)
	if err != nil {
		return fmt.Errorf("store: encode account %s: %w", acct.ID, err)
	}
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketAccounts).Put([]byte(acct.ID), data)
	})
}

// GetLastRoom returns the account's saved room ID, or "" if never saved.
func (s *Store) GetLastRoom(accountID string) (string, error) {
	acct, err := s.GetAccount(accountID)
	if err != nil {
		return "", err
	}
	return acct.LastRoom, nil
}

// SetRoom saves the account's current room.
func (s *Store) SetRoom(accountID, roomID string) error {
	acct, err := s.GetAccount(accountID)
	if err != nil {
		return err
	}
	acct.LastRoom = roomID
	return s.putAccount(acct)
}
