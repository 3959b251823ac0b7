// Package keystore persists key records, escrow records, legacy registry
// keys, and migration progress in a badger key-value store. All
// check-then-write sequences run inside a single badger transaction so the
// "one active key per user" and "one escrow record per key" invariants hold
// under concurrent mutation.
package keystore

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/ameerarsath/publicdocsafe-sub000/pkg/types"
)

var log *logrus.Logger

// Key-space prefixes inside badger.
const (
	userKeyPrefix   = "userkey/"    // userkey/<user_id>/<key_id>
	activePtrPrefix = "useractive/" // useractive/<user_id> -> key_id
	escrowPrefix    = "escrow/"     // escrow/<key_id>
	registryPrefix  = "registry/"   // registry/<key_id>
	migrationPrefix = "migration/"  // migration/<id>
)

type StoreConfig struct {
	Paths            []string // absolute paths; at the moment only the first path is supported
	MinimumFreeSpace int      // in GB
	Logger           *logrus.Logger
}

type Store struct {
	config   StoreConfig
	badgerDB *badger.DB
}

func NewStore(config StoreConfig) (*Store, error) {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}

	log = config.Logger

	if err := config.checkConfig(); err != nil {
		return nil, fmt.Errorf("error checking config for Store: %w", err)
	}

	opts := badger.DefaultOptions(config.Paths[0])
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("error opening badger store: %w", err)
	}

	return &Store{
		config:   config,
		badgerDB: db,
	}, nil
}

func (s *Store) Close() error {
	return s.badgerDB.Close()
}

// update wraps badger's optimistic transactions. A conflicting concurrent
// mutation surfaces as badger.ErrConflict; the losing writer is retried once
// so concurrent rotations serialize instead of producing two active keys.
func (s *Store) update(fn func(txn *badger.Txn) error) error {
	err := s.badgerDB.Update(fn)
	if err == badger.ErrConflict {
		log.WithFields(logrus.Fields{"retry": 1}).Warn("keystore transaction conflict, retrying")
		err = s.badgerDB.Update(fn)
	}
	return err
}

func userKeyKey(userID, keyID string) []byte {
	return []byte(userKeyPrefix + userID + "/" + keyID)
}

func activePtrKey(userID string) []byte {
	return []byte(activePtrPrefix + userID)
}

func getJSON(txn *badger.Txn, key []byte, out interface{}) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}

func setJSON(txn *badger.Txn, key []byte, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	return txn.Set(key, raw)
}

// CreateUserKey persists a new key record and makes it the user's active
// key. If another record is already active, the call fails with
// ErrKeyConflict unless replaceExisting is set, in which case the old record
// is deactivated with replaceReason inside the same transaction.
func (s *Store) CreateUserKey(rec *types.UserKeyRecord, replaceExisting bool, replaceReason string) error {
	return s.update(func(txn *badger.Txn) error {
		var activeID string
		err := getJSON(txn, activePtrKey(rec.UserID), &activeID)
		if err != nil && err != badger.ErrKeyNotFound {
			return err
		}

		if err == nil && activeID != "" {
			if !replaceExisting {
				return types.ErrKeyConflict
			}
			var old types.UserKeyRecord
			if err := getJSON(txn, userKeyKey(rec.UserID, activeID), &old); err != nil {
				return fmt.Errorf("load active key %s: %w", activeID, err)
			}
			now := time.Now().UTC()
			old.IsActive = false
			old.DeactivatedAt = &now
			old.DeactivatedReason = replaceReason
			if err := setJSON(txn, userKeyKey(old.UserID, old.KeyID), &old); err != nil {
				return err
			}
		}

		if err := setJSON(txn, userKeyKey(rec.UserID, rec.KeyID), rec); err != nil {
			return err
		}
		return setJSON(txn, activePtrKey(rec.UserID), rec.KeyID)
	})
}

// RotateUserKey deactivates the old record and persists the new active
// record as a single unit. A partial commit can never leave the user with
// zero active keys.
func (s *Store) RotateUserKey(userID, oldKeyID string, newRec *types.UserKeyRecord, migration *types.MigrationProgress) error {
	return s.update(func(txn *badger.Txn) error {
		var old types.UserKeyRecord
		if err := getJSON(txn, userKeyKey(userID, oldKeyID), &old); err != nil {
			if err == badger.ErrKeyNotFound {
				return types.ErrKeyNotFound
			}
			return err
		}
		if !old.IsActive {
			return types.ErrKeyInactive
		}

		now := time.Now().UTC()
		old.IsActive = false
		old.DeactivatedAt = &now
		old.DeactivatedReason = "rotated to key " + newRec.KeyID

		if err := setJSON(txn, userKeyKey(userID, oldKeyID), &old); err != nil {
			return err
		}
		if err := setJSON(txn, userKeyKey(userID, newRec.KeyID), newRec); err != nil {
			return err
		}
		if err := setJSON(txn, activePtrKey(userID), newRec.KeyID); err != nil {
			return err
		}
		if migration != nil {
			if err := setJSON(txn, []byte(migrationPrefix+migration.ID), migration); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeactivateUserKey marks an active record inactive. Deactivating an
// already-inactive key is an error, not a no-op.
func (s *Store) DeactivateUserKey(userID, keyID, reason string) error {
	return s.update(func(txn *badger.Txn) error {
		var rec types.UserKeyRecord
		if err := getJSON(txn, userKeyKey(userID, keyID), &rec); err != nil {
			if err == badger.ErrKeyNotFound {
				return types.ErrKeyNotFound
			}
			return err
		}
		if !rec.IsActive {
			return types.ErrKeyInactive
		}

		now := time.Now().UTC()
		rec.IsActive = false
		rec.DeactivatedAt = &now
		rec.DeactivatedReason = reason

		if err := setJSON(txn, userKeyKey(userID, keyID), &rec); err != nil {
			return err
		}

		var activeID string
		err := getJSON(txn, activePtrKey(userID), &activeID)
		if err != nil && err != badger.ErrKeyNotFound {
			return err
		}
		if activeID == keyID {
			return txn.Delete(activePtrKey(userID))
		}
		return nil
	})
}

// GetUserKey returns one key record.
func (s *Store) GetUserKey(userID, keyID string) (*types.UserKeyRecord, error) {
	var rec types.UserKeyRecord
	err := s.badgerDB.View(func(txn *badger.Txn) error {
		return getJSON(txn, userKeyKey(userID, keyID), &rec)
	})
	if err == badger.ErrKeyNotFound {
		return nil, types.ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ActiveUserKey returns the user's single active key record, if any.
func (s *Store) ActiveUserKey(userID string) (*types.UserKeyRecord, error) {
	var rec types.UserKeyRecord
	err := s.badgerDB.View(func(txn *badger.Txn) error {
		var activeID string
		if err := getJSON(txn, activePtrKey(userID), &activeID); err != nil {
			return err
		}
		return getJSON(txn, userKeyKey(userID, activeID), &rec)
	})
	if err == badger.ErrKeyNotFound {
		return nil, types.ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListUserKeys returns all key records for a user, newest first.
func (s *Store) ListUserKeys(userID string, includeInactive bool) ([]types.UserKeyRecord, error) {
	var records []types.UserKeyRecord
	err := s.badgerDB.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := []byte(userKeyPrefix + userID + "/")
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec types.UserKeyRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			if !rec.IsActive && !includeInactive {
				continue
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

// CreateEscrow persists one escrow record per key. Duplicate creation fails
// with ErrEscrowConflict.
func (s *Store) CreateEscrow(rec *types.EscrowRecord) error {
	return s.update(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(escrowPrefix + rec.KeyID))
		if err == nil {
			return types.ErrEscrowConflict
		}
		if err != badger.ErrKeyNotFound {
			return err
		}
		return setJSON(txn, []byte(escrowPrefix+rec.KeyID), rec)
	})
}

// GetEscrow returns the escrow record for a key.
func (s *Store) GetEscrow(keyID string) (*types.EscrowRecord, error) {
	var rec types.EscrowRecord
	err := s.badgerDB.View(func(txn *badger.Txn) error {
		return getJSON(txn, []byte(escrowPrefix+keyID), &rec)
	})
	if err == badger.ErrKeyNotFound {
		return nil, types.ErrEscrowNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// MarkEscrowRecovered stamps recovery metadata on the escrow record and
// returns the updated record. The record is retained, not consumed.
func (s *Store) MarkEscrowRecovered(keyID, actor, reason string) (*types.EscrowRecord, error) {
	var rec types.EscrowRecord
	err := s.update(func(txn *badger.Txn) error {
		if err := getJSON(txn, []byte(escrowPrefix+keyID), &rec); err != nil {
			if err == badger.ErrKeyNotFound {
				return types.ErrEscrowNotFound
			}
			return err
		}
		now := time.Now().UTC()
		rec.RecoveredAt = &now
		rec.RecoveredBy = actor
		rec.RecoveryReason = reason
		return setJSON(txn, []byte(escrowPrefix+keyID), &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// PutRegistryKey stores a legacy registry key.
func (s *Store) PutRegistryKey(rec *types.RegistryKey) error {
	return s.update(func(txn *badger.Txn) error {
		return setJSON(txn, []byte(registryPrefix+rec.KeyID), rec)
	})
}

// GetRegistryKey returns a legacy registry key.
func (s *Store) GetRegistryKey(keyID string) (*types.RegistryKey, error) {
	var rec types.RegistryKey
	err := s.badgerDB.View(func(txn *badger.Txn) error {
		return getJSON(txn, []byte(registryPrefix+keyID), &rec)
	})
	if err == badger.ErrKeyNotFound {
		return nil, types.ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// PutMigration stores a migration progress record.
func (s *Store) PutMigration(rec *types.MigrationProgress) error {
	return s.update(func(txn *badger.Txn) error {
		return setJSON(txn, []byte(migrationPrefix+rec.ID), rec)
	})
}

// GetMigration returns a migration progress record.
func (s *Store) GetMigration(id string) (*types.MigrationProgress, error) {
	var rec types.MigrationProgress
	err := s.badgerDB.View(func(txn *badger.Txn) error {
		return getJSON(txn, []byte(migrationPrefix+id), &rec)
	})
	if err == badger.ErrKeyNotFound {
		return nil, types.ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
