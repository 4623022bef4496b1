package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MegaGrindStone/chat-web-ui/internal/models"
	bolt "go.etcd.io/bbolt"
)

// LocalStore keeps the little state the UI holds on its own side in a BoltDB file: the account the
// user logged in with and a backup of the latest reply of every chat, so an answer is not lost
// when saving it to the backend fails.
type LocalStore struct {
	db *bolt.DB
}

var (
	settingsBucket = []byte("settings")
	backupsBucket  = []byte("backups")

	accountKey    = []byte("account_id")
	lastBackupKey = []byte("last_backup")
)

// NewLocalStore opens (or creates) the BoltDB file at path and initializes the required buckets.
// The database file is created with 0600 permissions if it doesn't exist.
func NewLocalStore(path string) (LocalStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return LocalStore{}, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{settingsBucket, backupsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		return LocalStore{}, errors.Join(err, db.Close())
	}

	return LocalStore{db: db}, nil
}

// Close closes the database file.
func (l LocalStore) Close() error {
	return l.db.Close()
}

// RememberAccount stores the id of the logged in account.
func (l LocalStore) RememberAccount(accountID string) error {
	return l.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(settingsBucket).Put(accountKey, []byte(accountID))
	})
}

// RememberedAccount returns the stored account id, or "" when nobody is logged in.
func (l LocalStore) RememberedAccount() (string, error) {
	var accountID string
	err := l.db.View(func(tx *bolt.Tx) error {
		accountID = string(tx.Bucket(settingsBucket).Get(accountKey))
		return nil
	})
	return accountID, err
}

// ForgetAccount removes the stored account id.
func (l LocalStore) ForgetAccount() error {
	return l.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(settingsBucket).Delete(accountKey)
	})
}

// BackupResponse keeps response as the latest reply of chatID.
func (l LocalStore) BackupResponse(chatID, response string) error {
	v, err := json.Marshal(models.ResponseBackup{
		ChatID:   chatID,
		Response: response,
		SavedAt:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal backup: %w", err)
	}

	return l.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(backupsBucket).Put([]byte(chatID), v); err != nil {
			return err
		}
		return tx.Bucket(settingsBucket).Put(lastBackupKey, []byte(chatID))
	})
}

// ChatBackup returns the latest backed up reply of chatID. The boolean is false when there is none.
func (l LocalStore) ChatBackup(chatID string) (models.ResponseBackup, bool, error) {
	var (
		backup models.ResponseBackup
		found  bool
	)
	err := l.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(backupsBucket).Get([]byte(chatID))
		if v == nil {
			return nil
		}
		if err := json.Unmarshal(v, &backup); err != nil {
			return fmt.Errorf("failed to unmarshal backup: %w", err)
		}
		found = true
		return nil
	})
	return backup, found, err
}

// LastResponse returns the most recently backed up reply across all chats.
func (l LocalStore) LastResponse() (models.ResponseBackup, bool, error) {
	var chatID string
	err := l.db.View(func(tx *bolt.Tx) error {
		chatID = string(tx.Bucket(settingsBucket).Get(lastBackupKey))
		return nil
	})
	if err != nil || chatID == "" {
		return models.ResponseBackup{}, false, err
	}
	return l.ChatBackup(chatID)
}

// DeleteChatBackup drops the backup of a deleted chat.
func (l LocalStore) DeleteChatBackup(chatID string) error {
	return l.db.Update(func(tx *bolt.Tx) error {
		settings := tx.Bucket(settingsBucket)
		if string(settings.Get(lastBackupKey)) == chatID {
			if err := settings.Delete(lastBackupKey); err != nil {
				return err
			}
		}
		return tx.Bucket(backupsBucket).Delete([]byte(chatID))
	})
}
