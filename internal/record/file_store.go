package record

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	xerrors "ChatWallet/internal/errors"
)

const (
	contactsFile     = "contacts.json"
	transactionsFile = "transactions.json"
)

// FileStore keeps contacts.json and transactions.json in a data directory.
// transactions.json is ordered newest first.
type FileStore struct {
	mu  sync.Mutex
	dir string
}

// NewFileStore creates dir and seeds empty files when missing.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "create data directory")
	}
	s := &FileStore{dir: dir}
	for _, name := range []string{contactsFile, transactionsFile} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); stdErrors.Is(err, os.ErrNotExist) {
			if err := writeJSON(path, []any{}); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}

// Contacts implements Store.
func (s *FileStore) Contacts(_ context.Context) ([]Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadContacts()
}

// AddContact implements Store.
func (s *FileStore) AddContact(_ context.Context, contact Contact) (Contact, error) {
	contact, err := validateContact(contact)
	if err != nil {
		return Contact{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	contacts, err := s.loadContacts()
	if err != nil {
		return Contact{}, err
	}
	key := NameKey(contact.Name)
	for _, existing := range contacts {
		if NameKey(existing.Name) == key {
			return Contact{}, ErrContactExists
		}
	}
	if contact.ID == "" {
		contact.ID = uuid.NewString()
	}
	if contact.CreatedAt.IsZero() {
		contact.CreatedAt = time.Now().UTC()
	}
	contacts = append(contacts, contact)
	if err := writeJSON(s.path(contactsFile), contacts); err != nil {
		return Contact{}, err
	}
	return contact, nil
}

// DeleteContact implements Store.
func (s *FileStore) DeleteContact(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	contacts, err := s.loadContacts()
	if err != nil {
		return err
	}
	kept := contacts[:0]
	for _, existing := range contacts {
		if existing.ID != id {
			kept = append(kept, existing)
		}
	}
	if len(kept) == len(contacts) {
		return ErrContactNotFound
	}
	return writeJSON(s.path(contactsFile), kept)
}

// FindContact implements Store.
func (s *FileStore) FindContact(_ context.Context, name string) (Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	contacts, err := s.loadContacts()
	if err != nil {
		return Contact{}, err
	}
	key := NameKey(name)
	for _, existing := range contacts {
		if NameKey(existing.Name) == key {
			return existing, nil
		}
	}
	return Contact{}, ErrContactNotFound
}

// Transactions implements Store.
func (s *FileStore) Transactions(_ context.Context, limit int) ([]Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	txs, err := s.loadTransactions()
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(txs) > limit {
		txs = txs[:limit]
	}
	return txs, nil
}

// AddTransaction implements Store.
func (s *FileStore) AddTransaction(_ context.Context, tx Transaction) error {
	if err := validateTransaction(tx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	txs, err := s.loadTransactions()
	if err != nil {
		return err
	}
	txs = append([]Transaction{tx}, txs...)
	return writeJSON(s.path(transactionsFile), txs)
}

// TrimTransactions implements Store.
func (s *FileStore) TrimTransactions(_ context.Context, keep int) error {
	if keep < 0 {
		keep = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	txs, err := s.loadTransactions()
	if err != nil {
		return err
	}
	if len(txs) <= keep {
		return nil
	}
	return writeJSON(s.path(transactionsFile), txs[:keep])
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, name)
}

func (s *FileStore) loadContacts() ([]Contact, error) {
	var contacts []Contact
	if err := readJSON(s.path(contactsFile), &contacts); err != nil {
		return nil, err
	}
	return contacts, nil
}

func (s *FileStore) loadTransactions() ([]Transaction, error) {
	var txs []Transaction
	if err := readJSON(s.path(transactionsFile), &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

func readJSON(path string, out any) error {
	content, err := os.ReadFile(path)
	if err != nil {
		if stdErrors.Is(err, os.ErrNotExist) {
			return nil
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "read "+filepath.Base(path))
	}
	if len(content) == 0 {
		return nil
	}
	if err := json.Unmarshal(content, out); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "decode "+filepath.Base(path))
	}
	return nil
}

// writeJSON replaces path atomically so a crash never leaves a torn file.
func writeJSON(path string, value any) error {
	content, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "encode "+filepath.Base(path))
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "write "+filepath.Base(path))
	}
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "write "+filepath.Base(path))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "write "+filepath.Base(path))
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, fmt.Sprintf("replace %s", filepath.Base(path)))
	}
	return nil
}

var _ Store = (*FileStore)(nil)
