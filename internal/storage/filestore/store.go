// Package filestore persists each account as a JSON document on disk.
package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/papertrade/internal/domain"
	"golang.org/x/sys/unix"
)

const (
	defaultStateDir = "./data/accounts"
	lockFileName    = ".lock"
)

// Store keeps one file per account holding its state and full history.
// Every commit rewrites the file through a temp file and rename.
type Store struct {
	dir string
	mu  sync.Mutex
}

// document is the on-disk layout of an account file.
type document struct {
	Account      domain.Account       `json:"account"`
	Transactions []domain.Transaction `json:"transactions"`
}

// New creates a store rooted at dir.
func New(dir string) (*Store, error) {
	if dir == "" {
		dir = defaultStateDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create account state dir")
	}
	return &Store{dir: dir}, nil
}

// Load reads the account from disk; nil, nil when it has no file yet.
func (s *Store) Load(_ context.Context, accountID string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read(accountID)
	if err != nil || doc == nil {
		return nil, err
	}
	acc := doc.Account
	if acc.Holdings == nil {
		acc.Holdings = make(map[string]domain.Holding)
	}
	return &acc, nil
}

// Commit appends tx to the account history and stores the new state.
// The read-check-write runs under an exclusive lock on the state dir so
// processes sharing the dir cannot overwrite each other's commits.
func (s *Store) Commit(ctx context.Context, account domain.Account, tx domain.Transaction) error {
	if account.ID == "" {
		return errors.New("account id is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.lockDir()
	if err != nil {
		return err
	}
	defer unlock()

	doc, err := s.read(account.ID)
	if err != nil {
		return err
	}
	if doc == nil {
		doc = &document{}
	}
	if tx.ID != "" && slices.ContainsFunc(doc.Transactions, func(t domain.Transaction) bool { return t.ID == tx.ID }) {
		return nil
	}
	if err := domain.CheckVersion(account.ID, doc.Account.Version, account.Version); err != nil {
		return err
	}
	doc.Account = account
	doc.Transactions = append(doc.Transactions, tx)

	return s.write(account.ID, doc)
}

// Transactions returns the records of accountID in commit order.
func (s *Store) Transactions(_ context.Context, accountID string) ([]domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read(accountID)
	if err != nil || doc == nil {
		return nil, err
	}
	return doc.Transactions, nil
}

// Close is a no-op; files are closed after every operation.
func (s *Store) Close() error {
	return nil
}

// lockDir blocks until this process holds the state dir lock.
func (s *Store) lockDir() (func(), error) {
	f, err := os.OpenFile(filepath.Join(s.dir, lockFileName), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "open account state lock")
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, "lock account state dir")
	}
	return func() {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		_ = f.Close()
	}, nil
}

func (s *Store) path(accountID string) string {
	name := sanitizeScope(accountID)
	if name == "" {
		name = "default"
	}
	return filepath.Join(s.dir, fmt.Sprintf("%s.json", name))
}

func (s *Store) read(accountID string) (*document, error) {
	payload, err := os.ReadFile(s.path(accountID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read account state")
	}
	if len(payload) == 0 {
		return nil, nil
	}

	var doc document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, errors.Wrap(err, "decode account state")
	}
	if doc.Account.ID != accountID {
		return nil, errors.Errorf("account file %s belongs to %q", s.path(accountID), doc.Account.ID)
	}
	return &doc, nil
}

func (s *Store) write(accountID string, doc *document) error {
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode account state")
	}

	path := s.path(accountID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return errors.Wrap(err, "write account state temp file")
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrap(err, "persist account state")
	}

	return nil
}

// sanitizeScope maps an account id to a safe file name.
func sanitizeScope(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return ""
	}

	var b strings.Builder

	prevUnderscore := false

	for _, r := range value {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)

			prevUnderscore = false

			continue
		}

		if !prevUnderscore {
			b.WriteByte('_')

			prevUnderscore = true
		}
	}

	return strings.Trim(b.String(), "_")
}
