// Package walstore persists ledger commits in a write-ahead log.
package walstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
	"github.com/vadiminshakov/papertrade/internal/domain"
	"golang.org/x/sys/unix"
)

const (
	DefaultDir = "./wal/ledger"

	defaultSegmentThreshold = 1000
	commitKeyPrefix         = "commit_"
	lockFileName            = "LOCK"
)

// ErrLocked is returned by New when another process holds the WAL directory.
var ErrLocked = errors.New("ledger WAL is in use by another process")

// Config tunes the underlying WAL.
type Config struct {
	Dir              string
	SegmentThreshold int
}

// commitRecord is one WAL entry: the account after tx was applied.
type commitRecord struct {
	Account     domain.Account     `json:"account"`
	Transaction domain.Transaction `json:"transaction"`
}

// WALStore keeps every commit as a single WAL entry so the state and its
// transaction record are written together. Entries are replayed on open.
//
// The log is the ledger of record: segments rotate but are never dropped,
// and a single process owns the directory for the lifetime of the store.
type WALStore struct {
	wal  *gowal.Wal
	lock *os.File
	mu   sync.RWMutex

	accounts     map[string]domain.Account
	transactions map[string][]domain.Transaction
	txIDs        map[string]struct{}
}

// New opens (or creates) the WAL under cfg.Dir and replays it.
func New(cfg Config) (*WALStore, error) {
	if cfg.Dir == "" {
		cfg.Dir = DefaultDir
	}
	if cfg.SegmentThreshold <= 0 {
		cfg.SegmentThreshold = defaultSegmentThreshold
	}

	lock, err := lockDir(cfg.Dir)
	if err != nil {
		return nil, err
	}

	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              cfg.Dir,
		Prefix:           "ledger_",
		SegmentThreshold: cfg.SegmentThreshold,
		// zero keeps every segment
		MaxSegments:      0,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		_ = lock.Close()
		return nil, errors.Wrap(err, "init ledger WAL")
	}

	s := &WALStore{
		wal:          wal,
		lock:         lock,
		accounts:     make(map[string]domain.Account),
		transactions: make(map[string][]domain.Transaction),
		txIDs:        make(map[string]struct{}),
	}
	if err := s.replay(); err != nil {
		_ = wal.Close()
		_ = lock.Close()
		return nil, err
	}

	return s, nil
}

// lockDir takes an exclusive advisory lock on dir. The lock is released
// when the returned file is closed or the process exits.
func lockDir(dir string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create ledger WAL dir")
	}

	f, err := os.OpenFile(filepath.Join(dir, lockFileName), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "open ledger WAL lock")
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, errors.Wrap(ErrLocked, dir)
		}
		return nil, errors.Wrap(err, "lock ledger WAL")
	}
	return f, nil
}

func (s *WALStore) replay() error {
	for msg := range s.wal.Iterator() {
		if !strings.HasPrefix(msg.Key, commitKeyPrefix) {
			continue
		}
		var rec commitRecord
		if err := json.Unmarshal(msg.Value, &rec); err != nil {
			return errors.Wrapf(err, "decode ledger commit %s", msg.Key)
		}
		s.apply(rec)
	}
	return nil
}

// apply must be called with mu held for writing (or before the store is shared).
func (s *WALStore) apply(rec commitRecord) {
	id := rec.Account.ID
	s.accounts[id] = rec.Account
	s.transactions[id] = append(s.transactions[id], rec.Transaction)
	if rec.Transaction.ID != "" {
		s.txIDs[rec.Transaction.ID] = struct{}{}
	}
}

// Load returns the latest committed state of accountID.
func (s *WALStore) Load(_ context.Context, accountID string) (*domain.Account, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("ledger store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.accounts[accountID]
	if !ok {
		return nil, nil
	}
	return acc.Clone(), nil
}

// Commit appends the account state and its transaction as one WAL entry.
// A transaction already in the log is acknowledged without a second write.
func (s *WALStore) Commit(ctx context.Context, account domain.Account, tx domain.Transaction) error {
	if s == nil || s.wal == nil {
		return errors.New("ledger store is not initialized")
	}
	if account.ID == "" {
		return errors.New("account id is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	rec := commitRecord{Account: *account.Clone(), Transaction: tx}
	payload, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "marshal ledger commit")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.txIDs[tx.ID]; ok && tx.ID != "" {
		return nil
	}
	if err := domain.CheckVersion(account.ID, s.accounts[account.ID].Version, account.Version); err != nil {
		return err
	}

	nextIndex := s.wal.CurrentIndex() + 1
	if err := s.wal.Write(nextIndex, commitKeyPrefix+account.ID, payload); err != nil {
		return errors.Wrap(err, "write ledger commit")
	}
	s.apply(rec)

	return nil
}

// Transactions returns the records of accountID in commit order.
func (s *WALStore) Transactions(_ context.Context, accountID string) ([]domain.Transaction, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("ledger store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	txs := s.transactions[accountID]
	out := make([]domain.Transaction, len(txs))
	copy(out, txs)
	return out, nil
}

// CurrentIndex returns the latest WAL index stored.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

// Close closes the underlying WAL and releases the directory lock.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("ledger store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.wal.Close()
	if s.lock != nil {
		if lerr := s.lock.Close(); lerr != nil && err == nil {
			err = errors.Wrap(lerr, "release ledger WAL lock")
		}
		s.lock = nil
	}
	return err
}
