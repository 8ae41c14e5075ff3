package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"projecthub/internal/domain"
	"projecthub/internal/events"
)

// Store owns the database handle and runs per-project atomic units.
type Store struct {
	Repo
	DB *sql.DB

	mu    sync.Mutex
	locks map[string]*projectLock
}

// projectLock is dropped from Store.locks once no unit holds or waits on it.
type projectLock struct {
	sync.Mutex
	refs int
}

func NewStore(conn *sql.DB, w events.Writer) *Store {
	return &Store{
		Repo:  Repo{Q: conn, Events: w},
		DB:    conn,
		locks: map[string]*projectLock{},
	}
}

func (s *Store) lock(projectID string) func() {
	s.mu.Lock()
	if s.locks == nil {
		s.locks = map[string]*projectLock{}
	}
	l, ok := s.locks[projectID]
	if !ok {
		l = &projectLock{}
		s.locks[projectID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, projectID)
		}
		s.mu.Unlock()
	}
}

// Atomic runs fn inside one transaction scoped to projectID. fn must use only
// the Repositories it is given. The project's version is bumped with a
// compare-and-swap before commit; a lost race yields ErrConcurrentModification
// and nothing is written.
func (s *Store) Atomic(ctx context.Context, projectID string, fn func(domain.Repositories) error) error {
	unlock := s.lock(projectID)
	defer unlock()

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return &domain.StorageError{Op: "begin", Err: err}
	}
	defer tx.Rollback()

	version := int64(-1)
	if projectID != "" {
		err := tx.QueryRowContext(ctx, `SELECT version FROM projects WHERE id=?`, projectID).Scan(&version)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return &domain.StorageError{Op: "read version", Err: err}
		}
	}

	if err := fn(Repo{Q: tx, Events: s.Events}); err != nil {
		return err
	}

	if projectID != "" && version >= 0 {
		res, err := tx.ExecContext(ctx, `UPDATE projects SET version=version+1 WHERE id=? AND version=?`, projectID, version)
		if err != nil {
			return &domain.StorageError{Op: "cas", Err: err}
		}
		n, err := res.RowsAffected()
		if err != nil {
			return &domain.StorageError{Op: "cas", Err: err}
		}
		if n == 0 {
			var exists int
			err := tx.QueryRowContext(ctx, `SELECT 1 FROM projects WHERE id=?`, projectID).Scan(&exists)
			switch {
			case errors.Is(err, sql.ErrNoRows):
				// deleted inside fn
			case err != nil:
				return &domain.StorageError{Op: "cas", Err: err}
			default:
				return &domain.StorageError{Op: "cas", Err: fmt.Errorf("project %s: %w", projectID, domain.ErrConcurrentModification)}
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return &domain.StorageError{Op: "commit", Err: err}
	}
	return nil
}
