// Package postgres implements the document-store contract on Postgres with
// pgx. Products carry a version column for conditional updates; every table
// raises a NOTIFY on change, which drives the live feeds.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/ariefcatur/go-marketplace-core/internal/apperr"
	"github.com/ariefcatur/go-marketplace-core/internal/store"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type Store struct {
	DB      *pgxpool.Pool
	Clock   store.Clock
	Indexes store.IndexSet
	Log     *zap.Logger
}

func NewStore(db *pgxpool.Pool, log *zap.Logger) *Store {
	return &Store{DB: db, Clock: store.SystemClock, Indexes: store.DefaultIndexes(), Log: log}
}

func (s *Store) Now() time.Time { return s.Clock.Now() }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// exists distinguishes a missing row from a failed condition after an
// UPDATE touched nothing.
func (s *Store) exists(ctx context.Context, table, id string) (bool, error) {
	var ok bool
	err := s.DB.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1)`, id).Scan(&ok)
	return ok, err
}

func (s *Store) missingOr(ctx context.Context, table, kind, id string, otherwise error) error {
	ok, err := s.exists(ctx, table, id)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound(kind, id)
	}
	return otherwise
}
