package postgres

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-marketplace-core/internal/apperr"
	"github.com/ariefcatur/go-marketplace-core/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Subscribe holds one pooled connection LISTENing on the collection's
// channel and re-reads the window after every notification.
func (s *Store) Subscribe(ctx context.Context, q store.Query) (store.Feed, error) {
	if err := s.Indexes.Check(q); err != nil {
		return nil, err
	}
	sql, args, err := windowSQL(q)
	if err != nil {
		return nil, err
	}

	conn, err := s.DB.Acquire(ctx)
	if err != nil {
		return nil, apperr.Sync(q.Collection, err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{notifyChannel(q.Collection)}.Sanitize()); err != nil {
		conn.Release()
		return nil, apperr.Sync(q.Collection, err)
	}

	fctx, cancel := context.WithCancel(ctx)
	feed := store.NewChanFeed(16, cancel)
	go s.pump(fctx, conn, feed, q.Collection, sql, args)
	return feed, nil
}

func (s *Store) pump(ctx context.Context, conn *pgxpool.Conn, feed *store.ChanFeed, collection, sql string, args []any) {
	log := s.Log.With(zap.String("collection", collection))
	defer func() {
		if _, err := conn.Exec(context.Background(), "UNLISTEN *"); err != nil {
			// the connection may be broken; do not hand it back to the pool
			_ = conn.Conn().Close(context.Background())
		}
		conn.Release()
	}()

	for {
		batch, err := s.window(ctx, conn, sql, args)
		if err == nil {
			if !feed.Send(batch) {
				return
			}
			_, err = conn.Conn().WaitForNotification(ctx)
		}
		if err != nil {
			if ctx.Err() != nil {
				feed.Close()
				return
			}
			log.Warn("change feed broken", zap.Error(err))
			feed.Fail(apperr.Sync(collection, err))
			return
		}
	}
}

func (s *Store) window(ctx context.Context, conn *pgxpool.Conn, sql string, args []any) (store.ChangeBatch, error) {
	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		return store.ChangeBatch{}, fmt.Errorf("query window: %w", err)
	}
	defer rows.Close()

	b := store.ChangeBatch{At: s.Clock.Now()}
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return store.ChangeBatch{}, err
		}
		b.Docs = append(b.Docs, store.RawDocument{ID: id, Data: []byte(body)})
	}
	return b, rows.Err()
}
