package sqlite

import (
	"context"

	"github.com/itsatony/w4b_v3/server/weatherhub/internal/database"
	"github.com/itsatony/w4b_v3/server/weatherhub/internal/errors"
)

// SQLiteBaseRepo holds the store handle and the transaction helpers
// shared by repositories.
type SQLiteBaseRepo struct {
	db database.DB
}

func (r *SQLiteBaseRepo) BeginTx(ctx context.Context) (database.Transaction, error) {
	tx, err := r.db.GetDB().BeginTxx(ctx, nil)
	if err != nil {
		return nil, errors.NewStorageError("failed to begin transaction", err)
	}
	return tx, nil
}

func (r *SQLiteBaseRepo) Commit(tx database.Transaction) error {
	if err := tx.Commit(); err != nil {
		return errors.NewStorageError("failed to commit transaction", err)
	}
	return nil
}

func (r *SQLiteBaseRepo) Ping(ctx context.Context) error {
	if err := r.db.GetDB().PingContext(ctx); err != nil {
		return errors.NewStorageError("failed to ping database", err)
	}
	return nil
}

func (r *SQLiteBaseRepo) Close() error {
	if err := r.db.Close(); err != nil {
		return errors.NewStorageError("failed to close database", err)
	}
	return nil
}
