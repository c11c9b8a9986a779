package postgres

import (
	"context"
	"errors"

	"github.com/itsatony/emhub/internal/database"
	apierrors "github.com/itsatony/emhub/internal/errors"
	"github.com/lib/pq"
)

const pqUniqueViolation = "23505"

type PostgresBaseRepo struct {
	db database.DB
}

func (r *PostgresBaseRepo) Ping(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return apierrors.NewDatabaseError("failed to ping database", err)
	}
	return nil
}

func (r *PostgresBaseRepo) Close() error {
	if err := r.db.Close(); err != nil {
		return apierrors.NewDatabaseError("failed to close database", err)
	}
	return nil
}

func (r *PostgresBaseRepo) initializeSchema(queries []string) error {
	for _, query := range queries {
		if _, err := r.db.GetDB().Exec(query); err != nil {
			return apierrors.NewDatabaseError("failed to initialize schema", err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}
