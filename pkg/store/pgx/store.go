package pgx

import (
	"context"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// GraphDBStore implements the GraphStore interface on PostgreSQL. Integrity
// of edges is enforced both by foreign keys in the schema and by explicit
// endpoint checks so violations surface as ErrIntegrity instead of raw
// constraint errors.
type GraphDBStore struct {
	conn pgxIConn
}

// NewGraphDBStoreWithConnection creates a new GraphDBStore using an existing
// database connection or pool. The schema is managed by migrations, not by
// the store.
func NewGraphDBStoreWithConnection(conn pgxIConn) *GraphDBStore {
	return &GraphDBStore{
		conn: conn,
	}
}
