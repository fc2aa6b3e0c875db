package db

import "context"

// DatabaseManager loads exported SQL artifacts into a database.
type DatabaseManager interface {
	ConnectWithDSN(dsn string) error
	ApplySchema(ctx context.Context, path string) error
	ApplyData(ctx context.Context, path string, disableTriggers bool) error
	RowCount(ctx context.Context, table string) (int64, error)
	Close() error
}
