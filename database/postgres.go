package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
)

type PostgresManager struct {
	DB     *sql.DB
	Logger zerolog.Logger
}

var _ DatabaseManager = (*PostgresManager)(nil)

// WithSSLModeDisabled appends sslmode=disable to a postgres URL that does not
// set sslmode already. Non-URL DSNs are returned untouched.
func WithSSLModeDisabled(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parsing database URL: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return dsn, nil
	}
	if strings.Contains(u.RawQuery, "sslmode=") {
		return dsn, nil
	}
	if u.RawQuery == "" {
		u.RawQuery = "sslmode=disable"
	} else {
		u.RawQuery += "&sslmode=disable"
	}
	return u.String(), nil
}

func (p *PostgresManager) ConnectWithDSN(dsn string) error {
	dsn, err := WithSSLModeDisabled(dsn)
	if err != nil {
		return err
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	p.DB = db
	return nil
}

func (p *PostgresManager) Close() error {
	if p.DB == nil {
		return nil
	}
	return p.DB.Close()
}

// ApplySchema runs a schema file in one transaction.
func (p *PostgresManager) ApplySchema(ctx context.Context, path string) error {
	return p.applyFile(ctx, path, false)
}

// ApplyData runs a data file in one transaction. With disableTriggers set,
// foreign keys and triggers are suspended for the transaction so tables can
// load in any order.
func (p *PostgresManager) ApplyData(ctx context.Context, path string, disableTriggers bool) error {
	return p.applyFile(ctx, path, disableTriggers)
}

func (p *PostgresManager) applyFile(ctx context.Context, path string, replica bool) error {
	if p.DB == nil {
		return errors.New("no database connection")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if replica {
		if _, err := tx.ExecContext(ctx, "SET LOCAL session_replication_role = 'replica'"); err != nil {
			return fmt.Errorf("disabling constraints: %w", err)
		}
	}

	p.Logger.Info().Str("path", path).Int("bytes", len(content)).Msg("applying sql file")
	if _, err := tx.ExecContext(ctx, string(content)); err != nil {
		return fmt.Errorf("applying %s: %w", path, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing %s: %w", path, err)
	}
	return nil
}

func (p *PostgresManager) RowCount(ctx context.Context, table string) (int64, error) {
	if p.DB == nil {
		return 0, errors.New("no database connection")
	}
	var n int64
	query := fmt.Sprintf("SELECT count(*) FROM %s", pq.QuoteIdentifier(table))
	if err := p.DB.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting %s: %w", table, err)
	}
	return n, nil
}
