package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/mselser95/settlement-engine/internal/ledger"
	"go.uber.org/zap"
)

const schema = `
CREATE TABLE IF NOT EXISTS ledger_events (
	id         UUID PRIMARY KEY,
	log_index  BIGINT NOT NULL UNIQUE,
	tx_index   BIGINT NOT NULL,
	block_time TIMESTAMPTZ NOT NULL,
	contract   TEXT NOT NULL,
	name       TEXT NOT NULL,
	payload    JSONB NOT NULL
)`

const insertLog = `
	INSERT INTO ledger_events (
		id, log_index, tx_index, block_time, contract, name, payload
	) VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (log_index) DO NOTHING
`

// PostgresStorage implements Storage using PostgreSQL.
type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

// PostgresConfig holds PostgreSQL configuration.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
	Logger   *zap.Logger
}

// NewPostgresStorage connects to PostgreSQL and creates the events table if needed.
func NewPostgresStorage(ctx context.Context, cfg *PostgresConfig) (*PostgresStorage, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.PingContext(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	p := &PostgresStorage{db: db, logger: cfg.Logger}
	err = p.EnsureSchema(ctx)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	cfg.Logger.Info("postgres-storage-connected",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database))

	return p, nil
}

// EnsureSchema creates the ledger_events table.
func (p *PostgresStorage) EnsureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// StoreLogs inserts a batch of logs in one database transaction. Logs already
// stored (same log index) are skipped.
func (p *PostgresStorage) StoreLogs(ctx context.Context, logs []ledger.Log) error {
	if len(logs) == 0 {
		return nil
	}

	dbtx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	for _, l := range logs {
		payload, err := json.Marshal(l.Event)
		if err != nil {
			_ = dbtx.Rollback()
			return fmt.Errorf("encode %s: %w", l.Name, err)
		}

		_, err = dbtx.ExecContext(ctx, insertLog,
			uuid.NewString(),
			int64(l.Index),
			int64(l.TxIndex),
			time.Unix(int64(l.Time), 0).UTC(),
			l.Contract.Hex(),
			l.Name,
			payload,
		)
		if err != nil {
			_ = dbtx.Rollback()
			return fmt.Errorf("insert log %d: %w", l.Index, err)
		}
	}

	err = dbtx.Commit()
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	p.logger.Debug("ledger-logs-stored",
		zap.Uint64("first-index", logs[0].Index),
		zap.Int("count", len(logs)))

	return nil
}

// Close closes the database connection.
func (p *PostgresStorage) Close() error {
	p.logger.Info("closing-postgres-storage")
	return p.db.Close()
}
