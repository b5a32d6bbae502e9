package source

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/rowindex/internal/config"
	"github.com/fyrsmithlabs/rowindex/internal/logging"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	// Drivers selectable through source.driver. go-mssqldb is registered by
	// columns.go.
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// SQLProvider reads rows with a single query over database/sql.
// Column mapping is positional: the first column is the identifier and the
// second the timestamp. Extra columns are ignored.
type SQLProvider struct {
	db     *sqlx.DB
	query  string
	logger *zap.Logger
}

// Open connects to the configured database and verifies the connection.
func Open(ctx context.Context, cfg config.SourceConfig, logger *zap.Logger) (*SQLProvider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	driver, dsn, err := BuildDSN(cfg)
	if err != nil {
		return nil, err
	}

	logger.Debug("connecting to source",
		zap.String("driver", driver),
		logging.DSN("target", dsn),
	)

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %s", ErrConnection, driver, logging.MaskDSN(err.Error()))
	}

	return NewSQLProvider(db, cfg.Query, logger), nil
}

// NewSQLProvider wraps an existing connection.
func NewSQLProvider(db *sqlx.DB, query string, logger *zap.Logger) *SQLProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLProvider{db: db, query: query, logger: logger}
}

// FetchAll runs the query and maps every row, in result order.
func (p *SQLProvider) FetchAll(ctx context.Context) ([]Record, error) {
	rows, err := p.db.QueryxContext(ctx, p.query)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQuery, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQuery, err)
	}
	if len(cols) < 2 {
		return nil, fmt.Errorf("%w: query must return identifier and timestamp columns, got %d column(s)", ErrQuery, len(cols))
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQuery, err)
	}
	normalize := normalizersFor(types[:2])

	var records []Record
	for rows.Next() {
		vals, err := rows.SliceScan()
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %w", ErrInvalidRecord, len(records), err)
		}
		id, err := normalize[0](vals[0])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", len(records), err)
		}
		ts, err := normalize[1](vals[1])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", len(records), err)
		}
		rec, err := NewRecord(id, ts)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", len(records), err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQuery, err)
	}

	p.logger.Debug("fetched source rows",
		zap.Int("rows", len(records)),
		zap.String("id_column", cols[0]),
		zap.String("timestamp_column", cols[1]),
		zap.String("id_type", types[0].DatabaseTypeName()),
		zap.String("timestamp_type", types[1].DatabaseTypeName()),
	)
	return records, nil
}

// Close releases the connection pool.
func (p *SQLProvider) Close() error {
	return p.db.Close()
}
