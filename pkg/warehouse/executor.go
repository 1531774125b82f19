package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Executor is the minimal query-execution contract the synthesizer needs.
type Executor interface {
	ExecuteQuery(ctx context.Context, query string) ([]map[string]interface{}, error)
}

// SQLExecutor runs queries over a database/sql handle. The service wires
// the actual driver (gosnowflake) at the cmd level; nothing here is
// driver-specific.
//
// Session context (current database and schema) is shared per connection,
// so the restore-then-execute sequence is serialized with a mutex: two
// concurrent queries must not interleave their USE DATABASE / USE SCHEMA /
// execute statements or one runs against the other's context.
type SQLExecutor struct {
	db       *sql.DB
	database string
	schema   string
	mu       sync.Mutex
}

type SQLExecutorOption func(*SQLExecutor)

// WithSessionContext sets the database and schema restored before every
// query.
func WithSessionContext(database string, schema string) SQLExecutorOption {
	return func(e *SQLExecutor) {
		e.database = database
		e.schema = schema
	}
}

func NewSQLExecutor(db *sql.DB, options ...SQLExecutorOption) *SQLExecutor {
	ret := &SQLExecutor{db: db}
	for _, o := range options {
		o(ret)
	}
	return ret
}

// ExecuteQuery restores the configured session context and runs the query,
// returning every row as a column-name-keyed map. Context restoration is
// best-effort: a failed USE statement is logged and execution proceeds,
// since the query may still succeed against the session's current context.
func (e *SQLExecutor) ExecuteQuery(ctx context.Context, query string) ([]map[string]interface{}, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()

	// Session context only sticks per connection, so the USE statements and
	// the query itself must run on the same one.
	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "could not acquire warehouse connection")
	}
	defer func() {
		_ = conn.Close()
	}()

	e.restoreSessionContext(ctx, conn)

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "query execution failed")
	}
	defer func() {
		_ = rows.Close()
	}()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "could not read result columns")
	}

	var results []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, errors.Wrap(err, "could not scan result row")
		}

		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "result iteration failed")
	}

	log.Debug().
		Int("rows", len(results)).
		Dur("duration", time.Since(start)).
		Msg("Warehouse query executed")

	return results, nil
}

func (e *SQLExecutor) restoreSessionContext(ctx context.Context, conn *sql.Conn) {
	if e.database != "" {
		if _, err := conn.ExecContext(ctx, fmt.Sprintf("USE DATABASE %s", e.database)); err != nil {
			log.Warn().Err(err).Str("database", e.database).Msg("Could not restore database context, continuing")
		}
	}
	if e.schema != "" {
		if _, err := conn.ExecContext(ctx, fmt.Sprintf("USE SCHEMA %s", e.schema)); err != nil {
			log.Warn().Err(err).Str("schema", e.schema).Msg("Could not restore schema context, continuing")
		}
	}
}

func normalizeValue(v interface{}) interface{} {
	switch value := v.(type) {
	case []byte:
		return string(value)
	case time.Time:
		return value.Format(time.RFC3339)
	default:
		return v
	}
}

var _ Executor = (*SQLExecutor)(nil)
