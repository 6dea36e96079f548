package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	// Register the pure Go "sqlite" and cgo "sqlite3" drivers.
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"mercator-hq/apiflow/pkg/archive"
	"mercator-hq/apiflow/pkg/logstore"
)

// Driver names accepted by NewSQLiteStorage.
const (
	DriverSQLite  = "sqlite"
	DriverSQLite3 = "sqlite3"
)

// SQLiteConfig contains configuration for the SQLite storage backend.
type SQLiteConfig struct {
	// Driver is "sqlite" (modernc.org/sqlite, no cgo) or "sqlite3"
	// (mattn/go-sqlite3).
	// Default: "sqlite"
	Driver string

	// Path is the database file path.
	Path string

	// WALMode enables write-ahead logging.
	// Default: true
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Driver:      DriverSQLite,
		Path:        "data/apiflow-logs.db",
		WALMode:     true,
		BusyTimeout: 5 * time.Second,
	}
}

// SQLiteStorage implements archive.Storage on SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteStorage opens the database, applies pragmas and creates the
// schema.
func NewSQLiteStorage(config *SQLiteConfig) (*SQLiteStorage, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	if config.Driver == "" {
		config.Driver = DriverSQLite
	}
	if config.Driver != DriverSQLite && config.Driver != DriverSQLite3 {
		return nil, archive.NewStorageError(config.Driver, "open", fmt.Errorf("unsupported driver %q", config.Driver))
	}

	logger := slog.Default().With("component", "archive.storage.sqlite")

	db, err := sql.Open(config.Driver, config.Path)
	if err != nil {
		return nil, archive.NewStorageError(config.Driver, "open", err)
	}

	// Pragmas are per connection
	db.SetMaxOpenConns(1)

	s := &SQLiteStorage{
		db:     db,
		config: config,
		logger: logger,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite archive initialized",
		"driver", config.Driver,
		"path", config.Path,
		"wal_mode", config.WALMode,
	)

	return s, nil
}

func (s *SQLiteStorage) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return s.err("enable_wal", err)
		}
		s.logger.Debug("WAL mode enabled")
	}

	busyTimeoutMs := s.config.BusyTimeout.Milliseconds()
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", busyTimeoutMs)); err != nil {
		return s.err("set_busy_timeout", err)
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return s.err("create_schema", err)
	}
	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return s.err("insert_schema_version", err)
	}

	var version int
	err := s.db.QueryRow(GetSchemaVersion).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return s.err("get_schema_version", err)
	}
	if version != SchemaVersion {
		return s.err("schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	s.logger.Debug("schema version verified", "version", version)
	return nil
}

// Store inserts or replaces an entry.
func (s *SQLiteStorage) Store(ctx context.Context, e *logstore.Entry) error {
	var attempts []byte
	if len(e.Attempts) > 0 {
		var err error
		if attempts, err = json.Marshal(e.Attempts); err != nil {
			return s.err("store", err)
		}
	}

	var status any
	if e.Status != nil {
		status = *e.Status
	}

	query := `INSERT OR REPLACE INTO entries (` + entryColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		e.ID, e.StartedAt.UnixMilli(), e.Timestamp, e.Method, e.Path,
		e.ListenPort, nullString(e.ServiceName), nullString(e.BasePath),
		nullString(e.RouteKey), nullString(e.UpstreamID), nullString(e.UpstreamURL), nullString(e.UpstreamLabel),
		status, e.DurationMs, nullString(e.Error), e.IsStreaming, nullString(e.ClientIP),
		nullString(e.RequestHeaders), nullString(e.RequestBody), nullString(e.ResponseHeaders), nullString(e.ResponseBody),
		nullString(e.RetryAction), nullString(string(attempts)),
	)
	if err != nil {
		return s.err("store", err)
	}
	return nil
}

// Query returns the entries matching q.
func (s *SQLiteStorage) Query(ctx context.Context, q *archive.Query) ([]*logstore.Entry, error) {
	if err := archive.Validate(q); err != nil {
		return nil, err
	}
	query := *q
	archive.ApplyDefaults(&query)

	whereClause, args := buildWhereClause(&query)

	sqlQuery := "SELECT " + entryColumns + " FROM entries"
	if whereClause != "" {
		sqlQuery += " WHERE " + whereClause
	}
	// Validate restricts SortOrder to asc or desc
	sqlQuery += fmt.Sprintf(" ORDER BY started_at %s, id %s LIMIT %d",
		strings.ToUpper(query.SortOrder), strings.ToUpper(query.SortOrder), query.Limit)
	if query.Offset > 0 {
		sqlQuery += fmt.Sprintf(" OFFSET %d", query.Offset)
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, s.err("query", err)
	}
	defer rows.Close()

	entries := []*logstore.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, s.err("scan", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, s.err("query", err)
	}
	return entries, nil
}

// Count returns the number of entries matching q's filters.
func (s *SQLiteStorage) Count(ctx context.Context, q *archive.Query) (int64, error) {
	whereClause, args := buildWhereClause(q)

	sqlQuery := "SELECT COUNT(*) FROM entries"
	if whereClause != "" {
		sqlQuery += " WHERE " + whereClause
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, sqlQuery, args...).Scan(&count); err != nil {
		return 0, s.err("count", err)
	}
	return count, nil
}

// Delete removes entries matching q's filters.
func (s *SQLiteStorage) Delete(ctx context.Context, q *archive.Query) (int64, error) {
	whereClause, args := buildWhereClause(q)

	sqlQuery := "DELETE FROM entries"
	if whereClause != "" {
		sqlQuery += " WHERE " + whereClause
	}

	result, err := s.db.ExecContext(ctx, sqlQuery, args...)
	if err != nil {
		return 0, s.err("delete", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, s.err("delete", err)
	}
	return count, nil
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	if err := s.db.Close(); err != nil {
		return s.err("close", err)
	}
	s.logger.Info("SQLite archive closed")
	return nil
}

func (s *SQLiteStorage) err(op string, cause error) error {
	return archive.NewStorageError(s.config.Driver, op, cause)
}

func buildWhereClause(q *archive.Query) (string, []any) {
	var conditions []string
	var args []any

	if q.Since != nil {
		conditions = append(conditions, "started_at >= ?")
		args = append(args, q.Since.UnixMilli())
	}
	if q.Until != nil {
		conditions = append(conditions, "started_at <= ?")
		args = append(args, q.Until.UnixMilli())
	}
	if q.ServiceName != "" {
		conditions = append(conditions, "service_name = ?")
		args = append(args, q.ServiceName)
	}
	if q.ListenPort != 0 {
		conditions = append(conditions, "listen_port = ?")
		args = append(args, q.ListenPort)
	}
	if q.UpstreamID != "" {
		conditions = append(conditions, "upstream_id = ?")
		args = append(args, q.UpstreamID)
	}
	switch q.Status {
	case archive.StatusSuccess:
		conditions = append(conditions, "status IS NOT NULL AND status < 400")
	case archive.StatusError:
		conditions = append(conditions, "(status IS NULL OR status >= 400)")
	}

	return strings.Join(conditions, " AND "), args
}

func scanEntry(rows *sql.Rows) (*logstore.Entry, error) {
	var (
		e            logstore.Entry
		startedAtMs  int64
		status       sql.NullInt64
		isStreaming  bool
		serviceName  sql.NullString
		basePath     sql.NullString
		routeKey     sql.NullString
		upstreamID   sql.NullString
		upstreamURL  sql.NullString
		upstreamLbl  sql.NullString
		errText      sql.NullString
		clientIP     sql.NullString
		reqHeaders   sql.NullString
		reqBody      sql.NullString
		respHeaders  sql.NullString
		respBody     sql.NullString
		retryAction  sql.NullString
		attemptsJSON sql.NullString
	)

	err := rows.Scan(
		&e.ID, &startedAtMs, &e.Timestamp, &e.Method, &e.Path,
		&e.ListenPort, &serviceName, &basePath,
		&routeKey, &upstreamID, &upstreamURL, &upstreamLbl,
		&status, &e.DurationMs, &errText, &isStreaming, &clientIP,
		&reqHeaders, &reqBody, &respHeaders, &respBody,
		&retryAction, &attemptsJSON,
	)
	if err != nil {
		return nil, err
	}

	e.StartedAt = time.UnixMilli(startedAtMs)
	e.IsStreaming = isStreaming
	if status.Valid {
		e.SetStatus(int(status.Int64))
	}
	e.ServiceName = serviceName.String
	e.BasePath = basePath.String
	e.RouteKey = routeKey.String
	e.UpstreamID = upstreamID.String
	e.UpstreamURL = upstreamURL.String
	e.UpstreamLabel = upstreamLbl.String
	e.Error = errText.String
	e.ClientIP = clientIP.String
	e.RequestHeaders = reqHeaders.String
	e.RequestBody = reqBody.String
	e.ResponseHeaders = respHeaders.String
	e.ResponseBody = respBody.String
	e.RetryAction = retryAction.String

	if attemptsJSON.Valid && attemptsJSON.String != "" {
		if err := json.Unmarshal([]byte(attemptsJSON.String), &e.Attempts); err != nil {
			return nil, fmt.Errorf("decode attempts: %w", err)
		}
	}
	return &e, nil
}

// nullString stores empty optional text as NULL.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
