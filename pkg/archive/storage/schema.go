package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema creates the archive tables. Times are unix milliseconds so both
// SQLite drivers compare them the same way.
const Schema = `
CREATE TABLE IF NOT EXISTS entries (
    id TEXT PRIMARY KEY,
    started_at INTEGER NOT NULL,
    timestamp TEXT NOT NULL,
    method TEXT NOT NULL,
    path TEXT NOT NULL,

    listen_port INTEGER NOT NULL,
    service_name TEXT,
    base_path TEXT,

    route_key TEXT,
    upstream_id TEXT,
    upstream_url TEXT,
    upstream_label TEXT,

    status INTEGER,
    duration_ms INTEGER NOT NULL,
    error TEXT,
    is_streaming INTEGER NOT NULL,
    client_ip TEXT,

    request_headers TEXT,
    request_body TEXT,
    response_headers TEXT,
    response_body TEXT,

    retry_action TEXT,
    attempts TEXT
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entries_started_at ON entries(started_at);
CREATE INDEX IF NOT EXISTS idx_entries_service_name ON entries(service_name);
CREATE INDEX IF NOT EXISTS idx_entries_listen_port ON entries(listen_port);
CREATE INDEX IF NOT EXISTS idx_entries_upstream_id ON entries(upstream_id);
`

// InsertSchemaVersion records the schema version.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion reads the newest schema version.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`

const entryColumns = `id, started_at, timestamp, method, path,
    listen_port, service_name, base_path,
    route_key, upstream_id, upstream_url, upstream_label,
    status, duration_ms, error, is_streaming, client_ip,
    request_headers, request_body, response_headers, response_body,
    retry_action, attempts`
