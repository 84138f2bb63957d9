package pii

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	detectors "github.com/hannes/yaak-guard/pii/detectors"
)

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host         string
	Port         int
	Database     string
	Username     string
	Password     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

// AuditEntry records the outcome of one Detect call. The input text is never stored; matched
// values are.
type AuditEntry struct {
	ID          uuid.UUID         `json:"id"`
	CreatedAt   time.Time         `json:"created_at"`
	Provider    string            `json:"provider"`
	Model       string            `json:"model,omitempty"`
	MatchCount  int               `json:"match_count"`
	Matches     []detectors.Match `json:"matches"`
	RawResponse json.RawMessage   `json:"raw_response,omitempty"`
	Duration    time.Duration     `json:"duration_ns"`
}

// NewAuditEntry builds an entry for res with a fresh ID.
func NewAuditEntry(provider string, res detectors.GuardResult, duration time.Duration) AuditEntry {
	matches := res.Matches
	if matches == nil {
		matches = []detectors.Match{}
	}
	return AuditEntry{
		ID:          uuid.New(),
		CreatedAt:   time.Now().UTC(),
		Provider:    provider,
		Model:       res.ModelUsed,
		MatchCount:  len(matches),
		Matches:     matches,
		RawResponse: res.RawResponse,
		Duration:    duration,
	}
}

// AuditStore defines the interface for audit log persistence
type AuditStore interface {
	// Record appends an entry
	Record(ctx context.Context, entry AuditEntry) error

	// Recent returns up to limit entries, newest first
	Recent(ctx context.Context, limit int) ([]AuditEntry, error)

	// Count returns the number of stored entries
	Count(ctx context.Context) (int64, error)

	// CleanupOld removes entries older than the given duration
	CleanupOld(ctx context.Context, olderThan time.Duration) (int64, error)

	// Close closes the underlying storage
	Close() error
}

// PostgresAuditStore implements AuditStore for PostgreSQL
type PostgresAuditStore struct {
	db *sql.DB
}

// NewPostgresAuditStore connects, verifies the connection and creates the audit table.
func NewPostgresAuditStore(ctx context.Context, config DatabaseConfig) (*PostgresAuditStore, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.Username, config.Password, config.Database, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.MaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := createAuditTableIfNotExists(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &PostgresAuditStore{db: db}, nil
}

func createAuditTableIfNotExists(ctx context.Context, db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS guard_audit_log (
		id UUID PRIMARY KEY,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		provider VARCHAR(50) NOT NULL,
		model VARCHAR(200) NOT NULL DEFAULT '',
		match_count INTEGER NOT NULL DEFAULT 0,
		matches JSONB NOT NULL DEFAULT '[]',
		raw_response JSONB,
		duration_ms BIGINT NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_guard_audit_log_created_at ON guard_audit_log(created_at);
	CREATE INDEX IF NOT EXISTS idx_guard_audit_log_provider ON guard_audit_log(provider);
	`

	_, err := db.ExecContext(ctx, query)
	return err
}

// Record inserts entry
func (p *PostgresAuditStore) Record(ctx context.Context, entry AuditEntry) error {
	matches, err := json.Marshal(entry.Matches)
	if err != nil {
		return fmt.Errorf("failed to marshal matches: %w", err)
	}
	var raw any
	if len(entry.RawResponse) > 0 {
		raw = string(entry.RawResponse)
	}

	query := `
	INSERT INTO guard_audit_log (id, created_at, provider, model, match_count, matches, raw_response, duration_ms)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = p.db.ExecContext(ctx, query,
		entry.ID.String(), entry.CreatedAt, entry.Provider, entry.Model, entry.MatchCount,
		string(matches), raw, entry.Duration.Milliseconds())
	return err
}

// Recent returns the newest entries first
func (p *PostgresAuditStore) Recent(ctx context.Context, limit int) ([]AuditEntry, error) {
	query := `
	SELECT id, created_at, provider, model, match_count, matches, raw_response, duration_ms
	FROM guard_audit_log
	ORDER BY created_at DESC
	LIMIT $1
	`

	rows, err := p.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	entries := []AuditEntry{}
	for rows.Next() {
		var (
			entry      AuditEntry
			id         string
			matches    []byte
			raw        sql.NullString
			durationMs int64
		)
		if err := rows.Scan(&id, &entry.CreatedAt, &entry.Provider, &entry.Model, &entry.MatchCount,
			&matches, &raw, &durationMs); err != nil {
			return nil, err
		}
		if entry.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("invalid audit id %q: %w", id, err)
		}
		if err := json.Unmarshal(matches, &entry.Matches); err != nil {
			return nil, fmt.Errorf("failed to decode matches for %s: %w", id, err)
		}
		if raw.Valid {
			entry.RawResponse = json.RawMessage(raw.String)
		}
		entry.Duration = time.Duration(durationMs) * time.Millisecond
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Count returns the number of stored entries
func (p *PostgresAuditStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM guard_audit_log`).Scan(&n)
	return n, err
}

// CleanupOld removes entries older than specified duration
func (p *PostgresAuditStore) CleanupOld(ctx context.Context, olderThan time.Duration) (int64, error) {
	result, err := p.db.ExecContext(ctx,
		`DELETE FROM guard_audit_log WHERE created_at < $1`, time.Now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Close closes the database connection
func (p *PostgresAuditStore) Close() error {
	return p.db.Close()
}

// InMemoryAuditStore keeps the most recent entries in a fixed-size ring (fallback when no
// database is configured).
type InMemoryAuditStore struct {
	mu      sync.RWMutex
	entries []AuditEntry
	next    int
	full    bool
}

// NewInMemoryAuditStore creates a store holding at most capacity entries.
func NewInMemoryAuditStore(capacity int) *InMemoryAuditStore {
	if capacity <= 0 {
		capacity = 1000
	}
	return &InMemoryAuditStore{entries: make([]AuditEntry, capacity)}
}

// Record stores entry, evicting the oldest when full
func (m *InMemoryAuditStore) Record(ctx context.Context, entry AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[m.next] = entry
	m.next = (m.next + 1) % len(m.entries)
	if m.next == 0 {
		m.full = true
	}
	return nil
}

// Recent returns up to limit entries, newest first
func (m *InMemoryAuditStore) Recent(ctx context.Context, limit int) ([]AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	size := m.size()
	if limit <= 0 || limit > size {
		limit = size
	}
	out := make([]AuditEntry, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (m.next - i + len(m.entries)) % len(m.entries)
		out = append(out, m.entries[idx])
	}
	return out, nil
}

// Count returns the number of retained entries
func (m *InMemoryAuditStore) Count(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(m.size()), nil
}

// CleanupOld drops retained entries older than olderThan
func (m *InMemoryAuditStore) CleanupOld(ctx context.Context, olderThan time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	size := m.size()
	kept := make([]AuditEntry, 0, size)
	// oldest first so the ring order is preserved
	for i := size; i >= 1; i-- {
		e := m.entries[(m.next-i+len(m.entries))%len(m.entries)]
		if !e.CreatedAt.Before(cutoff) {
			kept = append(kept, e)
		}
	}

	removed := int64(size - len(kept))
	m.entries = make([]AuditEntry, len(m.entries))
	copy(m.entries, kept)
	m.next = len(kept) % len(m.entries)
	m.full = len(kept) == len(m.entries)
	return removed, nil
}

// Close is a no-op for in-memory storage
func (m *InMemoryAuditStore) Close() error {
	return nil
}

func (m *InMemoryAuditStore) size() int {
	if m.full {
		return len(m.entries)
	}
	return m.next
}
