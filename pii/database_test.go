package pii

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	detectors "github.com/hannes/yaak-guard/pii/detectors"
)

func testResult(n int) detectors.GuardResult {
	res := detectors.GuardResult{ModelUsed: "test-model", Matches: []detectors.Match{}}
	for i := 0; i < n; i++ {
		res.Matches = append(res.Matches, detectors.Match{
			Type: detectors.PIITypeEmail, Value: "a@b.io", Start: i, End: i + 6, Resolved: true, Confidence: 0.9,
		})
	}
	return res
}

func TestNewAuditEntry(t *testing.T) {
	res := testResult(2)
	res.RawResponse = json.RawMessage(`{"ok":true}`)

	entry := NewAuditEntry("presidio", res, 150*time.Millisecond)

	assert.NotEqual(t, uuid.Nil, entry.ID)
	assert.Equal(t, "presidio", entry.Provider)
	assert.Equal(t, "test-model", entry.Model)
	assert.Equal(t, 2, entry.MatchCount)
	assert.Len(t, entry.Matches, 2)
	assert.JSONEq(t, `{"ok":true}`, string(entry.RawResponse))
	assert.WithinDuration(t, time.Now(), entry.CreatedAt, time.Minute)

	other := NewAuditEntry("presidio", res, 0)
	assert.NotEqual(t, entry.ID, other.ID)

	empty := NewAuditEntry("regex", detectors.GuardResult{}, 0)
	assert.NotNil(t, empty.Matches)
}

func TestInMemoryAuditStore_RecordAndRecent(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryAuditStore(3)

	var ids []string
	for i := 0; i < 5; i++ {
		entry := NewAuditEntry("p"+strconv.Itoa(i), testResult(i), 0)
		ids = append(ids, entry.ID.String())
		require.NoError(t, store.Record(ctx, entry))
	}

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	recent, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, ids[4], recent[0].ID.String())
	assert.Equal(t, ids[3], recent[1].ID.String())
	assert.Equal(t, ids[2], recent[2].ID.String())

	recent, err = store.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "p4", recent[0].Provider)
}

func TestInMemoryAuditStore_Empty(t *testing.T) {
	store := NewInMemoryAuditStore(0)

	recent, err := store.Recent(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, recent)

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, store.Close())
}

func TestInMemoryAuditStore_CleanupOld(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryAuditStore(4)

	old := NewAuditEntry("old", testResult(0), 0)
	old.CreatedAt = time.Now().Add(-2 * time.Hour)
	fresh := NewAuditEntry("fresh", testResult(1), 0)

	require.NoError(t, store.Record(ctx, old))
	require.NoError(t, store.Record(ctx, fresh))

	removed, err := store.CleanupOld(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	recent, err := store.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "fresh", recent[0].Provider)

	// the ring keeps working after compaction
	require.NoError(t, store.Record(ctx, NewAuditEntry("next", testResult(0), 0)))
	recent, err = store.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "next", recent[0].Provider)
}

// TestPostgresAuditStore runs against a live database when YAAK_TEST_DB_HOST is set.
func TestPostgresAuditStore(t *testing.T) {
	host := os.Getenv("YAAK_TEST_DB_HOST")
	if host == "" {
		t.Skip("YAAK_TEST_DB_HOST not set")
	}
	ctx := context.Background()

	store, err := NewPostgresAuditStore(ctx, DatabaseConfig{
		Host:         host,
		Port:         5432,
		Database:     envOr("YAAK_TEST_DB_NAME", "yaak_guard"),
		Username:     envOr("YAAK_TEST_DB_USER", "postgres"),
		Password:     os.Getenv("YAAK_TEST_DB_PASSWORD"),
		SSLMode:      "disable",
		MaxOpenConns: 2,
		MaxIdleConns: 1,
		MaxLifetime:  time.Minute,
	})
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	res := testResult(2)
	res.RawResponse = json.RawMessage(`{"outputs":[]}`)
	entry := NewAuditEntry("bedrock", res, 42*time.Millisecond)
	require.NoError(t, store.Record(ctx, entry))

	recent, err := store.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, entry.ID, recent[0].ID)
	assert.Equal(t, entry.Matches, recent[0].Matches)
	assert.Equal(t, 42*time.Millisecond, recent[0].Duration)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(1))
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
