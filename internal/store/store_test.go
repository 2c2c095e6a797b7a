// internal/store/store_test.go
package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gearbox-workers/internal/common/database"
	"gearbox-workers/internal/models"
)

func newMockDB(t *testing.T) (*database.PostgresClient, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &database.PostgresClient{DB: db}, mock
}

// ==========================
// Case Store Tests
// ==========================

func TestCaseStore_Create_AssignsIDAndPendingStatus(t *testing.T) {
	client, mock := newMockDB(t)
	s := NewCaseStore(client)

	mock.ExpectExec(`INSERT INTO vehicle_lookup_cases`).
		WithArgs(
			sqlmock.AnyArg(), // case ID (UUID)
			"tenant-1",
			"conv-1",
			"msg-1",
			models.IDTypeVIN,
			"jtdbt923771012345",
			"JTDBT923771012345",
			models.CaseStatusPending,
			"",
			sqlmock.AnyArg(), // created_at
			sqlmock.AnyArg(), // updated_at
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	c := &models.VehicleLookupCase{
		TenantID:        "tenant-1",
		ConversationID:  "conv-1",
		MessageID:       "msg-1",
		IDType:          models.IDTypeVIN,
		RawValue:        "jtdbt923771012345",
		NormalizedValue: "JTDBT923771012345",
	}
	require.NoError(t, s.Create(context.Background(), c))

	assert.NotEmpty(t, c.ID)
	assert.Equal(t, models.CaseStatusPending, c.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCaseStore_MarkRunning_SkipsTerminalCases(t *testing.T) {
	client, mock := newMockDB(t)
	s := NewCaseStore(client)

	// Zero rows affected means the case was already terminal.
	mock.ExpectExec(`UPDATE vehicle_lookup_cases`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := s.MarkRunning(context.Background(), "case-1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Lookup Cache Tests
// ==========================

func TestLookupCacheStore_Get_Miss(t *testing.T) {
	client, mock := newMockDB(t)
	s := NewLookupCacheStore(client)

	mock.ExpectQuery(`SELECT lookup_key`).
		WithArgs(models.IDTypeFrame, "FRAME:NZE121-1234567").
		WillReturnRows(sqlmock.NewRows([]string{"lookup_key"}))

	entry, err := s.Get(context.Background(), models.IDTypeFrame, "FRAME:NZE121-1234567")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestLookupCacheStore_GetRoundTripsJSONColumns(t *testing.T) {
	client, mock := newMockDB(t)
	s := NewLookupCacheStore(client)

	gearboxJSON, _ := json.Marshal(models.GearboxInfo{
		OemStatus: models.OemStatusFound,
		OEM:       "30400-52291",
		Model:     "K311",
	})
	evidenceJSON, _ := json.Marshal(models.Evidence{SourceSelected: "catalog"})

	rows := sqlmock.NewRows([]string{
		"lookup_key", "id_type", "vehicle", "gearbox", "evidence", "lookup_confidence", "updated_at",
	}).AddRow("VIN:JTDBT923771012345", models.IDTypeVIN, nil, gearboxJSON, evidenceJSON, 0.9, time.Now())

	mock.ExpectQuery(`SELECT lookup_key`).WillReturnRows(rows)

	entry, err := s.Get(context.Background(), models.IDTypeVIN, "VIN:JTDBT923771012345")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "30400-52291", entry.Gearbox.OEM)
	assert.Equal(t, models.OemStatusFound, entry.Gearbox.OemStatus)
	assert.Equal(t, "catalog", entry.Evidence.SourceSelected)
}

// ==========================
// Snapshot Store Tests
// ==========================

func TestSnapshotStore_Put_DerivesExpiryFromSource(t *testing.T) {
	client, mock := newMockDB(t)
	s := NewSnapshotStore(client)

	mock.ExpectExec(`INSERT INTO price_snapshots`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	snap := &models.PriceSnapshot{
		SearchKey: "30400-52291",
		Source:    models.SourceAIEstimate,
		AvgPrice:  45000,
		Currency:  "RUB",
	}
	require.NoError(t, s.Put(context.Background(), snap))

	assert.NotEmpty(t, snap.ID)
	// AI estimates carry a 2 hour TTL.
	assert.WithinDuration(t, snap.CreatedAt.Add(2*time.Hour), snap.ExpiresAt, time.Second)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotStore_Put_RealListingsKeepForAWeek(t *testing.T) {
	client, mock := newMockDB(t)
	s := NewSnapshotStore(client)

	mock.ExpectExec(`INSERT INTO price_snapshots`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	snap := &models.PriceSnapshot{
		SearchKey: "30400-52291",
		Source:    models.SourceYandex,
	}
	require.NoError(t, s.Put(context.Background(), snap))
	assert.WithinDuration(t, snap.CreatedAt.Add(7*24*time.Hour), snap.ExpiresAt, time.Second)
}

func snapshotRows(expiresAt, createdAt time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "tenant_id", "search_key", "source", "min_price", "max_price",
		"avg_price", "currency", "model_name", "manufacturer", "origin",
		"mileage_min", "mileage_max", "listings_count", "search_query", "raw",
		"expires_at", "created_at",
	}).AddRow(
		"snap-1", "tenant-1", "30400-52291", models.SourceYandex, 42000.0,
		55000.0, 48000.0, "RUB", "K311", "Toyota", "Japan", 60000, 120000, 5,
		"30400-52291 кпп цена", []byte(`{}`), expiresAt, createdAt,
	)
}

func TestSnapshotStore_GetFresh_ReturnsUnexpiredSnapshot(t *testing.T) {
	client, mock := newMockDB(t)
	s := NewSnapshotStore(client)

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT`).
		WillReturnRows(snapshotRows(now.Add(time.Hour), now.Add(-time.Hour)))

	snap, err := s.GetFresh(context.Background(), "tenant-1", "30400-52291", now)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, models.SourceYandex, snap.Source)
	assert.Equal(t, 48000.0, snap.AvgPrice)
}

func TestSnapshotStore_GetFresh_ExpiredRowIsAMiss(t *testing.T) {
	client, mock := newMockDB(t)
	s := NewSnapshotStore(client)

	// The row is past its expiry relative to our clock; it must be treated
	// as a miss even when the database hands it back.
	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT`).
		WillReturnRows(snapshotRows(now.Add(-time.Minute), now.Add(-8*24*time.Hour)))

	snap, err := s.GetFresh(context.Background(), "tenant-1", "30400-52291", now)
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestSnapshotStore_GetFresh_Miss(t *testing.T) {
	client, mock := newMockDB(t)
	s := NewSnapshotStore(client)

	mock.ExpectQuery(`SELECT`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	snap, err := s.GetFresh(context.Background(), "tenant-1", "30400-52291", time.Now())
	require.NoError(t, err)
	assert.Nil(t, snap)
}

// ==========================
// Suggestion Store Tests
// ==========================

func TestSuggestionStore_RecentTexts(t *testing.T) {
	client, mock := newMockDB(t)
	s := NewSuggestionStore(client)

	rows := sqlmock.NewRows([]string{"text"}).
		AddRow("Нашёл вашу коробку").
		AddRow("Уточняю цену")

	mock.ExpectQuery(`SELECT text`).
		WithArgs("conv-1", sqlmock.AnyArg(), 5).
		WillReturnRows(rows)

	texts, err := s.RecentTexts(context.Background(), "conv-1", time.Now().Add(-2*time.Minute), 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"Нашёл вашу коробку", "Уточняю цену"}, texts)
}
