// internal/store/snapshots.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"gearbox-workers/internal/common/database"
	pipelineerrors "gearbox-workers/internal/common/errors"
	"gearbox-workers/internal/models"
)

// SnapshotStore persists price snapshots. Snapshots are append-only: a
// stale one is superseded by inserting a newer row, never updated.
type SnapshotStore struct {
	db *database.PostgresClient
}

func NewSnapshotStore(db *database.PostgresClient) *SnapshotStore {
	return &SnapshotStore{db: db}
}

const snapshotColumns = `
	id, tenant_id, search_key, source, min_price, max_price, avg_price,
	currency, model_name, manufacturer, origin, mileage_min, mileage_max,
	listings_count, search_query, raw, expires_at, created_at`

// GetFresh returns the newest unexpired snapshot for a search key, or nil
// when none (or only expired ones) exist. Tenant-scoped rows win over
// shared rows.
func (s *SnapshotStore) GetFresh(ctx context.Context, tenantID, searchKey string, now time.Time) (*models.PriceSnapshot, error) {
	row := s.db.QueryRow(ctx, `
		SELECT`+snapshotColumns+`
		FROM price_snapshots
		WHERE search_key = $1 AND (tenant_id = $2 OR tenant_id = '')
		  AND expires_at > $3
		ORDER BY (tenant_id = $2) DESC, created_at DESC
		LIMIT 1`, searchKey, tenantID, now)

	snap, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, pipelineerrors.NewDatabaseError("select snapshot", err)
	}
	// The expiry cutoff is re-checked against the caller's clock, not just
	// the database's, so a drifted server never serves a stale snapshot.
	if snap.Expired(now) {
		return nil, nil
	}
	return snap, nil
}

// Put inserts a new snapshot, filling in ID, expiry and creation time.
func (s *SnapshotStore) Put(ctx context.Context, snap *models.PriceSnapshot) error {
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}
	if snap.ExpiresAt.IsZero() {
		snap.ExpiresAt = snap.CreatedAt.Add(models.SnapshotTTL(snap.Source))
	}

	rawJSON, err := json.Marshal(snap.Raw)
	if err != nil {
		return pipelineerrors.NewSnapshotWriteError(err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO price_snapshots (`+snapshotColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		snap.ID, snap.TenantID, snap.SearchKey, snap.Source, snap.MinPrice,
		snap.MaxPrice, snap.AvgPrice, snap.Currency, snap.ModelName,
		snap.Manufacturer, snap.Origin, snap.MileageMin, snap.MileageMax,
		snap.ListingsCount, snap.SearchQuery, rawJSON, snap.ExpiresAt, snap.CreatedAt,
	)
	if err != nil {
		return pipelineerrors.NewSnapshotWriteError(err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSnapshot(row rowScanner) (*models.PriceSnapshot, error) {
	var snap models.PriceSnapshot
	var rawJSON []byte

	err := row.Scan(&snap.ID, &snap.TenantID, &snap.SearchKey, &snap.Source,
		&snap.MinPrice, &snap.MaxPrice, &snap.AvgPrice, &snap.Currency,
		&snap.ModelName, &snap.Manufacturer, &snap.Origin, &snap.MileageMin,
		&snap.MileageMax, &snap.ListingsCount, &snap.SearchQuery, &rawJSON,
		&snap.ExpiresAt, &snap.CreatedAt)
	if err != nil {
		return nil, err
	}

	if len(rawJSON) > 0 {
		if err := json.Unmarshal(rawJSON, &snap.Raw); err != nil {
			return nil, err
		}
	}

	return &snap, nil
}
