// internal/store/lookupcache.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"gearbox-workers/internal/common/database"
	pipelineerrors "gearbox-workers/internal/common/errors"
	"gearbox-workers/internal/models"
)

// LookupCacheStore persists resolved identifier lookups. The cache is
// shared across tenants because vehicle facts do not depend on who asked.
type LookupCacheStore struct {
	db *database.PostgresClient
}

func NewLookupCacheStore(db *database.PostgresClient) *LookupCacheStore {
	return &LookupCacheStore{db: db}
}

// Get fetches the cached lookup for a key, returning nil on a miss.
func (s *LookupCacheStore) Get(ctx context.Context, idType models.IdentifierType, lookupKey string) (*models.VehicleLookupCache, error) {
	row := s.db.QueryRow(ctx, `
		SELECT lookup_key, id_type, vehicle, gearbox, evidence, lookup_confidence, updated_at
		FROM vehicle_lookup_cache
		WHERE id_type = $1 AND lookup_key = $2`, idType, lookupKey)

	var entry models.VehicleLookupCache
	var vehicleJSON, gearboxJSON, evidenceJSON []byte
	err := row.Scan(&entry.LookupKey, &entry.IDType, &vehicleJSON, &gearboxJSON,
		&evidenceJSON, &entry.LookupConfidence, &entry.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, pipelineerrors.NewDatabaseError("select lookup cache", err)
	}

	if len(vehicleJSON) > 0 {
		if err := json.Unmarshal(vehicleJSON, &entry.Vehicle); err != nil {
			return nil, pipelineerrors.NewDatabaseError("decode cached vehicle", err)
		}
	}
	if err := json.Unmarshal(gearboxJSON, &entry.Gearbox); err != nil {
		return nil, pipelineerrors.NewDatabaseError("decode cached gearbox", err)
	}
	if err := json.Unmarshal(evidenceJSON, &entry.Evidence); err != nil {
		return nil, pipelineerrors.NewDatabaseError("decode cached evidence", err)
	}

	return &entry, nil
}

// Put upserts the lookup cache row for the entry's key. Later resolutions
// of the same identifier overwrite earlier ones.
func (s *LookupCacheStore) Put(ctx context.Context, entry *models.VehicleLookupCache) error {
	entry.UpdatedAt = time.Now().UTC()

	vehicleJSON, err := json.Marshal(entry.Vehicle)
	if err != nil {
		return pipelineerrors.NewDatabaseError("encode vehicle", err)
	}
	gearboxJSON, err := json.Marshal(entry.Gearbox)
	if err != nil {
		return pipelineerrors.NewDatabaseError("encode gearbox", err)
	}
	evidenceJSON, err := json.Marshal(entry.Evidence)
	if err != nil {
		return pipelineerrors.NewDatabaseError("encode evidence", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO vehicle_lookup_cache
			(lookup_key, id_type, vehicle, gearbox, evidence, lookup_confidence, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id_type, lookup_key) DO UPDATE SET
			vehicle = EXCLUDED.vehicle,
			gearbox = EXCLUDED.gearbox,
			evidence = EXCLUDED.evidence,
			lookup_confidence = EXCLUDED.lookup_confidence,
			updated_at = EXCLUDED.updated_at`,
		entry.LookupKey, entry.IDType, vehicleJSON, gearboxJSON, evidenceJSON,
		entry.LookupConfidence, entry.UpdatedAt,
	)
	if err != nil {
		return pipelineerrors.NewDatabaseError("upsert lookup cache", err)
	}
	return nil
}
