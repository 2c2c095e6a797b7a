// internal/store/cases.go
package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"gearbox-workers/internal/common/database"
	pipelineerrors "gearbox-workers/internal/common/errors"
	"gearbox-workers/internal/models"
)

// CaseStore persists vehicle lookup cases. Cases are the durable audit
// trail of the pipeline: one row per submitted identifier, never deleted.
type CaseStore struct {
	db *database.PostgresClient
}

func NewCaseStore(db *database.PostgresClient) *CaseStore {
	return &CaseStore{db: db}
}

// Create inserts a new case in PENDING status and fills in its ID.
func (s *CaseStore) Create(ctx context.Context, c *models.VehicleLookupCase) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.Status = models.CaseStatusPending
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := s.db.Exec(ctx, `
		INSERT INTO vehicle_lookup_cases
			(id, tenant_id, conversation_id, message_id, id_type, raw_value,
			 normalized_value, status, verification_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		c.ID, c.TenantID, c.ConversationID, c.MessageID, c.IDType, c.RawValue,
		c.NormalizedValue, c.Status, c.VerificationStatus, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return pipelineerrors.NewDatabaseError("insert case", err)
	}
	return nil
}

// GetByID fetches a case, returning nil when it does not exist.
func (s *CaseStore) GetByID(ctx context.Context, id string) (*models.VehicleLookupCase, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, tenant_id, conversation_id, message_id, id_type, raw_value,
		       normalized_value, status, verification_status, error, created_at, updated_at
		FROM vehicle_lookup_cases
		WHERE id = $1`, id)

	var c models.VehicleLookupCase
	var errMsg sql.NullString
	err := row.Scan(&c.ID, &c.TenantID, &c.ConversationID, &c.MessageID, &c.IDType,
		&c.RawValue, &c.NormalizedValue, &c.Status, &c.VerificationStatus,
		&errMsg, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, pipelineerrors.NewDatabaseError("select case", err)
	}
	c.Error = errMsg.String

	return &c, nil
}

// MarkRunning transitions a PENDING case to RUNNING. Terminal cases are
// left untouched and the update reports false.
func (s *CaseStore) MarkRunning(ctx context.Context, id string) (bool, error) {
	res, err := s.db.Exec(ctx, `
		UPDATE vehicle_lookup_cases
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status IN ($4, $5)`,
		models.CaseStatusRunning, time.Now().UTC(), id,
		models.CaseStatusPending, models.CaseStatusRunning,
	)
	if err != nil {
		return false, pipelineerrors.NewDatabaseError("update case status", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// MarkCompleted transitions a case to COMPLETED with its verification outcome.
func (s *CaseStore) MarkCompleted(ctx context.Context, id, verificationStatus string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE vehicle_lookup_cases
		SET status = $1, verification_status = $2, updated_at = $3
		WHERE id = $4 AND status NOT IN ($5)`,
		models.CaseStatusCompleted, verificationStatus, time.Now().UTC(), id,
		models.CaseStatusFailed,
	)
	if err != nil {
		return pipelineerrors.NewDatabaseError("complete case", err)
	}
	return nil
}

// MarkFailed transitions a case to FAILED and records the error code.
func (s *CaseStore) MarkFailed(ctx context.Context, id, errMsg string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE vehicle_lookup_cases
		SET status = $1, error = $2, updated_at = $3
		WHERE id = $4 AND status NOT IN ($5)`,
		models.CaseStatusFailed, errMsg, time.Now().UTC(), id,
		models.CaseStatusCompleted,
	)
	if err != nil {
		return pipelineerrors.NewDatabaseError("fail case", err)
	}
	return nil
}
