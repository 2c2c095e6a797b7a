// internal/pipeline/scheduler_test.go
package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gearbox-workers/internal/common/audit"
	"gearbox-workers/internal/common/logger"
	"gearbox-workers/internal/common/queue"
	"gearbox-workers/internal/models"
)

type fakeCaseCreator struct {
	created []*models.VehicleLookupCase
}

func (f *fakeCaseCreator) Create(_ context.Context, c *models.VehicleLookupCase) error {
	c.ID = "case-test"
	f.created = append(f.created, c)
	return nil
}

type fakeEnqueuer struct {
	jobIDs []string
	err    error
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, jobID string, _ interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.jobIDs = append(f.jobIDs, jobID)
	return nil
}

func newTestScheduler(cases *fakeCaseCreator, q *fakeEnqueuer) (*Scheduler, *audit.MemoryRecorder) {
	recorder := &audit.MemoryRecorder{}
	return &Scheduler{
		cases:    cases,
		vehicleQ: q,
		recorder: recorder,
		logger:   logger.NewNoOpLogger(),
	}, recorder
}

func TestNormalizeIdentifier(t *testing.T) {
	assert.Equal(t, "JTDBT923771012345", NormalizeIdentifier("  jtdbt923771012345 "))
	assert.Equal(t, "GX110-0069622", NormalizeIdentifier("gx110-0069622"))
	assert.Equal(t, "NZE121-1234567", NormalizeIdentifier("nze121 - 1234567"))
}

func TestValidateIdentifier(t *testing.T) {
	assert.NoError(t, ValidateIdentifier(models.IDTypeVIN, "JTDBT923771012345"))
	assert.NoError(t, ValidateIdentifier(models.IDTypeFrame, "GX110-0069622"))
	assert.Error(t, ValidateIdentifier(models.IDTypeVIN, "ABC"), "too short")
	assert.Error(t, ValidateIdentifier(models.IDTypeVIN, "GX110-0069622"), "dash in a VIN")
	assert.Error(t, ValidateIdentifier(models.IDTypeVIN, "JTDBT92377101234!"), "invalid character")
}

func TestSchedule_CreatesCaseAndEnqueuesJob(t *testing.T) {
	cases := &fakeCaseCreator{}
	q := &fakeEnqueuer{}
	s, recorder := newTestScheduler(cases, q)

	c, err := s.Schedule(context.Background(), "t1", "conv-1", "msg-1",
		models.IDTypeVIN, " jtdbt923771012345 ")
	require.NoError(t, err)

	assert.Equal(t, "JTDBT923771012345", c.NormalizedValue)
	require.Len(t, q.jobIDs, 1)
	assert.Equal(t, "case:case-test", q.jobIDs[0])
	assert.True(t, recorder.Has(audit.EventCaseScheduled))
}

func TestSchedule_DuplicateJobIsNoOp(t *testing.T) {
	cases := &fakeCaseCreator{}
	q := &fakeEnqueuer{err: queue.ErrDuplicateJob}
	s, _ := newTestScheduler(cases, q)

	c, err := s.Schedule(context.Background(), "t1", "conv-1", "msg-1",
		models.IDTypeVIN, "JTDBT923771012345")
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestSchedule_RejectsInvalidIdentifier(t *testing.T) {
	cases := &fakeCaseCreator{}
	s, _ := newTestScheduler(cases, &fakeEnqueuer{})

	_, err := s.Schedule(context.Background(), "t1", "conv-1", "msg-1",
		models.IDTypeVIN, "??")
	require.Error(t, err)
	assert.Empty(t, cases.created, "nothing persisted for an invalid identifier")
}
