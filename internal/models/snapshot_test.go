// internal/models/snapshot_test.go
package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSnapshotTTLPerSource(t *testing.T) {
	assert.Equal(t, 7*24*time.Hour, SnapshotTTL(SourceYandex))
	assert.Equal(t, 7*24*time.Hour, SnapshotTTL(SourceDrom))
	assert.Equal(t, 7*24*time.Hour, SnapshotTTL(SourceOpenAISearch))
	assert.Equal(t, 7*24*time.Hour, SnapshotTTL(SourceWeb))
	assert.Equal(t, 24*time.Hour, SnapshotTTL(SourceNotFound))
	assert.Equal(t, 2*time.Hour, SnapshotTTL(SourceAIEstimate))
	assert.Equal(t, 2*time.Hour, SnapshotTTL(SourceMock))
}

func TestSnapshotExpiredAtBoundary(t *testing.T) {
	now := time.Now()
	snap := &PriceSnapshot{
		Source:    SourceNotFound,
		CreatedAt: now,
		ExpiresAt: now.Add(SnapshotTTL(SourceNotFound)),
	}

	assert.False(t, snap.Expired(now))
	assert.False(t, snap.Expired(snap.ExpiresAt.Add(-time.Second)))
	assert.True(t, snap.Expired(snap.ExpiresAt))
	assert.True(t, snap.Expired(snap.ExpiresAt.Add(time.Second)))
}
