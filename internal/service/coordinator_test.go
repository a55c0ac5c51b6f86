package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"cloaked/internal/models"
	"cloaked/internal/store"
)

func TestUploadCreatesPendingRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.NewString()

	p, err := f.coord.Upload(ctx, userID, "image/png", "", []byte("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, p.Status)
	assert.Equal(t, "medium", p.Strength)
	assert.Nil(t, p.ProtectedURL)

	path, ok := f.blobs.URLToPath(p.OriginalURL)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(path, "originals/"+userID+"/"))
	assert.True(t, f.objects.has(path))
}

func TestUploadSizeBoundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.NewString()

	// Exactly at the ceiling succeeds.
	_, err := f.coord.Upload(ctx, userID, "image/jpeg", "light", bytes.Repeat([]byte("a"), 1024))
	require.NoError(t, err)

	// One byte over is rejected before any persistence.
	before := f.objects.count()
	_, err = f.coord.Upload(ctx, userID, "image/jpeg", "light", bytes.Repeat([]byte("a"), 1025))
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.Equal(t, before, f.objects.count())

	rows, _, err := f.store.List(ctx, userID, "", 10)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestUploadRejectsBadContentType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.NewString()

	_, err := f.coord.Upload(ctx, userID, "image/gif", "", []byte("gif"))
	assert.ErrorIs(t, err, ErrUnsupportedType)
	assert.Zero(t, f.objects.count())

	_, err = f.coord.Upload(ctx, userID, "image/png", "ultra", []byte("png"))
	assert.ErrorIs(t, err, ErrBadStrength)
}

func TestConvertSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.NewString()

	p, err := f.coord.Upload(ctx, userID, "image/png", "medium", []byte("png-bytes"))
	require.NoError(t, err)

	got, err := f.coord.Convert(ctx, userID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	require.NotNil(t, got.ProtectedURL)

	protPath, ok := f.blobs.URLToPath(*got.ProtectedURL)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(protPath, "protected/"+userID+"/"))
	assert.True(t, f.objects.has(protPath))
}

func TestConvertEngineFailureMarksRowFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.NewString()

	p, err := f.coord.Upload(ctx, userID, "image/png", "medium", []byte("png-bytes"))
	require.NoError(t, err)

	f.backend.cloakErr = true
	_, err = f.coord.Convert(ctx, userID, p.ID)
	require.Error(t, err)
	var ue *UpstreamError
	assert.ErrorAs(t, err, &ue)

	got, err := f.store.Get(ctx, p.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Nil(t, got.ProtectedURL)
}

func TestConvertSecondTriggerIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.NewString()

	p, err := f.coord.Upload(ctx, userID, "image/png", "medium", []byte("png-bytes"))
	require.NoError(t, err)

	claimed, err := f.store.ClaimProcessing(ctx, p.ID, userID)
	require.NoError(t, err)
	require.True(t, claimed)

	_, err = f.coord.Convert(ctx, userID, p.ID)
	assert.ErrorIs(t, err, ErrConversionInFlight)
}

func TestConvertWrongTenant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.coord.Upload(ctx, uuid.NewString(), "image/png", "medium", []byte("png-bytes"))
	require.NoError(t, err)

	_, err = f.coord.Convert(ctx, uuid.NewString(), p.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteRemovesRowAndBlobs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.NewString()

	p, err := f.coord.Upload(ctx, userID, "image/png", "medium", []byte("png-bytes"))
	require.NoError(t, err)
	_, err = f.coord.Convert(ctx, userID, p.ID)
	require.NoError(t, err)

	require.NoError(t, f.coord.Delete(ctx, userID, p.ID))
	assert.Zero(t, f.objects.count())

	_, err = f.store.Get(ctx, p.ID, userID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Idempotent: a second delete of the same id still succeeds.
	require.NoError(t, f.coord.Delete(ctx, userID, p.ID))
}

func TestReprocessClearsStaleProof(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.NewString()

	p, err := f.coord.Upload(ctx, userID, "image/png", "medium", []byte("png-bytes"))
	require.NoError(t, err)
	_, err = f.coord.Convert(ctx, userID, p.ID)
	require.NoError(t, err)

	res, err := f.proofs.Proof(ctx, userID, p.ID)
	require.NoError(t, err)
	require.True(t, res.Cached)

	// Converting again overwrites the artifact and drops the cached proof.
	_, err = f.coord.Convert(ctx, userID, p.ID)
	require.NoError(t, err)

	got, err := f.store.Get(ctx, p.ID, userID)
	require.NoError(t, err)
	assert.False(t, got.ProofCached())
}

func TestRetryAfterFailedReprocessClearsStaleProof(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.NewString()

	p, err := f.coord.Upload(ctx, userID, "image/png", "medium", []byte("png-bytes"))
	require.NoError(t, err)
	_, err = f.coord.Convert(ctx, userID, p.ID)
	require.NoError(t, err)

	res, err := f.proofs.Proof(ctx, userID, p.ID)
	require.NoError(t, err)
	require.True(t, res.Cached)

	// A reprocess attempt that dies at the engine leaves the row failed with
	// the old proof still attached.
	f.backend.cloakErr = true
	_, err = f.coord.Convert(ctx, userID, p.ID)
	require.Error(t, err)

	// Retrying from failed rewrites the artifact, so the proof of the old
	// artifact must be dropped even though the row was not completed.
	f.backend.cloakErr = false
	_, err = f.coord.Convert(ctx, userID, p.ID)
	require.NoError(t, err)

	got, err := f.store.Get(ctx, p.ID, userID)
	require.NoError(t, err)
	assert.False(t, got.ProofCached())

	// The next proof request regenerates instead of replaying stale swaps.
	before := f.backend.proveCalls()
	_, err = f.proofs.Proof(ctx, userID, p.ID)
	require.NoError(t, err)
	assert.Greater(t, f.backend.proveCalls(), before)
}

func TestConvertCompletionWriteFailureMarksRowFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.NewString()

	p, err := f.coord.Upload(ctx, userID, "image/png", "medium", []byte("png-bytes"))
	require.NoError(t, err)

	// Reject only the write that would mark the row completed; the fallback
	// write to failed must still be able to land.
	require.NoError(t, f.db.Callback().Update().Before("gorm:update").Register("reject_completed", func(tx *gorm.DB) {
		if m, ok := tx.Statement.Dest.(map[string]interface{}); ok && m["status"] == models.StatusCompleted {
			_ = tx.AddError(errors.New("write rejected"))
		}
	}))

	_, err = f.coord.Convert(ctx, userID, p.ID)
	require.Error(t, err)

	got, err := f.store.Get(ctx, p.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)

	// Not stuck at processing: once the fault clears, a retry can claim it.
	require.NoError(t, f.db.Callback().Update().Remove("reject_completed"))
	claimed, err := f.store.ClaimProcessing(ctx, p.ID, userID)
	require.NoError(t, err)
	assert.True(t, claimed)
}
