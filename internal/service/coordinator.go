// Package service holds the pipeline that turns an upload into a protected
// artifact, and the proof generator that demonstrates the protection.
package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cloaked/internal/cloak"
	"cloaked/internal/models"
	"cloaked/internal/storage"
	"cloaked/internal/store"
)

var (
	ErrUnsupportedType    = errors.New("unsupported file type, use PNG, JPEG or WebP")
	ErrTooLarge           = errors.New("file too large")
	ErrBadStrength        = errors.New("strength must be light, medium or strong")
	ErrConversionInFlight = errors.New("conversion already in progress")
)

// UpstreamError marks a failure of the external engine so the HTTP layer can
// map it to 502 while the job row is already failed.
type UpstreamError struct{ Err error }

func (e *UpstreamError) Error() string { return "processing failed: " + e.Err.Error() }
func (e *UpstreamError) Unwrap() error { return e.Err }

var extByType = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
}

// Coordinator drives the upload -> convert state machine
// (pending -> processing -> completed|failed).
type Coordinator struct {
	store  *store.Store
	blobs  *storage.Adapter
	engine *cloak.Client
	lg     *zap.SugaredLogger

	maxUploadBytes int64
}

func NewCoordinator(st *store.Store, blobs *storage.Adapter, engine *cloak.Client, lg *zap.SugaredLogger, maxUploadBytes int64) *Coordinator {
	return &Coordinator{store: st, blobs: blobs, engine: engine, lg: lg, maxUploadBytes: maxUploadBytes}
}

// Upload validates, persists the original blob, then creates the row. The
// order guarantees the row never references a blob that does not exist; a
// row-create failure cleans the blob back up best-effort.
func (c *Coordinator) Upload(ctx context.Context, userID, contentType, strength string, data []byte) (*models.ImagePair, error) {
	if strength == "" {
		strength = cloak.StrengthMedium
	}
	if !cloak.ValidStrength(strength) {
		return nil, ErrBadStrength
	}
	ext, ok := extByType[contentType]
	if !ok {
		return nil, ErrUnsupportedType
	}
	if int64(len(data)) > c.maxUploadBytes {
		return nil, fmt.Errorf("%w (max %d bytes)", ErrTooLarge, c.maxUploadBytes)
	}

	path := "originals/" + userID + "/" + uuid.NewString() + ext
	url, serr := c.blobs.Upload(ctx, data, path, contentType, false)
	if serr != nil {
		return nil, serr
	}

	p, err := c.store.Create(ctx, userID, url, strength)
	if err != nil {
		if derr := c.blobs.Delete(ctx, path); derr != nil {
			c.lg.Warnw("orphan original left in storage", "path", path, "error", derr)
		}
		return nil, err
	}
	return p, nil
}

// Convert runs the cloaking step for one job. Exactly one conversion holds a
// job at a time; every failure past the claim leaves the row failed, never
// stuck at pending or processing.
func (c *Coordinator) Convert(ctx context.Context, userID, id string) (*models.ImagePair, error) {
	p, err := c.store.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	claimed, err := c.store.ClaimProcessing(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, ErrConversionInFlight
	}
	hadProof := p.ProofCached()

	path, ok := c.blobs.URLToPath(p.OriginalURL)
	if !ok {
		return nil, c.fail(ctx, id, userID, fmt.Errorf("original url does not map to a storage path: %s", p.OriginalURL))
	}
	data, serr := c.blobs.Download(ctx, path)
	if serr != nil {
		return nil, c.fail(ctx, id, userID, serr)
	}

	res, err := c.engine.Cloak(ctx, base64.StdEncoding.EncodeToString(data), p.Strength)
	if err != nil {
		return nil, c.fail(ctx, id, userID, &UpstreamError{Err: err})
	}
	cloaked, err := base64.StdEncoding.DecodeString(res.CloakedImage)
	if err != nil {
		return nil, c.fail(ctx, id, userID, &UpstreamError{Err: fmt.Errorf("undecodable cloaked image: %w", err)})
	}

	protectedPath := strings.Replace(path, "originals/", "protected/", 1)
	url, serr := c.blobs.Upload(ctx, cloaked, protectedPath, "image/png", true)
	if serr != nil {
		return nil, c.fail(ctx, id, userID, serr)
	}

	// The artifact was just rewritten, so any cached proof describes an image
	// that no longer exists. This holds for retries of a failed run too, not
	// only for reprocessing a completed one.
	if hadProof {
		if err := c.store.ClearProof(ctx, id, userID); err != nil {
			c.lg.Warnw("clear stale proof failed", "id", id, "error", err)
		}
	}

	updated, err := c.store.UpdateStatus(ctx, id, userID, models.StatusCompleted, &url)
	if err != nil {
		return nil, c.fail(ctx, id, userID, err)
	}
	c.lg.Infow("image cloaked", "id", id, "faces", res.Metadata.FacesDetected, "strength", p.Strength)
	return updated, nil
}

func (c *Coordinator) fail(ctx context.Context, id, userID string, cause error) error {
	if _, err := c.store.UpdateStatus(ctx, id, userID, models.StatusFailed, nil); err != nil {
		c.lg.Errorw("mark failed", "id", id, "error", err)
	}
	return cause
}

// Delete removes the row, then the blobs it referenced. Blob deletion is
// best-effort: a storage hiccup must not resurrect the record. Deleting an
// absent job is a success.
func (c *Coordinator) Delete(ctx context.Context, userID, id string) error {
	p, err := c.store.Get(ctx, id, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := c.store.Delete(ctx, id, userID); err != nil {
		return err
	}
	urls := []*string{&p.OriginalURL, p.ProtectedURL, p.ProofURL, p.ProofOriginalSwapURL, p.ProofProtectedSwapURL}
	for _, u := range urls {
		if u == nil {
			continue
		}
		path, ok := c.blobs.URLToPath(*u)
		if !ok {
			continue
		}
		if serr := c.blobs.Delete(ctx, path); serr != nil {
			c.lg.Warnw("blob delete failed", "path", path, "error", serr)
		}
	}
	return nil
}
