package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"cloaked/internal/cloak"
	"cloaked/internal/models"
	"cloaked/internal/storage"
	"cloaked/internal/store"
)

// ErrNotReady means the job has no protected artifact to prove against yet.
var ErrNotReady = errors.New("image is not protected yet")

// ProofResult is what the caller gets back. When StorageFailed is set the
// base64 payloads carry the (expensive) swap results that could not be
// persisted; the row stays uncached so a later request retries.
type ProofResult struct {
	OriginalSwapB64  string     `json:"original_swap,omitempty"`
	ProtectedSwapB64 string     `json:"protected_swap,omitempty"`
	OriginalSwapURL  string     `json:"original_swap_url,omitempty"`
	ProtectedSwapURL string     `json:"protected_swap_url,omitempty"`
	Analysis         Analysis   `json:"analysis"`
	Cached           bool       `json:"cached"`
	StorageFailed    bool       `json:"storage_failed,omitempty"`
	GeneratedAt      *time.Time `json:"generated_at,omitempty"`
}

// ProofService generates the before/after face-swap comparison for a
// completed job exactly once, caching it on the row.
type ProofService struct {
	store    *store.Store
	blobs    *storage.Adapter
	engine   *cloak.Client
	analyzer Analyzer
	lg       *zap.SugaredLogger
}

func NewProofService(st *store.Store, blobs *storage.Adapter, engine *cloak.Client, analyzer Analyzer, lg *zap.SugaredLogger) *ProofService {
	return &ProofService{store: st, blobs: blobs, engine: engine, analyzer: analyzer, lg: lg}
}

func (s *ProofService) Proof(ctx context.Context, userID, id string) (*ProofResult, error) {
	p, err := s.store.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if p.Status != models.StatusCompleted || p.ProtectedURL == nil {
		return nil, ErrNotReady
	}

	// Cache hit: the proof never expires and is never recomputed.
	if p.ProofCached() {
		var analysis Analysis
		_ = json.Unmarshal(p.ProofAnalysis, &analysis)
		return &ProofResult{
			OriginalSwapURL:  *p.ProofOriginalSwapURL,
			ProtectedSwapURL: *p.ProofProtectedSwapURL,
			Analysis:         analysis,
			Cached:           true,
			GeneratedAt:      p.ProofGeneratedAt,
		}, nil
	}

	originalB64, err := s.downloadB64(ctx, p.OriginalURL)
	if err != nil {
		return nil, err
	}
	// Prefer the heavier proof source when one exists.
	sourceURL := *p.ProtectedURL
	if p.ProofURL != nil {
		sourceURL = *p.ProofURL
	}
	protectedB64, err := s.downloadB64(ctx, sourceURL)
	if err != nil {
		return nil, err
	}

	// The two swap attempts are independent; run them in parallel.
	var wg sync.WaitGroup
	var origRes, protRes *cloak.ProveResult
	var origErr, protErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		origRes, origErr = s.engine.ProveOriginal(ctx, originalB64)
	}()
	go func() {
		defer wg.Done()
		protRes, protErr = s.engine.ProveProtected(ctx, protectedB64)
	}()
	wg.Wait()
	if origErr != nil {
		return nil, &UpstreamError{Err: origErr}
	}
	if protErr != nil {
		return nil, &UpstreamError{Err: protErr}
	}

	analysis := s.analyzer.Analyze(ctx, origRes.Meta, protRes.Meta)
	analysisJSON, err := json.Marshal(analysis)
	if err != nil {
		return nil, fmt.Errorf("marshal analysis: %w", err)
	}

	now := time.Now().UTC()
	result := &ProofResult{
		OriginalSwapB64:  origRes.Swap,
		ProtectedSwapB64: protRes.Swap,
		Analysis:         analysis,
		GeneratedAt:      &now,
	}

	origURL, protURL, upErr := s.uploadSwaps(ctx, userID, id, origRes.Swap, protRes.Swap)
	if upErr != nil {
		// The swaps were expensive; hand them back anyway and leave the
		// row uncached so a later request retries persistence.
		s.lg.Warnw("proof images not persisted", "id", id, "error", upErr)
		result.StorageFailed = true
		return result, nil
	}
	result.OriginalSwapURL = origURL
	result.ProtectedSwapURL = protURL

	if _, err := s.store.UpdateProof(ctx, id, userID, store.ProofFields{
		ProofOriginalSwapURL:  origURL,
		ProofProtectedSwapURL: protURL,
		ProofAnalysis:         models.JSONB(analysisJSON),
		ProofGeneratedAt:      now,
	}); err != nil {
		s.lg.Warnw("proof cache write failed", "id", id, "error", err)
		result.StorageFailed = true
		return result, nil
	}
	result.Cached = true
	return result, nil
}

func (s *ProofService) downloadB64(ctx context.Context, url string) (string, error) {
	path, ok := s.blobs.URLToPath(url)
	if !ok {
		return "", fmt.Errorf("url does not map to a storage path: %s", url)
	}
	data, serr := s.blobs.Download(ctx, path)
	if serr != nil {
		return "", serr
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// uploadSwaps writes both swap images; retries after a partial earlier
// attempt rewrite the same paths, hence upsert.
func (s *ProofService) uploadSwaps(ctx context.Context, userID, id, origB64, protB64 string) (string, string, error) {
	origBytes, err := base64.StdEncoding.DecodeString(origB64)
	if err != nil {
		return "", "", fmt.Errorf("decode original swap: %w", err)
	}
	protBytes, err := base64.StdEncoding.DecodeString(protB64)
	if err != nil {
		return "", "", fmt.Errorf("decode protected swap: %w", err)
	}
	base := "proofs/" + userID + "/" + id
	origURL, serr := s.blobs.Upload(ctx, origBytes, base+"_original_swap.png", "image/png", true)
	if serr != nil {
		return "", "", serr
	}
	protURL, serr := s.blobs.Upload(ctx, protBytes, base+"_protected_swap.png", "image/png", true)
	if serr != nil {
		return "", "", serr
	}
	return origURL, protURL, nil
}
