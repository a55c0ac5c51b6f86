package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"cloaked/internal/models"
)

// ErrNotFound covers both a missing row and a row owned by someone else;
// callers cannot tell the two apart.
var ErrNotFound = errors.New("image pair not found")

const (
	DefaultListLimit = 50
	MaxListLimit     = 100
)

// Store is the durable record of every upload and its lifecycle. All
// operations are scoped to the owning user.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Create(ctx context.Context, userID, originalURL, strength string) (*models.ImagePair, error) {
	p := models.ImagePair{
		ID:          uuid.NewString(),
		UserID:      userID,
		OriginalURL: originalURL,
		Strength:    strength,
		Status:      models.StatusPending,
	}
	if err := s.db.WithContext(ctx).Create(&p).Error; err != nil {
		return nil, fmt.Errorf("create image pair: %w", err)
	}
	return &p, nil
}

func (s *Store) Get(ctx context.Context, id, userID string) (*models.ImagePair, error) {
	var p models.ImagePair
	err := s.db.WithContext(ctx).First(&p, "id = ? AND user_id = ?", id, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get image pair: %w", err)
	}
	return &p, nil
}

// List returns the user's rows newest first. cursor marks the last row of the
// previous page as "<created_at>,<id>" (RFC3339Nano); the id breaks ties
// between rows created in the same instant, so none are skipped across a page
// boundary. Empty cursor means start from the top; nextCursor is empty on the
// last page.
func (s *Store) List(ctx context.Context, userID, cursor string, limit int) ([]models.ImagePair, string, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if cursor != "" {
		ts, id, err := decodeCursor(cursor)
		if err != nil {
			return nil, "", err
		}
		q = q.Where("created_at < ? OR (created_at = ? AND id < ?)", ts, ts, id)
	}
	var rows []models.ImagePair
	if err := q.Order("created_at desc, id desc").Limit(limit + 1).Find(&rows).Error; err != nil {
		return nil, "", fmt.Errorf("list image pairs: %w", err)
	}
	next := ""
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[limit-1]
		next = last.CreatedAt.UTC().Format(time.RFC3339Nano) + "," + last.ID
	}
	return rows, next, nil
}

func decodeCursor(cursor string) (time.Time, string, error) {
	raw, id, ok := strings.Cut(cursor, ",")
	if !ok || id == "" {
		return time.Time{}, "", fmt.Errorf("bad cursor: %q", cursor)
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("bad cursor: %w", err)
	}
	return ts, id, nil
}

// UpdateStatus is a partial update: protectedURL is only written when
// non-nil, so a failed transition never clears an earlier artifact.
func (s *Store) UpdateStatus(ctx context.Context, id, userID, status string, protectedURL *string) (*models.ImagePair, error) {
	fields := map[string]any{"status": status}
	if protectedURL != nil {
		fields["protected_url"] = *protectedURL
	}
	res := s.db.WithContext(ctx).Model(&models.ImagePair{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(fields)
	if res.Error != nil {
		return nil, fmt.Errorf("update status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.Get(ctx, id, userID)
}

// ClaimProcessing flips the row to processing if and only if no other
// conversion currently holds it. A completed or failed row may be re-claimed
// (reprocessing overwrites the protected artifact).
func (s *Store) ClaimProcessing(ctx context.Context, id, userID string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.ImagePair{}).
		Where("id = ? AND user_id = ? AND status IN ?", id, userID,
			[]string{models.StatusPending, models.StatusCompleted, models.StatusFailed}).
		Update("status", models.StatusProcessing)
	if res.Error != nil {
		return false, fmt.Errorf("claim processing: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ProofFields is the complete cached proof view. UpdateProof writes it in a
// single statement so readers never observe a partially populated proof.
type ProofFields struct {
	ProofURL              *string
	ProofOriginalSwapURL  string
	ProofProtectedSwapURL string
	ProofAnalysis         models.JSONB
	ProofGeneratedAt      time.Time
}

func (s *Store) UpdateProof(ctx context.Context, id, userID string, pf ProofFields) (*models.ImagePair, error) {
	fields := map[string]any{
		"proof_original_swap_url":  pf.ProofOriginalSwapURL,
		"proof_protected_swap_url": pf.ProofProtectedSwapURL,
		"proof_analysis":           pf.ProofAnalysis,
		"proof_generated_at":       pf.ProofGeneratedAt,
	}
	if pf.ProofURL != nil {
		fields["proof_url"] = *pf.ProofURL
	}
	res := s.db.WithContext(ctx).Model(&models.ImagePair{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(fields)
	if res.Error != nil {
		return nil, fmt.Errorf("update proof: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.Get(ctx, id, userID)
}

// ClearProof invalidates a cached proof, e.g. after the protected artifact
// was regenerated.
func (s *Store) ClearProof(ctx context.Context, id, userID string) error {
	err := s.db.WithContext(ctx).Model(&models.ImagePair{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(map[string]any{
			"proof_url":                nil,
			"proof_original_swap_url":  nil,
			"proof_protected_swap_url": nil,
			"proof_analysis":           nil,
			"proof_generated_at":       nil,
		}).Error
	if err != nil {
		return fmt.Errorf("clear proof: %w", err)
	}
	return nil
}

// Delete is idempotent: deleting an absent row is a success.
func (s *Store) Delete(ctx context.Context, id, userID string) error {
	err := s.db.WithContext(ctx).
		Delete(&models.ImagePair{}, "id = ? AND user_id = ?", id, userID).Error
	if err != nil {
		return fmt.Errorf("delete image pair: %w", err)
	}
	return nil
}
