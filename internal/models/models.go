package models

import "time"

// Job lifecycle statuses. A row starts at StatusPending and only moves
// forward, except that any state may drop to StatusFailed.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// ImagePair is one uploaded photo and everything derived from it: the
// protected artifact and, once generated, the before/after proof images.
type ImagePair struct {
	ID     string `gorm:"type:uuid;primaryKey" json:"id"`
	UserID string `gorm:"type:uuid;index;not null" json:"user_id"`

	OriginalURL  string  `gorm:"not null" json:"original_url"`
	ProtectedURL *string `json:"protected_url,omitempty"`
	Strength     string  `gorm:"not null;default:'medium'" json:"strength"`
	Status       string  `gorm:"not null;default:'pending'" json:"status"`

	// Proof fields are a cached derived view: either all are set or none
	// count. ProofURL is an optional heavier source the prove step prefers
	// over ProtectedURL.
	ProofURL              *string    `json:"proof_url,omitempty"`
	ProofOriginalSwapURL  *string    `json:"proof_original_swap_url,omitempty"`
	ProofProtectedSwapURL *string    `json:"proof_protected_swap_url,omitempty"`
	ProofAnalysis         JSONB      `gorm:"type:jsonb" json:"proof_analysis,omitempty"`
	ProofGeneratedAt      *time.Time `json:"proof_generated_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ImagePair) TableName() string { return "image_pairs" }

// ProofCached reports whether the cached proof view is complete.
func (p *ImagePair) ProofCached() bool {
	return p.ProofOriginalSwapURL != nil && p.ProofProtectedSwapURL != nil &&
		len(p.ProofAnalysis) > 0 && p.ProofGeneratedAt != nil
}
