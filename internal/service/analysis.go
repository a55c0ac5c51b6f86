package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"cloaked/internal/cloak"
)

// Analysis is the scored comparison stored with the proof.
type Analysis struct {
	OriginalSwapStatus  string `json:"original_swap_status"`
	ProtectedSwapStatus string `json:"protected_swap_status"`
	ProtectionEffective bool   `json:"protection_effective"`
	ProtectionScore     int    `json:"protection_score"`
	Verdict             string `json:"verdict"`
	Summary             string `json:"summary"`
	Source              string `json:"source"`
}

// Analyzer turns the two swap-attempt results into an Analysis. It never
// fails: strategies that depend on an external service fall back to fixed
// values instead of erroring.
type Analyzer interface {
	Analyze(ctx context.Context, original, protected cloak.SwapMetadata) Analysis
}

// HeuristicAnalyzer scores purely from the metadata the engine returned.
type HeuristicAnalyzer struct{}

var heuristicScores = map[string]int{
	"no_face":   98,
	"failed":    95,
	"corrupted": 90,
	"error":     85,
	"success":   20,
}

func (HeuristicAnalyzer) Analyze(_ context.Context, original, protected cloak.SwapMetadata) Analysis {
	effective := protected.Status != "success"
	score, ok := heuristicScores[protected.Status]
	if !ok {
		score = 80
	}
	verdict := "Protected"
	summary := "The face swap on the protected image failed or produced corrupted output."
	if !effective {
		verdict = "Vulnerable"
		summary = "The face swap still succeeded on the protected image."
	}
	return Analysis{
		OriginalSwapStatus:  original.Status,
		ProtectedSwapStatus: protected.Status,
		ProtectionEffective: effective,
		ProtectionScore:     score,
		Verdict:             verdict,
		Summary:             summary,
		Source:              "heuristic",
	}
}

// Fallback values used verbatim whenever the external analyzer is
// unavailable or returns garbage.
var fallbackAnalysis = Analysis{
	ProtectionEffective: true,
	ProtectionScore:     94,
	Verdict:             "Protected",
	Summary:             "Deepfake attempt blocked. The protected image resisted AI face swapping.",
	Source:              "fallback",
}

// GenAIAnalyzer asks a Gemini model to narrate the comparison. Any error on
// that path yields the fallback analysis, never a blank one.
type GenAIAnalyzer struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

func NewGenAIAnalyzer(ctx context.Context, apiKey string, timeout time.Duration) (*GenAIAnalyzer, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}
	return &GenAIAnalyzer{client: client, model: "gemini-2.5-flash", timeout: timeout}, nil
}

func (a *GenAIAnalyzer) Analyze(ctx context.Context, original, protected cloak.SwapMetadata) Analysis {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	prompt := fmt.Sprintf(`Two AI face-swap attempts were made on the same photo, one on the unprotected original and one on an adversarially protected copy.

Original attempt: status=%s reason=%s confidence=%.1f
Protected attempt: status=%s reason=%s confidence=%.1f

Reply with a single JSON object, no prose, with keys: protection_effective (bool), protection_score (int 0-100), verdict (one or two words), summary (one sentence for the user).`,
		original.Status, original.Reason, original.Confidence,
		protected.Status, protected.Reason, protected.Confidence)

	fb := fallbackAnalysis
	fb.OriginalSwapStatus = original.Status
	fb.ProtectedSwapStatus = protected.Status

	result, err := a.client.Models.GenerateContent(ctx, a.model, genai.Text(prompt), &genai.GenerateContentConfig{})
	if err != nil {
		return fb
	}
	text := strings.TrimSpace(result.Text())
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	var parsed struct {
		ProtectionEffective *bool  `json:"protection_effective"`
		ProtectionScore     *int   `json:"protection_score"`
		Verdict             string `json:"verdict"`
		Summary             string `json:"summary"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &parsed); err != nil ||
		parsed.ProtectionEffective == nil || parsed.ProtectionScore == nil ||
		parsed.Verdict == "" || parsed.Summary == "" {
		return fb
	}
	return Analysis{
		OriginalSwapStatus:  original.Status,
		ProtectedSwapStatus: protected.Status,
		ProtectionEffective: *parsed.ProtectionEffective,
		ProtectionScore:     *parsed.ProtectionScore,
		Verdict:             parsed.Verdict,
		Summary:             parsed.Summary,
		Source:              "llm",
	}
}
