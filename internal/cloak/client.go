// Package cloak is the boundary adapter for the external image-protection
// engine. It owns the wire contract and nothing else: no state machine, no
// persistence.
package cloak

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Strength levels accepted by the engine.
const (
	StrengthLight  = "light"
	StrengthMedium = "medium"
	StrengthStrong = "strong"
)

func ValidStrength(s string) bool {
	return s == StrengthLight || s == StrengthMedium || s == StrengthStrong
}

// BackendError is a non-2xx reply from the engine. It is a hard failure;
// callers never retry it.
type BackendError struct {
	StatusCode int
	Body       string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("cloak engine: status %d: %s", e.StatusCode, e.Body)
}

// CloakMetadata describes what the engine did to the image.
type CloakMetadata struct {
	Strength      string `json:"strength"`
	AttackType    string `json:"attack_type"`
	FacesDetected int    `json:"faces_detected"`
}

type CloakResult struct {
	ID           string        `json:"id"`
	CloakedImage string        `json:"cloaked_image"`
	Metadata     CloakMetadata `json:"metadata"`
}

// SwapMetadata describes one face-swap attempt during proof generation.
type SwapMetadata struct {
	Status     string  `json:"status"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
	Message    string  `json:"message"`
}

type ProveResult struct {
	Swap string
	Meta SwapMetadata
}

type ProveBothResult struct {
	OriginalSwap      string       `json:"original_swap"`
	ProtectedSwap     string       `json:"protected_swap"`
	OriginalMetadata  SwapMetadata `json:"original_metadata"`
	ProtectedMetadata SwapMetadata `json:"protected_metadata"`
}

// Client issues form-encoded requests to the engine with a uniform timeout
// policy: every call is bounded, and a transport-level failure is retried
// exactly once. Application-level failures are never retried.
type Client struct {
	baseURL      string
	http         *http.Client
	cloakTimeout time.Duration
	proveTimeout time.Duration
}

func NewClient(baseURL string, cloakTimeout, proveTimeout time.Duration) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		http:         &http.Client{},
		cloakTimeout: cloakTimeout,
		proveTimeout: proveTimeout,
	}
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values, timeout time.Duration, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body := form.Encode()
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("cloak engine: read body: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &BackendError{StatusCode: resp.StatusCode, Body: truncate(string(data), 512)}
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("cloak engine: malformed response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("cloak engine unreachable: %w", lastErr)
}

// Cloak applies adversarial cloaking to a base64 image.
func (c *Client) Cloak(ctx context.Context, imageB64, strength string) (*CloakResult, error) {
	form := url.Values{"image": {imageB64}, "strength": {strength}}
	var res CloakResult
	if err := c.postForm(ctx, "/cloak/base64", form, c.cloakTimeout, &res); err != nil {
		return nil, err
	}
	if res.CloakedImage == "" {
		return nil, fmt.Errorf("cloak engine: empty cloaked image")
	}
	return &res, nil
}

func (c *Client) ProveOriginal(ctx context.Context, originalB64 string) (*ProveResult, error) {
	form := url.Values{"original": {originalB64}}
	var res struct {
		OriginalSwap     string       `json:"original_swap"`
		OriginalMetadata SwapMetadata `json:"original_metadata"`
	}
	if err := c.postForm(ctx, "/prove/v2/original", form, c.proveTimeout, &res); err != nil {
		return nil, err
	}
	return &ProveResult{Swap: res.OriginalSwap, Meta: res.OriginalMetadata}, nil
}

func (c *Client) ProveProtected(ctx context.Context, protectedB64 string) (*ProveResult, error) {
	form := url.Values{"protected": {protectedB64}}
	var res struct {
		ProtectedSwap     string       `json:"protected_swap"`
		ProtectedMetadata SwapMetadata `json:"protected_metadata"`
	}
	if err := c.postForm(ctx, "/prove/v2/protected", form, c.proveTimeout, &res); err != nil {
		return nil, err
	}
	return &ProveResult{Swap: res.ProtectedSwap, Meta: res.ProtectedMetadata}, nil
}

// ProveBoth runs both swap attempts in a single engine call.
func (c *Client) ProveBoth(ctx context.Context, originalB64, protectedB64 string) (*ProveBothResult, error) {
	form := url.Values{"original": {originalB64}, "protected": {protectedB64}}
	var res ProveBothResult
	if err := c.postForm(ctx, "/prove/v2", form, c.proveTimeout, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Health pings the engine.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &BackendError{StatusCode: resp.StatusCode}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
