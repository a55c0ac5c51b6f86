// Package client is the Go consumer of the Cloaked API: it uploads photos,
// triggers protection, polls job status and fetches proofs.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Job is the server's status projection of one image pair.
type Job struct {
	ID           string    `json:"id"`
	Status       string    `json:"status"`
	OriginalURL  string    `json:"original_url"`
	ProtectedURL *string   `json:"protected_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Analysis mirrors the server's proof analysis document.
type Analysis struct {
	OriginalSwapStatus  string `json:"original_swap_status"`
	ProtectedSwapStatus string `json:"protected_swap_status"`
	ProtectionEffective bool   `json:"protection_effective"`
	ProtectionScore     int    `json:"protection_score"`
	Verdict             string `json:"verdict"`
	Summary             string `json:"summary"`
	Source              string `json:"source"`
}

type Proof struct {
	OriginalSwapB64  string   `json:"original_swap,omitempty"`
	ProtectedSwapB64 string   `json:"protected_swap,omitempty"`
	OriginalSwapURL  string   `json:"original_swap_url,omitempty"`
	ProtectedSwapURL string   `json:"protected_swap_url,omitempty"`
	Analysis         Analysis `json:"analysis"`
	Cached           bool     `json:"cached"`
	StorageFailed    bool     `json:"storage_failed,omitempty"`
}

// APIError is a non-2xx reply with the server's error body.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: status %d: %s", e.Status, e.Message)
}

type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(data, &body)
		if body.Error == "" {
			body.Error = strings.TrimSpace(string(data))
		}
		return &APIError{Status: resp.StatusCode, Message: body.Error}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

// Upload submits a photo; the returned job starts at status pending.
func (c *Client) Upload(ctx context.Context, filename, contentType string, data []byte, strength string) (*Job, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if strength != "" {
		if err := mw.WriteField("strength", strength); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	var job Job
	if err := c.do(ctx, http.MethodPost, "/v1/images", &buf, mw.FormDataContentType(), &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *Client) Job(ctx context.Context, id string) (*Job, error) {
	var job Job
	if err := c.do(ctx, http.MethodGet, "/v1/images/"+id, nil, "", &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *Client) Jobs(ctx context.Context, cursor string, limit int) ([]Job, string, error) {
	q := url.Values{}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/v1/images"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out struct {
		Items      []Job  `json:"items"`
		NextCursor string `json:"next_cursor"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, "", &out); err != nil {
		return nil, "", err
	}
	return out.Items, out.NextCursor, nil
}

func (c *Client) Convert(ctx context.Context, id string) (*Job, error) {
	var job Job
	if err := c.do(ctx, http.MethodPost, "/v1/images/"+id+"/convert", nil, "", &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *Client) Proof(ctx context.Context, id string) (*Proof, error) {
	var proof Proof
	if err := c.do(ctx, http.MethodPost, "/v1/images/"+id+"/proof", nil, "", &proof); err != nil {
		return nil, err
	}
	return &proof, nil
}

func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/images/"+id, nil, "", nil)
}
