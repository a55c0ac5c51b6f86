// Package storage talks to the object storage service over its HTTP object
// API. Operations return a tagged *Error instead of failing loudly, because
// callers routinely continue past non-critical storage failures.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Error is a tagged storage failure.
type Error struct {
	Op      string
	Path    string
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("storage %s %s: status %d: %s", e.Op, e.Path, e.Status, e.Message)
	}
	return fmt.Sprintf("storage %s %s: %s", e.Op, e.Path, e.Message)
}

// Adapter is the process-wide client for one bucket. Construct it once in
// main and hand it to whoever needs blobs.
type Adapter struct {
	baseURL string
	key     string
	bucket  string
	http    *http.Client
}

func New(baseURL, key, bucket string, timeout time.Duration) *Adapter {
	return &Adapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     key,
		bucket:  bucket,
		http:    &http.Client{Timeout: timeout},
	}
}

func (a *Adapter) objectURL(path string) string {
	return a.baseURL + "/object/" + a.bucket + "/" + path
}

// PublicURL derives the public URL for a stored path.
func (a *Adapter) PublicURL(path string) string {
	return a.baseURL + "/object/public/" + a.bucket + "/" + path
}

// URLToPath extracts the storage-relative path from a public URL. It returns
// false on any shape mismatch rather than guessing.
func (a *Adapter) URLToPath(url string) (string, bool) {
	marker := "/object/public/" + a.bucket + "/"
	i := strings.Index(url, marker)
	if i < 0 {
		return "", false
	}
	path := url[i+len(marker):]
	if path == "" {
		return "", false
	}
	return path, true
}

// Upload writes data at path. An existing object at the same path is an
// error, not a silent overwrite, unless overwrite is set (only the
// protected/ artifact is ever rewritten).
func (a *Adapter) Upload(ctx context.Context, data []byte, path, contentType string, overwrite bool) (string, *Error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.objectURL(path), bytes.NewReader(data))
	if err != nil {
		return "", &Error{Op: "upload", Path: path, Message: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+a.key)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", fmt.Sprintf("%t", overwrite))

	resp, err := a.http.Do(req)
	if err != nil {
		return "", &Error{Op: "upload", Path: path, Message: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &Error{Op: "upload", Path: path, Status: resp.StatusCode, Message: string(body)}
	}
	return a.PublicURL(path), nil
}

func (a *Adapter) Download(ctx context.Context, path string) ([]byte, *Error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.objectURL(path), nil)
	if err != nil {
		return nil, &Error{Op: "download", Path: path, Message: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+a.key)

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, &Error{Op: "download", Path: path, Message: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &Error{Op: "download", Path: path, Status: resp.StatusCode, Message: string(body)}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Op: "download", Path: path, Message: err.Error()}
	}
	return data, nil
}

// Delete is best-effort from the caller's point of view: failures are
// reported but usually just logged.
func (a *Adapter) Delete(ctx context.Context, path string) *Error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, a.objectURL(path), nil)
	if err != nil {
		return &Error{Op: "delete", Path: path, Message: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+a.key)

	resp, err := a.http.Do(req)
	if err != nil {
		return &Error{Op: "delete", Path: path, Message: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &Error{Op: "delete", Path: path, Status: resp.StatusCode, Message: string(body)}
	}
	return nil
}
