// Package eventapi is the editor-side HTTP client for the keepsake server:
// listing contributor uploads, fetching clip files, and publishing the
// compiled video.
package eventapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"github.com/keepsake/keepsake/internal/timeline"
)

// NetworkError wraps a failed request with enough context to decide
// whether retrying makes sense. StatusCode is zero when the request never
// reached the server.
type NetworkError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsRetryable reports whether the failure is transient: transport errors
// and 5xx responses are worth retrying, 4xx responses are not.
func (e *NetworkError) IsRetryable() bool {
	return e.StatusCode == 0 || e.StatusCode >= 500
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

func New(baseURL, token string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 60 * time.Second},
		logger:  logger,
	}
}

type uploadRecord struct {
	UploadID    string    `json:"uploadId"`
	InviteeID   string    `json:"inviteeId"`
	InviteeName string    `json:"inviteeName"`
	FileURL     string    `json:"fileUrl"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

type uploadsResponse struct {
	Uploads []uploadRecord `json:"uploads"`
}

// ListClips returns every contributor upload for the event, newest last.
func (c *Client) ListClips(ctx context.Context, eventID string) ([]timeline.RemoteClip, error) {
	var resp uploadsResponse
	if err := c.getJSON(ctx, fmt.Sprintf("/api/events/%s/uploads", eventID), &resp); err != nil {
		return nil, err
	}
	clips := make([]timeline.RemoteClip, len(resp.Uploads))
	for i, u := range resp.Uploads {
		clips[i] = timeline.RemoteClip{
			UploadID:    u.UploadID,
			InviteeID:   u.InviteeID,
			InviteeName: u.InviteeName,
			FileURL:     u.FileURL,
			UploadedAt:  u.UploadedAt,
		}
	}
	return clips, nil
}

// FetchClip downloads a clip file to destPath. It satisfies
// timeline.ClipFetcher.
func (c *Client) FetchClip(ctx context.Context, fileURL, destPath string) error {
	c.logger.Debug("eventapi: fetching clip", "url", fileURL, "dest", destPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return fmt.Errorf("fetch clip: %w", err)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return &NetworkError{Op: "fetch clip", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &NetworkError{Op: "fetch clip", StatusCode: resp.StatusCode}
	}

	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("fetch clip: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(destPath)
		return fmt.Errorf("fetch clip: write %s: %w", destPath, err)
	}
	return f.Close()
}

// DeleteClip removes a contributor upload from the event.
func (c *Client) DeleteClip(ctx context.Context, eventID, uploadID string) error {
	req, err := c.newRequest(ctx, http.MethodDelete,
		fmt.Sprintf("/api/events/%s/uploads/%s", eventID, uploadID), nil, "")
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &NetworkError{Op: "delete clip", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return &NetworkError{Op: "delete clip", StatusCode: resp.StatusCode}
	}
	return nil
}

type compiledResponse struct {
	WatchURL string `json:"watchUrl"`
}

// PublishCompiled uploads the final video and returns its share URL.
func (c *Client) PublishCompiled(ctx context.Context, eventID string, video []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("video", "compilation.mp4")
	if err != nil {
		return "", fmt.Errorf("publish compiled: %w", err)
	}
	if _, err := part.Write(video); err != nil {
		return "", fmt.Errorf("publish compiled: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("publish compiled: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost,
		fmt.Sprintf("/api/events/%s/compiled", eventID), &body, mw.FormDataContentType())
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", &NetworkError{Op: "publish compiled", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", &NetworkError{Op: "publish compiled", StatusCode: resp.StatusCode}
	}

	var out compiledResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("publish compiled: decode response: %w", err)
	}
	return out.WatchURL, nil
}

// GetCompiled returns the event's existing compilation share URL, if one
// has been published.
func (c *Client) GetCompiled(ctx context.Context, eventID string) (string, bool, error) {
	req, err := c.newRequest(ctx, http.MethodGet,
		fmt.Sprintf("/api/events/%s/compiled", eventID), nil, "")
	if err != nil {
		return "", false, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", false, &NetworkError{Op: "get compiled", Err: err}
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusNotFound:
		return "", false, nil
	case http.StatusOK:
		var out compiledResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return "", false, fmt.Errorf("get compiled: decode response: %w", err)
		}
		return out.WatchURL, true, nil
	default:
		return "", false, &NetworkError{Op: "get compiled", StatusCode: resp.StatusCode}
	}
}

func (c *Client) getJSON(ctx context.Context, path string, dst any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &NetworkError{Op: "get " + path, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &NetworkError{Op: "get " + path, StatusCode: resp.StatusCode}
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("get %s: decode response: %w", path, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	c.authorize(req)
	return req, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
