// Package backend is the HTTP client for the ingest backend's REST API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hszk-dev/framelens/internal/domain/model"
	"github.com/hszk-dev/framelens/internal/domain/repository"
	"github.com/hszk-dev/framelens/internal/infrastructure/metrics"
)

const (
	defaultTimeout = 30 * time.Second
	maxErrorBody   = 4 << 10
)

// Config holds configuration for the backend client.
type Config struct {
	// BaseURL is the API root, e.g. "http://localhost:8000/api".
	BaseURL string
	Timeout time.Duration
}

// httpDoer is the subset of *http.Client the client needs.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client implements repository.VideoAPI over HTTP.
type Client struct {
	base *url.URL
	http httpDoer
}

// NewClient validates cfg and creates a Client.
func NewClient(cfg Config) (*Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return newClientWithDoer(cfg.BaseURL, &http.Client{Timeout: timeout})
}

// newClientWithDoer creates a Client with an injected transport (for testing).
func newClientWithDoer(baseURL string, doer httpDoer) (*Client, error) {
	base, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported backend scheme %q", base.Scheme)
	}
	return &Client{base: base, http: doer}, nil
}

// videoJSON is the backend's representation of a video.
type videoJSON struct {
	VideoID         string `json:"video_id"`
	VideoName       string `json:"video_name"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
	ProcessingState string `json:"processing_state"`
	FrameCount      int    `json:"frame_count"`
}

type uploadResponse struct {
	VideoID string `json:"video_id"`
}

type renameRequest struct {
	VideoName string `json:"video_name"`
}

type searchRequest struct {
	Query    string   `json:"query"`
	VideoIDs []string `json:"video_ids,omitempty"`
}

type searchResponse struct {
	Results []struct {
		VideoID     string   `json:"video_id"`
		FrameIdx    int      `json:"frame_idx"`
		Description string   `json:"description"`
		Timestamp   *float64 `json:"timestamp"`
		VideoName   *string  `json:"video_name"`
	} `json:"results"`
}

// ListVideos fetches every video the backend knows.
func (c *Client) ListVideos(ctx context.Context) ([]model.Video, error) {
	var raw []videoJSON
	if err := c.doJSON(ctx, metrics.BackendOpList, http.MethodGet, "/videos", nil, &raw); err != nil {
		return nil, err
	}

	videos := make([]model.Video, 0, len(raw))
	for _, v := range raw {
		if v.VideoID == "" {
			continue
		}
		videos = append(videos, toVideo(v))
	}
	return videos, nil
}

// Upload sends r as the multipart "file" field.
func (c *Client) Upload(ctx context.Context, fileName string, r io.Reader) (string, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile("file", fileName)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, r); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/upload"), pr)
	if err != nil {
		pr.Close()
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out uploadResponse
	if err := c.do(req, metrics.BackendOpUpload, &out); err != nil {
		pr.Close()
		return "", err
	}
	if out.VideoID == "" {
		return "", errors.New("upload response has no video_id")
	}
	return out.VideoID, nil
}

// Rename changes a video's display name.
func (c *Client) Rename(ctx context.Context, videoID, name string) error {
	return c.doJSON(ctx, metrics.BackendOpRename, http.MethodPatch, "/videos/"+url.PathEscape(videoID), renameRequest{VideoName: name}, nil)
}

// Delete removes a video and everything derived from it.
func (c *Client) Delete(ctx context.Context, videoID string) error {
	return c.doJSON(ctx, metrics.BackendOpDelete, http.MethodDelete, "/videos/"+url.PathEscape(videoID), nil, nil)
}

// Search runs a semantic query over indexed frames.
func (c *Client) Search(ctx context.Context, query string, videoIDs []string) ([]repository.SearchResult, error) {
	var out searchResponse
	if err := c.doJSON(ctx, metrics.BackendOpSearch, http.MethodPost, "/search", searchRequest{Query: query, VideoIDs: videoIDs}, &out); err != nil {
		return nil, err
	}

	results := make([]repository.SearchResult, 0, len(out.Results))
	for _, r := range out.Results {
		res := repository.SearchResult{
			VideoID:     r.VideoID,
			FrameIdx:    r.FrameIdx,
			Description: r.Description,
			Timestamp:   r.Timestamp,
		}
		if r.VideoName != nil {
			res.VideoName = *r.VideoName
		}
		results = append(results, res)
	}
	return results, nil
}

func (c *Client) endpoint(p string) string {
	return c.base.String() + p
}

func (c *Client) doJSON(ctx context.Context, op, method, p string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(p), body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	return c.do(req, op, out)
}

func (c *Client) do(req *http.Request, op string, out any) (err error) {
	defer func() {
		status := metrics.BackendStatusSuccess
		if err != nil {
			status = metrics.BackendStatusError
		}
		metrics.BackendRequestsTotal.WithLabelValues(op, status).Inc()
	}()

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(detail))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return repository.ErrVideoNotFound
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d: %s", repository.ErrBackendUnavailable, resp.StatusCode, msg)
	default:
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, msg)
	}
}

func toVideo(v videoJSON) model.Video {
	state := model.ProcessingState(v.ProcessingState)
	if !state.IsValid() {
		state = model.StateProcessing
	}
	return model.Video{
		ID:              v.VideoID,
		Name:            v.VideoName,
		ProcessingState: state,
		FrameCount:      max(v.FrameCount, 0),
		CreatedAt:       parseTime(v.CreatedAt),
		UpdatedAt:       parseTime(v.UpdatedAt),
	}
}

// parseTime accepts RFC 3339 and zone-less ISO 8601 timestamps (read as UTC).
// Unparseable values yield the zero time.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05.999999999", s, time.UTC); err == nil {
		return t
	}
	return time.Time{}
}
