package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"comicd/internal/domain"
	"comicd/internal/infra"
)

// ErrMissingBaseURL indicates the client was configured without a backend address.
var ErrMissingBaseURL = errors.New("gateway: base url is required")

// APIError reports a non-2xx backend response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("gateway: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("gateway: status %d", e.StatusCode)
}

// Options configures the comic backend client.
type Options struct {
	BaseURL        string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client performs the typed HTTP calls against the remote comic backend.
// It holds no state between calls and performs no retries.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, ErrMissingBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// BaseURL returns the configured backend address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ExtractBaseFrames requests base frame extraction for the task. A 2xx body
// with success=false is returned as-is; interpreting it is the caller's job.
func (c *Client) ExtractBaseFrames(ctx context.Context, taskID string, interval float64) (*BaseFrameExtraction, error) {
	form := url.Values{}
	form.Set("task_id", taskID)
	form.Set("interval", strconv.FormatFloat(interval, 'f', -1, 64))

	var out BaseFrameExtraction
	if err := c.postForm(ctx, "/api/extract/base-frames", form, &out); err != nil {
		return nil, err
	}
	c.logger.Debug().
		Str("task_id", taskID).
		Int("batches", len(out.Results)).
		Msg("gateway: base frame extraction response")
	return &out, nil
}

// StartComicGeneration kicks off the complete comic pipeline for the task.
// Success means accepted, not finished.
func (c *Client) StartComicGeneration(ctx context.Context, task domain.GenerationTask) (*StartAck, error) {
	cfg := task.Config
	form := url.Values{}
	form.Set("task_id", task.TaskID)
	form.Set("video_path", task.VideoPath)
	form.Set("story_style", cfg.StoryStyle)
	form.Set("target_frames", strconv.Itoa(cfg.TargetFrames))
	form.Set("frame_interval", strconv.FormatFloat(cfg.FrameInterval, 'f', -1, 64))
	form.Set("significance_weight", strconv.FormatFloat(cfg.SignificanceWeight, 'f', -1, 64))
	form.Set("quality_weight", strconv.FormatFloat(cfg.QualityWeight, 'f', -1, 64))
	form.Set("image_size", cfg.ImageSize)
	form.Set("max_concurrent", strconv.Itoa(cfg.MaxConcurrent))
	if cfg.StylePrompt != "" {
		form.Set("style_prompt", cfg.StylePrompt)
	}

	var out StartAck
	if err := c.postForm(ctx, "/api/process/complete-comic", form, &out); err != nil {
		return nil, err
	}
	c.logger.Debug().
		Str("task_id", task.TaskID).
		Bool("accepted", out.Success).
		Msg("gateway: comic generation kickoff response")
	return &out, nil
}

// GetTaskStatus fetches the raw processing status of the task.
func (c *Client) GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	var out TaskStatus
	if err := c.getJSON(ctx, "/api/task/status/"+url.PathEscape(taskID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelTask asks the backend to abandon the task. Mutates remote state.
func (c *Client) CancelTask(ctx context.Context, taskID string) (*Ack, error) {
	form := url.Values{}
	form.Set("task_id", taskID)

	var out Ack
	if err := c.postForm(ctx, "/api/task/cancel/"+url.PathEscape(taskID), form, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetComicResult fetches the final payload. Only meaningful once the task
// status has reached completed.
func (c *Client) GetComicResult(ctx context.Context, taskID string) (*ComicResultResponse, error) {
	var out ComicResultResponse
	if err := c.getJSON(ctx, "/api/comic/result/"+url.PathEscape(taskID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("gateway: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, out)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("gateway: build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("gateway: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var detail struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(raw, &detail); err == nil && detail.Message != "" {
			apiErr.Message = detail.Message
		} else {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return apiErr
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("gateway: decode response: %w", err)
	}
	return nil
}
