package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"comicd/internal/domain"
)

func TestExtractBaseFramesEncodesForm(t *testing.T) {
	transport := newFakeTransport()
	transport.setJSONResponse("/api/extract/base-frames", map[string]any{
		"success": true,
		"message": "ok",
		"task_id": "t1",
		"results": []any{
			map[string]any{
				"video_name":        "clip.mp4",
				"base_frames_count": 2,
				"base_frames_paths": []any{"frames/0001.jpg", "frames/0002.jpg"},
				"output_dir":        "frames",
			},
		},
	})
	client := newTestClient(t, transport)

	res, err := client.ExtractBaseFrames(context.Background(), "t1", 2.5)
	if err != nil {
		t.Fatalf("extract base frames: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success response")
	}
	paths := res.FramePaths()
	if len(paths) != 2 {
		t.Fatalf("frame paths = %d, want 2", len(paths))
	}

	form := transport.lastForm(t)
	if form.Get("task_id") != "t1" {
		t.Fatalf("task_id = %q, want t1", form.Get("task_id"))
	}
	if form.Get("interval") != "2.5" {
		t.Fatalf("interval = %q, want 2.5", form.Get("interval"))
	}
	if ct := transport.lastContentType; ct != "application/x-www-form-urlencoded" {
		t.Fatalf("content type = %q", ct)
	}
}

func TestStartComicGenerationEncodesConfig(t *testing.T) {
	transport := newFakeTransport()
	transport.setJSONResponse("/api/process/complete-comic", map[string]any{
		"success": true,
		"task_id": "t1",
		"status":  "processing",
	})
	client := newTestClient(t, transport)

	task := domain.GenerationTask{
		TaskID:    "t1",
		VideoPath: "/uploads/clip.mp4",
		Config: domain.GenerationConfig{
			StoryStyle:         "noir",
			TargetFrames:       6,
			FrameInterval:      1.5,
			SignificanceWeight: 0.8,
			QualityWeight:      0.2,
			ImageSize:          "768x768",
			MaxConcurrent:      2,
		},
	}
	ack, err := client.StartComicGeneration(context.Background(), task)
	if err != nil {
		t.Fatalf("start generation: %v", err)
	}
	if !ack.Success {
		t.Fatalf("expected accepted kickoff")
	}

	form := transport.lastForm(t)
	want := map[string]string{
		"task_id":             "t1",
		"video_path":          "/uploads/clip.mp4",
		"story_style":         "noir",
		"target_frames":       "6",
		"frame_interval":      "1.5",
		"significance_weight": "0.8",
		"quality_weight":      "0.2",
		"image_size":          "768x768",
		"max_concurrent":      "2",
	}
	for key, value := range want {
		if got := form.Get(key); got != value {
			t.Fatalf("form[%s] = %q, want %q", key, got, value)
		}
	}
	if form.Has("style_prompt") {
		t.Fatalf("style_prompt should be omitted when empty")
	}
}

func TestGetTaskStatusDecodesPayload(t *testing.T) {
	transport := newFakeTransport()
	transport.setJSONResponse("/api/task/status/t1", map[string]any{
		"success":  true,
		"task_id":  "t1",
		"status":   "processing",
		"message":  "stylizing frames",
		"progress": 42,
		"stage":    "image_generation",
	})
	client := newTestClient(t, transport)

	status, err := client.GetTaskStatus(context.Background(), "t1")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if status.Progress != 42 || status.Stage != "image_generation" {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestNonOKStatusReturnsAPIError(t *testing.T) {
	transport := newFakeTransport()
	transport.responses["/api/task/status/t1"] = responseStub{
		status: http.StatusBadGateway,
		body:   []byte(`{"message":"backend unavailable"}`),
	}
	client := newTestClient(t, transport)

	_, err := client.GetTaskStatus(context.Background(), "t1")
	if err == nil {
		t.Fatalf("expected error for 502")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", apiErr.StatusCode)
	}
	if apiErr.Message != "backend unavailable" {
		t.Fatalf("message = %q", apiErr.Message)
	}
}

func TestUndecodableBodyReturnsError(t *testing.T) {
	transport := newFakeTransport()
	transport.responses["/api/task/status/t1"] = responseStub{
		status: http.StatusOK,
		body:   []byte("<html>not json</html>"),
	}
	client := newTestClient(t, transport)

	if _, err := client.GetTaskStatus(context.Background(), "t1"); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient(Options{}); !errors.Is(err, ErrMissingBaseURL) {
		t.Fatalf("expected ErrMissingBaseURL, got %v", err)
	}
}

func newTestClient(t *testing.T, transport http.RoundTripper) *Client {
	t.Helper()
	client, err := NewClient(Options{
		BaseURL:    "http://backend.test",
		HTTPClient: &http.Client{Transport: transport},
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

type fakeTransport struct {
	responses       map[string]responseStub
	lastBody        []byte
	lastContentType string
}

type responseStub struct {
	status int
	body   []byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{responses: map[string]responseStub{}}
}

func (f *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Body != nil {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		req.Body.Close()
		f.lastBody = body
		f.lastContentType = req.Header.Get("Content-Type")
	}
	if stub, ok := f.responses[req.URL.Path]; ok {
		return &http.Response{
			StatusCode: stub.status,
			Header:     http.Header{"Content-Type": []string{"application/json"}},
			Body:       io.NopCloser(bytes.NewReader(stub.body)),
		}, nil
	}
	return &http.Response{
		StatusCode: http.StatusNotFound,
		Body:       io.NopCloser(strings.NewReader("not found")),
	}, nil
}

func (f *fakeTransport) setJSONResponse(path string, payload any) {
	body, _ := json.Marshal(payload)
	f.responses[path] = responseStub{status: http.StatusOK, body: body}
}

func (f *fakeTransport) lastForm(t *testing.T) url.Values {
	t.Helper()
	form, err := url.ParseQuery(string(f.lastBody))
	if err != nil {
		t.Fatalf("parse form body: %v", err)
	}
	return form
}
