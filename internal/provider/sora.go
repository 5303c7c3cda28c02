package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime/multipart"
	"net/http"
	"time"
)

// videoTask is the upstream task envelope, shared by submit and poll
// responses. Some gateways report the URL under output.url.
type videoTask struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	URL      string `json:"url"`
	Output   struct {
		URL string `json:"url"`
	} `json:"output"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (t *videoTask) resultURL() string {
	if t.URL != "" {
		return t.URL
	}
	return t.Output.URL
}

func (t *videoTask) completed() bool {
	return t.Status == "completed" || t.Status == "succeeded"
}

func (t *videoTask) failed() bool {
	return t.Status == "failed" || t.Status == "cancelled"
}

// maxStallPolls bounds how long the poll loop tolerates an unchanged
// progress value before declaring the task stuck (roughly ten minutes).
const maxStallPolls = 60

// SoraVideo drives the video endpoint: one multipart submit, then a poll
// loop with adaptive intervals until the task reaches a terminal status.
type SoraVideo struct {
	settings Settings
}

func NewSoraVideo(settings Settings) *SoraVideo {
	return &SoraVideo{settings: settings}
}

var _ Provider = (*SoraVideo)(nil)

func (p *SoraVideo) Generate(ctx context.Context, req Request, onProgress ProgressFunc) (*Result, error) {
	cfg, err := p.settings(ctx)
	if err != nil {
		return nil, err
	}
	if cfg.SoraAPIKey == "" {
		return nil, ErrNotConfigured
	}

	task, err := p.submit(ctx, cfg.SoraAPIKey, cfg.SoraBaseURL, req)
	if err != nil {
		return nil, err
	}
	if task.failed() {
		return nil, taskError(task)
	}
	if task.completed() && task.resultURL() != "" {
		if onProgress != nil {
			onProgress(100)
		}
		return &Result{URL: task.resultURL(), Meta: map[string]any{"task_id": task.ID}}, nil
	}
	if task.ID == "" {
		return nil, fmt.Errorf("video submit returned no task id")
	}

	final, err := p.poll(ctx, cfg.SoraAPIKey, cfg.SoraBaseURL, task.ID, onProgress)
	if err != nil {
		return nil, err
	}
	url := final.resultURL()
	if url == "" {
		return nil, fmt.Errorf("video task %s completed without a result URL", final.ID)
	}
	return &Result{URL: url, Meta: map[string]any{"task_id": final.ID}}, nil
}

func (p *SoraVideo) submit(ctx context.Context, apiKey, baseURL string, req Request) (*videoTask, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	_ = writer.WriteField("prompt", req.Prompt)
	if req.Model != "" {
		_ = writer.WriteField("model", req.Model)
	}
	for _, field := range []string{"seconds", "size", "orientation"} {
		if v, ok := req.Params[field].(string); ok && v != "" {
			_ = writer.WriteField(field, v)
		}
	}
	if len(req.Files) > 0 {
		part, err := writer.CreateFormFile("input_reference", "input.jpg")
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(req.Files[0].Data); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	payload := body.Bytes()
	contentType := writer.FormDataContentType()

	var task videoTask
	err := doJSON(ctx, func() (*http.Request, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodPost,
			joinURL(baseURL, "/v1/videos"), bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		r.Header.Set("Authorization", "Bearer "+apiKey)
		r.Header.Set("Content-Type", contentType)
		return r, nil
	}, &task)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (p *SoraVideo) poll(ctx context.Context, apiKey, baseURL, taskID string, onProgress ProgressFunc) (*videoTask, error) {
	lastProgress := -1
	stalls := 0
	for {
		var task videoTask
		err := doJSON(ctx, func() (*http.Request, error) {
			return jsonRequest(ctx, http.MethodGet,
				joinURL(baseURL, "/v1/videos/"+taskID), apiKey, nil)
		}, &task)
		if err != nil {
			return nil, err
		}

		if onProgress != nil {
			onProgress(task.Progress)
		}
		if task.completed() {
			return &task, nil
		}
		if task.failed() {
			return nil, taskError(&task)
		}

		if task.Progress == lastProgress {
			stalls++
			if stalls >= maxStallPolls {
				return nil, fmt.Errorf("video task %s stalled at %d%%", taskID, task.Progress)
			}
		} else {
			stalls = 0
			lastProgress = task.Progress
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval(task.Progress, stalls)):
		}
	}
}

// pollInterval shortens as progress climbs and widens while the task stalls.
func pollInterval(progress, stalls int) time.Duration {
	var base time.Duration
	switch {
	case progress < 30:
		base = 5 * time.Second
	case progress < 70:
		base = 3 * time.Second
	default:
		base = 2 * time.Second
	}
	if stalls > 0 {
		base += time.Duration(stalls) * 2 * time.Second
		if base > 10*time.Second {
			base = 10 * time.Second
		}
	}
	return base
}

func taskError(t *videoTask) error {
	if t.Error != nil && t.Error.Message != "" {
		return fmt.Errorf("video generation failed: %s", t.Error.Message)
	}
	return fmt.Errorf("video generation failed (status %s)", t.Status)
}

// SoraImage uses the same gateway's synchronous images endpoint.
type SoraImage struct {
	settings Settings
}

func NewSoraImage(settings Settings) *SoraImage {
	return &SoraImage{settings: settings}
}

var _ Provider = (*SoraImage)(nil)

func (p *SoraImage) Generate(ctx context.Context, req Request, onProgress ProgressFunc) (*Result, error) {
	cfg, err := p.settings(ctx)
	if err != nil {
		return nil, err
	}
	if cfg.SoraAPIKey == "" {
		return nil, ErrNotConfigured
	}
	return generateImage(ctx, cfg.SoraAPIKey, cfg.SoraBaseURL, req, onProgress)
}

type imageRequest struct {
	Prompt         string `json:"prompt"`
	Model          string `json:"model,omitempty"`
	N              int    `json:"n"`
	Size           string `json:"size,omitempty"`
	ResponseFormat string `json:"response_format"`
	InputImage     string `json:"input_image,omitempty"`
}

type imageResponse struct {
	Data []struct {
		URL     string `json:"url"`
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

func generateImage(ctx context.Context, apiKey, baseURL string, req Request, onProgress ProgressFunc) (*Result, error) {
	payload := imageRequest{
		Prompt:         req.Prompt,
		Model:          req.Model,
		N:              1,
		ResponseFormat: "b64_json",
	}
	if size, ok := req.Params["size"].(string); ok {
		payload.Size = size
	}
	if len(req.Files) > 0 {
		payload.InputImage = base64Encode(req.Files[0].Data)
	}

	var resp imageResponse
	err := doJSON(ctx, func() (*http.Request, error) {
		return jsonRequest(ctx, http.MethodPost,
			joinURL(baseURL, "/v1/images/generations"), apiKey, payload)
	}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("image endpoint returned no data")
	}
	if onProgress != nil {
		onProgress(100)
	}

	item := resp.Data[0]
	if item.URL != "" {
		return &Result{URL: item.URL}, nil
	}
	if item.B64JSON != "" {
		return &Result{URL: "data:image/png;base64," + item.B64JSON}, nil
	}
	return nil, fmt.Errorf("image endpoint returned neither url nor payload")
}

func base64Encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}
