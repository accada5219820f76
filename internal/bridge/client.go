package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Client drives a remote encode job over the bridge protocol.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the given bridge base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Minute},
	}
}

// StartJob opens a new encode job and returns its id.
func (c *Client) StartJob(ctx context.Context, req StartRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	var resp struct {
		JobID string `json:"jobId"`
	}
	err = c.do(ctx, http.MethodPost, "/export/start", "application/json", bytes.NewReader(body), &resp)
	if err != nil {
		return "", err
	}
	return resp.JobID, nil
}

// SubmitFrame uploads one raw RGBA frame.
func (c *Client) SubmitFrame(ctx context.Context, jobID string, index int, pix []byte) error {
	path := fmt.Sprintf("/export/frame/%s?index=%d", jobID, index)
	return c.do(ctx, http.MethodPost, path, "application/octet-stream", bytes.NewReader(pix), nil)
}

// SubmitAudio uploads the mixed WAV track.
func (c *Client) SubmitAudio(ctx context.Context, jobID, wavPath string) error {
	f, err := os.Open(wavPath)
	if err != nil {
		return err
	}
	defer f.Close()
	return c.do(ctx, http.MethodPost, "/export/audio/"+jobID, "audio/wav", f, nil)
}

// Finalize closes the job and waits for the container to be written.
func (c *Client) Finalize(ctx context.Context, jobID string) (Status, error) {
	var st Status
	err := c.do(ctx, http.MethodPost, "/export/finalize/"+jobID, "", nil, &st)
	return st, err
}

// Progress fetches the job status.
func (c *Client) Progress(ctx context.Context, jobID string) (Status, error) {
	var st Status
	err := c.do(ctx, http.MethodGet, "/export/progress/"+jobID, "", nil, &st)
	return st, err
}

// Cancel aborts the job.
func (c *Client) Cancel(ctx context.Context, jobID string) error {
	return c.do(ctx, http.MethodPost, "/export/cancel/"+jobID, "", nil, nil)
}

// Download streams the finished artifact into w.
func (c *Client) Download(ctx context.Context, jobID string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/export/download/"+jobID, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	_, err = io.Copy(w, resp.Body)
	return err
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	var e struct {
		Error string `json:"error"`
	}
	if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Error != "" {
		return fmt.Errorf("bridge: %s (HTTP %d)", e.Error, resp.StatusCode)
	}
	return fmt.Errorf("bridge: HTTP %d", resp.StatusCode)
}
