// Package measure implements the one-shot measurement task (C7): a
// streaming GET against an object URL, timed and chunked, with linear
// backoff retries, emitting a JSON result record.
package measure

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Status is the outcome of a measurement attempt.
type Status string

const (
	Succeeded Status = "SUCCEEDED"
	Errored   Status = "ERRORED"
)

// Record is the JSON output of a measurement task, per spec.md §4.7.
type Record struct {
	StartedOn         time.Time `json:"started_on"`
	Status            Status    `json:"status"`
	Error             string    `json:"error,omitempty"`
	LatencyS          float64   `json:"latency_s"`
	DownloadSizeBytes int64     `json:"download_size_bytes"`
	DurationS         float64   `json:"duration_s"`
	SpeedBPS          float64   `json:"speed_bps"`
}

// Options are the operational knobs for a measurement run.
type Options struct {
	URL         string
	Timeout     time.Duration
	ChunkSize   int
	Retries     int
	Backoff     time.Duration
	UserAgent   string
}

// DefaultOptions returns sane defaults, overridden by the CLI flags in
// cmd/task-worker.
func DefaultOptions(url string) Options {
	return Options{
		URL:       url,
		Timeout:   5 * time.Minute,
		ChunkSize: 64 * 1024,
		Retries:   2,
		Backoff:   time.Second,
		UserAgent: "mirrors-qa-task-worker",
	}
}

// Run performs up to opts.Retries+1 attempts of a streaming GET against
// opts.URL, returning the resulting Record. It never returns an error: a
// failed run is reported as an Errored Record, per spec.md §4.7.
func Run(ctx context.Context, opts Options) Record {
	var lastErr error
	for attempt := 1; attempt <= opts.Retries+1; attempt++ {
		record, err := attempt1(ctx, opts)
		if err == nil {
			return record
		}
		lastErr = err
		if attempt <= opts.Retries {
			time.Sleep(opts.Backoff * time.Duration(attempt))
		}
	}
	return Record{
		StartedOn: time.Now().UTC(),
		Status:    Errored,
		Error:     lastErr.Error(),
	}
}

func attempt1(ctx context.Context, opts Options) (Record, error) {
	startedOn := time.Now().UTC()

	reqCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, opts.URL, nil)
	if err != nil {
		return Record{}, fmt.Errorf("build request: %w", err)
	}
	if opts.UserAgent != "" {
		req.Header.Set("User-Agent", opts.UserAgent)
	}

	requestStart := time.Now()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Record{}, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()
	latency := time.Since(requestStart)

	if resp.StatusCode >= 400 {
		return Record{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 64 * 1024
	}
	buf := make([]byte, chunkSize)
	var total int64
	for {
		n, err := resp.Body.Read(buf)
		total += int64(n)
		if err == io.EOF {
			break
		}
		if err != nil {
			return Record{}, fmt.Errorf("read body: %w", err)
		}
	}
	duration := time.Since(requestStart)

	var speed float64
	if duration.Seconds() > 0 {
		speed = float64(total) / duration.Seconds()
	}

	return Record{
		StartedOn:         startedOn,
		Status:            Succeeded,
		LatencyS:          latency.Seconds(),
		DownloadSizeBytes: total,
		DurationS:         duration.Seconds(),
		SpeedBPS:          speed,
	}, nil
}

// WriteFile serializes r as JSON to path.
func WriteFile(path string, r Record) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal measurement record: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadFile deserializes a Record from path, the manager's read of a task's
// output file.
func ReadFile(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, fmt.Errorf("read measurement record: %w", err)
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("parse measurement record: %w", err)
	}
	return r, nil
}

// PatchPayload converts r into the partial-update body PATCH /tests/{id}
// expects, mapping *_s field names to the API's shorter names.
func (r Record) PatchPayload() map[string]interface{} {
	payload := map[string]interface{}{
		"started_on":    r.StartedOn.Format(time.RFC3339),
		"status":        string(r.Status),
		"latency":       r.LatencyS,
		"download_size": r.DownloadSizeBytes,
		"duration":      r.DurationS,
		"speed":         r.SpeedBPS,
	}
	if r.Error != "" {
		payload["error"] = r.Error
	}
	return payload
}
