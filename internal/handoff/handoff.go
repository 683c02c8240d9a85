// Package handoff delivers a confirmed session result downstream: always to
// a file, and to the task-creation endpoint when one is configured.
package handoff

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"time"

	"github.com/hseinmoussa/jml-tasks/internal/batch"
	"github.com/hseinmoussa/jml-tasks/internal/config"
	"github.com/hseinmoussa/jml-tasks/internal/fileutil"
	"github.com/hseinmoussa/jml-tasks/internal/taskgraph"
)

// Handoff writes and posts confirmed results.
type Handoff struct {
	url        string
	format     string
	client     *http.Client
	retryDelay time.Duration
}

// New creates a Handoff from the given configuration.
func New(cfg *config.Config) *Handoff {
	return &Handoff{
		url:        cfg.HandoffURL,
		format:     cfg.OutputFormat,
		client:     &http.Client{Timeout: cfg.HandoffTimeout},
		retryDelay: 5 * time.Second,
	}
}

// Delivery reports what Deliver did.
type Delivery struct {
	Path   string // file the result was written to
	Posted bool   // the endpoint accepted the result
}

// ResultPath returns the default file for a result: <dir>/<session id>.<format>.
func (h *Handoff) ResultPath(dir, sessionID string) string {
	return filepath.Join(dir, sessionID+"."+h.format)
}

// Deliver writes res to path in the configured format and, if a handoff
// URL is set, POSTs it as JSON. The file is written first so a failed post
// never loses the result; post failures are logged as warnings and only
// reflected in Delivery.Posted.
func (h *Handoff) Deliver(ctx context.Context, res taskgraph.Result, path string) (Delivery, error) {
	data, err := batch.Encode(res, h.format)
	if err != nil {
		return Delivery{}, err
	}
	if err := fileutil.AtomicWrite(path, data, 0644); err != nil {
		return Delivery{}, fmt.Errorf("write result %s: %w", path, err)
	}

	d := Delivery{Path: path}
	if h.url == "" {
		return d, nil
	}
	if err := h.post(ctx, res); err != nil {
		log.Printf("WARN: handoff of session %s failed: %v; result kept at %s", res.SessionID, err, path)
		return d, nil
	}
	d.Posted = true
	return d, nil
}

// post sends the result, retrying once after retryDelay.
func (h *Handoff) post(ctx context.Context, res taskgraph.Result) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal handoff payload: %w", err)
	}

	err = h.doPost(ctx, res.SessionID, payload)
	if err == nil {
		return nil
	}
	log.Printf("WARN: handoff first attempt failed: %v; retrying in %v", err, h.retryDelay)

	select {
	case <-ctx.Done():
		return fmt.Errorf("handoff cancelled before retry: %w (first: %v)", ctx.Err(), err)
	case <-time.After(h.retryDelay):
	}
	if retryErr := h.doPost(ctx, res.SessionID, payload); retryErr != nil {
		return fmt.Errorf("handoff failed after retry: %w (first: %v)", retryErr, err)
	}
	return nil
}

// doPost performs a single POST with the session id as Idempotency-Key.
func (h *Handoff) doPost(ctx context.Context, sessionID string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build handoff request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", sessionID)

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("post handoff: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("handoff endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
