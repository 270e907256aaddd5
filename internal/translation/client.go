// Package translation forwards finalized transcript text to a
// LibreTranslate-compatible service.
package translation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Result is the translation of one text into one target language.
type Result struct {
	Primary          string   `json:"primary"`
	Alternatives     []string `json:"alternatives,omitempty"`
	DetectedLanguage string   `json:"detectedLanguage,omitempty"`
}

type Client struct {
	base string
	http *http.Client
}

// New returns a client for the service at base. A non-positive timeout
// falls back to 8 seconds.
func New(base string, timeoutSec int) *Client {
	if timeoutSec <= 0 {
		timeoutSec = 8
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
	}
}

// Translate translates text into every target concurrently and returns the
// results keyed by target. An empty source is sent as "auto". Any failed
// target fails the whole call.
func (c *Client) Translate(ctx context.Context, text, source string, targets []string, altLimit int) (map[string]Result, error) {
	out := make(map[string]Result, len(targets))
	if c == nil || c.base == "" || len(targets) == 0 || strings.TrimSpace(text) == "" {
		return out, nil
	}

	src := strings.TrimSpace(source)
	if src == "" {
		src = "auto"
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	for _, tgt := range targets {
		g.Go(func() error {
			r, err := c.translateOne(ctx, text, src, tgt, altLimit)
			if err != nil {
				return err
			}
			mu.Lock()
			out[tgt] = r
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) translateOne(ctx context.Context, text, source, target string, altLimit int) (Result, error) {
	payload := map[string]any{
		"q":      text,
		"source": source,
		"target": target,
		"format": "text",
	}
	if altLimit > 0 {
		payload["alternatives"] = altLimit
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("translation: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/translate", bytes.NewReader(b))
	if err != nil {
		return Result{}, fmt.Errorf("translation: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("translation: %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("translation: http %d for target %s", resp.StatusCode, target)
	}

	var lr struct {
		TranslatedText   string   `json:"translatedText"`
		Alternatives     []string `json:"alternatives"`
		DetectedLanguage any      `json:"detectedLanguage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return Result{}, fmt.Errorf("translation: decode response for %s: %w", target, err)
	}

	r := Result{Primary: strings.TrimSpace(lr.TranslatedText)}
	for _, a := range lr.Alternatives {
		if s := strings.TrimSpace(a); s != "" {
			r.Alternatives = append(r.Alternatives, s)
		}
	}
	// LibreTranslate reports {"language": "en", "confidence": 90} for auto
	// sources; some deployments send a bare code.
	switch d := lr.DetectedLanguage.(type) {
	case string:
		r.DetectedLanguage = d
	case map[string]any:
		r.DetectedLanguage, _ = d["language"].(string)
	}
	return r, nil
}
