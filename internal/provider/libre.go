package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const libreDefaultTimeout = 10 * time.Second

// LibreConfig configures the primary (self-hosted HTTP) provider.
type LibreConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Libre talks to a LibreTranslate-compatible endpoint. It is the
// primary provider: cheap, self-hosted, bounded by a hard client
// timeout so a stuck instance degrades into a fallback, not a hang.
type Libre struct {
	cfg    LibreConfig
	client *http.Client
}

func NewLibre(cfg LibreConfig) *Libre {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = libreDefaultTimeout
	}
	return &Libre{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *Libre) Name() string { return "libre" }

type libreRequest struct {
	Query  string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
	APIKey string `json:"api_key,omitempty"`
}

type libreResponse struct {
	TranslatedText   string `json:"translatedText"`
	DetectedLanguage struct {
		Language   string  `json:"language"`
		Confidence float64 `json:"confidence"`
	} `json:"detectedLanguage"`
	Error string `json:"error"`
}

func (p *Libre) Translate(ctx context.Context, text, targetLang string) (Result, error) {
	body, err := json.Marshal(libreRequest{
		Query:  text,
		Source: "auto",
		Target: targetLang,
		Format: "text",
		APIKey: p.cfg.APIKey,
	})
	if err != nil {
		return Result{}, fmt.Errorf("libre: encode request: %w", err)
	}

	u := strings.TrimRight(p.cfg.BaseURL, "/") + "/translate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("libre: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("libre: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Bounded read so a broken proxy can't feed us megabytes of HTML.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return Result{}, fmt.Errorf("libre: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var lr libreResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return Result{}, fmt.Errorf("libre: decode response: %w", err)
	}
	if lr.Error != "" {
		return Result{}, fmt.Errorf("libre: api error: %s", lr.Error)
	}
	if lr.TranslatedText == "" {
		return Result{}, fmt.Errorf("libre: response missing translatedText")
	}
	// Both fields are required; a body without the detected language is
	// a malformed response, not a success.
	if lr.DetectedLanguage.Language == "" {
		return Result{}, fmt.Errorf("libre: response missing detectedLanguage")
	}

	return Result{
		Text:         lr.TranslatedText,
		DetectedLang: lr.DetectedLanguage.Language,
	}, nil
}
