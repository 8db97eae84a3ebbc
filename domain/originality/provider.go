// Package originality runs plagiarism checks on capstone submissions through
// an external provider, driven by the originality-check dispatch queue.
package originality

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/capstonehub/capstonehub/internal/config"
	"github.com/capstonehub/capstonehub/pkg/logger"
)

// CheckResult is the outcome of one provider check
type CheckResult struct {
	// Score is the originality percentage, 0-100 (higher is more original)
	Score float64 `json:"score"`
	// ReportURL links to the provider's full report, when available
	ReportURL string `json:"report_url,omitempty"`
}

// Provider runs an originality check against a submitted document
type Provider interface {
	Check(ctx context.Context, documentURL string) (*CheckResult, error)
}

// HTTPProvider calls an external originality service over HTTP
type HTTPProvider struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	log        *slog.Logger
}

// NewHTTPProvider creates a provider client for the configured service
func NewHTTPProvider(cfg *config.OriginalityConfig, log *slog.Logger) *HTTPProvider {
	return &HTTPProvider{
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		baseURL: cfg.ServiceURL,
		apiKey:  cfg.APIKey,
		log:     log.With(logger.Scope("originality.provider")),
	}
}

type checkRequest struct {
	DocumentURL string `json:"document_url"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// Check submits the document for analysis and waits for the result. The
// provider call is synchronous; the dispatch queue provides the async layer.
func (p *HTTPProvider) Check(ctx context.Context, documentURL string) (*CheckResult, error) {
	start := time.Now()
	p.log.Debug("running originality check", slog.String("document_url", documentURL))

	body, err := json.Marshal(checkRequest{DocumentURL: documentURL})
	if err != nil {
		return nil, fmt.Errorf("marshal check request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/checks", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("originality check timed out: %w", err)
		}
		return nil, fmt.Errorf("originality provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read provider response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if json.Unmarshal(raw, &errResp) == nil && errResp.Detail != "" {
			return nil, fmt.Errorf("originality provider returned %d: %s", resp.StatusCode, errResp.Detail)
		}
		return nil, fmt.Errorf("originality provider returned %d", resp.StatusCode)
	}

	var result CheckResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode provider response: %w", err)
	}
	if result.Score < 0 || result.Score > 100 {
		return nil, fmt.Errorf("provider score out of range: %v", result.Score)
	}

	p.log.Info("originality check complete",
		slog.String("document_url", documentURL),
		slog.Float64("score", result.Score),
		slog.Duration("duration", time.Since(start)))

	return &result, nil
}

// NewProvider selects the HTTP provider when configured, otherwise a
// deterministic simulated provider for local development.
func NewProvider(cfg *config.Config, log *slog.Logger) Provider {
	if cfg.Originality.IsConfigured() {
		log.Info("using HTTP originality provider",
			slog.String("service_url", cfg.Originality.ServiceURL))
		return NewHTTPProvider(&cfg.Originality, log)
	}

	log.Info("using simulated originality provider (ORIGINALITY_SERVICE_URL not set)")
	return &simulatedProvider{}
}

// simulatedProvider derives a stable score from the document URL so local
// runs behave consistently without a real provider.
type simulatedProvider struct{}

func (simulatedProvider) Check(ctx context.Context, documentURL string) (*CheckResult, error) {
	h := fnv.New32a()
	h.Write([]byte(documentURL))
	// 50.0 - 99.9
	score := 50 + float64(h.Sum32()%500)/10

	return &CheckResult{Score: score}, nil
}
