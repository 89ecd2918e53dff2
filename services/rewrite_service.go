package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/renowix/surveyor-api/config"
)

// RewriteService calls the optional AI text-transform endpoint used to
// polish quotation terms. It is fail-silent by contract: callers fall back
// to the original text on any failure.
type RewriteService struct {
	baseURL    string
	httpClient *http.Client
}

type rewriteRequest struct {
	Text string `json:"text"`
}

type rewriteResponse struct {
	Text string `json:"text"`
}

// NewRewriteService creates a new rewrite service instance
func NewRewriteService(cfg *config.Config) *RewriteService {
	return &RewriteService{
		baseURL: cfg.RewriteAPIURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Rewrite sends the text to the transform endpoint and returns the
// transformed result. Any failure is returned to the caller, who is
// expected to keep the original text.
func (s *RewriteService) Rewrite(text string) (string, error) {
	if s.baseURL == "" {
		return "", fmt.Errorf("rewrite service is not configured")
	}

	payload, err := json.Marshal(rewriteRequest{Text: text})
	if err != nil {
		return "", fmt.Errorf("failed to encode rewrite request: %w", err)
	}

	resp, err := s.httpClient.Post(s.baseURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to call rewrite endpoint: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("rewrite endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	var result rewriteResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode rewrite response: %w", err)
	}

	if result.Text == "" {
		return "", fmt.Errorf("rewrite endpoint returned empty text")
	}

	return result.Text, nil
}

// RewriteOrFallback returns the transformed text, or the original text when
// the transform fails. Failures are logged, never surfaced.
func (s *RewriteService) RewriteOrFallback(text string) string {
	rewritten, err := s.Rewrite(text)
	if err != nil {
		log.Printf("Rewrite failed, keeping original text: %v", err)
		return text
	}
	return rewritten
}
