package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"html"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"prompt-rush/internal/config"
)

// ImageProvider turns a combined keyword prompt into a rendered image,
// returned as a data URL. Latency and failure are real; callers treat a
// failed round as locally recoverable.
type ImageProvider interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// StabilityProvider calls the Stability AI core image endpoint.
type StabilityProvider struct {
	apiKey  string
	apiURL  string
	timeout time.Duration
	client  *http.Client
}

func NewStabilityProvider(cfg config.Config) *StabilityProvider {
	timeout := time.Duration(cfg.ImageTimeoutSeconds) * time.Second
	return &StabilityProvider{
		apiKey:  cfg.StabilityAPIKey,
		apiURL:  cfg.StabilityAPIURL,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *StabilityProvider) Generate(ctx context.Context, prompt string) (string, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	if err := form.WriteField("prompt", prompt); err != nil {
		return "", fmt.Errorf("failed to build image request")
	}
	if err := form.WriteField("output_format", "png"); err != nil {
		return "", fmt.Errorf("failed to build image request")
	}
	if err := form.WriteField("aspect_ratio", "4:3"); err != nil {
		return "", fmt.Errorf("failed to build image request")
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("failed to build image request")
	}

	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, p.apiURL, &body)
	if err != nil {
		return "", fmt.Errorf("failed to build image request")
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(p.apiKey))
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Accept", "image/*")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to reach image provider")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read image response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("image provider request failed (%d)", resp.StatusCode)
	}
	return encodeImageData("image/png", payload), nil
}

// MockProvider renders a deterministic placeholder SVG keyed on the prompt.
// Used whenever no Stability API key is configured.
type MockProvider struct{}

var mockPalette = []string{"#FF6B6B", "#4ECDC4", "#45B7D1", "#96CEB4", "#FFEAA7", "#DDA0DD", "#98D8C8"}

func (MockProvider) Generate(ctx context.Context, prompt string) (string, error) {
	hash := promptHash(prompt)
	color := mockPalette[hash%len(mockPalette)]
	background := mockPalette[(hash+3)%len(mockPalette)]
	hint := prompt
	if len(hint) > 30 {
		hint = hint[:30]
	}
	svg := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="512" height="384" viewBox="0 0 512 384">
  <rect width="512" height="384" fill="%s"/>
  <rect x="40" y="40" width="432" height="304" rx="16" fill="%s" opacity="0.5"/>
  <text x="256" y="160" text-anchor="middle" font-size="24" fill="#333" font-family="sans-serif">AI Generated Image</text>
  <text x="256" y="196" text-anchor="middle" font-size="16" fill="#666" font-family="sans-serif">(Mock Mode)</text>
  <text x="256" y="260" text-anchor="middle" font-size="14" fill="#555" font-family="sans-serif">Prompt hint:</text>
  <text x="256" y="288" text-anchor="middle" font-size="18" fill="#333" font-family="sans-serif">%s...</text>
</svg>`, background, color, html.EscapeString(hint))
	return encodeImageData("image/svg+xml", []byte(svg)), nil
}

func promptHash(prompt string) int {
	hash := 0
	for _, r := range prompt {
		hash = (hash << 5) - hash + int(r)
	}
	if hash < 0 {
		hash = -hash
	}
	return hash
}

func encodeImageData(contentType string, image []byte) string {
	if len(image) == 0 {
		return ""
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(image)
}
