package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"go.uber.org/zap"
)

var tweetURLPattern = regexp.MustCompile(`https://twitter\.com/[A-Za-z0-9_]+/status/\d+(?:\?s=\d+)?`)

// Embedder replaces known social-media URLs in post content with embeddable
// HTML fetched from an oEmbed endpoint. Embedding is strictly best-effort:
// any failure falls back to a plain link.
type Embedder struct {
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

func NewEmbedder(endpoint string, logger *zap.Logger) *Embedder {
	return &Embedder{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger.With(zap.String("component", "embedder")),
	}
}

func (e *Embedder) EmbedSocialURLs(ctx context.Context, content string) string {
	embedded := content
	offset := 0

	for {
		loc := tweetURLPattern.FindStringIndex(embedded[offset:])
		if loc == nil {
			break
		}
		start, end := offset+loc[0], offset+loc[1]
		tweetURL := embedded[start:end]

		html := e.fetchEmbedHTML(ctx, tweetURL)
		embedded = embedded[:start] + html + embedded[end:]
		offset = start + len(html)
	}

	return embedded
}

func (e *Embedder) fetchEmbedHTML(ctx context.Context, tweetURL string) string {
	html, err := e.fetchOEmbed(ctx, tweetURL)
	if err != nil {
		e.logger.Warn("Falling back to plain link for embed",
			zap.String("url", tweetURL),
			zap.Error(err))
		return fmt.Sprintf(`<a href="%s">%s</a>`, tweetURL, tweetURL)
	}
	return html
}

func (e *Embedder) fetchOEmbed(ctx context.Context, tweetURL string) (string, error) {
	reqURL := fmt.Sprintf("%s?url=%s", e.endpoint, url.QueryEscape(tweetURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch oembed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("oembed endpoint returned status %d", resp.StatusCode)
	}

	var body struct {
		HTML string `json:"html"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode oembed response: %w", err)
	}
	if body.HTML == "" {
		return "", fmt.Errorf("oembed response had no html")
	}

	return body.HTML, nil
}
