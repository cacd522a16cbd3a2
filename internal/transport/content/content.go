package content

import (
	"bytes"
	"communities/internal/application/entity"
	"communities/pkg/httpclient"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"go.uber.org/zap"
)

// Client ходит в content-сервис за presigned URL для вложений.
type Client struct {
	contentURL string
	http       httpclient.HTTPClient
	logger     *zap.SugaredLogger
}

type signRequest struct {
	Verb string `json:"verb"` // GET | PUT
}

func NewClient(contentURL string, http httpclient.HTTPClient, logger *zap.SugaredLogger) *Client {
	return &Client{
		contentURL: contentURL,
		http:       http,
		logger:     logger,
	}
}

// SignURL запрашивает подписанную ссылку на вложение.
func (c *Client) SignURL(ctx context.Context, attachmentID, verb string) (*entity.PresignedURL, error) {
	base, err := url.Parse(c.contentURL)
	if err != nil {
		return nil, fmt.Errorf("parse content url %q: %w", c.contentURL, err)
	}
	target, err := base.Parse("attachment/" + attachmentID)
	if err != nil {
		return nil, fmt.Errorf("build attachment url: %w", err)
	}

	body, err := json.Marshal(signRequest{Verb: verb})
	if err != nil {
		return nil, fmt.Errorf("marshal sign request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, target.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build sign request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		c.logger.Errorf("[attachment: %s] sign url request failed: %v", attachmentID, err)
		return nil, fmt.Errorf("sign url request: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sign url request: unexpected status %d", resp.StatusCode)
	}

	var signed entity.PresignedURL
	if err := json.NewDecoder(resp.Body).Decode(&signed); err != nil {
		return nil, fmt.Errorf("decode presigned url: %w", err)
	}

	return &signed, nil
}
