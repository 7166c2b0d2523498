package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// URLStore persists a room's media URL through the relay's REST endpoint.
type URLStore struct {
	endpoint string
	http     *http.Client
}

func NewURLStore(serverURL string, timeout time.Duration) (*URLStore, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse server url: %w", err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}

	return &URLStore{
		endpoint: u.JoinPath("api", "rooms", "url").String(),
		http:     &http.Client{Timeout: timeout},
	}, nil
}

func (s *URLStore) PutURL(ctx context.Context, roomID, mediaURL string) error {
	body, err := json.Marshal(map[string]string{
		"room_id": roomID,
		"url":     mediaURL,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to put url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("failed to put url: unexpected status %d", resp.StatusCode)
	}

	return nil
}
