// Package source talks to the pixeldrain API: file metadata before a
// download starts, direct download URLs, and per-account transfer
// quota.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"pixelfetch/internal/shared/logger"
)

// Referer is sent with every aria2c invocation so requests look like
// they originate from the site itself.
const Referer = "https://pixeldrain.com/"

const apiTimeout = 10 * time.Second

// FileInfo is the subset of the file-info response the engine needs.
type FileInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
}

// userLimits mirrors the /user/limits response.
type userLimits struct {
	TransferLimit     int64 `json:"transfer_limit"`
	TransferLimitUsed int64 `json:"transfer_limit_used"`
}

// Client is a thin pixeldrain API client.
type Client struct {
	apiBase string
	http    *http.Client
}

// NewClient creates a client against the given API base, e.g.
// "https://pixeldrain.com/api".
func NewClient(apiBase string) *Client {
	return &Client{
		apiBase: apiBase,
		http:    &http.Client{Timeout: apiTimeout},
	}
}

// FileInfo fetches name and size for a file ID. Best-effort callers
// may treat an error as "size unknown" and proceed.
func (c *Client) FileInfo(ctx context.Context, fileID, apiKey string) (*FileInfo, error) {
	l := logger.WithComponent("Source/Pixeldrain")

	url := fmt.Sprintf("%s/file/%s/info", c.apiBase, fileID)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	if apiKey != "" {
		req.SetBasicAuth("", apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("file info request returned HTTP %d", resp.StatusCode)
	}

	var info FileInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode file info: %w", err)
	}

	l.Info().Str("file_id", fileID).Str("name", info.Name).Int64("size", info.Size).Msg("Fetched file info.")
	return &info, nil
}

// DirectURL builds the direct download URL for a file, authenticated
// when an API key is supplied.
func (c *Client) DirectURL(fileID, apiKey string) string {
	if apiKey != "" {
		return fmt.Sprintf("%s/file/%s?key=%s", c.apiBase, fileID, apiKey)
	}
	return fmt.Sprintf("%s/file/%s", c.apiBase, fileID)
}

// RemainingQuota asks the API how much transfer allowance an account
// has left this period.
func (c *Client) RemainingQuota(ctx context.Context, apiKey string) (int64, error) {
	url := c.apiBase + "/user/limits"
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return 0, err
	}
	req.SetBasicAuth("", apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return 0, fmt.Errorf("limits request returned HTTP %d", resp.StatusCode)
	}

	var limits userLimits
	if err := json.NewDecoder(resp.Body).Decode(&limits); err != nil {
		return 0, fmt.Errorf("failed to decode limits: %w", err)
	}

	remaining := limits.TransferLimit - limits.TransferLimitUsed
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}
