package contacts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"path"
	"strings"
	"time"

	"dbregistry/internal/config"
	"dbregistry/internal/table"
)

const maxAttempts = 5

// Client downloads a published contact sheet (CSV, XLSX or an HTML table).
type Client struct {
	httpClient *http.Client
}

func NewClient(cfg config.Config) *Client {
	return &Client{httpClient: &http.Client{Timeout: time.Duration(cfg.HTTPTimeoutMs) * time.Millisecond}}
}

// URLSource reads the contact registry from a URL.
type URLSource struct {
	URL    string
	Client *Client
}

func (s URLSource) Grid(ctx context.Context) ([][]string, error) {
	return s.Client.FetchTable(ctx, s.URL)
}

// FetchTable downloads rawURL and parses the body as a table. Transient
// failures are retried with exponential backoff.
func (c *Client) FetchTable(ctx context.Context, rawURL string) ([][]string, error) {
	body, contentType, err := c.fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return table.Parse(tableName(rawURL, contentType), body)
}

func (c *Client) fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, "", err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, "", ctx.Err()
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			if isRetryableStatus(resp.StatusCode) && attempt < maxAttempts {
				backoff := time.Duration(250*(1<<(attempt-1))+rand.Intn(100)) * time.Millisecond
				time.Sleep(backoff)
				lastErr = fmt.Errorf("contacts status %d", resp.StatusCode)
				continue
			}
			return nil, "", fmt.Errorf("contacts fetch error: status=%d body=%s", resp.StatusCode, string(bytes.TrimSpace(body)))
		}
		return body, resp.Header.Get("Content-Type"), nil
	}

	if lastErr == nil {
		lastErr = errors.New("contacts request failed")
	}
	return nil, "", lastErr
}

func isRetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// tableName picks a file name whose extension tells table.Parse the format.
func tableName(rawURL, contentType string) string {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "spreadsheetml"):
		return "contacts.xlsx"
	case strings.Contains(ct, "text/html"):
		return "contacts.html"
	case strings.Contains(ct, "tab-separated"):
		return "contacts.tsv"
	case strings.Contains(ct, "csv"):
		return "contacts.csv"
	}
	name := path.Base(strings.SplitN(rawURL, "?", 2)[0])
	switch strings.ToLower(path.Ext(name)) {
	case ".csv", ".tsv", ".xlsx", ".xlsm", ".html", ".htm":
		return name
	}
	return "contacts.csv"
}
