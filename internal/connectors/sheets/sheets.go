// Package sheets reads the contact registry from and publishes the final
// registry to Google Sheets.
package sheets

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"dbregistry/internal/config"
	"dbregistry/internal/connectors"
)

type Client struct {
	service *sheetsapi.Service
	limiter *RateLimiter
}

func NewClient(ctx context.Context, cfg config.Config) (*Client, error) {
	tokenSource, err := connectors.GoogleTokenSource(ctx, cfg, sheetsapi.SpreadsheetsScope)
	if err != nil {
		return nil, err
	}
	return NewClientWithOptions(ctx, cfg.SheetsRateLimitRPS, option.WithTokenSource(tokenSource))
}

func NewClientWithOptions(ctx context.Context, rps int, opts ...option.ClientOption) (*Client, error) {
	svc, err := sheetsapi.NewService(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{service: svc, limiter: NewRateLimiter(rps)}, nil
}

// ReadRange returns the cells of rng as strings. Short rows are left short.
func (c *Client) ReadRange(ctx context.Context, spreadsheetID, rng string) ([][]string, error) {
	if err := c.limiter.WaitTurn(ctx); err != nil {
		return nil, err
	}
	resp, err := c.service.Spreadsheets.Values.Get(spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}

	out := make([][]string, 0, len(resp.Values))
	for _, row := range resp.Values {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = strings.TrimSpace(fmt.Sprint(v))
		}
		out = append(out, cells)
	}
	return out, nil
}

// Publish replaces the content of sheet with rows, starting at A1.
func (c *Client) Publish(ctx context.Context, spreadsheetID, sheet string, rows [][]any) error {
	if err := c.limiter.WaitTurn(ctx); err != nil {
		return err
	}
	if _, err := c.service.Spreadsheets.Values.Clear(spreadsheetID, sheet, &sheetsapi.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", sheet, err)
	}

	if err := c.limiter.WaitTurn(ctx); err != nil {
		return err
	}
	body := &sheetsapi.ValueRange{Values: rows}
	if _, err := c.service.Spreadsheets.Values.Update(spreadsheetID, sheet+"!A1", body).ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("write %s: %w", sheet, err)
	}
	return nil
}

// ContactSheet serves the contact registry from a spreadsheet range.
type ContactSheet struct {
	Client        *Client
	SpreadsheetID string
	Range         string
}

func (s ContactSheet) Grid(ctx context.Context) ([][]string, error) {
	return s.Client.ReadRange(ctx, s.SpreadsheetID, s.Range)
}
