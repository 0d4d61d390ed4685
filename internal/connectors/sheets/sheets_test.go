package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"dbregistry/internal/contacts"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(t *testing.T, payload any) *http.Response {
	t.Helper()
	blob, err := json.Marshal(payload)
	require.NoError(t, err)
	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(string(blob))), Header: header}
}

func testClient(t *testing.T, fn roundTripFunc) *Client {
	t.Helper()
	client, err := NewClientWithOptions(context.Background(), 1000,
		option.WithHTTPClient(&http.Client{Transport: fn}),
		option.WithEndpoint("https://sheets.example.test/"),
	)
	require.NoError(t, err)
	return client
}

func TestContactSheetGrid(t *testing.T) {
	client := testClient(t, func(r *http.Request) (*http.Response, error) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Contains(t, r.URL.Path, "/spreadsheets/sheet-1/values/")
		return jsonResponse(t, map[string]any{
			"range":  "contacts!A1:D3",
			"values": [][]any{{"name", "email_contact_person_db"}, {"TriNetX ", "t@example.org"}, {"Epic Cosmos"}},
		}), nil
	})

	rows, err := contacts.Load(context.Background(), ContactSheet{Client: client, SpreadsheetID: "sheet-1", Range: "contacts!A1:D"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "TriNetX", rows[0].Name)
	assert.Equal(t, "t@example.org", *rows[0].PersonEmail)
	assert.Nil(t, rows[1].PersonEmail)
}

func TestPublishClearsThenWrites(t *testing.T) {
	var calls []string
	var written [][]any
	client := testClient(t, func(r *http.Request) (*http.Response, error) {
		switch {
		case strings.HasSuffix(r.URL.Path, ":clear"):
			calls = append(calls, "clear")
			return jsonResponse(t, map[string]any{"clearedRange": "registry"}), nil
		case r.Method == http.MethodPut:
			calls = append(calls, "update")
			assert.Equal(t, "RAW", r.URL.Query().Get("valueInputOption"))
			var body struct {
				Values [][]any `json:"values"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			written = body.Values
			return jsonResponse(t, map[string]any{"updatedRows": len(body.Values)}), nil
		}
		return nil, fmt.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
	})

	rows := [][]any{{"record_id", "name"}, {1, "TriNetX"}}
	require.NoError(t, client.Publish(context.Background(), "sheet-1", "registry", rows))
	assert.Equal(t, []string{"clear", "update"}, calls)
	require.Len(t, written, 2)
	assert.Equal(t, "TriNetX", written[1][1])
}

func TestRateLimiterHonoursContext(t *testing.T) {
	limiter := NewRateLimiter(1)
	require.NoError(t, limiter.WaitTurn(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, limiter.WaitTurn(ctx), context.Canceled)
}
