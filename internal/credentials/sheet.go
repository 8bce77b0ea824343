package credentials

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetReader reads a fixed range of a spreadsheet with a bearer token.
type SheetReader struct {
	spreadsheetID string
	cellRange     string
	endpoint      string
	httpClient    *http.Client
}

func NewSheetReader(spreadsheetID, cellRange, endpoint string, httpClient *http.Client) *SheetReader {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &SheetReader{
		spreadsheetID: spreadsheetID,
		cellRange:     cellRange,
		endpoint:      endpoint,
		httpClient:    httpClient,
	}
}

// Values returns the rows of the configured range.
func (r *SheetReader) Values(ctx context.Context, token *Token) ([][]interface{}, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token.AccessToken,
		TokenType:   "Bearer",
		Expiry:      token.ExpiresAt,
	})
	authed := oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, r.httpClient), ts)

	opts := []option.ClientOption{option.WithHTTPClient(authed)}
	if r.endpoint != "" {
		opts = append(opts, option.WithEndpoint(r.endpoint))
	}
	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	resp, err := srv.Spreadsheets.Values.Get(r.spreadsheetID, r.cellRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get sheet values %s: %w", r.cellRange, err)
	}
	if resp == nil || len(resp.Values) == 0 {
		return nil, fmt.Errorf("%w: range %s is empty", ErrConfig, r.cellRange)
	}
	return resp.Values, nil
}
