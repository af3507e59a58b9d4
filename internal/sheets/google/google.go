// Package google mirrors expenses into a Google Sheets spreadsheet.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"kakeibo/internal/cache"
	"kakeibo/internal/log"
	ports "kakeibo/internal/sheets"
)

var _ ports.ExpenseMirror = (*Client)(nil)

// Options selects the spreadsheet and credentials. A service account wins
// over an OAuth client when both are set.
type Options struct {
	SpreadsheetID      string
	SheetName          string
	ServiceAccountJSON string
	ServiceAccountFile string
	OAuthClientJSON    string
	OAuthClientFile    string
	OAuthTokenJSON     string
	OAuthTokenFile     string
	// IDCacheTTL bounds how long the ID column is trusted before re-reading.
	IDCacheTTL time.Duration
}

// sheetAPI is the slice of the Sheets API the mirror uses.
type sheetAPI interface {
	Read(ctx context.Context, rng string) ([][]any, error)
	Update(ctx context.Context, rng string, rows [][]any) error
	Append(ctx context.Context, rng string, rows [][]any) error
	// DeleteRow removes a row by zero-based index.
	DeleteRow(ctx context.Context, sheet string, index int) error
}

type Client struct {
	api       sheetAPI
	sheetName string
	logger    *log.Logger

	// serializes writes; row numbers shift under concurrent edits
	mu  sync.Mutex
	ids *cache.LRUCache[[]string]
}

const idsKey = "ids"

func newClient(api sheetAPI, sheetName string, ttl time.Duration, logger *log.Logger) *Client {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Client{
		api:       api,
		sheetName: sheetName,
		logger:    logger.WithComponent(log.ComponentSheets),
		ids:       cache.NewLRUCache[[]string](1, ttl),
	}
}

// New builds a client from a service account or an OAuth client plus token.
func New(ctx context.Context, opts Options, logger *log.Logger) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if opts.SheetName == "" {
		opts.SheetName = "Expenses"
	}
	svc, err := newSheetsService(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return newClient(&serviceAPI{svc: svc, spreadsheetID: opts.SpreadsheetID}, opts.SheetName, opts.IDCacheTTL, logger), nil
}

func readSecret(inline, file string) ([]byte, error) {
	if s := strings.TrimSpace(inline); s != "" {
		return []byte(s), nil
	}
	if file == "" {
		return nil, nil
	}
	b, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", file, err)
	}
	return b, nil
}

func newSheetsService(ctx context.Context, opts Options) (*gsheet.Service, error) {
	saJSON, err := readSecret(opts.ServiceAccountJSON, opts.ServiceAccountFile)
	if err != nil {
		return nil, fmt.Errorf("service account: %w", err)
	}
	if len(saJSON) > 0 {
		return gsheet.NewService(ctx,
			goption.WithCredentialsJSON(saJSON),
			goption.WithScopes(gsheet.SpreadsheetsScope),
		)
	}

	clientJSON, err := readSecret(opts.OAuthClientJSON, opts.OAuthClientFile)
	if err != nil {
		return nil, fmt.Errorf("oauth client: %w", err)
	}
	tokenJSON, err := readSecret(opts.OAuthTokenJSON, opts.OAuthTokenFile)
	if err != nil {
		return nil, fmt.Errorf("oauth token: %w", err)
	}
	if len(clientJSON) == 0 || len(tokenJSON) == 0 {
		return nil, errors.New("missing credentials (set a service account, or an OAuth client and token)")
	}

	cfg, err := goauth.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(tokenJSON, &tok); err != nil {
		return nil, fmt.Errorf("oauth token: %w", err)
	}

	// token refreshes go through the pooled client too
	pooled := context.WithValue(ctx, oauth2.HTTPClient, newHTTPClientWithPooling())
	return gsheet.NewService(ctx, goption.WithHTTPClient(cfg.Client(pooled, &tok)))
}

// newHTTPClientWithPooling keeps connections to the Sheets API warm between
// mirror writes.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}

// idColumn returns column A, header included, from cache when fresh.
func (c *Client) idColumn(ctx context.Context) ([]string, error) {
	if ids, ok := c.ids.Get(idsKey); ok {
		return ids, nil
	}
	rows, err := c.api.Read(ctx, fmt.Sprintf("%s!A:A", c.sheetName))
	if err != nil {
		return nil, fmt.Errorf("read id column: %w", err)
	}
	ids := make([]string, len(rows))
	for i, row := range rows {
		if len(row) > 0 {
			ids[i] = strings.TrimSpace(fmt.Sprint(row[0]))
		}
	}
	c.ids.Set(idsKey, ids)
	return ids, nil
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if i > 0 && v == id {
			return i
		}
	}
	return -1
}

func (c *Client) UpsertExpense(ctx context.Context, row ports.Row) error {
	if row.ID == "" {
		return errors.New("mirror row needs an id")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	ids, err := c.idColumn(ctx)
	if err != nil {
		return err
	}

	if len(ids) == 0 {
		header := make([]any, len(ports.Header))
		for i, h := range ports.Header {
			header[i] = h
		}
		if err := c.api.Append(ctx, fmt.Sprintf("%s!A:E", c.sheetName), [][]any{header}); err != nil {
			c.ids.Delete(idsKey)
			return fmt.Errorf("write header: %w", err)
		}
		ids = []string{ports.Header[0]}
	}

	if i := indexOf(ids, row.ID); i >= 0 {
		n := i + 1
		rng := fmt.Sprintf("%s!A%d:E%d", c.sheetName, n, n)
		if err := c.api.Update(ctx, rng, [][]any{row.Values()}); err != nil {
			c.ids.Delete(idsKey)
			return fmt.Errorf("update row %d: %w", n, err)
		}
		c.logger.DebugContext(ctx, "Updated mirrored expense", log.FieldResourceID, row.ID, "row", n)
		return nil
	}

	if err := c.api.Append(ctx, fmt.Sprintf("%s!A:E", c.sheetName), [][]any{row.Values()}); err != nil {
		c.ids.Delete(idsKey)
		return fmt.Errorf("append row: %w", err)
	}
	c.ids.Set(idsKey, append(ids, row.ID))
	c.logger.DebugContext(ctx, "Appended mirrored expense", log.FieldResourceID, row.ID, "row", len(ids)+1)
	return nil
}

func (c *Client) DeleteExpense(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids, err := c.idColumn(ctx)
	if err != nil {
		return err
	}
	i := indexOf(ids, id)
	if i < 0 {
		return nil
	}
	if err := c.api.DeleteRow(ctx, c.sheetName, i); err != nil {
		c.ids.Delete(idsKey)
		return fmt.Errorf("delete row %d: %w", i+1, err)
	}
	c.ids.Set(idsKey, append(ids[:i:i], ids[i+1:]...))
	c.logger.DebugContext(ctx, "Deleted mirrored expense", log.FieldResourceID, id, "row", i+1)
	return nil
}

// serviceAPI adapts *gsheet.Service to sheetAPI.
type serviceAPI struct {
	svc           *gsheet.Service
	spreadsheetID string

	mu       sync.Mutex
	sheetIDs map[string]int64
}

func (s *serviceAPI) Read(ctx context.Context, rng string) ([][]any, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (s *serviceAPI) Update(ctx context.Context, rng string, rows [][]any) error {
	_, err := s.svc.Spreadsheets.Values.Update(s.spreadsheetID, rng, &gsheet.ValueRange{Values: rows}).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	return err
}

func (s *serviceAPI) Append(ctx context.Context, rng string, rows [][]any) error {
	_, err := s.svc.Spreadsheets.Values.Append(s.spreadsheetID, rng, &gsheet.ValueRange{Values: rows}).
		ValueInputOption("USER_ENTERED").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	return err
}

func (s *serviceAPI) sheetID(ctx context.Context, title string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.sheetIDs[title]; ok {
		return id, nil
	}
	ss, err := s.svc.Spreadsheets.Get(s.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, err
	}
	s.sheetIDs = make(map[string]int64, len(ss.Sheets))
	for _, sh := range ss.Sheets {
		if sh.Properties != nil {
			s.sheetIDs[sh.Properties.Title] = sh.Properties.SheetId
		}
	}
	id, ok := s.sheetIDs[title]
	if !ok {
		return 0, fmt.Errorf("sheet %q not found", title)
	}
	return id, nil
}

func (s *serviceAPI) DeleteRow(ctx context.Context, sheet string, index int) error {
	id, err := s.sheetID(ctx, sheet)
	if err != nil {
		return err
	}
	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			DeleteDimension: &gsheet.DeleteDimensionRequest{
				Range: &gsheet.DimensionRange{
					SheetId:    id,
					Dimension:  "ROWS",
					StartIndex: int64(index),
					EndIndex:   int64(index + 1),
					// sheet 0 is valid and would otherwise be dropped
					ForceSendFields: []string{"SheetId"},
				},
			},
		}},
	}
	_, err = s.svc.Spreadsheets.BatchUpdate(s.spreadsheetID, req).Context(ctx).Do()
	return err
}
