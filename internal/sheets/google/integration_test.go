//go:build integration

package google

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"kakeibo/internal/core"
	ports "kakeibo/internal/sheets"
)

// Integration tests require real Google Sheets credentials
// Run with: go test -tags=integration ./internal/sheets/google

func TestIntegration_MirrorRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	opts := Options{
		SpreadsheetID:      os.Getenv("GOOGLE_SPREADSHEET_ID"),
		SheetName:          os.Getenv("GOOGLE_SHEET_NAME"),
		ServiceAccountJSON: os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"),
		ServiceAccountFile: os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"),
		OAuthClientJSON:    os.Getenv("GOOGLE_OAUTH_CLIENT_JSON"),
		OAuthClientFile:    os.Getenv("GOOGLE_OAUTH_CLIENT_FILE"),
		OAuthTokenJSON:     os.Getenv("GOOGLE_OAUTH_TOKEN_JSON"),
		OAuthTokenFile:     os.Getenv("GOOGLE_OAUTH_TOKEN_FILE"),
	}
	if opts.SpreadsheetID == "" {
		t.Skip("GOOGLE_SPREADSHEET_ID not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	client, err := New(ctx, opts, nil)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	id := fmt.Sprintf("it-%d", time.Now().UnixNano())
	row := ports.Row{
		ID:       id,
		Date:     core.NormalizeDate(time.Now()),
		Category: "統合テスト",
		Amount:   core.Money{Cents: 1234},
		Memo:     "integration",
	}

	if err := client.UpsertExpense(ctx, row); err != nil {
		t.Fatalf("Failed to append row: %v", err)
	}
	row.Amount = core.Money{Cents: 4321}
	if err := client.UpsertExpense(ctx, row); err != nil {
		t.Fatalf("Failed to rewrite row: %v", err)
	}
	if err := client.DeleteExpense(ctx, id); err != nil {
		t.Fatalf("Failed to delete row: %v", err)
	}
}
