// Package sheets keeps the remote expenses collection in a Google Sheets tab.
//
// Layout: row 1 is a header, every following row is one record with columns
// A:id, B:date (ms since epoch), C:description, D:amount, E:category.
// Deleted records leave a cleared row behind; List skips rows without an id.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"expensetracker/internal/remote"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const DefaultSheetName = "Expenses"

// Config selects the spreadsheet and the credentials used to reach it.
type Config struct {
	SpreadsheetID string
	SheetName     string
	// CredentialsJSON wins over CredentialsFile when both are set.
	CredentialsJSON string
	CredentialsFile string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheet         string
	newID         func() string
}

var _ remote.Remote = (*Client)(nil)

// New creates a client authenticated with a service account.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return NewWithService(svc, cfg.SpreadsheetID, cfg.SheetName), nil
}

// NewWithService wraps an existing service, e.g. one pointed at a test endpoint.
func NewWithService(svc *gsheet.Service, spreadsheetID, sheet string) *Client {
	sheet = strings.TrimSpace(sheet)
	if sheet == "" {
		sheet = DefaultSheetName
	}
	return &Client{svc: svc, spreadsheetID: strings.TrimSpace(spreadsheetID), sheet: sheet, newID: uuid.NewString}
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	var credentialsJSON []byte
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		credentialsJSON = []byte(cfg.CredentialsJSON)
	case strings.TrimSpace(cfg.CredentialsFile) != "":
		b, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	}

	jwt, err := google.JWTConfigFromJSON(credentialsJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account credentials: %w", err)
	}

	slog.InfoContext(ctx, "Creating Google Sheets service with Service Account",
		"client_email", jwt.Email,
		"scope", gsheet.SpreadsheetsScope)

	// Tokens are refreshed for the lifetime of the client, not of ctx.
	service, err := gsheet.NewService(ctx,
		goption.WithTokenSource(jwt.TokenSource(context.Background())))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

func (c *Client) List(ctx context.Context) ([]remote.Expense, error) {
	rng := fmt.Sprintf("%s!A2:E", c.sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).
		ValueRenderOption("UNFORMATTED_VALUE").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return parseRows(resp.Values)
}

// Create appends a row under a freshly generated id.
func (c *Client) Create(ctx context.Context, e remote.Expense) (remote.Expense, error) {
	e.ID = c.newID()
	rng := fmt.Sprintf("%s!A:E", c.sheet)
	vr := &gsheet.ValueRange{Values: [][]any{toRow(e)}}
	_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return remote.Expense{}, fmt.Errorf("append to %s: %w", c.sheet, err)
	}
	return e, nil
}

func (c *Client) Update(ctx context.Context, id string, e remote.Expense) error {
	row, err := c.findRow(ctx, id)
	if err != nil {
		return err
	}
	e.ID = id
	rng := fmt.Sprintf("%s!A%d:E%d", c.sheet, row, row)
	vr := &gsheet.ValueRange{Values: [][]any{toRow(e)}}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", rng, err)
	}
	return nil
}

func (c *Client) Delete(ctx context.Context, id string) error {
	row, err := c.findRow(ctx, id)
	if err != nil {
		return err
	}
	rng := fmt.Sprintf("%s!A%d:E%d", c.sheet, row, row)
	_, err = c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear %s: %w", rng, err)
	}
	return nil
}

// findRow returns the 1-based sheet row holding id.
func (c *Client) findRow(ctx context.Context, id string) (int, error) {
	if id == "" {
		return 0, remote.ErrNoRemoteID
	}
	rng := fmt.Sprintf("%s!A:A", c.sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", rng, err)
	}
	for i, r := range resp.Values {
		if i == 0 || len(r) == 0 {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(r[0])) == id {
			return i + 1, nil
		}
	}
	return 0, remote.ErrNotFound
}

func toRow(e remote.Expense) []any {
	return []any{e.ID, e.Date, e.Description, e.Amount.InexactFloat64(), e.Category}
}

// parseRows converts data rows (header excluded) into records.
func parseRows(values [][]any) ([]remote.Expense, error) {
	out := make([]remote.Expense, 0, len(values))
	for i, row := range values {
		if len(row) == 0 || strings.TrimSpace(fmt.Sprint(row[0])) == "" {
			continue
		}
		e, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		out = append(out, e)
	}
	return out, nil
}

func parseRow(row []any) (remote.Expense, error) {
	cell := func(i int) any {
		if i < len(row) {
			return row[i]
		}
		return ""
	}
	date, err := parseMillis(cell(1))
	if err != nil {
		return remote.Expense{}, fmt.Errorf("date: %w", err)
	}
	amount, err := parseDecimal(cell(3))
	if err != nil {
		return remote.Expense{}, fmt.Errorf("amount: %w", err)
	}
	return remote.Expense{
		ID:          strings.TrimSpace(fmt.Sprint(cell(0))),
		Date:        date,
		Description: strings.TrimSpace(fmt.Sprint(cell(2))),
		Amount:      remote.Amount{Decimal: amount},
		Category:    strings.TrimSpace(fmt.Sprint(cell(4))),
	}, nil
}

// Unformatted numeric cells arrive as float64, anything typed by hand as a string.
func parseMillis(v any) (int64, error) {
	switch t := v.(type) {
	case float64:
		return int64(t), nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(t), 10, 64)
	default:
		return 0, fmt.Errorf("unexpected cell %T", v)
	}
}

func parseDecimal(v any) (decimal.Decimal, error) {
	switch t := v.(type) {
	case float64:
		return decimal.NewFromFloat(t), nil
	case string:
		t = strings.TrimSpace(t)
		if t == "" {
			return decimal.Zero, nil
		}
		return decimal.NewFromString(strings.ReplaceAll(t, ",", "."))
	default:
		return decimal.Zero, fmt.Errorf("unexpected cell %T", v)
	}
}
