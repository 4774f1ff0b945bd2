package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"carteira/internal/config"
	"carteira/internal/log"
	"carteira/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// journalColumns is the header written to every new yearly sheet.
var journalColumns = []interface{}{"Date", "Event", "Wallet", "Reference", "Description", "Amount", "Event ID"}

const journalRange = "A:G"

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// Base name without year (e.g. "Ledger"); the row's year is prefixed.
	sheetBase string
	currency  string
	logger    *log.Logger

	mu    sync.Mutex
	known map[string]bool
}

var _ sheets.Journal = (*Client)(nil)

type Options struct {
	SpreadsheetID   string
	SheetName       string
	Currency        string
	CredentialsJSON string
	CredentialsFile string
}

// NewFromConfig creates a journal client from the GOOGLE_* settings.
func NewFromConfig(ctx context.Context, cfg *config.Config, logger *log.Logger) (*Client, error) {
	return New(ctx, Options{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		Currency:        cfg.DefaultCurrency,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	}, logger)
}

// New builds the client. Extra client options replace the service account
// credentials, which lets tests point the client at a local server.
func New(ctx context.Context, opts Options, logger *log.Logger, extra ...goption.ClientOption) (*Client, error) {
	spreadsheetID := strings.TrimSpace(opts.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	base := strings.TrimSpace(opts.SheetName)
	if base == "" {
		base = "Ledger"
	}
	currency := strings.TrimSpace(opts.Currency)
	if currency == "" {
		currency = "BRL"
	}
	logger = logger.WithComponent(log.ComponentSheets)

	clientOpts := extra
	if len(clientOpts) == 0 {
		creds, err := loadCredentials(opts, logger)
		if err != nil {
			return nil, err
		}
		clientOpts = []goption.ClientOption{
			goption.WithCredentialsJSON(creds),
			goption.WithScopes(gsheet.SpreadsheetsScope),
		}
	}

	svc, err := gsheet.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	logger.InfoContext(ctx, "Google Sheets journal ready",
		"spreadsheet_id", spreadsheetID,
		"sheet_base", base)

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetBase:     base,
		currency:      currency,
		logger:        logger,
		known:         map[string]bool{},
	}, nil
}

// loadCredentials reads the service account key, inline JSON first.
func loadCredentials(opts Options, logger *log.Logger) ([]byte, error) {
	inline := strings.TrimSpace(opts.CredentialsJSON)
	file := strings.TrimSpace(opts.CredentialsFile)
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		logger.Debug("Using inline service account credentials", "json_length", len(inline))
		return []byte(inline), nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		logger.Debug("Read service account file", "path", file, "size", len(data))
		return data, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// Append writes rows to their yearly sheets, creating a sheet with a
// header on first use. It returns the range of the last write.
func (c *Client) Append(ctx context.Context, rows ...sheets.JournalRow) (string, error) {
	for _, r := range rows {
		if err := r.Validate(); err != nil {
			return "", fmt.Errorf("validation failed: %w", err)
		}
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	byYear := map[int][][]interface{}{}
	for _, r := range rows {
		y := r.Date.Year()
		byYear[y] = append(byYear[y], toValues(r, c.currency))
	}
	years := make([]int, 0, len(byYear))
	for y := range byYear {
		years = append(years, y)
	}
	sort.Ints(years)

	var ref string
	for _, y := range years {
		title := yearPrefixedName(c.sheetBase, y)
		if err := c.ensureSheet(ctx, title); err != nil {
			return ref, err
		}
		resp, err := c.svc.Spreadsheets.Values.
			Append(c.spreadsheetID, title+"!"+journalRange, &gsheet.ValueRange{Values: byYear[y]}).
			ValueInputOption("RAW").
			InsertDataOption("INSERT_ROWS").
			Context(ctx).
			Do()
		if err != nil {
			return ref, fmt.Errorf("append to %q: %w", title, err)
		}
		if resp.Updates != nil {
			ref = resp.Updates.UpdatedRange
		}
		c.logger.DebugContext(ctx, "Journal rows appended",
			"sheet", title,
			log.FieldCount, len(byYear[y]),
			"range", ref)
	}
	return ref, nil
}

// ListJournal reads every row of the year's sheet. A missing sheet is an
// empty journal.
func (c *Client) ListJournal(ctx context.Context, year int) ([]sheets.JournalRow, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	title := yearPrefixedName(c.sheetBase, year)
	exists, err := c.sheetExists(ctx, title)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, title+"!"+journalRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", title, err)
	}
	return parseJournal(resp.Values)
}

func (c *Client) ensureSheet(ctx context.Context, title string) error {
	exists, err := c.sheetExists(ctx, title)
	if err != nil || exists {
		return err
	}

	add := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: title}},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, add).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %q: %w", title, err)
	}
	header := &gsheet.ValueRange{Values: [][]interface{}{journalColumns}}
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, title+"!A1:G1", header).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("write header to %q: %w", title, err)
	}
	c.logger.InfoContext(ctx, "Created journal sheet", "sheet", title)

	c.mu.Lock()
	c.known[title] = true
	c.mu.Unlock()
	return nil
}

func (c *Client) sheetExists(ctx context.Context, title string) (bool, error) {
	c.mu.Lock()
	if c.known[title] {
		c.mu.Unlock()
		return true, nil
	}
	c.mu.Unlock()

	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return false, fmt.Errorf("get spreadsheet: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range ss.Sheets {
		if s.Properties != nil {
			c.known[s.Properties.Title] = true
		}
	}
	return c.known[title], nil
}

func toValues(r sheets.JournalRow, currency string) []interface{} {
	return []interface{}{
		r.Date.Format(dateLayout),
		r.EventType,
		r.WalletID,
		r.Reference,
		r.Description,
		r.Amount.Format(currency),
		r.EventID,
	}
}
