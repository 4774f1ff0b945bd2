package google

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"carteira/internal/core"
	"carteira/internal/sheets"
)

const dateLayout = "2006-01-02"

// parseJournal converts a values matrix (as returned by the Sheets API) into
// journal rows. The header row and blank lines are skipped.
func parseJournal(values [][]interface{}) ([]sheets.JournalRow, error) {
	var out []sheets.JournalRow
	for i, raw := range values {
		cells := toStrings(raw)
		if len(cells) == 0 || strings.Join(cells, "") == "" {
			continue
		}
		if i == 0 && strings.EqualFold(cells[0], "Date") {
			continue
		}
		date, err := time.Parse(dateLayout, safeGet(cells, 0))
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid date %q", i+1, safeGet(cells, 0))
		}
		amount, err := parseSheetAmount(safeGet(cells, 5))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		out = append(out, sheets.JournalRow{
			Date:        date,
			EventType:   safeGet(cells, 1),
			WalletID:    safeGet(cells, 2),
			Reference:   safeGet(cells, 3),
			Description: safeGet(cells, 4),
			Amount:      amount,
			EventID:     safeGet(cells, 6),
		})
	}
	return out, nil
}

// parseSheetAmount reads back amounts written by Money.Format, such as
// "-R$ 1.234,56", as well as plain numbers entered by hand.
func parseSheetAmount(s string) (core.Money, error) {
	s = strings.TrimSpace(s)
	negative := strings.HasPrefix(s, "-")
	s = strings.TrimLeft(s, "-")
	s = strings.TrimLeftFunc(s, func(r rune) bool { return r < '0' || r > '9' })
	if s == "" {
		return core.Zero, fmt.Errorf("invalid amount: %w", core.ErrInvalidAmount)
	}
	if strings.Trim(s, "0.,") == "" {
		return core.Zero, nil
	}
	m, err := core.ParseAmount(s)
	if err != nil {
		return core.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if negative {
		return m.Neg(), nil
	}
	return m, nil
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
