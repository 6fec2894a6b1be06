/*
Package interchange converts strategies to and from their file formats.

FORMATS:
  Full export:      indented JSON array of strategies (backup / sharing)
  Single strategy:  indented JSON object, full fidelity
  Line items CSV:   header row, then one row per line item with every cell
                    quoted; dates as YYYY-MM-DD

IMPORT:
  Imported strategies always get fresh ids and timestamps. With merge they
  are appended to the existing set; without it they replace it in one step,
  which needs a store implementing ReplaceAll. Either the old set or the new
  one is stored, never a mix.
*/
package interchange

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/warp/strategy-planner/budget"
)

// ErrInvalidFormat is returned when an import document is not a JSON array
// of strategies.
var ErrInvalidFormat = errors.New("invalid format: expected array")

// ErrReplaceUnsupported is returned by a replacing import into a store that
// cannot swap its whole set atomically.
var ErrReplaceUnsupported = errors.New("store cannot replace all strategies")

// replacer is implemented by stores that can swap the whole set atomically.
type replacer interface {
	ReplaceAll(ctx context.Context, strategies []budget.Strategy) ([]budget.Strategy, error)
}

// ExportAll serializes every stored strategy.
func ExportAll(ctx context.Context, store budget.Store) ([]byte, error) {
	all, err := store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("export strategies: %w", err)
	}
	if all == nil {
		all = []budget.Strategy{}
	}
	return json.MarshalIndent(all, "", "  ")
}

// ImportAll stores every strategy in data under a fresh id and returns how
// many were imported. Without merge the existing strategies are replaced.
func ImportAll(ctx context.Context, store budget.Store, data []byte, merge bool) (int, error) {
	imported, err := decodeAll(data)
	if err != nil {
		return 0, err
	}

	if !merge {
		r, ok := store.(replacer)
		if !ok {
			return 0, ErrReplaceUnsupported
		}
		if _, err := r.ReplaceAll(ctx, imported); err != nil {
			return 0, fmt.Errorf("import strategies: %w", err)
		}
		return len(imported), nil
	}

	for _, s := range imported {
		if _, err := store.Create(ctx, s); err != nil {
			return 0, fmt.Errorf("import strategy %q: %w", s.Name, err)
		}
	}
	return len(imported), nil
}

func decodeAll(data []byte) ([]budget.Strategy, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, ErrInvalidFormat
	}
	var imported []budget.Strategy
	if err := json.Unmarshal(trimmed, &imported); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	return imported, nil
}

// ExportStrategy serializes one strategy with every field.
func ExportStrategy(s budget.Strategy) ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// ImportStrategy parses a single exported strategy. Identity and timestamps
// are kept; the store replaces them on Create.
func ImportStrategy(data []byte) (budget.Strategy, error) {
	var s budget.Strategy
	if err := json.Unmarshal(data, &s); err != nil {
		return budget.Strategy{}, fmt.Errorf("parse strategy: %w", err)
	}
	return s, nil
}

// =============================================================================
// CSV
// =============================================================================

var csvHeader = []string{
	"Channel Partner", "Brand/Advertiser", "IO Number", "Campaign Name", "Description",
	"Impressions", "RPM", "Client Budget", "DSP Bid", "DSP Spend", "Flight Start", "Flight End",
}

// LineItemsCSV renders the line items table. Every data cell is quoted.
func LineItemsCSV(s budget.Strategy) []byte {
	var buf bytes.Buffer
	buf.WriteString(strings.Join(csvHeader, ","))

	for _, li := range s.LineItems {
		row := []string{
			li.ChannelPartner,
			li.BrandAdvertiser,
			li.IONumber,
			li.CampaignName,
			li.Description,
			strconv.FormatInt(li.Impressions, 10),
			li.RPM.String(),
			li.ClientBudget.String(),
			li.DSPBid.String(),
			li.DSPSpend.String(),
			li.FlightStart.String(),
			li.FlightEnd.String(),
		}
		buf.WriteByte('\n')
		for i, cell := range row {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.WriteString(quote(cell))
		}
	}
	return buf.Bytes()
}

func quote(cell string) string {
	return `"` + strings.ReplaceAll(cell, `"`, `""`) + `"`
}

// =============================================================================
// FILE NAMES
// =============================================================================

var whitespaceRun = regexp.MustCompile(`\s+`)

// FileBaseName turns a strategy name into a file name stem.
func FileBaseName(s budget.Strategy) string {
	return whitespaceRun.ReplaceAllString(s.Name, "-")
}

// StrategyFileName is the download name for a single-strategy export.
func StrategyFileName(s budget.Strategy) string {
	return FileBaseName(s) + "-strategy.json"
}

// LineItemsFileName is the download name for the CSV export.
func LineItemsFileName(s budget.Strategy) string {
	return FileBaseName(s) + "-line-items.csv"
}
