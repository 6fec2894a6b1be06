package interchange_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/strategy-planner/budget"
	"github.com/warp/strategy-planner/budget/store"
	"github.com/warp/strategy-planner/interchange"
	"github.com/warp/strategy-planner/store/sqlite"
)

func sample(name string) budget.Strategy {
	return budget.Strategy{
		Name:           name,
		ClientName:     "Acme",
		ClientBudget:   decimal.NewFromInt(1000),
		ImpressionGoal: 100_000,
		CampaignStart:  budget.NewDate(2025, 1, 15),
		CampaignEnd:    budget.NewDate(2025, 4, 10),
		LineItems: []budget.LineItem{{
			ID:              "li-1",
			ChannelPartner:  "Orangellow",
			BrandAdvertiser: "Bakeree",
			IONumber:        "IO-7",
			CampaignName:    `Spring "Launch"`,
			Impressions:     100_000,
			RPM:             decimal.NewFromInt(10),
			ClientBudget:    decimal.NewFromInt(1000),
			DSPBid:          decimal.RequireFromString("3.5"),
			DSPSpend:        decimal.NewFromInt(350),
			FlightStart:     budget.NewDate(2025, 1, 15),
			FlightEnd:       budget.NewDate(2025, 4, 10),
		}},
	}
}

func TestExportImport_FreshIDs(t *testing.T) {
	ctx := context.Background()
	src := store.NewMemory()
	created, err := src.Create(ctx, sample("Q1 Push"))
	require.NoError(t, err)

	data, err := interchange.ExportAll(ctx, src)
	require.NoError(t, err)

	// Importing into the same store with merge doubles the set.
	n, err := interchange.ImportAll(ctx, src, data, true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	all, err := src.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, created.ID, all[0].ID)
	assert.NotEqual(t, created.ID, all[1].ID)
	assert.Equal(t, "Q1 Push", all[1].Name)
	require.Len(t, all[1].LineItems, 1)
	assert.True(t, all[1].LineItems[0].DSPBid.Equal(decimal.RequireFromString("3.5")))
}

func TestImportAll_ReplaceWithoutMerge(t *testing.T) {
	ctx := context.Background()

	for name, s := range map[string]budget.Store{"memory": store.NewMemory(), "sqlite": mustSQLite(t)} {
		t.Run(name, func(t *testing.T) {
			_, err := s.Create(ctx, sample("old"))
			require.NoError(t, err)

			data, _ := json.Marshal([]budget.Strategy{sample("new A"), sample("new B")})
			n, err := interchange.ImportAll(ctx, s, data, false)
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			all, err := s.List(ctx)
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, "new A", all[0].Name)
		})
	}
}

// listOnlyStore hides ReplaceAll from the wrapped store.
type listOnlyStore struct {
	budget.Store
}

func TestImportAll_ReplaceNeedsAtomicStore(t *testing.T) {
	// GIVEN: a store that can only create and delete one strategy at a time
	ctx := context.Background()
	mem := store.NewMemory()
	_, err := mem.Create(ctx, sample("old"))
	require.NoError(t, err)

	// WHEN: a replacing import is attempted
	data, _ := json.Marshal([]budget.Strategy{sample("new")})
	n, err := interchange.ImportAll(ctx, listOnlyStore{mem}, data, false)

	// THEN: it is refused and the existing set is untouched
	assert.ErrorIs(t, err, interchange.ErrReplaceUnsupported)
	assert.Equal(t, 0, n)
	all, err := mem.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "old", all[0].Name)

	// AND: merging still works
	n, err = interchange.ImportAll(ctx, listOnlyStore{mem}, data, true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func mustSQLite(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestImportAll_RejectsNonArray(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	_, err := interchange.ImportAll(ctx, s, []byte(`{"name":"single"}`), true)
	assert.ErrorIs(t, err, interchange.ErrInvalidFormat)

	_, err = interchange.ImportAll(ctx, s, []byte(`[{"name":`), true)
	assert.ErrorIs(t, err, interchange.ErrInvalidFormat)

	all, _ := s.List(ctx)
	assert.Empty(t, all)
}

func TestExportStrategy_RoundTripsDates(t *testing.T) {
	data, err := interchange.ExportStrategy(sample("Q1"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"campaignStartDate": "2025-01-15"`)
	assert.Contains(t, string(data), `"monthlyBreakdowns"`)

	back, err := interchange.ImportStrategy(data)
	require.NoError(t, err)
	assert.Equal(t, "2025-04-10", back.CampaignEnd.String())
}

func TestLineItemsCSV(t *testing.T) {
	out := string(interchange.LineItemsCSV(sample("Q1")))
	lines := strings.Split(out, "\n")

	require.Len(t, lines, 2)
	assert.Equal(t, "Channel Partner,Brand/Advertiser,IO Number,Campaign Name,Description,Impressions,RPM,Client Budget,DSP Bid,DSP Spend,Flight Start,Flight End", lines[0])
	assert.Equal(t, `"Orangellow","Bakeree","IO-7","Spring ""Launch""","","100000","10","1000","3.5","350","2025-01-15","2025-04-10"`, lines[1])
}

func TestFileNames(t *testing.T) {
	s := budget.Strategy{Name: "Q1  Spring\tPush"}
	assert.Equal(t, "Q1-Spring-Push", interchange.FileBaseName(s))
	assert.Equal(t, "Q1-Spring-Push-strategy.json", interchange.StrategyFileName(s))
	assert.Equal(t, "Q1-Spring-Push-line-items.csv", interchange.LineItemsFileName(s))
}
