/*
handlers_test.go - HTTP tests for the planner API

Tests for:
- Strategy create/list/get/delete and the no-session 409
- Line item edits that need a redistribution choice
- Flight regeneration, downloads, import/export
- Libraries and templates
- Backup snapshots and pruning
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/strategy-planner/budget"
	"github.com/warp/strategy-planner/library"
	"github.com/warp/strategy-planner/planner"
	"github.com/warp/strategy-planner/store/sqlite"
)

// =============================================================================
// HELPERS
// =============================================================================

type testServer struct {
	store   *sqlite.Store
	session *planner.Session
	router  http.Handler
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	session := planner.NewSession(store, planner.Options{
		DisableAutoSave: true,
		Logger:          quietLogger(),
	})
	libs, err := library.NewSet(store)
	require.NoError(t, err)

	h := NewHandler(store, session, libs, quietLogger())
	h.Now = func() time.Time { return time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC) }
	return &testServer{store: store, session: session, router: NewRouter(h, nil)}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// createPlanned creates a strategy with a 1000 / 100000 pool, Jan 15 to
// Apr 10 2025, and two even line items.
func (ts *testServer) createPlanned(t *testing.T) budget.Strategy {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/strategies", map[string]string{
		"name": "Spring Launch", "clientName": "Bakeree", "agencyName": "Orangellow",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPatch, "/api/session", map[string]any{
		"clientBudget":      "1000",
		"impressionGoal":    100000,
		"dspSpend":          "350",
		"campaignStartDate": "2025-01-15",
		"campaignEndDate":   "2025-04-10",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/session/line-items", map[string]any{"count": 2})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	current, ok := ts.session.Current()
	require.True(t, ok)
	return current
}

// =============================================================================
// STRATEGIES AND SESSION
// =============================================================================

func TestCreateAndListStrategies(t *testing.T) {
	// GIVEN: An empty planner
	ts := newTestServer(t)

	// WHEN: A strategy is created
	rec := ts.do(t, http.MethodPost, "/api/strategies", map[string]string{
		"name": "Spring Launch", "clientName": "Bakeree", "agencyName": "Orangellow",
	})

	// THEN: It is stored, listed and active
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[budget.Strategy](t, rec)
	assert.NotEmpty(t, created.ID)
	assert.True(t, created.ClientBudget.IsZero())

	list := decode[[]StrategySummaryDTO](t, ts.do(t, http.MethodGet, "/api/strategies", nil))
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)
	assert.True(t, list[0].Current)

	got := ts.do(t, http.MethodGet, "/api/strategies/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, got.Code)
}

func TestCreateStrategy_MissingAgency(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/strategies", map[string]string{"name": "X", "clientName": "Y"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "agencyName")
}

func TestStrategyNotFound(t *testing.T) {
	ts := newTestServer(t)

	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/strategies/missing", nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodDelete, "/api/strategies/missing", nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPost, "/api/session/load", map[string]string{"id": "missing"}).Code)
}

func TestSessionEndpoints_NoActiveStrategy(t *testing.T) {
	// GIVEN: Nothing loaded
	ts := newTestServer(t)

	// WHEN/THEN: Session operations answer 409 with a code
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/session/validation"},
		{http.MethodGet, "/api/session/line-items"},
		{http.MethodPost, "/api/session/flights/regenerate"},
		{http.MethodGet, "/api/session/export.csv"},
	} {
		rec := ts.do(t, tc.method, tc.path, nil)
		assert.Equal(t, http.StatusConflict, rec.Code, tc.path)
		assert.Equal(t, "no_active_strategy", decode[ErrorResponse](t, rec).Code, tc.path)
	}

	dto := decode[SessionDTO](t, ts.do(t, http.MethodGet, "/api/session", nil))
	assert.Nil(t, dto.Strategy)
}

func TestPatchSession_ValidationReflectsPool(t *testing.T) {
	// GIVEN: A strategy with two even line items
	ts := newTestServer(t)
	st := ts.createPlanned(t)
	require.Len(t, st.LineItems, 2)
	assert.Equal(t, "500", st.LineItems[0].ClientBudget.String())
	assert.Equal(t, int64(50000), st.LineItems[0].Impressions)

	// WHEN: Validation is requested
	v := decode[budget.BudgetValidation](t, ts.do(t, http.MethodGet, "/api/session/validation", nil))

	// THEN: The line items match the pool
	assert.True(t, v.IsValid)
	assert.True(t, v.Difference.IsZero())

	// AND: The write reached the store immediately
	stored, err := ts.store.Get(context.Background(), st.ID)
	require.NoError(t, err)
	assert.Len(t, stored.LineItems, 2)
}

func TestDeleteActiveStrategy_ClearsSession(t *testing.T) {
	ts := newTestServer(t)
	st := ts.createPlanned(t)

	rec := ts.do(t, http.MethodDelete, "/api/strategies/"+st.ID, nil)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	_, ok := ts.session.Current()
	assert.False(t, ok)
}

func TestDuplicateStrategy(t *testing.T) {
	ts := newTestServer(t)
	st := ts.createPlanned(t)

	rec := ts.do(t, http.MethodPost, "/api/strategies/"+st.ID+"/duplicate", nil)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	dup := decode[budget.Strategy](t, rec)
	assert.NotEqual(t, st.ID, dup.ID)
	assert.Equal(t, "Spring Launch (Copy)", dup.Name)
	assert.Len(t, dup.LineItems, 2)
}

// =============================================================================
// LINE ITEMS AND FLIGHTS
// =============================================================================

func TestEditLineItem_PendingThenResolve(t *testing.T) {
	// GIVEN: Two line items sharing a 1000 budget
	ts := newTestServer(t)
	st := ts.createPlanned(t)
	first, second := st.LineItems[0].ID, st.LineItems[1].ID

	// WHEN: One budget is edited
	rec := ts.do(t, http.MethodPatch, "/api/session/line-items/"+first, map[string]any{
		"field": "clientBudget", "value": 600,
	})

	// THEN: The edit waits for a redistribution choice
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	pending := decode[PendingEditResponse](t, rec)
	assert.Equal(t, first, pending.Pending.ItemID)
	assert.Equal(t, "600", pending.Pending.Value)
	assert.ElementsMatch(t, []string{"even", "manual"}, pending.Policies)

	current, _ := ts.session.Current()
	assert.Equal(t, "500", current.LineItems[0].ClientBudget.String())

	// WHEN: Resolved with an even split
	rec = ts.do(t, http.MethodPost, "/api/session/line-items/pending", map[string]string{"policy": "even"})

	// THEN: The other item takes the remainder
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	dto := decode[SessionDTO](t, rec)
	require.NotNil(t, dto.Strategy)
	assert.Nil(t, dto.Pending)
	for _, item := range dto.Strategy.LineItems {
		switch item.ID {
		case first:
			assert.Equal(t, "600", item.ClientBudget.String())
			assert.Equal(t, int64(50000), item.Impressions)
		case second:
			assert.Equal(t, "400", item.ClientBudget.String())
			assert.Equal(t, int64(40000), item.Impressions)
		}
	}
	assert.True(t, dto.Validation.IsValid)
}

func TestResolvePending_NothingPending(t *testing.T) {
	ts := newTestServer(t)
	ts.createPlanned(t)

	rec := ts.do(t, http.MethodPost, "/api/session/line-items/pending", map[string]string{"policy": "even"})

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "no_pending_edit", decode[ErrorResponse](t, rec).Code)
}

func TestEditLineItem_UnknownItem(t *testing.T) {
	ts := newTestServer(t)
	ts.createPlanned(t)

	rec := ts.do(t, http.MethodPatch, "/api/session/line-items/nope", map[string]any{"field": "rpm", "value": "12"})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRegenerateFlights(t *testing.T) {
	// GIVEN: A Jan 15 to Apr 10 campaign
	ts := newTestServer(t)
	ts.createPlanned(t)

	// WHEN: Flights are regenerated
	rec := ts.do(t, http.MethodPost, "/api/session/flights/regenerate", nil)

	// THEN: Three billing cycles, each with a third of the goal
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[RegenerateResponse](t, rec)
	assert.Equal(t, 3, resp.Count)
	require.Len(t, resp.Flights, 3)
	assert.Equal(t, "flight-0", resp.Flights[0].ID)
	assert.Equal(t, int64(33333), resp.Flights[0].ImpressionsAllocation)

	// WHEN: A flight is deleted
	rec = ts.do(t, http.MethodDelete, "/api/session/flights/flight-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// THEN: The rest keep their allocations
	flights := decode[[]budget.Flight](t, ts.do(t, http.MethodGet, "/api/session/flights", nil))
	require.Len(t, flights, 2)
	assert.Equal(t, int64(33333), flights[1].ImpressionsAllocation)
}

func TestEditFlight_ProfitMarginReadOnly(t *testing.T) {
	ts := newTestServer(t)
	ts.createPlanned(t)
	ts.do(t, http.MethodPost, "/api/session/flights/regenerate", nil)

	rec := ts.do(t, http.MethodPatch, "/api/session/flights/flight-0", map[string]any{"field": "profitMargin", "value": 5})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// ATTACHMENTS
// =============================================================================

func pdfUpload(t *testing.T, size int) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	hdr := make(map[string][]string)
	hdr["Content-Disposition"] = []string{`form-data; name="file"; filename="io.pdf"`}
	hdr["Content-Type"] = []string{"application/pdf"}
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(bytes.Repeat([]byte("x"), size))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func (ts *testServer) upload(t *testing.T, body io.Reader, contentType string, knownLength bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPut, "/api/session/attachment", body)
	req.Header.Set("Content-Type", contentType)
	if !knownLength {
		req.ContentLength = -1
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func TestUploadAttachment(t *testing.T) {
	// GIVEN: An active strategy
	ts := newTestServer(t)
	ts.createPlanned(t)

	// WHEN: A small PDF is uploaded
	body, ct := pdfUpload(t, 1024)
	rec := ts.upload(t, body, ct, true)

	// THEN: It is attached and can be downloaded
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	dl := ts.do(t, http.MethodGet, "/api/session/attachment", nil)
	assert.Equal(t, http.StatusOK, dl.Code)
	assert.Equal(t, "application/pdf", dl.Header().Get("Content-Type"))
	assert.Len(t, dl.Body.Bytes(), 1024)
}

func TestUploadAttachment_TooLarge(t *testing.T) {
	// GIVEN: An active strategy and a document over the 10MB limit
	ts := newTestServer(t)
	ts.createPlanned(t)

	for _, knownLength := range []bool{true, false} {
		body, ct := pdfUpload(t, budget.MaxAttachmentSize+2<<20)

		// WHEN: It is uploaded, with and without a Content-Length
		rec := ts.upload(t, body, ct, knownLength)

		// THEN: The size limit is reported, not a malformed form
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		resp := decode[ErrorResponse](t, rec)
		assert.Contains(t, resp.Details, "file size must be less than 10MB", "known length: %v", knownLength)
	}

	current, _ := ts.session.Current()
	assert.Nil(t, current.Attachment)
}

// =============================================================================
// DOWNLOADS AND INTERCHANGE
// =============================================================================

func TestExportCSV(t *testing.T) {
	ts := newTestServer(t)
	ts.createPlanned(t)

	rec := ts.do(t, http.MethodGet, "/api/session/export.csv", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "Spring-Launch-line-items.csv")
	lines := strings.Split(rec.Body.String(), "\n")
	assert.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "Channel Partner,"))
}

func TestExportAndImport(t *testing.T) {
	// GIVEN: One stored strategy, exported
	ts := newTestServer(t)
	st := ts.createPlanned(t)

	rec := ts.do(t, http.MethodGet, "/api/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "strategies-2025-01-15.json")
	exported := rec.Body.String()

	// WHEN: The export is merged back in
	rec = ts.do(t, http.MethodPost, "/api/import?merge=true", exported)

	// THEN: There are two strategies and the session is untouched
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, ImportResponse{Imported: 1, Merged: true}, decode[ImportResponse](t, rec))
	list := decode[[]StrategySummaryDTO](t, ts.do(t, http.MethodGet, "/api/strategies", nil))
	assert.Len(t, list, 2)
	_, ok := ts.session.Current()
	assert.True(t, ok)

	// WHEN: Imported without merge
	rec = ts.do(t, http.MethodPost, "/api/import", exported)

	// THEN: The set is replaced and the session is closed
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	list = decode[[]StrategySummaryDTO](t, ts.do(t, http.MethodGet, "/api/strategies", nil))
	require.Len(t, list, 1)
	assert.Equal(t, st.Name, list[0].Name)
	assert.Equal(t, 2, list[0].LineItemCount)
	_, ok = ts.session.Current()
	assert.False(t, ok)
}

func TestImport_RejectsNonArray(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/import", `{"id":"x"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// LIBRARIES
// =============================================================================

func TestAdvertiserLibrary(t *testing.T) {
	// GIVEN: The built-in pairs
	ts := newTestServer(t)
	pair := map[string]string{"advertiser": "Acme Dispensary", "agency": "Orangellow"}

	// WHEN: A pair is added
	rec := ts.do(t, http.MethodPost, "/api/libraries/advertisers", pair)

	// THEN: It shows up under its agency
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[LibraryChangeResponse](t, rec).Changed)

	byAgency := decode[[]string](t, ts.do(t, http.MethodGet, "/api/libraries/advertisers?agency=Orangellow", nil))
	assert.Contains(t, byAgency, "Acme Dispensary")
	assert.Contains(t, byAgency, "Bakeree")

	agency := decode[AgencyResponse](t, ts.do(t, http.MethodGet, "/api/libraries/agencies?advertiser=Acme+Dispensary", nil))
	assert.Equal(t, "Orangellow", agency.Agency)

	// AND: Adding it again changes nothing
	again := decode[LibraryChangeResponse](t, ts.do(t, http.MethodPost, "/api/libraries/advertisers", pair))
	assert.False(t, again.Changed)

	// WHEN: Removed
	removed := decode[LibraryChangeResponse](t, ts.do(t, http.MethodDelete, "/api/libraries/advertisers", pair))
	assert.True(t, removed.Changed)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/libraries/agencies?advertiser=Acme+Dispensary", nil).Code)
}

// =============================================================================
// TEMPLATES
// =============================================================================

func TestTemplates_CreateAndInstantiate(t *testing.T) {
	// GIVEN: A stored template with two line items and a pool
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/templates", map[string]any{
		"name":            "Two Tactics",
		"defaultDuration": 2,
		"clientBudget":    "2000",
		"impressionGoal":  200000,
		"lineItemTemplate": []map[string]any{
			{"tactic": "Conquesting", "rpm": "10", "dspBid": "3"},
			{"tactic": "Retargeting", "rpm": "10", "dspBid": "4"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	tpl := decode[TemplateDTO](t, rec)
	assert.Equal(t, "Two Tactics", tpl.Name)

	list := decode[[]TemplateDTO](t, ts.do(t, http.MethodGet, "/api/templates", nil))
	require.Len(t, list, 1)

	// WHEN: It is instantiated
	rec = ts.do(t, http.MethodPost, "/api/templates/"+tpl.ID+"/instantiate", map[string]string{
		"name": "From Template", "clientName": "Bakeree", "agencyName": "Orangellow",
	})

	// THEN: The new strategy is active, split evenly, with flights
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	st := decode[budget.Strategy](t, rec)
	assert.Equal(t, tpl.ID, st.TemplateID)
	require.Len(t, st.LineItems, 2)
	assert.Equal(t, "1000", st.LineItems[0].ClientBudget.String())
	assert.Equal(t, int64(100000), st.LineItems[1].Impressions)
	assert.NotEmpty(t, st.Flights)

	current, ok := ts.session.Current()
	require.True(t, ok)
	assert.Equal(t, st.ID, current.ID)
}

func TestTemplates_Errors(t *testing.T) {
	ts := newTestServer(t)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/api/templates", map[string]string{"name": "  "}).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/templates/missing", nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodDelete, "/api/templates/missing", nil).Code)
}

// =============================================================================
// BACKUPS
// =============================================================================

func TestBackupScheduler_RunNowAndPrune(t *testing.T) {
	// GIVEN: A stored strategy and a scheduler keeping two snapshots
	ts := newTestServer(t)
	ts.createPlanned(t)

	dir := filepath.Join(t.TempDir(), "backups")
	b := NewBackupScheduler(ts.store, ts.session, dir, quietLogger())
	b.Keep = 2
	clock := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	b.Now = func() time.Time { return clock }

	// WHEN: Three snapshots are taken an hour apart
	var paths []string
	for i := 0; i < 3; i++ {
		path, err := b.RunNow(context.Background())
		require.NoError(t, err)
		paths = append(paths, path)
		clock = clock.Add(time.Hour)
	}

	// THEN: Only the newest two remain
	names, err := b.Snapshots()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"strategies-20250115T110000Z.json",
		"strategies-20250115T120000Z.json",
	}, names)
	_, err = os.Stat(paths[0])
	assert.True(t, os.IsNotExist(err))

	data, err := os.ReadFile(paths[2])
	require.NoError(t, err)
	assert.Contains(t, string(data), "Spring Launch")
}

func TestBackupScheduler_InvalidSchedule(t *testing.T) {
	b := NewBackupScheduler(nil, nil, t.TempDir(), quietLogger())

	err := b.Register("not a schedule")

	assert.ErrorContains(t, err, "register backup task")
}
