/*
handlers.go - HTTP API handlers for the strategy planner

PURPOSE:
  Exposes the editing session, the strategy store, the reference libraries
  and templates via REST API. Handles HTTP request/response and JSON
  serialization, and delegates to the domain packages.

ENDPOINTS:
  Strategies:
    GET    /api/strategies                 List strategies
    POST   /api/strategies                 Create and activate a strategy
    GET    /api/strategies/{id}            Get one strategy
    DELETE /api/strategies/{id}            Delete a strategy
    POST   /api/strategies/{id}/duplicate  Deep copy

  Session (the active strategy):
    GET    /api/session                    Session state
    POST   /api/session/load               Switch strategy
    PATCH  /api/session                    Merge a strategy patch
    PUT    /api/session/dates              Change dates, regenerate flights
    POST   /api/session/save               Write now
    PUT    /api/session/autosave           Toggle debounced saving
    .../line-items, .../flights            Allocator operations
    .../export.json, .../export.csv        Downloads

  Interchange:
    GET    /api/export                     All strategies as JSON
    POST   /api/import?merge=true          Import (replace unless merge)

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: SQLite database (strategies, templates, library overlays)
  - Session: the single active strategy
  - Libraries: advertiser and audience lookups
  - Templates: JSON to Template conversion

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: No active strategy, or an edit awaiting a redistribution choice
  - 500: Internal errors

SECURITY NOTE:
  No authentication. The planner is a single-user tool.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/strategy-planner/budget"
	"github.com/warp/strategy-planner/factory"
	"github.com/warp/strategy-planner/interchange"
	"github.com/warp/strategy-planner/library"
	"github.com/warp/strategy-planner/planner"
	"github.com/warp/strategy-planner/store/sqlite"
)

const (
	// maxImportSize bounds /api/import bodies.
	maxImportSize = 64 << 20
	// maxUploadSize bounds attachment uploads: the document plus form overhead.
	maxUploadSize = budget.MaxAttachmentSize + 1<<20
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     *sqlite.Store
	Session   *planner.Session
	Libraries *library.Set
	Templates *factory.TemplateFactory
	Now       func() time.Time

	log *slog.Logger
}

// NewHandler creates a handler over the given store and session.
func NewHandler(store *sqlite.Store, session *planner.Session, libs *library.Set, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Store:     store,
		Session:   session,
		Libraries: libs,
		Templates: factory.NewTemplateFactory(),
		Now:       time.Now,
		log:       logger,
	}
}

// =============================================================================
// STRATEGY HANDLERS
// =============================================================================

// ListStrategies returns a summary of every stored strategy.
func (h *Handler) ListStrategies(w http.ResponseWriter, r *http.Request) {
	strategies, err := h.Store.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list strategies", err)
		return
	}
	currentID, err := h.Store.CurrentID(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read current strategy", err)
		return
	}

	dtos := make([]StrategySummaryDTO, len(strategies))
	for i, s := range strategies {
		dtos[i] = toSummaryDTO(s, currentID)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateStrategy creates an empty strategy and makes it the active one.
func (h *Handler) CreateStrategy(w http.ResponseWriter, r *http.Request) {
	var req budget.NewStrategyInput
	if !decodeBody(w, r, &req) {
		return
	}
	created, err := h.Session.Create(r.Context(), req)
	if err != nil {
		writeDomainError(w, "Failed to create strategy", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// GetStrategy returns one strategy. The active strategy is served from the
// session so unsaved edits are included.
func (h *Handler) GetStrategy(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if current, ok := h.Session.Current(); ok && current.ID == id {
		writeJSON(w, http.StatusOK, current)
		return
	}

	s, err := h.Store.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get strategy", err)
		return
	}
	if s == nil {
		writeError(w, http.StatusNotFound, "Strategy not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) DeleteStrategy(w http.ResponseWriter, r *http.Request) {
	ok, err := h.Session.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete strategy", err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "Strategy not found", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DuplicateStrategy(w http.ResponseWriter, r *http.Request) {
	var req DuplicateRequest
	if r.ContentLength > 0 && !decodeBody(w, r, &req) {
		return
	}
	dup, err := h.Session.Duplicate(r.Context(), chi.URLParam(r, "id"), req.Name)
	if err != nil {
		writeDomainError(w, "Failed to duplicate strategy", err)
		return
	}
	writeJSON(w, http.StatusCreated, dup)
}

// =============================================================================
// SESSION HANDLERS
// =============================================================================

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sessionDTO())
}

func (h *Handler) sessionDTO() SessionDTO {
	dto := SessionDTO{
		AutoSave: h.Session.AutoSave(),
		Dirty:    h.Session.Dirty(),
		Pending:  h.Session.PendingEdit(),
	}
	if current, ok := h.Session.Current(); ok {
		v := budget.Validate(&current)
		dto.Strategy = &current
		dto.Validation = &v
	}
	return dto
}

func (h *Handler) LoadSession(w http.ResponseWriter, r *http.Request) {
	var req LoadSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if _, err := h.Session.Load(r.Context(), req.ID); err != nil {
		writeDomainError(w, "Failed to load strategy", err)
		return
	}
	writeJSON(w, http.StatusOK, h.sessionDTO())
}

func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	if err := h.Session.Close(r.Context()); err != nil {
		writeDomainError(w, "Failed to close strategy", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) PatchSession(w http.ResponseWriter, r *http.Request) {
	var patch budget.StrategyPatch
	if !decodeBody(w, r, &patch) {
		return
	}
	h.respondSession(w, h.Session.Update(r.Context(), patch), "Failed to update strategy")
}

func (h *Handler) SetDates(w http.ResponseWriter, r *http.Request) {
	var req DatesRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.respondSession(w, h.Session.SetDates(r.Context(), req.Start, req.End), "Failed to set dates")
}

func (h *Handler) SaveSession(w http.ResponseWriter, r *http.Request) {
	h.respondSession(w, h.Session.Save(r.Context()), "Failed to save strategy")
}

func (h *Handler) SetAutoSave(w http.ResponseWriter, r *http.Request) {
	var req AutoSaveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.Session.SetAutoSave(r.Context(), req.Enabled); err != nil && !errors.Is(err, budget.ErrNoActiveStrategy) {
		writeDomainError(w, "Failed to save strategy", err)
		return
	}
	writeJSON(w, http.StatusOK, h.sessionDTO())
}

func (h *Handler) GetValidation(w http.ResponseWriter, r *http.Request) {
	v, err := h.Session.Validation()
	if err != nil {
		writeDomainError(w, "Failed to validate", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) GetCalculations(w http.ResponseWriter, r *http.Request) {
	c, err := h.Session.Calculations()
	if err != nil {
		writeDomainError(w, "Failed to calculate", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// UploadAttachment accepts a multipart form with a "file" part.
func (h *Handler) UploadAttachment(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > maxUploadSize {
		writeDomainError(w, "Failed to attach document", budget.AttachmentTooLarge(""))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeDomainError(w, "Failed to attach document", budget.AttachmentTooLarge(""))
			return
		}
		writeError(w, http.StatusBadRequest, "Expected a multipart form with a file field", err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read upload", err)
		return
	}
	err = h.Session.AttachDocument(r.Context(), header.Filename, header.Header.Get("Content-Type"), data)
	h.respondSession(w, err, "Failed to attach document")
}

func (h *Handler) DownloadAttachment(w http.ResponseWriter, r *http.Request) {
	current, ok := h.Session.Current()
	if !ok {
		writeDomainError(w, "No strategy loaded", budget.ErrNoActiveStrategy)
		return
	}
	if current.Attachment == nil {
		writeError(w, http.StatusNotFound, "No document attached", nil)
		return
	}
	writeDownload(w, current.Attachment.ContentType, current.Attachment.FileName, current.Attachment.Data)
}

func (h *Handler) DeleteAttachment(w http.ResponseWriter, r *http.Request) {
	h.respondSession(w, h.Session.RemoveAttachment(r.Context()), "Failed to remove document")
}

// respondSession writes the session state, or the error.
func (h *Handler) respondSession(w http.ResponseWriter, err error, message string) {
	if err != nil {
		writeDomainError(w, message, err)
		return
	}
	writeJSON(w, http.StatusOK, h.sessionDTO())
}

// =============================================================================
// LINE ITEM HANDLERS
// =============================================================================

// ListLineItems returns the line items grouped by tactic.
func (h *Handler) ListLineItems(w http.ResponseWriter, r *http.Request) {
	groups, err := h.Session.GroupedLineItems()
	if err != nil {
		writeDomainError(w, "Failed to list line items", err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

func (h *Handler) AddLineItems(w http.ResponseWriter, r *http.Request) {
	var req BatchAddRequestDTO
	if !decodeBody(w, r, &req) {
		return
	}
	added, err := h.Session.AddLineItems(r.Context(), req.toDomain())
	if err != nil {
		writeDomainError(w, "Failed to add line items", err)
		return
	}
	writeJSON(w, http.StatusCreated, added)
}

// EditLineItem applies a cell edit. An edit that needs a redistribution
// choice answers 409 with the pending edit.
func (h *Handler) EditLineItem(w http.ResponseWriter, r *http.Request) {
	var req CellEditRequest
	if !decodeBody(w, r, &req) {
		return
	}
	pending, err := h.Session.EditLineItem(r.Context(), chi.URLParam(r, "itemID"), req.Field, string(req.Value))
	if err != nil {
		writeDomainError(w, "Failed to edit line item", err)
		return
	}
	if pending != nil {
		writeJSON(w, http.StatusConflict, PendingEditResponse{
			Error:    "Choose how to redistribute the remaining pool",
			Pending:  *pending,
			Policies: []string{string(budget.RedistributeEvenly), string(budget.ManualAdjustment)},
		})
		return
	}
	writeJSON(w, http.StatusOK, h.sessionDTO())
}

func (h *Handler) DeleteLineItem(w http.ResponseWriter, r *http.Request) {
	h.respondSession(w, h.Session.DeleteLineItem(r.Context(), chi.URLParam(r, "itemID")), "Failed to delete line item")
}

func (h *Handler) DuplicateLineItem(w http.ResponseWriter, r *http.Request) {
	dup, err := h.Session.DuplicateLineItem(r.Context(), chi.URLParam(r, "itemID"))
	if err != nil {
		writeDomainError(w, "Failed to duplicate line item", err)
		return
	}
	writeJSON(w, http.StatusCreated, dup)
}

func (h *Handler) MoveLineItem(w http.ResponseWriter, r *http.Request) {
	var req MoveTacticRequest
	if !decodeBody(w, r, &req) {
		return
	}
	err := h.Session.MoveLineItem(r.Context(), chi.URLParam(r, "itemID"), req.Tactic)
	h.respondSession(w, err, "Failed to move line item")
}

func (h *Handler) RebalanceLineItems(w http.ResponseWriter, r *http.Request) {
	h.respondSession(w, h.Session.Rebalance(r.Context()), "Failed to rebalance")
}

func (h *Handler) GetPendingEdit(w http.ResponseWriter, r *http.Request) {
	pending := h.Session.PendingEdit()
	if pending == nil {
		writeError(w, http.StatusNotFound, "No pending edit", nil)
		return
	}
	writeJSON(w, http.StatusOK, pending)
}

func (h *Handler) ResolvePendingEdit(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.respondSession(w, h.Session.ResolvePending(r.Context(), req.Policy), "Failed to resolve edit")
}

func (h *Handler) DiscardPendingEdit(w http.ResponseWriter, r *http.Request) {
	h.Session.DiscardPending()
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// FLIGHT HANDLERS
// =============================================================================

func (h *Handler) ListFlights(w http.ResponseWriter, r *http.Request) {
	current, ok := h.Session.Current()
	if !ok {
		writeDomainError(w, "No strategy loaded", budget.ErrNoActiveStrategy)
		return
	}
	flights := current.Flights
	if flights == nil {
		flights = []budget.Flight{}
	}
	writeJSON(w, http.StatusOK, flights)
}

func (h *Handler) RegenerateFlights(w http.ResponseWriter, r *http.Request) {
	n, err := h.Session.RegenerateFlights(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to regenerate flights", err)
		return
	}
	current, _ := h.Session.Current()
	writeJSON(w, http.StatusOK, RegenerateResponse{Count: n, Flights: current.Flights})
}

func (h *Handler) EditFlight(w http.ResponseWriter, r *http.Request) {
	var req CellEditRequest
	if !decodeBody(w, r, &req) {
		return
	}
	err := h.Session.EditFlight(r.Context(), chi.URLParam(r, "flightID"), req.Field, string(req.Value))
	h.respondSession(w, err, "Failed to edit flight")
}

func (h *Handler) DeleteFlight(w http.ResponseWriter, r *http.Request) {
	h.respondSession(w, h.Session.DeleteFlight(r.Context(), chi.URLParam(r, "flightID")), "Failed to delete flight")
}

// =============================================================================
// INTERCHANGE HANDLERS
// =============================================================================

func (h *Handler) ExportSessionJSON(w http.ResponseWriter, r *http.Request) {
	current, ok := h.Session.Current()
	if !ok {
		writeDomainError(w, "No strategy loaded", budget.ErrNoActiveStrategy)
		return
	}
	data, err := interchange.ExportStrategy(current)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to export strategy", err)
		return
	}
	writeDownload(w, "application/json", interchange.StrategyFileName(current), data)
}

func (h *Handler) ExportSessionCSV(w http.ResponseWriter, r *http.Request) {
	current, ok := h.Session.Current()
	if !ok {
		writeDomainError(w, "No strategy loaded", budget.ErrNoActiveStrategy)
		return
	}
	writeDownload(w, "text/csv", interchange.LineItemsFileName(current), interchange.LineItemsCSV(current))
}

func (h *Handler) ExportAll(w http.ResponseWriter, r *http.Request) {
	// Unsaved edits belong in the export.
	if err := h.Session.Save(r.Context()); err != nil && !errors.Is(err, budget.ErrNoActiveStrategy) {
		writeDomainError(w, "Failed to save strategy", err)
		return
	}
	data, err := interchange.ExportAll(r.Context(), h.Store)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to export strategies", err)
		return
	}
	name := fmt.Sprintf("strategies-%s.json", h.Now().Format("2006-01-02"))
	writeDownload(w, "application/json", name, data)
}

// Import reads an exported JSON array. Without ?merge=true the existing
// strategies are replaced and the session is closed.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	merge, _ := strconv.ParseBool(r.URL.Query().Get("merge"))
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportSize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read import", err)
		return
	}

	if !merge {
		if err := h.Session.Save(r.Context()); err != nil && !errors.Is(err, budget.ErrNoActiveStrategy) {
			writeDomainError(w, "Failed to save strategy", err)
			return
		}
	}
	n, err := interchange.ImportAll(r.Context(), h.Store, data, merge)
	if err != nil {
		writeDomainError(w, "Failed to import strategies", err)
		return
	}
	if !merge {
		h.Session.Discard()
	}

	h.log.Info("strategies imported", "count", n, "merge", merge)
	writeJSON(w, http.StatusOK, ImportResponse{Imported: n, Merged: merge})
}

// =============================================================================
// LIBRARY HANDLERS
// =============================================================================

// ListAdvertisers returns every pair, or with ?agency= the advertisers of
// one agency.
func (h *Handler) ListAdvertisers(w http.ResponseWriter, r *http.Request) {
	pairs, err := h.Libraries.Advertisers.All(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load advertisers", err)
		return
	}
	if agency := r.URL.Query().Get("agency"); agency != "" {
		writeJSON(w, http.StatusOK, library.AdvertisersByAgency(pairs, agency))
		return
	}
	writeJSON(w, http.StatusOK, pairs)
}

func (h *Handler) AddAdvertiser(w http.ResponseWriter, r *http.Request) {
	var pair library.AdvertiserAgencyPair
	if !decodeBody(w, r, &pair) {
		return
	}
	added, err := h.Libraries.Advertisers.Add(r.Context(), pair)
	if err != nil {
		writeDomainError(w, "Failed to add advertiser", err)
		return
	}
	writeJSON(w, http.StatusOK, LibraryChangeResponse{Changed: added})
}

func (h *Handler) RemoveAdvertiser(w http.ResponseWriter, r *http.Request) {
	var pair library.AdvertiserAgencyPair
	if !decodeBody(w, r, &pair) {
		return
	}
	removed, err := h.Libraries.Advertisers.Remove(r.Context(), pair)
	if err != nil {
		writeDomainError(w, "Failed to remove advertiser", err)
		return
	}
	writeJSON(w, http.StatusOK, LibraryChangeResponse{Changed: removed})
}

// ListAgencies returns the unique agencies, or with ?advertiser= the agency
// that advertiser belongs to.
func (h *Handler) ListAgencies(w http.ResponseWriter, r *http.Request) {
	pairs, err := h.Libraries.Advertisers.All(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load advertisers", err)
		return
	}
	if advertiser := r.URL.Query().Get("advertiser"); advertiser != "" {
		agency, ok := library.AgencyForAdvertiser(pairs, advertiser)
		if !ok {
			writeError(w, http.StatusNotFound, "Advertiser not found", nil)
			return
		}
		writeJSON(w, http.StatusOK, AgencyResponse{Advertiser: advertiser, Agency: agency})
		return
	}
	writeJSON(w, http.StatusOK, library.UniqueAgencies(pairs))
}

func (h *Handler) ListAudiences(w http.ResponseWriter, r *http.Request) {
	targets, err := h.Libraries.Audiences.All(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load audiences", err)
		return
	}
	if category := r.URL.Query().Get("category"); category != "" {
		targets = library.TargetsByCategory(targets, category)
	}
	writeJSON(w, http.StatusOK, targets)
}

func (h *Handler) AddAudience(w http.ResponseWriter, r *http.Request) {
	var target library.AudienceTarget
	if !decodeBody(w, r, &target) {
		return
	}
	added, err := h.Libraries.Audiences.Add(r.Context(), target)
	if err != nil {
		writeDomainError(w, "Failed to add audience", err)
		return
	}
	writeJSON(w, http.StatusOK, LibraryChangeResponse{Changed: added})
}

func (h *Handler) RemoveAudience(w http.ResponseWriter, r *http.Request) {
	var target library.AudienceTarget
	if !decodeBody(w, r, &target) {
		return
	}
	removed, err := h.Libraries.Audiences.Remove(r.Context(), target)
	if err != nil {
		writeDomainError(w, "Failed to remove audience", err)
		return
	}
	writeJSON(w, http.StatusOK, LibraryChangeResponse{Changed: removed})
}

// =============================================================================
// TEMPLATE HANDLERS
// =============================================================================

func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	records, err := h.Store.ListTemplates(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list templates", err)
		return
	}

	dtos := make([]TemplateDTO, 0, len(records))
	for _, rec := range records {
		dto, err := h.toTemplateDTO(rec)
		if err != nil {
			h.log.Warn("skipping invalid template", "id", rec.ID, "error", err)
			continue
		}
		dtos = append(dtos, dto)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req CreateTemplateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	tj := req.TemplateJSON
	if req.FromSession {
		current, ok := h.Session.Current()
		if !ok {
			writeDomainError(w, "No strategy loaded", budget.ErrNoActiveStrategy)
			return
		}
		tj = h.Templates.FromStrategy(current, req.Name, req.Description, req.Tags)
	}

	tpl, err := h.Templates.FromJSON(tj)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid template", err)
		return
	}
	config, err := json.Marshal(h.Templates.ToJSON(tpl))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to encode template", err)
		return
	}
	rec, err := h.Store.SaveTemplate(r.Context(), sqlite.TemplateRecord{
		ID:         tpl.ID,
		Name:       tpl.Name,
		ConfigJSON: string(config),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save template", err)
		return
	}

	dto, err := h.toTemplateDTO(rec)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read template", err)
		return
	}
	writeJSON(w, http.StatusCreated, dto)
}

func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.findTemplate(w, r)
	if !ok {
		return
	}
	dto, err := h.toTemplateDTO(*rec)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Invalid stored template", err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	ok, err := h.Store.DeleteTemplate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete template", err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "Template not found", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// InstantiateTemplate creates a strategy from a template and activates it.
func (h *Handler) InstantiateTemplate(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.findTemplate(w, r)
	if !ok {
		return
	}
	var in budget.NewStrategyInput
	if !decodeBody(w, r, &in) {
		return
	}

	tpl, err := h.Templates.ParseTemplate(rec.ConfigJSON)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Invalid stored template", err)
		return
	}
	s, err := h.Templates.Instantiate(tpl, in, h.Now())
	if err != nil {
		writeDomainError(w, "Failed to instantiate template", err)
		return
	}
	created, err := h.Session.Open(r.Context(), s)
	if err != nil {
		writeDomainError(w, "Failed to create strategy", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) findTemplate(w http.ResponseWriter, r *http.Request) (*sqlite.TemplateRecord, bool) {
	rec, err := h.Store.GetTemplate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get template", err)
		return nil, false
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "Template not found", nil)
		return nil, false
	}
	return rec, true
}

func (h *Handler) toTemplateDTO(rec sqlite.TemplateRecord) (TemplateDTO, error) {
	tpl, err := h.Templates.ParseTemplate(rec.ConfigJSON)
	if err != nil {
		return TemplateDTO{}, err
	}
	return TemplateDTO{
		ID:        rec.ID,
		Name:      rec.Name,
		Template:  h.Templates.ToJSON(tpl),
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError picks the status from the error.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	status := http.StatusInternalServerError
	code := ""
	switch {
	case errors.Is(err, budget.ErrNoActiveStrategy):
		status, code = http.StatusConflict, "no_active_strategy"
	case errors.Is(err, budget.ErrNoPendingEdit):
		status, code = http.StatusConflict, "no_pending_edit"
	case budget.IsNotFound(err):
		status = http.StatusNotFound
	case budget.IsClientError(err),
		errors.Is(err, interchange.ErrInvalidFormat),
		errors.Is(err, factory.ErrEmptyTemplateName):
		status = http.StatusBadRequest
	}
	resp := ErrorResponse{Error: message, Code: code, Details: err.Error()}
	writeJSON(w, status, resp)
}

// decodeBody decodes a JSON body, writing 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func writeDownload(w http.ResponseWriter, contentType, fileName string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
