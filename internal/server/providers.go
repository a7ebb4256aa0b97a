package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/voyagen/epgvault/internal/models"
	"github.com/voyagen/epgvault/internal/scheduler"
	"github.com/voyagen/epgvault/internal/store"
)

func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := s.store.ListProviders(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if providers == nil {
		providers = []models.Provider{}
	}
	writeJSON(w, http.StatusOK, providers)
}

type createProviderRequest struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	Enabled *bool  `json:"enabled"`
}

func validFeedURL(raw string) error {
	u, err := url.ParseRequestURI(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("url must be a valid http or https URL")
	}
	return nil
}

func (s *Server) handleCreateProvider(w http.ResponseWriter, r *http.Request) {
	var req createProviderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("name is required"))
		return
	}
	if err := validFeedURL(req.URL); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	p := &models.Provider{Name: req.Name, URL: req.URL, Enabled: req.Enabled == nil || *req.Enabled}
	id, err := s.store.CreateProvider(r.Context(), p)
	if errors.Is(err, store.ErrConflict) {
		writeErr(w, http.StatusConflict, fmt.Errorf("provider %q already exists", req.Name))
		return
	}
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	created, err := s.store.GetProviderByID(r.Context(), id)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetProvider(w http.ResponseWriter, r *http.Request) {
	providerID, err := parseID(r, "id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	p, err := s.store.GetProviderByID(r.Context(), providerID)
	if err != nil {
		s.writeLookupErr(w, err, "provider", providerID)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type updateProviderRequest struct {
	Name    *string `json:"name"`
	URL     *string `json:"url"`
	Enabled *bool   `json:"enabled"`
}

func (s *Server) handleUpdateProvider(w http.ResponseWriter, r *http.Request) {
	providerID, err := parseID(r, "id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	var req updateProviderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}
	upd := store.ProviderUpdate{Name: req.Name, URL: req.URL, Enabled: req.Enabled}
	if upd.Empty() {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("at least one of name, url, enabled is required"))
		return
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("name must not be empty"))
		return
	}
	if req.URL != nil {
		if err := validFeedURL(*req.URL); err != nil {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
	}

	err = s.store.UpdateProvider(r.Context(), providerID, upd)
	if errors.Is(err, store.ErrConflict) {
		writeErr(w, http.StatusConflict, fmt.Errorf("another provider already uses that name"))
		return
	}
	if err != nil {
		s.writeLookupErr(w, err, "provider", providerID)
		return
	}
	p, err := s.store.GetProviderByID(r.Context(), providerID)
	if err != nil {
		s.writeLookupErr(w, err, "provider", providerID)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteProvider(w http.ResponseWriter, r *http.Request) {
	providerID, err := parseID(r, "id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	if err := s.store.DeleteProvider(r.Context(), providerID); err != nil {
		s.writeLookupErr(w, err, "provider", providerID)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleImportProvider(w http.ResponseWriter, r *http.Request) {
	providerID, err := parseID(r, "id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	cycleID, err := s.cycles.TriggerProvider(r.Context(), providerID)
	switch {
	case errors.Is(err, scheduler.ErrAlreadyRunning), errors.Is(err, scheduler.ErrProviderDisabled):
		writeErr(w, http.StatusConflict, err)
	case err != nil:
		s.writeLookupErr(w, err, "provider", providerID)
	default:
		writeJSON(w, http.StatusAccepted, triggerResponse{Status: "accepted", CycleID: cycleID})
	}
}

type providerTestResponse struct {
	Success     bool   `json:"success"`
	Status      string `json:"status"`
	StatusCode  int    `json:"status_code,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	IsXMLTV     bool   `json:"is_xmltv"`
	LatencyMS   int64  `json:"latency_ms"`
	Message     string `json:"message"`
}

// handleTestProvider checks that the provider's feed answers and looks like
// XMLTV without importing it. Unreachable feeds are a 200 with success=false.
func (s *Server) handleTestProvider(w http.ResponseWriter, r *http.Request) {
	providerID, err := parseID(r, "id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	p, err := s.store.GetProviderByID(r.Context(), providerID)
	if err != nil {
		s.writeLookupErr(w, err, "provider", providerID)
		return
	}
	res, err := s.checker.Check(r.Context(), p.URL)
	if err != nil {
		writeJSON(w, http.StatusOK, providerTestResponse{Status: "error", Message: err.Error()})
		return
	}
	resp := providerTestResponse{
		Success:     res.OK(),
		Status:      "online",
		StatusCode:  res.StatusCode,
		ContentType: res.ContentType,
		IsXMLTV:     res.IsXMLTV,
		LatencyMS:   res.Latency.Milliseconds(),
		Message:     "feed is reachable and looks like XMLTV",
	}
	switch {
	case res.StatusCode != http.StatusOK:
		resp.Status = "error"
		resp.Message = fmt.Sprintf("feed answered HTTP %d", res.StatusCode)
	case !res.IsXMLTV:
		resp.Message = "feed is reachable but does not look like XMLTV"
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeLookupErr maps store.ErrNotFound to 404 and anything else to 500.
func (s *Server) writeLookupErr(w http.ResponseWriter, err error, kind string, id int64) {
	if errors.Is(err, store.ErrNotFound) {
		writeErr(w, http.StatusNotFound, fmt.Errorf("%s %d not found", kind, id))
		return
	}
	writeErr(w, http.StatusInternalServerError, err)
}
