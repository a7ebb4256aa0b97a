package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/voyagen/epgvault/internal/models"
	"github.com/voyagen/epgvault/internal/store"
)

func (s *Server) handleListAliases(w http.ResponseWriter, r *http.Request) {
	var channelID *int64
	if v := r.URL.Query().Get("channel_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid channel_id: %s", v))
			return
		}
		channelID = &id
	}
	aliases, err := s.store.ListChannelAliases(r.Context(), channelID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if aliases == nil {
		aliases = []models.ChannelAlias{}
	}
	writeJSON(w, http.StatusOK, aliases)
}

type aliasTarget struct {
	AliasID            int64   `json:"alias_id"`
	ChannelID          int64   `json:"channel_id"`
	ChannelName        string  `json:"channel_name"`
	ChannelDisplayName string  `json:"channel_display_name"`
	AliasType          *string `json:"alias_type,omitempty"`
}

type aliasMappingResponse struct {
	Count   int                    `json:"count"`
	Mapping map[string]aliasTarget `json:"mapping"`
}

// handleAliasMapping returns every alias keyed by its text, for clients that
// translate their own channel codes in bulk.
func (s *Server) handleAliasMapping(w http.ResponseWriter, r *http.Request) {
	aliases, err := s.store.ListChannelAliases(r.Context(), nil)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	resp := aliasMappingResponse{Count: len(aliases), Mapping: make(map[string]aliasTarget, len(aliases))}
	for _, a := range aliases {
		resp.Mapping[a.Alias] = aliasTarget{
			AliasID:            a.ID,
			ChannelID:          a.ChannelID,
			ChannelName:        a.ChannelName,
			ChannelDisplayName: a.ChannelDisplayName,
			AliasType:          a.AliasType,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleChannelAliases(w http.ResponseWriter, r *http.Request) {
	ch := s.resolveChannel(w, r)
	if ch == nil {
		return
	}
	aliases, err := s.store.ListChannelAliases(r.Context(), &ch.ID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if aliases == nil {
		aliases = []models.ChannelAlias{}
	}
	writeJSON(w, http.StatusOK, aliases)
}

type createAliasRequest struct {
	Alias     string  `json:"alias"`
	AliasType *string `json:"alias_type"`
}

func (s *Server) handleCreateAlias(w http.ResponseWriter, r *http.Request) {
	var req createAliasRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}
	req.Alias = strings.TrimSpace(req.Alias)
	if req.Alias == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("alias is required"))
		return
	}
	ch := s.resolveChannel(w, r)
	if ch == nil {
		return
	}
	alias, err := s.store.CreateChannelAlias(r.Context(), ch.ID, req.Alias, req.AliasType)
	if errors.Is(err, store.ErrConflict) {
		writeErr(w, http.StatusConflict, fmt.Errorf("alias %q already exists", req.Alias))
		return
	}
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	alias.ChannelName = ch.Name
	alias.ChannelDisplayName = ch.DisplayName
	writeJSON(w, http.StatusCreated, alias)
}

func (s *Server) handleDeleteAlias(w http.ResponseWriter, r *http.Request) {
	aliasID, err := parseID(r, "id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	if err := s.store.DeleteChannelAlias(r.Context(), aliasID); err != nil {
		s.writeLookupErr(w, err, "alias", aliasID)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
