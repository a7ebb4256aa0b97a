package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/voyagen/epgvault/internal/models"
	"github.com/voyagen/epgvault/internal/store"
)

// maxProgramSpan bounds the window of a single programs query.
const maxProgramSpan = 14 * 24 * time.Hour

type channelListResponse struct {
	Channels []models.Channel `json:"channels"`
	Total    int              `json:"total"`
	Limit    int              `json:"limit"`
	Offset   int              `json:"offset"`
}

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ChannelFilter{Search: q.Get("search")}
	if v := q.Get("provider_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid provider_id: %s", v))
			return
		}
		filter.ProviderID = &id
	}
	var err error
	if filter.Limit, err = queryInt(r, "limit", 50); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	if filter.Offset, err = queryInt(r, "offset", 0); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	if filter.Limit == 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 {
		filter.Limit = 200
	}

	channels, total, err := s.store.ListChannels(r.Context(), filter)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if channels == nil {
		channels = []models.Channel{}
	}
	writeJSON(w, http.StatusOK, channelListResponse{Channels: channels, Total: total, Limit: filter.Limit, Offset: filter.Offset})
}

// resolveChannel looks up the {id} path value as a channel id, name or alias.
// It writes the error response itself and returns nil when nothing matched.
func (s *Server) resolveChannel(w http.ResponseWriter, r *http.Request) *models.Channel {
	identifier := strings.TrimSpace(r.PathValue("id"))
	if identifier == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("missing channel identifier"))
		return nil
	}
	ch, err := s.store.ResolveChannel(r.Context(), identifier)
	if errors.Is(err, store.ErrNotFound) {
		writeErr(w, http.StatusNotFound, fmt.Errorf("channel %q not found", identifier))
		return nil
	}
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return nil
	}
	return ch
}

func (s *Server) handleGetChannel(w http.ResponseWriter, r *http.Request) {
	ch := s.resolveChannel(w, r)
	if ch == nil {
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

type programsResponse struct {
	ChannelID int64            `json:"channel_id"`
	Start     time.Time        `json:"start"`
	End       time.Time        `json:"end"`
	Programs  []models.Program `json:"programs"`
}

// parseWindow reads start/end (RFC 3339), defaulting to the next 24 hours from
// the current minute so repeated default queries share a cache entry.
func (s *Server) parseWindow(r *http.Request) (start, end time.Time, err error) {
	q := r.URL.Query()
	start = s.now().UTC().Truncate(time.Minute)
	if v := q.Get("start"); v != "" {
		if start, err = time.Parse(time.RFC3339, v); err != nil {
			return start, end, fmt.Errorf("invalid start: %s", v)
		}
	}
	end = start.Add(24 * time.Hour)
	if v := q.Get("end"); v != "" {
		if end, err = time.Parse(time.RFC3339, v); err != nil {
			return start, end, fmt.Errorf("invalid end: %s", v)
		}
	}
	if !end.After(start) {
		return start, end, fmt.Errorf("end must be after start")
	}
	if end.Sub(start) > maxProgramSpan {
		return start, end, fmt.Errorf("window must not exceed %s", maxProgramSpan)
	}
	return start.UTC(), end.UTC(), nil
}

func (s *Server) handleChannelPrograms(w http.ResponseWriter, r *http.Request) {
	start, end, err := s.parseWindow(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	ch := s.resolveChannel(w, r)
	if ch == nil {
		return
	}
	programs, err := s.store.ProgramsForChannel(r.Context(), ch.ID, start, end)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if programs == nil {
		programs = []models.Program{}
	}
	writeJSON(w, http.StatusOK, programsResponse{ChannelID: ch.ID, Start: start, End: end, Programs: programs})
}
