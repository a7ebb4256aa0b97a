package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/voyagen/epgvault/internal/models"
	"github.com/voyagen/epgvault/internal/scheduler"
)

type triggerResponse struct {
	Status  string `json:"status"`
	CycleID string `json:"cycle_id,omitempty"`
}

func (s *Server) handleTriggerCycle(w http.ResponseWriter, r *http.Request) {
	cycleID, err := s.cycles.Trigger(r.Context(), models.TriggerManual)
	if errors.Is(err, scheduler.ErrAlreadyRunning) {
		writeJSON(w, http.StatusConflict, triggerResponse{Status: "already_running"})
		return
	}
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, triggerResponse{Status: "accepted", CycleID: cycleID})
}

type importStatusResponse struct {
	State               string                  `json:"state"`
	LastCycleStartedAt  *time.Time              `json:"last_cycle_started_at,omitempty"`
	LastCycleFinishedAt *time.Time              `json:"last_cycle_finished_at,omitempty"`
	LastCycleStatus     string                  `json:"last_cycle_status,omitempty"`
	NextRun             *time.Time              `json:"next_run,omitempty"`
	Current             *scheduler.CycleReport  `json:"current,omitempty"`
	Last                *scheduler.CycleReport  `json:"last,omitempty"`
	PerProvider         []models.ImportLogEntry `json:"per_provider"`
}

func (s *Server) handleImportStatus(w http.ResponseWriter, r *http.Request) {
	st := s.cycles.Status()
	resp := importStatusResponse{
		State:       st.State,
		NextRun:     st.NextRun,
		Current:     st.Current,
		Last:        st.Last,
		PerProvider: []models.ImportLogEntry{},
	}
	if st.Last != nil {
		started := st.Last.StartedAt
		resp.LastCycleStartedAt = &started
		resp.LastCycleFinishedAt = st.Last.FinishedAt
		resp.LastCycleStatus = st.Last.Status
		logs, err := s.store.ListImportLogs(r.Context(), st.Last.ID)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		if logs != nil {
			resp.PerProvider = logs
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleImportLogs(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	logs, err := s.store.LatestImportLogs(r.Context(), limit)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if logs == nil {
		logs = []models.ImportLogEntry{}
	}
	writeJSON(w, http.StatusOK, logs)
}
