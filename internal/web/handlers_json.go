package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/vitos/loki_dashboard/internal/domain"
	"github.com/vitos/loki_dashboard/internal/usecase"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 16

func (s *Server) handleDashboardJSON(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.dashboard.View())
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := decodeBody(r, &req); err != nil || req.Enabled == nil {
		writeError(w, http.StatusBadRequest, `body must be {"enabled": true|false}`)
		return
	}
	s.client.SetLive(*req.Enabled)
	writeJSON(w, http.StatusOK, map[string]bool{"live": s.client.Live()})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	key := usecase.QueryKey(r.PathValue("key"))
	if err := s.client.Invalidate(r.Context(), key); err != nil {
		if errors.Is(err, usecase.ErrUnknownQuery) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	st, err := s.client.State(key)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, queryStateJSON(st))
}

type queryStateResponse struct {
	usecase.QueryState
	Error string `json:"error,omitempty"`
}

func queryStateJSON(st usecase.QueryState) queryStateResponse {
	return queryStateResponse{QueryState: st, Error: st.ErrorMessage()}
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	action := usecase.MutationName(r.PathValue("action"))
	var run func(r *http.Request) error
	switch action {
	case usecase.MutationPause:
		run = func(r *http.Request) error { return s.controls.Pause(r.Context()) }
	case usecase.MutationResume:
		run = func(r *http.Request) error { return s.controls.Resume(r.Context()) }
	case usecase.MutationEmergencyStop:
		run = func(r *http.Request) error { return s.controls.EmergencyStop(r.Context()) }
	case usecase.MutationClearQueue:
		run = func(r *http.Request) error { return s.controls.ClearQueue(r.Context()) }
	default:
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown control action %q", action))
		return
	}

	if err := run(r); err != nil {
		s.writeMutationError(w, action, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "action": action})
}

func (s *Server) handleClosePosition(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	var req struct {
		Reason string `json:"reason"`
	}
	if err := decodeBody(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := s.controls.ClosePosition(r.Context(), token, req.Reason)
	if err != nil {
		s.writeMutationError(w, usecase.MutationClosePosition, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleClearDatabase(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Confirm string `json:"confirm"`
	}
	if err := decodeBody(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.controls.ClearDatabase(r.Context(), req.Confirm); err != nil {
		s.writeMutationError(w, usecase.MutationClearDatabase, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleDownloadDatabase(w http.ResponseWriter, r *http.Request) {
	hours := 0
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "hours must be a non-negative integer")
			return
		}
		hours = n
	}

	archive, err := s.controls.DownloadDatabase(r.Context(), hours)
	if err != nil {
		s.writeMutationError(w, usecase.MutationDownloadDatabase, err)
		return
	}
	w.Header().Set("Content-Type", archive.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", archive.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(archive.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(archive.Data); err != nil {
		s.logger.Warn("Archive write interrupted", zap.Error(err))
	}
}

func (s *Server) handleResetCircuitBreaker(w http.ResponseWriter, r *http.Request) {
	if err := s.controls.ResetCircuitBreaker(r.Context()); err != nil {
		s.writeMutationError(w, usecase.MutationResetCircuitBreaker, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleTripCircuitBreaker(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := decodeBody(r, &req); err != nil || strings.TrimSpace(req.Reason) == "" {
		writeError(w, http.StatusBadRequest, "a trip reason is required")
		return
	}
	if err := s.controls.TripCircuitBreaker(r.Context(), req.Reason); err != nil {
		s.writeMutationError(w, usecase.MutationTripCircuitBreaker, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.notifier.Active())
}

func (s *Server) handleDismissNotification(w http.ResponseWriter, r *http.Request) {
	s.notifier.Dismiss(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

// writeMutationError maps a failed mutation onto a status code. The message is
// the same one the failure notification carries.
func (s *Server) writeMutationError(w http.ResponseWriter, name usecase.MutationName, err error) {
	var te *domain.TransportError
	switch {
	case errors.Is(err, domain.ErrConfirmationRequired):
		writeError(w, http.StatusBadRequest, fmt.Sprintf("confirmation must be %q", domain.ClearDatabaseConfirmation))
	case errors.As(err, &te):
		writeError(w, http.StatusBadGateway, usecase.FailureMessage(err))
	default:
		s.logger.Warn("Mutation rejected", zap.String("mutation", string(name)), zap.Error(err))
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

// --- request/response helpers ---

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
