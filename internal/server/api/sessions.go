// Package api provides the HTTP handlers for measurement sessions.
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ayusman/heartbeat/internal/chart"
	"github.com/ayusman/heartbeat/internal/store"
)

// maxBodySize bounds request bodies.
const maxBodySize = 4 * 1024

// SessionHandler serves the session collector endpoints:
//
//	GET|POST /api/new_session
//	POST     /api/send_bpm/{id}
//	GET      /api/get_bpm/{id}
//	GET|POST /api/close_session/{id}
//	GET      /api/sessions
//	GET      /api/sessions/{id}
//	GET      /api/sessions/{id}/chart[?format=png]
type SessionHandler struct {
	store *store.Store
}

// NewSessionHandler creates a new SessionHandler with the given store.
func NewSessionHandler(s *store.Store) *SessionHandler {
	return &SessionHandler{store: s}
}

// Register mounts the handler's routes on mux.
func (h *SessionHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/new_session", h.newSession)
	mux.HandleFunc("/api/send_bpm/", h.sendBPM)
	mux.HandleFunc("/api/get_bpm/", h.getBPM)
	mux.HandleFunc("/api/close_session/", h.closeSession)
	mux.HandleFunc("/api/sessions", h.sessions)
	mux.HandleFunc("/api/sessions/", h.sessions)
}

// Request and response types

// SendBPMRequest is the body of POST /api/send_bpm/{id}.
type SendBPMRequest struct {
	BPM *float64 `json:"bpm"`
}

// NewSessionResponse is returned by POST /api/new_session.
type NewSessionResponse struct {
	ID string `json:"id"`
}

// BPMResponse is returned by GET /api/get_bpm/{id}.
type BPMResponse struct {
	ID  string  `json:"id"`
	BPM float64 `json:"bpm"`
}

// SessionResponse describes one session.
type SessionResponse struct {
	ID        string            `json:"id"`
	BPM       float64           `json:"bpm"`
	Open      bool              `json:"open"`
	CreatedAt string            `json:"created_at"`
	UpdatedAt string            `json:"updated_at"`
	ClosedAt  string            `json:"closed_at,omitempty"`
	Readings  []ReadingResponse `json:"readings,omitempty"`
}

// ReadingResponse is one recorded BPM value.
type ReadingResponse struct {
	BPM        float64 `json:"bpm"`
	RecordedAt string  `json:"recorded_at"`
}

type listSessionsResponse struct {
	Sessions []SessionResponse `json:"sessions"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toResponse(s *store.Session) SessionResponse {
	resp := SessionResponse{
		ID:        s.ID,
		BPM:       s.BPM,
		Open:      s.Open(),
		CreatedAt: s.CreatedAt.Format(time.RFC3339),
		UpdatedAt: s.UpdatedAt.Format(time.RFC3339),
	}
	if s.ClosedAt != nil {
		resp.ClosedAt = s.ClosedAt.Format(time.RFC3339)
	}
	return resp
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeStoreError maps repository errors onto status codes.
func writeStoreError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "Session not found")
	case errors.Is(err, store.ErrSessionClosed):
		writeError(w, http.StatusConflict, "Session is closed")
	default:
		writeError(w, http.StatusInternalServerError, "Failed to "+action)
	}
}

// sessionID extracts the single path segment after prefix.
func sessionID(r *http.Request, prefix string) (string, bool) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
	if id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// newSession handles /api/new_session.
func (h *SessionHandler) newSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sess, err := h.store.Sessions().Open()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}

	writeJSON(w, http.StatusCreated, NewSessionResponse{ID: sess.ID})
}

// sendBPM handles POST /api/send_bpm/{id}.
func (h *SessionHandler) sendBPM(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id, ok := sessionID(r, "/api/send_bpm")
	if !ok {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}

	var req SendBPMRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.BPM == nil {
		writeError(w, http.StatusBadRequest, "bpm is required")
		return
	}
	if bpm := *req.BPM; math.IsNaN(bpm) || math.IsInf(bpm, 0) || bpm < 0 {
		writeError(w, http.StatusBadRequest, "bpm must be a non-negative number")
		return
	}

	if err := h.store.Sessions().PutBPM(id, *req.BPM); err != nil {
		writeStoreError(w, err, "record bpm")
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

// getBPM handles GET /api/get_bpm/{id}.
func (h *SessionHandler) getBPM(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id, ok := sessionID(r, "/api/get_bpm")
	if !ok {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}

	bpm, err := h.store.Sessions().GetBPM(id)
	if err != nil {
		writeStoreError(w, err, "get bpm")
		return
	}

	writeJSON(w, http.StatusOK, BPMResponse{ID: id, BPM: bpm})
}

// closeSession handles /api/close_session/{id}.
func (h *SessionHandler) closeSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id, ok := sessionID(r, "/api/close_session")
	if !ok {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}

	if err := h.store.Sessions().Close(id); err != nil {
		writeStoreError(w, err, "close session")
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{Status: "closed"})
}

// sessions handles the /api/sessions collection and its items.
func (h *SessionHandler) sessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/sessions"), "/")
	if path == "" {
		h.list(w, r)
		return
	}

	id, rest, _ := strings.Cut(path, "/")
	switch rest {
	case "":
		h.get(w, r, id)
	case "chart":
		h.chart(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

// list handles GET /api/sessions.
func (h *SessionHandler) list(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.Sessions().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}

	response := listSessionsResponse{
		Sessions: make([]SessionResponse, 0, len(sessions)),
	}
	for _, s := range sessions {
		response.Sessions = append(response.Sessions, toResponse(s))
	}

	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/sessions/{id}. The optional limit query parameter
// keeps only the most recent readings.
func (h *SessionHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	repo := h.store.Sessions()
	sess, err := repo.Get(id)
	if err != nil {
		writeStoreError(w, err, "get session")
		return
	}
	readings, err := repo.Readings(id, limit)
	if err != nil {
		writeStoreError(w, err, "get readings")
		return
	}

	resp := toResponse(sess)
	for _, rd := range readings {
		resp.Readings = append(resp.Readings, ReadingResponse{
			BPM:        rd.BPM,
			RecordedAt: rd.RecordedAt.Format(time.RFC3339Nano),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// chart handles GET /api/sessions/{id}/chart.
func (h *SessionHandler) chart(w http.ResponseWriter, r *http.Request, id string) {
	series, err := SessionSeries(h.store.Sessions(), id)
	if err != nil {
		writeStoreError(w, err, "load readings")
		return
	}
	if len(series.Points) == 0 {
		writeError(w, http.StatusNotFound, "Session has no readings")
		return
	}

	var buf bytes.Buffer
	contentType := "text/html; charset=utf-8"
	if r.URL.Query().Get("format") == "png" {
		contentType = "image/png"
		err = chart.PNG(&buf, series)
	} else {
		err = chart.HTML(&buf, series)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("render error: %v", err))
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(buf.Bytes())
}

// SessionSeries loads a session's readings as a chart series.
func SessionSeries(repo *store.SessionRepository, id string) (chart.Series, error) {
	readings, err := repo.Readings(id, 0)
	if err != nil {
		return chart.Series{}, err
	}

	series := chart.Series{Title: "Session " + id}
	for _, rd := range readings {
		series.Points = append(series.Points, chart.Point{At: rd.RecordedAt, BPM: rd.BPM})
	}
	return series, nil
}
