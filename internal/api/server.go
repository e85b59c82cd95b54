// Package api serves the lab monitor's JSON API: session listings, analysis
// runs, and rendered reports.
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/hwsec-lab/sramlab/db"
	"github.com/hwsec-lab/sramlab/internal/analysis"
	"github.com/hwsec-lab/sramlab/internal/fsutil"
	"github.com/hwsec-lab/sramlab/internal/report"
)

// UARTController is the slice of the serial mux the API needs.
type UARTController interface {
	SendCommand(string) error
}

type Server struct {
	db   *db.DB
	uart UARTController
	fs   fsutil.FileSystem
}

// NewServer builds the API server. uart may be nil when no UART device is
// attached; fs nil selects the real filesystem.
func NewServer(database *db.DB, uart UARTController, fs fsutil.FileSystem) *Server {
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	return &Server{
		db:   database,
		uart: uart,
		fs:   fs,
	}
}

const (
	colorReset     = "\033[0m"
	colorCyan      = "\033[36m"
	colorYellow    = "\033[33m"
	colorBoldRed   = "\033[1;31m"
	colorBoldGreen = "\033[1;32m"
)

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/sessions", s.listSessions)
	mux.HandleFunc("/session", s.showSession)
	mux.HandleFunc("/analyze", s.analyzeSession)
	mux.HandleFunc("/report", s.renderReport)
	mux.HandleFunc("/command", s.sendCommandHandler)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	sessions, err := s.db.ListSessions()
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve sessions: %v", err))
		return
	}

	if err := json.NewEncoder(w).Encode(sessions); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write sessions")
		return
	}
}

// sessionDetail is the /session response: the session row plus everything
// recorded against it.
type sessionDetail struct {
	Session  *db.Session          `json:"session"`
	Readouts []*db.Readout        `json:"readouts"`
	Results  []*db.AnalysisResult `json:"results"`
}

func (s *Server) showSession(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	id := r.URL.Query().Get("session_id")
	if id == "" {
		s.writeJSONError(w, http.StatusBadRequest, "Missing 'session_id' parameter")
		return
	}

	session, err := s.db.GetSession(id)
	if err != nil {
		s.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("Session not found: %v", err))
		return
	}

	readouts, err := s.db.ListReadouts(id)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve readouts: %v", err))
		return
	}

	results, err := s.db.ListResults(id)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve results: %v", err))
		return
	}

	if err := json.NewEncoder(w).Encode(sessionDetail{Session: session, Readouts: readouts, Results: results}); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write session")
		return
	}
}

// analyzeSession runs the battery and PUF metrics over a session's readout
// files and records the outcome.
func (s *Server) analyzeSession(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	id := r.URL.Query().Get("session_id")
	if id == "" {
		s.writeJSONError(w, http.StatusBadRequest, "Missing 'session_id' parameter")
		return
	}

	res, err := s.analyze(id)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Analysis failed: %v", err))
		return
	}

	rows := res.Rows(id)
	for _, row := range rows {
		if err := s.db.InsertResult(row); err != nil {
			s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to record result: %v", err))
			return
		}
	}

	if err := json.NewEncoder(w).Encode(rows); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write results")
		return
	}
}

func (s *Server) analyze(sessionID string) (*analysis.Result, error) {
	session, err := s.db.GetSession(sessionID)
	if err != nil {
		return nil, err
	}

	readouts, err := s.db.ListReadouts(sessionID)
	if err != nil {
		return nil, err
	}
	if len(readouts) == 0 {
		return nil, fmt.Errorf("session %s has no readouts", sessionID)
	}

	paths := make([]string, len(readouts))
	for i, ro := range readouts {
		paths[i] = ro.Path
	}

	title := session.Label
	if title == "" {
		title = sessionID
	}
	return analysis.Session(s.fs, title, paths)
}

func (s *Server) renderReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("session_id")
	if id == "" {
		http.Error(w, "Missing 'session_id' parameter", http.StatusBadRequest)
		return
	}

	res, err := s.analyze(id)
	if err != nil {
		http.Error(w, fmt.Sprintf("Analysis failed: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := report.WriteHTML(w, res.Report); err != nil {
		log.Printf("failed to render report for session %s: %v", id, err)
	}
}

func (s *Server) sendCommandHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.uart == nil {
		http.Error(w, "No UART device attached", http.StatusServiceUnavailable)
		return
	}

	command := r.FormValue("command")
	if command == "" {
		http.Error(w, "Missing command", http.StatusBadRequest)
		return
	}

	if err := s.uart.SendCommand(command); err != nil {
		http.Error(w, "Failed to send command", http.StatusInternalServerError)
		return
	}
	io.WriteString(w, "Command sent successfully")
}
