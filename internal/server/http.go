package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/keytune/internal/bulksync"
	"github.com/muurk/keytune/internal/errs"
	"github.com/muurk/keytune/internal/logging"
	"github.com/muurk/keytune/internal/snapshot"
	"github.com/muurk/keytune/internal/version"
)

// maxImportSize caps an uploaded snapshot.
const maxImportSize = 8 << 20

// ErrorBody is the JSON body of every non-2xx response.
type ErrorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
	Hint  string `json:"hint,omitempty"`
}

// ImportResponse summarizes an import.
type ImportResponse struct {
	Failures []string `json:"failures"`
	Skipped  []string `json:"skipped"`
	Elapsed  string   `json:"elapsed"`
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /connect", s.handleConnect)
	mux.HandleFunc("POST /disconnect", s.handleDisconnect)
	mux.HandleFunc("GET /export", s.handleExport)
	mux.HandleFunc("POST /import", s.handleImport)
	mux.Handle("GET /ws", s.hub)
	return mux
}

// logRequests wraps h with one debug line per request.
func logRequests(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		h.ServeHTTP(w, r)
		logging.Debug("HTTP request",
			zap.String("remote_addr", r.RemoteAddr),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"uptime":  time.Since(s.started).Round(time.Second).String(),
		"clients": s.hub.Clients(),
		"version": version.Get(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.dev.Status())
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	dev, err := s.dev.AutoConnect(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if dev == nil {
		writeError(w, errs.New(errs.KindNotDiscoverable, "connect", "paired keyboard is not attached"))
		return
	}
	writeJSON(w, http.StatusOK, s.dev.Status())
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.dev.Disconnect(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.dev.Status())
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	snap, report, err := s.sync.Export(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	data, err := snapshot.Marshal(snap)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if report != nil && report.Degraded > 0 {
		w.Header().Set("X-Keytune-Degraded", strconv.Itoa(report.Degraded))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxImportSize))
	if err != nil {
		writeError(w, errs.NewParseError("import", "failed to read request body", err))
		return
	}
	snap, err := snapshot.Unmarshal(data)
	if err != nil {
		writeError(w, err)
		return
	}
	report, err := s.sync.Import(r.Context(), snap)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, importResponse(report))
}

func importResponse(r *bulksync.Report) ImportResponse {
	out := ImportResponse{Failures: []string{}, Skipped: append([]string{}, r.Skipped...), Elapsed: r.Elapsed.String()}
	for _, f := range r.Failures {
		out.Failures = append(out.Failures, f.String())
	}
	return out
}

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.KindValidation, errs.KindParse:
		return http.StatusBadRequest
	case errs.KindBusy:
		return http.StatusConflict
	case errs.KindNoDevice, errs.KindNotDiscoverable, errs.KindDisconnected:
		return http.StatusServiceUnavailable
	case errs.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		logging.Error("Request failed", zap.Error(err))
	}
	body := ErrorBody{Error: errs.ShortMessage(err), Kind: errs.KindOf(err).String()}
	if hint := errs.TroubleshootingHint(err); hint != "" {
		body.Hint = strings.TrimSpace(hint)
	}
	writeJSON(w, code, body)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debug("Failed to write response", zap.Error(err))
	}
}
