// Package api exposes the HTTP endpoints for creating and redeeming shares.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/driftshare/driftshare/internal/config"
	"github.com/driftshare/driftshare/internal/share"
)

// Server wires the share engine to HTTP.
type Server struct {
	cfg    *config.Config
	engine *share.Engine
	log    zerolog.Logger
	server *http.Server
	once   sync.Once
}

// New constructs a Server.
func New(cfg *config.Config, engine *share.Engine, logger zerolog.Logger) *Server {
	return &Server{
		cfg:    cfg,
		engine: engine,
		log:    logger,
	}
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.once.Do(func() {
		s.server = &http.Server{
			Addr:    s.cfg.Address,
			Handler: s.Handler(),
		}
	})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	s.log.Info().Str("addr", s.cfg.Address).Msg("api listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Handler builds the route table; exposed separately so tests can drive it
// through httptest without binding a socket.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/shares", s.handleShares)
	mux.HandleFunc("/shares/", s.handleShareRoute)
	mux.HandleFunc("/files/", s.handleFileRoute)
	return corsMiddleware(s.loggingMiddleware(mux))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleShares(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleUpload(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleShareRoute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	locator := strings.TrimPrefix(r.URL.Path, "/shares/")
	if locator == "" || strings.Contains(locator, "/") {
		http.NotFound(w, r)
		return
	}
	result, err := s.engine.Lookup(r.Context(), locator)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleFileRoute(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/files/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	id := parts[0]
	switch parts[1] {
	case "access":
		s.handleRequestAccess(w, r, id)
	case "download":
		s.handleDownload(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

// handleRequestAccess is the preview step of the redemption protocol: the
// gate runs but no download unit is consumed.
func (s *Server) handleRequestAccess(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Password string `json:"password"`
	}
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			respondJSON(w, http.StatusBadRequest, errorBody("validation", "malformed JSON body"))
			return
		}
	}
	decision, err := s.engine.RequestAccess(r.Context(), id, body.Password)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if decision.Kind != share.DecisionAllowed {
		respondJSON(w, decisionStatus(decision.Kind), errorBody(string(decision.Kind), decisionMessage(decision.Kind)))
		return
	}
	respondJSON(w, http.StatusOK, decision.Meta)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, rec, err := s.engine.OpenDownload(r.Context(), id)
	if err != nil {
		s.respondError(w, err)
		return
	}
	defer body.Close()

	contentType := rec.MediaType
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(rec.FileName))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rec.FileName))
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(rec.SizeBytes, 10))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		// The budget unit is already spent; all we can do mid-stream is log.
		s.log.Warn().Err(err).Str("id", id).Msg("download stream interrupted")
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxFileSize+1024)
	mr, err := r.MultipartReader()
	if err != nil {
		respondJSON(w, http.StatusBadRequest, errorBody("validation", "expecting multipart form"))
		return
	}
	form, err := s.readUploadForm(mr)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, errorBody("validation", err.Error()))
		return
	}
	defer os.Remove(form.tmpPath)
	defer form.file.Close()

	req := &share.CreateRequest{
		Body:      form.file,
		SizeBytes: form.size,
		FileName:  form.filename,
		MediaType: form.mediaType,
		Password:  form.fields["password"],
	}
	if v := form.fields["max_downloads"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			respondJSON(w, http.StatusBadRequest, errorBody("validation", "max_downloads must be an integer"))
			return
		}
		req.MaxDownloads = &n
	}
	if v := form.fields["ttl_ms"]; v != "" {
		ttl, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			respondJSON(w, http.StatusBadRequest, errorBody("validation", "ttl_ms must be an integer"))
			return
		}
		req.TTLMillis = &ttl
	}

	rec, err := s.engine.Create(ctx, req)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{
		"locator": rec.Locator,
		"url":     fmt.Sprintf("%s/%s", s.cfg.BaseURL, rec.Locator),
	})
}

// uploadForm is the parsed multipart payload: the spooled file part plus the
// small text fields that arrived alongside it.
type uploadForm struct {
	file      *os.File
	tmpPath   string
	size      int64
	filename  string
	mediaType string
	fields    map[string]string
}

// readUploadForm walks the multipart stream, spooling the "file" part to a
// temp file and collecting the remaining fields as text. Spooling keeps
// memory flat regardless of upload size; the 512-byte prefix feeds content
// sniffing when no media type was declared.
func (s *Server) readUploadForm(mr *multipart.Reader) (*uploadForm, error) {
	form := &uploadForm{fields: make(map[string]string)}
	for {
		part, err := mr.NextPart()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read multipart: %w", err)
		}
		if part.FormName() == "file" {
			if err := s.spoolFilePart(part, form); err != nil {
				part.Close()
				return nil, err
			}
			part.Close()
			continue
		}
		val, err := io.ReadAll(io.LimitReader(part, 1024))
		part.Close()
		if err != nil {
			return nil, fmt.Errorf("read field %s: %w", part.FormName(), err)
		}
		form.fields[part.FormName()] = strings.TrimSpace(string(val))
	}
	if form.file == nil {
		return nil, errors.New("missing file part")
	}
	if declared := form.fields["media_type"]; declared != "" {
		form.mediaType = declared
	}
	return form, nil
}

func (s *Server) spoolFilePart(part *multipart.Part, form *uploadForm) error {
	tmpFile, err := os.CreateTemp("", "driftshare-upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	discard := func() {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
	}
	var sniff []byte
	buf := make([]byte, 32*1024)
	var written int64
	for {
		n, readErr := part.Read(buf)
		if n > 0 {
			written += int64(n)
			if written > s.cfg.MaxFileSize {
				discard()
				return fmt.Errorf("file exceeds limit (%d bytes)", s.cfg.MaxFileSize)
			}
			if len(sniff) < 512 {
				chunk := n
				if remain := 512 - len(sniff); chunk > remain {
					chunk = remain
				}
				sniff = append(sniff, buf[:chunk]...)
			}
			if _, err := tmpFile.Write(buf[:n]); err != nil {
				discard()
				return fmt.Errorf("write temp file: %w", err)
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			discard()
			return fmt.Errorf("read file: %w", readErr)
		}
	}
	if written == 0 {
		discard()
		return errors.New("empty file")
	}
	if _, err := tmpFile.Seek(0, 0); err != nil {
		discard()
		return fmt.Errorf("rewind temp file: %w", err)
	}
	filename := part.FileName()
	if filename == "" {
		filename = "upload"
	}
	form.file = tmpFile
	form.tmpPath = tmpFile.Name()
	form.size = written
	form.filename = filepath.Base(filename)
	form.mediaType = http.DetectContentType(sniff)
	return nil
}

// respondError maps engine errors onto HTTP statuses, keeping the decision
// kinds distinct so clients can render them differently.
func (s *Server) respondError(w http.ResponseWriter, err error) {
	var verr *share.ValidationError
	switch {
	case errors.As(err, &verr):
		respondJSON(w, http.StatusBadRequest, map[string]string{
			"error":  "validation",
			"field":  verr.Field,
			"reason": verr.Reason,
		})
	case errors.Is(err, share.ErrNotFound):
		respondJSON(w, http.StatusNotFound, errorBody("not_found", "share does not exist"))
	case errors.Is(err, share.ErrExpired):
		respondJSON(w, http.StatusGone, errorBody("expired", "share link expired"))
	case errors.Is(err, share.ErrWrongPassword):
		respondJSON(w, http.StatusUnauthorized, errorBody("wrong_password", "incorrect password"))
	case errors.Is(err, share.ErrBudgetExhausted):
		respondJSON(w, http.StatusForbidden, errorBody("budget_exhausted", "download limit reached"))
	default:
		s.log.Error().Err(err).Msg("request failed")
		respondJSON(w, http.StatusInternalServerError, errorBody("upstream", "internal error"))
	}
}

func decisionStatus(kind share.DecisionKind) int {
	switch kind {
	case share.DecisionNotFound:
		return http.StatusNotFound
	case share.DecisionExpired:
		return http.StatusGone
	case share.DecisionWrongPassword:
		return http.StatusUnauthorized
	case share.DecisionBudgetExhausted:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func decisionMessage(kind share.DecisionKind) string {
	switch kind {
	case share.DecisionNotFound:
		return "share does not exist"
	case share.DecisionExpired:
		return "share link expired"
	case share.DecisionWrongPassword:
		return "incorrect password"
	case share.DecisionBudgetExhausted:
		return "download limit reached"
	default:
		return "access denied"
	}
}

func errorBody(code, message string) map[string]string {
	return map[string]string{"error": code, "message": message}
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}
