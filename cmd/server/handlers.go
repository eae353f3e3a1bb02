package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	"github.com/himanishpuri/DeepQuery/pkg/deepquery"
	"github.com/himanishpuri/DeepQuery/pkg/deepquery/fetch"
	"github.com/himanishpuri/DeepQuery/pkg/deepquery/storage"
	"github.com/himanishpuri/DeepQuery/pkg/logger"
	"github.com/himanishpuri/DeepQuery/pkg/models"
)

// RunBrowser reads the recorded run history.
type RunBrowser interface {
	ListRuns(ctx context.Context, limit int) ([]models.RunSummary, error)
	GetRun(ctx context.Context, id string) (*models.Report, error)
}

// Downloader fetches remote query sources.
type Downloader interface {
	Download(ctx context.Context, url string) (string, error)
}

// Server encapsulates the HTTP server and its dependencies
type Server struct {
	service    deepquery.Service
	runs       RunBrowser
	downloader Downloader
	config     *ServerConfig
	log        deepquery.Logger
	gatherer   prometheus.Gatherer
	validate   *validator.Validate

	cache  *lru.Cache[string, *models.Report]
	flight singleflight.Group
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Addr           string
	TempDir        string
	AllowedOrigins []string
	LibraryRoot    string
	CacheSize      int
	MaxUploadBytes int64
	QueryTimeout   time.Duration
	Defaults       models.Params
}

// NewServer creates a new server instance
func NewServer(service deepquery.Service, runs RunBrowser, downloader Downloader, gatherer prometheus.Gatherer, config *ServerConfig) (*Server, error) {
	size := config.CacheSize
	if size <= 0 {
		size = 1
	}
	cache, err := lru.New[string, *models.Report](size)
	if err != nil {
		return nil, fmt.Errorf("creating result cache: %w", err)
	}
	if config.MaxUploadBytes == 0 {
		config.MaxUploadBytes = 500 << 20
	}
	if config.QueryTimeout == 0 {
		config.QueryTimeout = 30 * time.Minute
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	return &Server{
		service:    service,
		runs:       runs,
		downloader: downloader,
		config:     config,
		log:        logger.GetLogger().WithPrefix("server"),
		gatherer:   gatherer,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		cache:      cache,
	}, nil
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Errorf("Failed to encode JSON response: %v", err)
	}
}

// respondError writes an error response
func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

// handleRoot handles GET /
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{
		"service": "DeepQuery API",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"health":    "GET /health",
			"metrics":   "GET /metrics",
			"deepQuery": "POST /api/deep-query",
			"listRuns":  "GET /api/runs",
			"getRun":    "GET /api/runs/{id}",
		},
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "deepquery",
	})
}

// handleDeepQuery handles POST /api/deep-query. Multipart requests carry the
// recording in the "audio" field; JSON requests name a path or YouTube URL.
func (s *Server) handleDeepQuery(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.config.QueryTimeout)
	defer cancel()

	var (
		req     DeepQueryRequest
		path    string
		source  string
		cleanup func()
		err     error
	)
	defer func() {
		if cleanup != nil {
			cleanup()
		}
	}()

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		path, cleanup, err = s.saveUpload(w, r, &req)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		source = uploadSource
	} else {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := s.validate.Struct(&req); err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		if req.YouTubeURL != "" {
			if s.downloader == nil {
				s.respondError(w, http.StatusNotImplemented, "remote sources are disabled")
				return
			}
			path, err = s.downloader.Download(ctx, req.YouTubeURL)
			if err != nil {
				s.log.Errorf("Download of %s failed: %v", req.YouTubeURL, err)
				s.respondError(w, http.StatusBadGateway, "failed to download source")
				return
			}
		} else {
			path, err = s.libraryPath(req.Path)
			if err != nil {
				s.respondError(w, http.StatusForbidden, err.Error())
				return
			}
		}
		source = path
	}

	params := req.Params(s.config.Defaults)
	if err := deepquery.ValidateParams(params); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	// the shared run owns the upload from here on
	release := cleanup
	cleanup = nil
	report, cached, err := s.deepQuery(ctx, path, source, params, release)
	if err != nil {
		s.log.Warnf("Deep query of %s failed: %v", filepath.Base(path), err)
		s.respondError(w, statusFor(err), err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, DeepQueryResponse{Report: report, Cached: cached})
}

// uploadSource keys uploads by content alone. Temporary upload paths are never
// library entries, so they cannot change which matches are excluded.
const uploadSource = "upload"

// libraryPath resolves a client-supplied path and rejects anything outside
// the configured library root.
func (s *Server) libraryPath(p string) (string, error) {
	if s.config.LibraryRoot == "" {
		return "", errors.New("server paths are disabled")
	}
	root, err := filepath.Abs(filepath.Clean(s.config.LibraryRoot))
	if err != nil {
		return "", errors.New("invalid library root")
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}
	path := filepath.Clean(p)

	if !within(root, path) {
		return "", errors.New("path is outside the library")
	}
	// symlinks may point out of the library
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		if realRoot, err := filepath.EvalSymlinks(root); err == nil && !within(realRoot, resolved) {
			return "", errors.New("path is outside the library")
		}
	}
	return path, nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// deepQuery answers identical queries (same content, same source, same
// params) from the cache and collapses concurrent duplicates into one
// pipeline run. The run is detached from any single request so one client
// leaving does not fail the others. release is called once path is no
// longer needed, which may be after deepQuery returns.
func (s *Server) deepQuery(ctx context.Context, path, source string, params models.Params, release func()) (*models.Report, bool, error) {
	if release == nil {
		release = func() {}
	}

	digest, err := fetch.Digest(path)
	if err != nil {
		release()
		return nil, false, fmt.Errorf("query file: %w", err)
	}
	key := fmt.Sprintf("%s|%s|%g|%g|%d", digest, source, params.SegmentLength, params.Overlap, params.MinSegments)

	if report, ok := s.cache.Get(key); ok {
		release()
		return withQueryPath(report, path), true, nil
	}

	ch := s.flight.DoChan(key, func() (any, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.QueryTimeout)
		defer cancel()

		report, err := s.service.DeepQuery(runCtx, path, params)
		if err != nil {
			return nil, err
		}
		s.cache.Add(key, report)
		return report, nil
	})

	select {
	case res := <-ch:
		release()
		if res.Err != nil {
			return nil, false, res.Err
		}
		return withQueryPath(res.Val.(*models.Report), path), false, nil
	case <-ctx.Done():
		go func() {
			<-ch
			release()
		}()
		return nil, false, ctx.Err()
	}
}

// withQueryPath returns report as seen by a caller who asked about path.
func withQueryPath(report *models.Report, path string) *models.Report {
	if report.QueryPath == path {
		return report
	}
	r := *report
	r.QueryPath = path
	return &r
}

func (s *Server) saveUpload(w http.ResponseWriter, r *http.Request, req *DeepQueryRequest) (string, func(), error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return "", nil, fmt.Errorf("failed to parse form data")
	}

	if v := r.FormValue("segment_length"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return "", nil, fmt.Errorf("invalid segment_length")
		}
		req.SegmentLength = &f
	}
	if v := r.FormValue("overlap"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return "", nil, fmt.Errorf("invalid overlap")
		}
		req.Overlap = &f
	}
	if v := r.FormValue("min_segments"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return "", nil, fmt.Errorf("invalid min_segments")
		}
		req.MinSegments = &n
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		return "", nil, fmt.Errorf("audio file is required")
	}
	defer file.Close()

	out, err := os.CreateTemp(s.config.TempDir, "upload_*"+filepath.Ext(header.Filename))
	if err != nil {
		s.log.Errorf("Failed to create temp file: %v", err)
		return "", nil, fmt.Errorf("failed to process upload")
	}
	cleanup := func() { os.Remove(out.Name()) }

	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		cleanup()
		return "", nil, fmt.Errorf("failed to save uploaded file")
	}
	if err := out.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to save uploaded file")
	}
	return out.Name(), cleanup, nil
}

// handleListRuns handles GET /api/runs?limit=N
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	runs, err := s.runs.ListRuns(r.Context(), limit)
	if err != nil {
		s.log.Errorf("Failed to list runs: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve runs")
		return
	}
	if runs == nil {
		runs = []models.RunSummary{}
	}
	s.respondJSON(w, http.StatusOK, ListRunsResponse{Runs: runs, Count: len(runs)})
}

// handleGetRun handles GET /api/runs/{id}
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	report, err := s.runs.GetRun(r.Context(), id)
	if err != nil {
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, deepquery.ErrInvalidParams), errors.Is(err, storage.ErrAmbiguousRun):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrRunNotFound), errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, deepquery.ErrDurationUnknown), errors.Is(err, deepquery.ErrNoWindows):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
