package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/turbolytics/docket/internal"
	"github.com/turbolytics/docket/internal/catalog"
	"github.com/turbolytics/docket/internal/scraper"
	"go.uber.org/zap"
)

// Reporter answers progress questions from persisted state only.
type Reporter interface {
	Status(ctx context.Context, dataset int) (scraper.Status, error)
	Statuses(ctx context.Context) ([]scraper.Status, error)
	Missing(ctx context.Context, dataset int) ([]internal.Reference, error)
}

// Server exposes read-only scrape progress over HTTP.
type Server struct {
	logger   *zap.Logger
	reporter Reporter
}

type DatasetInfo struct {
	scraper.Status
	Progress string `json:"progress"`
}

func NewServer(reporter Reporter, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		logger:   logger,
		reporter: reporter,
	}
}

func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1/datasets", func(r chi.Router) {
		r.Get("/", s.listDatasets)
		r.Get("/{dataset}", s.getDataset)
		r.Get("/{dataset}/missing", s.getMissing)
	})

	return r
}

func (s *Server) listDatasets(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.reporter.Statuses(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}

	datasets := make([]DatasetInfo, 0, len(statuses))
	for _, st := range statuses {
		datasets = append(datasets, DatasetInfo{Status: st, Progress: st.Progress()})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"datasets": datasets,
		"count":    len(datasets),
	})
}

func (s *Server) getDataset(w http.ResponseWriter, r *http.Request) {
	dataset, ok := datasetParam(w, r)
	if !ok {
		return
	}

	st, err := s.reporter.Status(r.Context(), dataset)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DatasetInfo{Status: st, Progress: st.Progress()})
}

func (s *Server) getMissing(w http.ResponseWriter, r *http.Request) {
	dataset, ok := datasetParam(w, r)
	if !ok {
		return
	}

	missing, err := s.reporter.Missing(r.Context(), dataset)
	if err != nil {
		s.fail(w, err)
		return
	}
	if missing == nil {
		missing = []internal.Reference{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"dataset": dataset,
		"missing": missing,
		"count":   len(missing),
	})
}

func datasetParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	dataset, err := strconv.Atoi(chi.URLParam(r, "dataset"))
	if err != nil {
		http.Error(w, "dataset must be a number", http.StatusBadRequest)
		return 0, false
	}
	return dataset, true
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	if errors.Is(err, catalog.ErrUnknownDataset) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	s.logger.Error("request failed", zap.Error(err))
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.Routes(),
	}

	s.logger.Info("starting status server", zap.String("addr", addr))

	go func() {
		<-ctx.Done()
		s.logger.Info("shutting down status server")
		srv.Shutdown(context.Background())
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
