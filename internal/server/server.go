package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agenthands/powermatch/internal/config"
	"github.com/agenthands/powermatch/internal/core/model"
	"github.com/agenthands/powermatch/internal/logging"
	"github.com/agenthands/powermatch/internal/store"
	"github.com/agenthands/powermatch/internal/tabular"
)

// Runner executes one matching run under a given id.
type Runner interface {
	RunWithID(ctx context.Context, runID string, datasets []model.Dataset) (*model.Result, error)
}

// Exporter publishes a finished run.
type Exporter interface {
	Export(ctx context.Context, res *model.Result) error
}

type Server struct {
	Config   *config.Config
	Runner   Runner
	Store    *store.Store
	Exporter Exporter

	// NewRunID returns ids for new runs; replaced in tests.
	NewRunID func() string

	ctx    context.Context
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewServer serves runs started under ctx; cancelling ctx cancels runs in flight.
func NewServer(ctx context.Context, cfg *config.Config, runner Runner, st *store.Store, exporter Exporter, logger *zap.Logger) *Server {
	return &Server{
		Config:   cfg,
		Runner:   runner,
		Store:    st,
		Exporter: exporter,
		NewRunID: func() string { return uuid.New().String() },
		ctx:      ctx,
		logger:   logging.OrNop(logger).Named("server"),
	}
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.Health)
	r.POST("/runs", s.StartRun)
	r.GET("/runs", s.ListRuns)
	r.GET("/runs/:id", s.GetRun)
	r.GET("/runs/:id/plants", s.GetPlants)
	r.GET("/runs/:id/tables", s.GetTables)
	r.GET("/runs/:id/diagnostics", s.GetDiagnostics)

	return r
}

// Wait blocks until background runs have finished.
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// StartRunRequest carries the datasets inline or names <source>.csv files to read from the
// configured input directory. InputDir optionally selects a subdirectory of it.
type StartRunRequest struct {
	Datasets []model.Dataset `json:"datasets"`
	InputDir string          `json:"input_dir"`
	Sources  []string        `json:"sources"`
}

func (s *Server) StartRun(c *gin.Context) {
	var req StartRunRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
	}

	datasets := req.Datasets
	if len(datasets) == 0 {
		dir, err := s.inputDir(req.InputDir)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		sources := req.Sources
		if len(sources) == 0 {
			sources = s.Config.SourceNames()
		}
		if len(sources) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No datasets or sources given"})
			return
		}
		for _, src := range sources {
			if !localName(src) {
				c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid source name %q", src)})
				return
			}
		}
		if datasets, err = tabular.LoadDir(dir, sources); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	labels := make([]string, 0, len(datasets))
	for _, d := range datasets {
		labels = append(labels, d.Source)
	}
	runID := s.NewRunID()
	if err := s.Store.CreateRun(c.Request.Context(), runID, model.SortedSources(labels)); err != nil {
		s.logger.Error("failed to create run", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create run"})
		return
	}

	if wait, _ := strconv.ParseBool(c.Query("wait")); wait {
		s.execute(c.Request.Context(), runID, datasets)
		s.respondRun(c, runID)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(s.ctx, runID, datasets)
	}()
	c.JSON(http.StatusAccepted, gin.H{"run_id": runID, "status": store.StatusRunning})
}

// inputDir resolves a requested input directory inside the configured one.
func (s *Server) inputDir(sub string) (string, error) {
	if sub == "" {
		return s.Config.Run.InputDir, nil
	}
	if !filepath.IsLocal(sub) {
		return "", fmt.Errorf("input_dir %q must be a relative path inside the input directory", sub)
	}
	return filepath.Join(s.Config.Run.InputDir, sub), nil
}

// localName reports whether a source label is usable as a plain file name.
func localName(name string) bool {
	return filepath.IsLocal(name) && filepath.Base(name) == name
}

// execute runs the pipeline and records the outcome; artifacts and graph export are best effort.
func (s *Server) execute(ctx context.Context, runID string, datasets []model.Dataset) {
	log := s.logger.With(zap.String("run_id", runID))
	res, runErr := s.Runner.RunWithID(ctx, runID, datasets)
	if runErr != nil {
		log.Error("run failed", zap.Error(runErr))
	}

	if runErr == nil {
		if dir := s.Config.Run.OutputDir; dir != "" {
			if _, err := tabular.WriteRun(dir, res); err != nil {
				log.Warn("failed to write artifacts", zap.Error(err))
			}
		}
		if s.Exporter != nil {
			if err := s.Exporter.Export(ctx, res); err != nil {
				log.Warn("failed to export run", zap.Error(err))
			}
		}
	}

	// Record the outcome even if the request that started the run went away.
	if err := s.Store.FinishRun(context.WithoutCancel(ctx), runID, res, runErr); err != nil {
		log.Error("failed to record run", zap.Error(err))
	}
}

func (s *Server) ListRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	runs, err := s.Store.ListRuns(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list runs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list runs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) GetRun(c *gin.Context) {
	s.respondRun(c, c.Param("id"))
}

func (s *Server) respondRun(c *gin.Context, id string) {
	run, err := s.Store.GetRun(c.Request.Context(), id)
	if s.handleError(c, err) {
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) GetPlants(c *gin.Context) {
	plants, err := s.Store.Plants(c.Request.Context(), c.Param("id"))
	if s.handleError(c, err) {
		return
	}
	if plants == nil {
		plants = []model.Plant{}
	}
	c.JSON(http.StatusOK, gin.H{"plants": plants})
}

func (s *Server) GetTables(c *gin.Context) {
	tables, err := s.Store.Tables(c.Request.Context(), c.Param("id"))
	if s.handleError(c, err) {
		return
	}
	if tables == nil {
		tables = []model.PairwiseMatchTable{}
	}
	c.JSON(http.StatusOK, gin.H{"tables": tables})
}

func (s *Server) GetDiagnostics(c *gin.Context) {
	diag, err := s.Store.Diagnostics(c.Request.Context(), c.Param("id"))
	if s.handleError(c, err) {
		return
	}
	c.JSON(http.StatusOK, diag)
}

func (s *Server) handleError(c *gin.Context, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, store.ErrRunNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
	default:
		s.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
	return true
}
