package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/LJTian/countywire/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Stages whose latest summaries /api/v1/runs/latest reports.
var runStages = []string{"ingest", "synthesis"}

type Server struct {
	store *storage.Store
	log   *zap.Logger
}

func NewServer(store *storage.Store, log *zap.Logger) *Server {
	return &Server{store: store, log: log}
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	{
		v1.GET("/stories", s.listStories)
		v1.GET("/stories/:id", s.getStory)
		v1.GET("/runs/latest", s.latestRuns)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listStories(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		limit = 20
	}

	stories, err := s.store.ListStories(c.Request.Context(), storage.StoryFilter{
		State:  c.Query("state"),
		County: c.Query("county"),
		Limit:  limit,
	})
	if err != nil {
		s.internalError(c, "list stories", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    stories,
	})
}

func (s *Server) getStory(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "bad_request",
			"message": "invalid story id",
		})
		return
	}

	story, err := s.store.GetStory(c.Request.Context(), uint(id))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "not_found",
			"message": "story not found",
		})
		return
	}
	if err != nil {
		s.internalError(c, "get story", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    story,
	})
}

func (s *Server) latestRuns(c *gin.Context) {
	runs, err := s.store.LatestRunSummaries(c.Request.Context(), runStages...)
	if err != nil {
		s.internalError(c, "latest runs", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    runs,
	})
}

func (s *Server) internalError(c *gin.Context, op string, err error) {
	s.log.Error(op+" failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{
		"code":    "internal_error",
		"message": "internal server error",
	})
}
