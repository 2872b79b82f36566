package api

import (
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/glefebvre/vodharvest/internal/database"
	"github.com/glefebvre/vodharvest/internal/errors"
	"github.com/glefebvre/vodharvest/internal/models"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

func (s *Server) healthCheck(c *gin.Context) {
	if err := database.Ping(s.store.DB()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
	})
}

func (s *Server) latestRun(c *gin.Context) {
	ctx := c.Request.Context()

	run, err := s.store.LatestRun(ctx)
	if err != nil {
		s.respondError(c, err)
		return
	}

	downloads, err := s.store.DownloadCounts(ctx, run.ID)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toRunResponse(run, downloads))
}

func (s *Server) listShows(c *gin.Context) {
	ctx := c.Request.Context()

	q, err := parseShowQuery(c)
	if err != nil {
		s.respondError(c, err)
		return
	}

	run, err := s.store.LatestRun(ctx)
	if err != nil {
		s.respondError(c, err)
		return
	}

	shows, total, err := s.store.ListShows(ctx, run.ID, q)
	if err != nil {
		s.respondError(c, err)
		return
	}

	data := make([]ShowResponse, 0, len(shows))
	for _, show := range shows {
		data = append(data, toShowResponse(show))
	}

	c.JSON(http.StatusOK, PaginatedResponse{
		Data:       data,
		Total:      total,
		Limit:      q.Limit,
		Offset:     q.Offset,
		TotalPages: int((total + int64(q.Limit) - 1) / int64(q.Limit)),
	})
}

func (s *Server) getShow(c *gin.Context) {
	ctx := c.Request.Context()

	run, err := s.store.LatestRun(ctx)
	if err != nil {
		s.respondError(c, err)
		return
	}

	show, err := s.store.GetShow(ctx, run.ID, c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toShowDetailResponse(*show))
}

func (s *Server) listCategories(c *gin.Context) {
	ctx := c.Request.Context()

	run, err := s.store.LatestRun(ctx)
	if err != nil {
		s.respondError(c, err)
		return
	}

	cats, err := s.store.Categories(ctx, run.ID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if cats == nil {
		cats = []database.CategorySummary{}
	}

	c.JSON(http.StatusOK, CategoriesResponse{Categories: cats})
}

func parseShowQuery(c *gin.Context) (database.ShowQuery, error) {
	q := database.ShowQuery{
		Category: c.Query("category"),
		Kind:     c.Query("kind"),
		Limit:    defaultLimit,
	}

	switch models.Kind(q.Kind) {
	case "", models.KindFilm, models.KindSerial:
	default:
		return q, errors.ValidationError("kind must be one of: film, serial")
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxLimit {
			return q, errors.ValidationError("limit must be between 1 and 500")
		}
		q.Limit = limit
	}
	if raw := c.Query("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return q, errors.ValidationError("offset must be a non-negative integer")
		}
		q.Offset = offset
	}
	return q, nil
}

func (s *Server) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	label := "internal server error"

	switch errors.GetErrorCode(err) {
	case errors.CodeNotFound:
		status = http.StatusNotFound
		label = "not found"
	case errors.CodeValidation:
		status = http.StatusBadRequest
		label = "invalid request"
	default:
		s.logger.ErrorContext(c.Request.Context(), "request failed", err)
	}

	message := err.Error()
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		message = appErr.Message
	}

	c.JSON(status, ErrorResponse{Error: label, Message: message})
}
