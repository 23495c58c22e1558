package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"adcarbon/internal/calendar"
	"adcarbon/internal/emissions"
	"adcarbon/internal/service"
	"adcarbon/internal/validate"
)

const (
	msgMissingParams   = "Missing required parameters"
	msgInvalidParams   = "Invalid parameters"
	msgInvalidDate     = "Invalid date provided"
	msgNoData          = "No emissions data found"
	msgInternal        = "Internal server error"
	msgNotFound        = "Not found"
	msgTooManyRequests = "Too many requests"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

func errorBody(msg string) ErrorResponse {
	return ErrorResponse{Error: msg}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", Version: s.opts.Version})
}

func (s *Server) hello(c *gin.Context) {
	c.String(http.StatusOK, "Hello, world!")
}

// query pulls and validates domain and date, writing the error reply itself
// when they are unusable.
func (s *Server) query(c *gin.Context) (string, calendar.Date, bool) {
	domain, date, err := validate.Query(c.Query("domain"), c.Query("date"))
	switch {
	case err == nil:
		return domain, date, true
	case errors.Is(err, validate.ErrMissing):
		c.JSON(http.StatusForbidden, errorBody(msgMissingParams))
	default:
		_ = c.Error(err)
		c.JSON(http.StatusBadRequest, errorBody(msgInvalidParams))
	}
	return "", calendar.Date{}, false
}

func (s *Server) day(c *gin.Context) {
	domain, date, ok := s.query(c)
	if !ok {
		return
	}

	report, err := s.engine.Day(c.Request.Context(), domain, date)
	if err != nil {
		_ = c.Error(err)
		switch {
		case emissions.IsInvalidDate(err):
			c.JSON(http.StatusForbidden, errorBody(msgInvalidDate))
		case emissions.IsNoData(err):
			c.JSON(http.StatusForbidden, errorBody(msgNoData))
		default:
			c.JSON(http.StatusInternalServerError, errorBody(msgInternal))
		}
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) rollup(g calendar.Granularity) gin.HandlerFunc {
	return func(c *gin.Context) {
		domain, date, ok := s.query(c)
		if !ok {
			return
		}

		rollup, err := s.engine.Run(c.Request.Context(), domain, date, g)
		if err != nil {
			_ = c.Error(err)
			if errors.Is(err, service.ErrAllDaysFailed) {
				s.logger.Error().Err(err).Str("domain", domain).Str("granularity", string(g)).Msg("range request failed for every day")
			}
			c.JSON(http.StatusInternalServerError, errorBody(msgInternal))
			return
		}
		c.JSON(http.StatusOK, rollup)
	}
}
