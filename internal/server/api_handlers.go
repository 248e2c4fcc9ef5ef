package server

import (
	"net/http"
	"time"

	"loan-decision/internal/common/errors"
	"loan-decision/internal/common/validation"
	"loan-decision/internal/models"

	"github.com/gin-gonic/gin"
)

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

func (s *Server) readiness(c *gin.Context) {
	if s.ready != nil {
		if err := s.ready(c.Request.Context()); err != nil {
			s.logger.WithError(err).Warn("readiness check failed", nil)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "err": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) apiStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Loan Approval API is running! Send a POST request to /predict.",
		"source":  s.controller.SourceName(),
	})
}

func (s *Server) apiFields(c *gin.Context) {
	c.JSON(http.StatusOK, s.controller.Catalog())
}

func (s *Server) apiDemo(c *gin.Context) {
	c.JSON(http.StatusOK, s.controller.DemoApplication())
}

func (s *Server) apiState(c *gin.Context) {
	state, err := s.controller.State(c.Request.Context(), sessionID(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// predict evaluates a posted application with the configured source and
// answers in the shape remote clients expect: the verdict on success and
// {"detail": ...} otherwise.
func (s *Server) predict(c *gin.Context) {
	var app models.Application
	if err := c.ShouldBindJSON(&app); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "Request body must be a JSON object of application fields."})
		return
	}

	if result := validation.ValidateInput(app, s.controller.Catalog().Schema()); !result.Valid {
		verr := errors.NewApplicationValidationFailedError(result.Fields())
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": verr.Message, "fields": result.Fields()})
		return
	}

	v, err := s.controller.Evaluate(c.Request.Context(), app)
	if err != nil {
		stdErr := errors.AsStandardError(err)
		status := http.StatusInternalServerError
		if stdErr.Code == errors.ErrCodeEvaluationCancelled {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"detail": stdErr.Message})
		return
	}
	c.JSON(http.StatusOK, v)
}
