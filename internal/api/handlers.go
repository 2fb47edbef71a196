package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/prior-auth-engine/internal/domain"
)

// evaluateRequest is the body of POST /api/v1/evaluate.
type evaluateRequest struct {
	Patient  domain.PatientRecord `json:"patient" binding:"required"`
	DrugName string               `json:"drug_name" binding:"required"`
}

// handleEvaluate runs one (patient, drug) evaluation synchronously.
func (s *Server) handleEvaluate(c *gin.Context) {
	var req evaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.Patient.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.pipeline.Evaluate(c.Request.Context(), &req.Patient, req.DrugName)
	if err != nil {
		s.renderEvaluationError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// renderEvaluationError maps evaluation errors to HTTP statuses. Collaborator
// outages are the payer's 502, bad input the caller's 400.
func (s *Server) renderEvaluationError(c *gin.Context, err error) {
	s.logger.WithFields(logrus.Fields{
		"correlation_id": c.GetString("correlation_id"),
		"error":          err,
	}).Error("Evaluation failed")

	var configErr *domain.ConfigurationError
	switch {
	case errors.Is(err, domain.ErrCollaborator):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	case errors.As(err, &configErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// handleGetSubmission returns the stored submission record for a tracking ID.
func (s *Server) handleGetSubmission(c *gin.Context) {
	if s.records == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "submission persistence not configured"})
		return
	}

	trackingID := c.Param("trackingId")
	record, err := s.records.GetByTrackingID(c.Request.Context(), trackingID)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "submission not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, record)
}

// handleGetSubmissionStatus resolves a tracking ID to a terminal status and
// records it on the stored submission.
func (s *Server) handleGetSubmissionStatus(c *gin.Context) {
	if s.tracker == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "status tracking not configured"})
		return
	}

	trackingID := c.Param("trackingId")
	status, err := s.tracker.Track(c.Request.Context(), trackingID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	if s.records != nil {
		if err := s.records.UpdateStatus(c.Request.Context(), trackingID, status); err != nil && !errors.Is(err, domain.ErrRecordNotFound) {
			s.logger.WithError(err).Error("Failed to record submission status")
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"tracking_id": trackingID,
		"status":      status,
	})
}
