package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aescanero/dagrun/internal/application/loader"
	"github.com/aescanero/dagrun/internal/application/orchestrator"
	"github.com/aescanero/dagrun/internal/application/report"
	"github.com/aescanero/dagrun/pkg/domain"
	"github.com/aescanero/dagrun/pkg/ports"
)

// maxWorkflowSize bounds submission bodies.
const maxWorkflowSize = 1 << 20

// SubmitRunRequest is the JSON form of a run submission. Workflow is either
// a workflow document object or a string holding YAML.
type SubmitRunRequest struct {
	Workflow json.RawMessage   `json:"workflow" binding:"required"`
	Vars     map[string]string `json:"vars"`
}

// SubmitRunResponse represents a run submission response
type SubmitRunResponse struct {
	RunID       string `json:"run_id"`
	Status      string `json:"status"`
	SubmittedAt string `json:"submitted_at"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func respondError(c *gin.Context, status int, code, message string, details interface{}) {
	c.JSON(status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	status := http.StatusOK
	checks := gin.H{
		"orchestrator": gin.H{"active_runs": s.orchestrator.ActiveRuns()},
	}
	if s.health != nil {
		h := s.health.HealthStatus()
		checks["workers"] = h
		if !h.Healthy {
			status = http.StatusServiceUnavailable
		}
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "unhealthy"
	}
	c.JSON(status, gin.H{
		"status":    state,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleSubmitRun handles run submission
func (s *Server) handleSubmitRun(c *gin.Context) {
	wf, vars, err := s.decodeSubmission(c)
	if err != nil {
		s.logger.Warn("invalid submission", zap.Error(err))
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return
	}

	runID, err := s.orchestrator.Submit(c.Request.Context(), wf, vars)
	if err != nil {
		var gerr *domain.GraphError
		switch {
		case errors.As(err, &gerr):
			respondError(c, http.StatusUnprocessableEntity, "INVALID_WORKFLOW", err.Error(), gin.H{
				"run_id": runID,
				"kind":   gerr.Kind.Error(),
				"job":    gerr.Job,
			})
		case errors.Is(err, orchestrator.ErrShuttingDown):
			respondError(c, http.StatusServiceUnavailable, "SHUTTING_DOWN", err.Error(), nil)
		default:
			s.logger.Error("failed to submit run", zap.Error(err))
			respondError(c, http.StatusInternalServerError, "SUBMISSION_FAILED", err.Error(), nil)
		}
		return
	}

	c.JSON(http.StatusCreated, SubmitRunResponse{
		RunID:       runID,
		Status:      "submitted",
		SubmittedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

// decodeSubmission accepts a JSON envelope, or a raw YAML workflow with vars
// passed as vars[name]=value query parameters.
func (s *Server) decodeSubmission(c *gin.Context) (*domain.Workflow, map[string]string, error) {
	mediaType, _, _ := mime.ParseMediaType(c.GetHeader("Content-Type"))

	switch mediaType {
	case "application/yaml", "application/x-yaml", "text/yaml", "text/x-yaml":
		data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWorkflowSize+1))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read body: %w", err)
		}
		if len(data) > maxWorkflowSize {
			return nil, nil, fmt.Errorf("workflow exceeds %d bytes", maxWorkflowSize)
		}
		wf, err := loader.Parse(data)
		if err != nil {
			return nil, nil, err
		}
		return wf, c.QueryMap("vars"), nil

	default:
		var req SubmitRunRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			return nil, nil, err
		}

		doc := []byte(req.Workflow)
		var text string
		if err := json.Unmarshal(req.Workflow, &text); err == nil {
			doc = []byte(text)
		}
		wf, err := loader.Parse(doc)
		if err != nil {
			return nil, nil, err
		}
		return wf, req.Vars, nil
	}
}

// handleListRuns handles listing runs, newest first
func (s *Server) handleListRuns(c *gin.Context) {
	reports, err := s.orchestrator.List(c.Request.Context())
	if err != nil {
		s.logger.Error("failed to list runs", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "STORAGE_ERROR", "Failed to list runs", err.Error())
		return
	}

	if status := c.Query("status"); status != "" {
		filtered := reports[:0]
		for _, r := range reports {
			if string(r.Status) == status {
				filtered = append(filtered, r)
			}
		}
		reports = filtered
	}
	sort.SliceStable(reports, func(i, j int) bool {
		return reports[i].SubmittedAt.After(reports[j].SubmittedAt)
	})

	limit := queryInt(c, "limit", 20)
	offset := queryInt(c, "offset", 0)
	total := len(reports)
	if offset > total {
		offset = total
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":   reports[offset:end],
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// handleGetReport handles getting a run report
func (s *Server) handleGetReport(c *gin.Context) {
	rep, ok := s.report(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, rep)
}

// handleGetSummary renders the run report as markdown
func (s *Server) handleGetSummary(c *gin.Context) {
	rep, ok := s.report(c)
	if !ok {
		return
	}
	c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(report.Markdown(rep)))
}

func (s *Server) report(c *gin.Context) (*domain.RunReport, bool) {
	runID := c.Param("id")

	rep, err := s.orchestrator.GetReport(c.Request.Context(), runID)
	switch {
	case errors.Is(err, ports.ErrRunNotFound):
		respondError(c, http.StatusNotFound, "NOT_FOUND", "Run not found", nil)
		return nil, false
	case err != nil:
		s.logger.Error("failed to get report", zap.String("run_id", runID), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "STORAGE_ERROR", "Failed to get report", err.Error())
		return nil, false
	}
	return rep, true
}

// handleCancelRun handles run cancellation
func (s *Server) handleCancelRun(c *gin.Context) {
	runID := c.Param("id")

	err := s.orchestrator.Cancel(c.Request.Context(), runID)
	switch {
	case errors.Is(err, ports.ErrRunNotFound):
		respondError(c, http.StatusNotFound, "NOT_FOUND", "Run not found", nil)
		return
	case errors.Is(err, orchestrator.ErrRunFinished):
		respondError(c, http.StatusConflict, "ALREADY_FINISHED", err.Error(), nil)
		return
	case err != nil:
		respondError(c, http.StatusInternalServerError, "CANCELLATION_FAILED", err.Error(), nil)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"run_id":       runID,
		"status":       "cancelling",
		"requested_at": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleGetLog serves the combined step log of one instance
func (s *Server) handleGetLog(c *gin.Context) {
	if s.blobs == nil {
		respondError(c, http.StatusServiceUnavailable, "LOGS_NOT_AVAILABLE", "No blob store is configured", nil)
		return
	}

	runID := c.Param("id")
	instance := domain.InstanceID(c.Param("instance"))

	data, err := s.blobs.Get(c.Request.Context(), domain.LogKey(runID, instance))
	switch {
	case errors.Is(err, ports.ErrBlobNotFound):
		respondError(c, http.StatusNotFound, "NOT_FOUND", "Log not found", nil)
		return
	case err != nil:
		s.logger.Error("failed to read log",
			zap.String("run_id", runID),
			zap.String("instance", string(instance)),
			zap.Error(err))
		respondError(c, http.StatusInternalServerError, "STORAGE_ERROR", "Failed to read log", err.Error())
		return
	}

	c.Data(http.StatusOK, "text/plain; charset=utf-8", data)
}

func queryInt(c *gin.Context, name string, def int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil || v < 0 {
		return def
	}
	return v
}
