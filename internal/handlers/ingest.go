package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/checkfox/leadroute/internal/logger"
	"github.com/checkfox/leadroute/internal/models"
	"github.com/checkfox/leadroute/internal/queue"
	"github.com/checkfox/leadroute/internal/repository"
)

// IngestHandler accepts lead submissions from vendor sources
type IngestHandler struct {
	snapshots repository.SnapshotRepository
	leadRepo  repository.LeadRepository
	queue     queue.Queue
	limiter   RateLimiter
}

// NewIngestHandler creates a new IngestHandler
func NewIngestHandler(snapshots repository.SnapshotRepository, leadRepo repository.LeadRepository, q queue.Queue, limiter RateLimiter) *IngestHandler {
	return &IngestHandler{
		snapshots: snapshots,
		leadRepo:  leadRepo,
		queue:     q,
		limiter:   limiter,
	}
}

// IngestResponse represents the response returned to submitting sources
type IngestResponse struct {
	LeadRef       string `json:"lead_ref"`
	Status        string `json:"status"`
	CorrelationID string `json:"correlation_id"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error         string `json:"error"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// HandleIngest handles POST /v1/ingest/{api_key}
func (h *IngestHandler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	// Generate correlation ID for request tracing
	correlationID := uuid.New().String()
	ctx := context.WithValue(r.Context(), logger.CorrelationIDKey, correlationID)

	logger.Info(ctx, "Received ingest request",
		"remote_addr", r.RemoteAddr,
		"method", r.Method,
	)

	if r.Method != http.MethodPost {
		respondError(w, ctx, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	apiKey := mux.Vars(r)["api_key"]
	if apiKey == "" {
		respondError(w, ctx, http.StatusUnauthorized, "missing API key")
		return
	}

	snapshot, err := h.snapshots.Load(ctx)
	if err != nil {
		logger.LogError(ctx, "Failed to load configuration", err)
		respondError(w, ctx, http.StatusServiceUnavailable, "configuration unavailable")
		return
	}

	source, ok := snapshot.SourceByAPIKey(apiKey)
	if !ok {
		logger.Warn(ctx, "Unknown API key", "remote_addr", r.RemoteAddr)
		respondError(w, ctx, http.StatusUnauthorized, "invalid API key")
		return
	}

	ctx = context.WithValue(ctx, logger.SourceIDKey, source.ID)

	if source.Config.Status != models.StatusEnabled {
		logger.Warn(ctx, "Submission to disabled source", "source_id", source.ID)
		respondError(w, ctx, http.StatusForbidden, "source is disabled")
		return
	}

	allowed, err := h.limiter.Allow(ctx, source)
	if err != nil {
		logger.LogError(ctx, "Rate limiter error", err)
		respondError(w, ctx, http.StatusServiceUnavailable, "rate limiter unavailable")
		return
	}
	if !allowed {
		logger.Warn(ctx, "Source rate limited", "source_id", source.ID)
		respondError(w, ctx, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		logger.LogError(ctx, "Failed to read request body", err)
		respondError(w, ctx, http.StatusBadRequest, "failed to read request body")
		return
	}
	defer r.Body.Close()

	var rawPayload models.JSONB
	if err := json.Unmarshal(body, &rawPayload); err != nil {
		logger.LogError(ctx, "Malformed JSON payload", err)
		respondError(w, ctx, http.StatusBadRequest, "malformed JSON payload")
		return
	}
	if len(rawPayload) == 0 {
		respondError(w, ctx, http.StatusBadRequest, "empty payload")
		return
	}

	lead := &models.Lead{
		LeadRef:    models.NewLeadRef(),
		VendorID:   source.VendorID,
		SourceID:   source.ID,
		RawPayload: rawPayload,
		Status:     models.LeadStatusNew,
		CreatedAt:  time.Now().UTC(),
	}

	if err := h.leadRepo.CreateLead(ctx, lead); err != nil {
		logger.LogError(ctx, "Failed to create lead", err)
		respondError(w, ctx, http.StatusServiceUnavailable, "database error")
		return
	}

	// Add lead_id to context for subsequent logging
	ctx = context.WithValue(ctx, logger.LeadIDKey, lead.ID)

	logger.Info(ctx, "Created lead", "lead_ref", lead.LeadRef, "status", lead.Status)

	jobPayload := queue.RouteLeadPayload(lead.ID)
	if err := h.queue.Enqueue(ctx, queue.JobTypeRouteLead, jobPayload); err != nil {
		logger.LogError(ctx, "Failed to enqueue routing job", err)
		respondError(w, ctx, http.StatusServiceUnavailable, "queue unavailable")
		return
	}

	logger.Info(ctx, "Enqueued routing job")

	duration := time.Since(startTime)
	logger.LogSlowOperation(ctx, "ingest_request", duration)

	response := IngestResponse{
		LeadRef:       lead.LeadRef,
		Status:        string(lead.Status),
		CorrelationID: correlationID,
	}

	respondJSON(w, ctx, http.StatusAccepted, response)
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, ctx context.Context, statusCode int, data interface{}) {
	if correlationID, ok := ctx.Value(logger.CorrelationIDKey).(string); ok {
		w.Header().Set("X-Correlation-ID", correlationID)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.LogError(ctx, "Failed to encode response", err)
	}
}

// respondError sends an error response
func respondError(w http.ResponseWriter, ctx context.Context, statusCode int, message string) {
	correlationID := ""
	if id, ok := ctx.Value(logger.CorrelationIDKey).(string); ok {
		correlationID = id
	}

	response := ErrorResponse{
		Error:         message,
		CorrelationID: correlationID,
	}
	respondJSON(w, ctx, statusCode, response)
}
